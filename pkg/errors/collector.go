package errors

// RecordErrorCollector gathers per-record errors during a deployment run so
// that one bad row never stops the report for the rest of the fleet. Every
// error is counted; only the first maxErrors are kept.
type RecordErrorCollector struct {
	maxErrors int
	total     int
	errors    []*ReconcilerError
	byCode    map[ErrorCode]int
}

// NewRecordErrorCollector creates a collector. maxErrors <= 0 keeps them all.
func NewRecordErrorCollector(maxErrors int) *RecordErrorCollector {
	return &RecordErrorCollector{
		maxErrors: maxErrors,
		byCode:    make(map[ErrorCode]int),
	}
}

// Add records err. Nil errors are ignored.
func (c *RecordErrorCollector) Add(err *ReconcilerError) {
	if err == nil {
		return
	}

	c.total++
	c.byCode[err.Code]++
	if c.maxErrors <= 0 || len(c.errors) < c.maxErrors {
		c.errors = append(c.errors, err)
	}
}

// HasErrors returns true if anything was collected
func (c *RecordErrorCollector) HasErrors() bool {
	return c.total > 0
}

// Total returns the number of errors added, including dropped ones.
func (c *RecordErrorCollector) Total() int {
	return c.total
}

// Count returns how many errors with code were added.
func (c *RecordErrorCollector) Count(code ErrorCode) int {
	return c.byCode[code]
}

// Errors returns the retained errors in insertion order.
func (c *RecordErrorCollector) Errors() []*ReconcilerError {
	return c.errors
}

// Summary builds an ErrorSummary over the retained errors, with counts that
// include dropped ones.
func (c *RecordErrorCollector) Summary() *ErrorSummary {
	summary := NewErrorSummary(c.errors)
	summary.Total = c.total
	for code, n := range c.byCode {
		summary.ByCode[code] = n
	}
	return summary
}
