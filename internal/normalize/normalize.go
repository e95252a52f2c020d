// Package normalize canonicalizes the identifying fields of tracker and vendor
// records into comparable keys.
//
// The rules are fixed matching policy, applied identically to both sources:
//
//   - agreement number: trimmed, prefix letter enforced, uppercased
//   - reservation number: trimmed, separators removed, uppercased
//   - key number: trimmed, left-padded with zeros, never truncated
//   - plate: "STATE NUMBER" from the two trimmed components, uppercased
//
// Absent input never produces a key. Every rule is idempotent, so a
// canonical key normalizes to itself.
package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"fleet-reconciliation-service/internal/models"
	"fleet-reconciliation-service/pkg/errors"
	"fleet-reconciliation-service/pkg/logger"
)

// Key is a canonical identifying value.
type Key string

// String returns the key as a plain string
func (k Key) String() string {
	return string(k)
}

// Source names the system a raw value came from.
type Source string

const (
	SourceTracker Source = "tracker"
	SourceVendor  Source = "vendor"
)

// Config holds the normalization policy.
type Config struct {
	// AgreementPrefix is the letter every vendor agreement number starts with.
	AgreementPrefix string `json:"agreement_prefix" yaml:"agreement_prefix"`
	// KeyWidth is the zero-padded width of key numbers.
	KeyWidth int `json:"key_width" yaml:"key_width"`
	// ReservationSeparators are stripped from reservation numbers.
	ReservationSeparators string `json:"reservation_separators" yaml:"reservation_separators"`
}

// DefaultConfig returns the vendor's numbering conventions.
func DefaultConfig() *Config {
	return &Config{
		AgreementPrefix:       "U",
		KeyWidth:              9,
		ReservationSeparators: "- ./_",
	}
}

// Validate validates the normalization policy
func (c *Config) Validate() error {
	if len([]rune(c.AgreementPrefix)) != 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "agreement_prefix", c.AgreementPrefix,
			fmt.Errorf("agreement prefix must be a single character"))
	}
	if c.KeyWidth <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "key_width", c.KeyWidth,
			fmt.Errorf("key width must be positive"))
	}
	return nil
}

// canonicalRe matches keys made only of the characters valid identifiers
// use. Anything else is malformed and logged, but still normalized.
var canonicalRe = regexp.MustCompile(`^[A-Z0-9]+( [A-Z0-9]+)?$`)

// Normalizer applies the normalization policy.
type Normalizer struct {
	prefix     string
	width      int
	separators string
	logger     logger.Logger
}

// New creates a Normalizer. A nil config uses DefaultConfig.
func New(config *Config, log logger.Logger) (*Normalizer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Normalizer{
		prefix:     strings.ToUpper(config.AgreementPrefix),
		width:      config.KeyWidth,
		separators: config.ReservationSeparators,
		logger:     logger.OrGlobal(log).WithComponent("normalizer"),
	}, nil
}

// Default returns a Normalizer with the default policy.
func Default() *Normalizer {
	n, _ := New(DefaultConfig(), nil)
	return n
}

// Agreement normalizes an agreement number.
func (n *Normalizer) Agreement(raw *string) (Key, bool) {
	s, ok := trimmed(raw)
	if !ok {
		return "", false
	}
	s = strings.ToUpper(s)
	if !strings.HasPrefix(s, n.prefix) {
		s = n.prefix + s
	}
	return Key(s), true
}

// Reservation normalizes a reservation number.
func (n *Normalizer) Reservation(raw *string) (Key, bool) {
	s, ok := trimmed(raw)
	if !ok {
		return "", false
	}
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(n.separators, r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return "", false
	}
	return Key(strings.ToUpper(s)), true
}

// KeyNumber normalizes a key number (the vendor's MVA).
func (n *Normalizer) KeyNumber(raw *string) (Key, bool) {
	s, ok := trimmed(raw)
	if !ok {
		return "", false
	}
	if pad := n.width - len(s); pad > 0 {
		s = strings.Repeat("0", pad) + s
	}
	return Key(strings.ToUpper(s)), true
}

// Plate normalizes a plate from its state and number components. Both must
// be present.
func (n *Normalizer) Plate(state, number *string) (Key, bool) {
	st, ok := trimmed(state)
	if !ok {
		return "", false
	}
	num, ok := trimmed(number)
	if !ok {
		return "", false
	}
	return Key(strings.ToUpper(st + " " + num)), true
}

// Field is the generic form of the per-field functions. The plate takes two
// raw values (state, number); every other field takes one. Keys that contain
// characters no real identifier uses are logged as malformed input and
// returned anyway, because they can only fail to match.
func (n *Normalizer) Field(source Source, field models.KeyField, raw ...*string) (Key, bool) {
	var (
		key Key
		ok  bool
	)

	switch field {
	case models.FieldAgreement:
		key, ok = n.Agreement(first(raw))
	case models.FieldReservation:
		key, ok = n.Reservation(first(raw))
	case models.FieldKey:
		key, ok = n.KeyNumber(first(raw))
	case models.FieldPlate:
		if len(raw) != 2 {
			return "", false
		}
		key, ok = n.Plate(raw[0], raw[1])
	default:
		return "", false
	}

	if ok && !canonicalRe.MatchString(string(key)) {
		n.logger.WithFields(logger.Fields{
			"source": source,
			"field":  field,
			"value":  string(key),
			"code":   errors.CodeMalformedInput,
		}).Warn("Malformed identifier will not match")
	}
	return key, ok
}

// Vendor returns the normalized key of field for a vendor row.
func (n *Normalizer) Vendor(v *models.VendorRecord, field models.KeyField) (Key, bool) {
	switch field {
	case models.FieldPlate:
		return n.Field(SourceVendor, field, v.PlateState, v.PlateNumber)
	case models.FieldAgreement:
		return n.Field(SourceVendor, field, v.AgreementNumber)
	case models.FieldReservation:
		return n.Field(SourceVendor, field, v.ReservationNumber)
	case models.FieldKey:
		return n.Field(SourceVendor, field, v.KeyNumber)
	}
	return "", false
}

// Tracker returns the normalized key of field for a tracker record.
func (n *Normalizer) Tracker(t *models.TrackerRecord, field models.KeyField) (Key, bool) {
	veh := &t.Vehicle
	switch field {
	case models.FieldPlate:
		return n.Field(SourceTracker, field, veh.PlateState, veh.PlateNumber)
	case models.FieldAgreement:
		return n.Field(SourceTracker, field, veh.AgreementNumber)
	case models.FieldReservation:
		return n.Field(SourceTracker, field, veh.ReservationNumber)
	case models.FieldKey:
		return n.Field(SourceTracker, field, veh.KeyNumber)
	}
	return "", false
}

func trimmed(raw *string) (string, bool) {
	if raw == nil {
		return "", false
	}
	s := strings.TrimSpace(*raw)
	return s, s != ""
}

func first(raw []*string) *string {
	if len(raw) == 0 {
		return nil
	}
	return raw[0]
}
