package models

import (
	"fmt"
	"strings"
	"time"
)

// VendorRecord is one row of the rental vendor's export. The vendor has no
// stable identifier; RowID is assigned at the parsing boundary and is unique
// within one snapshot.
type VendorRecord struct {
	RowID             string     `json:"row_id" csv:"row_id"`
	AgreementNumber   *string    `json:"agreement_number,omitempty" csv:"agreement_number"`
	ReservationNumber *string    `json:"reservation_number,omitempty" csv:"reservation_number"`
	KeyNumber         *string    `json:"key_number,omitempty" csv:"mva"`
	PlateState        *string    `json:"plate_state,omitempty" csv:"plate_state"`
	PlateNumber       *string    `json:"plate_number,omitempty" csv:"plate_number"`
	Make              *string    `json:"make,omitempty" csv:"make"`
	Model             *string    `json:"model,omitempty" csv:"model"`
	Color             *string    `json:"color,omitempty" csv:"color"`
	PickupLocation    *string    `json:"pickup_location,omitempty" csv:"pickup_location"`
	PickupDate        *time.Time `json:"pickup_date,omitempty" csv:"pickup_date"`
	ExpectedReturn    *time.Time `json:"expected_return,omitempty" csv:"expected_return"`
	CostControl       *string    `json:"cost_control,omitempty" csv:"cost_control"`
	Provenance        Provenance `json:"provenance" csv:"provenance"`
}

// Clone returns a shallow copy. Pointer fields are shared, which is safe
// because records are never mutated after parsing.
func (v *VendorRecord) Clone() *VendorRecord {
	c := *v
	return &c
}

// Plate renders "STATE NUMBER" for display, or "" when incomplete.
func (v *VendorRecord) Plate() string {
	if v.PlateState == nil || v.PlateNumber == nil {
		return ""
	}
	return *v.PlateState + " " + *v.PlateNumber
}

// Validate checks the fields every vendor row must carry.
func (v *VendorRecord) Validate() error {
	if strings.TrimSpace(v.RowID) == "" {
		return fmt.Errorf("row id cannot be empty")
	}
	if !v.Provenance.IsValid() {
		return fmt.Errorf("invalid provenance %q for row %s", v.Provenance, v.RowID)
	}
	return nil
}

// String returns a string representation of the vendor record
func (v *VendorRecord) String() string {
	return fmt.Sprintf("VendorRecord{Row: %s, Agreement: %s, Reservation: %s, MVA: %s, Plate: %s, Provenance: %s}",
		v.RowID, Deref(v.AgreementNumber), Deref(v.ReservationNumber), Deref(v.KeyNumber), v.Plate(), v.Provenance)
}

// MissingRowID is the row identity given to a record synthesized from the
// tracker record with the given stable identifier.
func MissingRowID(vehicleID string) string {
	return "missing:" + vehicleID
}

// NewMissingVendorRecord synthesizes a vendor-shaped row from a tracker
// record that has no vendor counterpart at all.
func NewMissingVendorRecord(t *TrackerRecord) *VendorRecord {
	v := t.Vehicle
	return &VendorRecord{
		RowID:             MissingRowID(v.VehicleID),
		AgreementNumber:   v.AgreementNumber,
		ReservationNumber: v.ReservationNumber,
		KeyNumber:         v.KeyNumber,
		PlateState:        v.PlateState,
		PlateNumber:       v.PlateNumber,
		Make:              v.Make,
		Model:             v.Model,
		Color:             v.Color,
		PickupDate:        v.PickupDate,
		ExpectedReturn:    v.ReturnDate,
		Provenance:        ProvenanceMissing,
	}
}

// Agency is an entry of the tracker's pickup-agency directory.
type Agency struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
}

// LocationString joins the address components the way the vendor writes a
// pickup location. Blank components are skipped.
func (a *Agency) LocationString() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Address, a.City, a.State, a.Zip} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
