package models

import (
	"fmt"
	"strings"
	"time"
)

// Vehicle is the nested vehicle-assignment object of a tracker row.
type Vehicle struct {
	// VehicleID is the tracker-assigned stable identifier.
	VehicleID         string     `json:"vehicle_id"`
	Vendor            *string    `json:"vendor,omitempty"`
	AgreementNumber   *string    `json:"agreement_number,omitempty"`
	ReservationNumber *string    `json:"reservation_number,omitempty"`
	KeyNumber         *string    `json:"key_number,omitempty"`
	PlateState        *string    `json:"plate_state,omitempty"`
	PlateNumber       *string    `json:"plate_number,omitempty"`
	Make              *string    `json:"make,omitempty"`
	Model             *string    `json:"model,omitempty"`
	Color             *string    `json:"color,omitempty"`
	CategoryCode      *string    `json:"category_code,omitempty"`
	DriverID          *string    `json:"driver_id,omitempty"`
	DriverName        *string    `json:"driver_name,omitempty"`
	WorkGroup         *string    `json:"work_group,omitempty"`
	GAP               *string    `json:"gap,omitempty"`
	PickupDate        *time.Time `json:"pickup_date,omitempty"`
	ReturnDate        *time.Time `json:"return_date,omitempty"`
	PickupAgencyID    *string    `json:"pickup_agency_id,omitempty"`
}

// TrackerRecord is one row of the fleet tracker's vehicle list.
type TrackerRecord struct {
	Status  Status  `json:"status"`
	Vehicle Vehicle `json:"vehicle"`
}

// ID returns the stable identifier of the record.
func (t *TrackerRecord) ID() string {
	return t.Vehicle.VehicleID
}

// IsActive reports whether the assignment is live.
func (t *TrackerRecord) IsActive() bool {
	return t.Status.IsActive()
}

// IsRental reports whether the vehicle is a rental (category "R").
func (t *TrackerRecord) IsRental() bool {
	return strings.EqualFold(Deref(t.Vehicle.CategoryCode), "R")
}

// VendorIs reports whether the vehicle is managed by the named vendor.
func (t *TrackerRecord) VendorIs(name string) bool {
	return t.Vehicle.Vendor != nil && strings.EqualFold(strings.TrimSpace(*t.Vehicle.Vendor), strings.TrimSpace(name))
}

// Plate renders "STATE NUMBER" for display, or "" when incomplete.
func (t *TrackerRecord) Plate() string {
	if t.Vehicle.PlateState == nil || t.Vehicle.PlateNumber == nil {
		return ""
	}
	return *t.Vehicle.PlateState + " " + *t.Vehicle.PlateNumber
}

// Validate checks the fields every tracker row must carry.
func (t *TrackerRecord) Validate() error {
	if strings.TrimSpace(t.Vehicle.VehicleID) == "" {
		return fmt.Errorf("vehicle id cannot be empty")
	}
	if strings.TrimSpace(string(t.Status)) == "" {
		return fmt.Errorf("status cannot be empty for vehicle %s", t.Vehicle.VehicleID)
	}
	return nil
}

// String returns a string representation of the tracker record
func (t *TrackerRecord) String() string {
	return fmt.Sprintf("TrackerRecord{ID: %s, Status: %s, Vendor: %s, Key: %s, Plate: %s}",
		t.ID(), t.Status, Deref(t.Vehicle.Vendor), Deref(t.Vehicle.KeyNumber), t.Plate())
}

// RosterMember is one person on the deployment staffing roster.
type RosterMember struct {
	Name string `json:"name"`
	// GAP is the group/activity/position assignment, e.g. "LOG/TR/SV".
	GAP string `json:"gap"`
	// TandM is the time-and-materials code; "MDA" marks members who drive.
	TandM string `json:"t_and_m"`
}
