package normalize

import (
	"strings"
	"testing"

	"fleet-reconciliation-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s(v string) *string { return &v }

func TestAgreement(t *testing.T) {
	n := Default()
	tests := []struct {
		name string
		raw  *string
		want Key
		ok   bool
	}{
		{"nil", nil, "", false},
		{"blank", s("   "), "", false},
		{"prefix added", s("12345678"), "U12345678", true},
		{"prefix kept", s("U12345678"), "U12345678", true},
		{"lowercase prefix", s(" u12345678 "), "U12345678", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := n.Agreement(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReservation(t *testing.T) {
	n := Default()
	tests := []struct {
		name string
		raw  *string
		want Key
		ok   bool
	}{
		{"nil", nil, "", false},
		{"separators", s("876-5432-1-US-6"), "87654321US6", true},
		{"spaces and case", s(" 8765 4321 us6 "), "87654321US6", true},
		{"only separators", s("--"), "", false},
		{"already clean", s("87654321US6"), "87654321US6", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := n.Reservation(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeyNumber(t *testing.T) {
	n := Default()
	tests := []struct {
		name string
		raw  *string
		want Key
		ok   bool
	}{
		{"nil", nil, "", false},
		{"padded", s("42"), "000000042", true},
		{"exact width", s("000000042"), "000000042", true},
		{"never truncated", s("1234567890"), "1234567890", true},
		{"trimmed", s(" 42 "), "000000042", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := n.KeyNumber(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlate(t *testing.T) {
	n := Default()

	got, ok := n.Plate(s(" ca "), s(" abc1234"))
	require.True(t, ok)
	assert.Equal(t, Key("CA ABC1234"), got)

	_, ok = n.Plate(nil, s("ABC1234"))
	assert.False(t, ok)
	_, ok = n.Plate(s("CA"), nil)
	assert.False(t, ok)
	_, ok = n.Plate(s("CA"), s(" "))
	assert.False(t, ok)
}

func TestNormalizationIsIdempotent(t *testing.T) {
	n := Default()
	raws := []string{"12345678", "u1", "876-5432-1-US-6", "42", "x", "A B", "0", "UUU", "1234567890"}

	for _, raw := range raws {
		t.Run(raw, func(t *testing.T) {
			for _, fn := range []func(*string) (Key, bool){n.Agreement, n.Reservation, n.KeyNumber} {
				once, ok := fn(s(raw))
				if !ok {
					continue
				}
				twice, ok := fn(s(once.String()))
				require.True(t, ok)
				assert.Equal(t, once, twice)
			}

			once, ok := n.Plate(s("ca"), s(raw))
			require.True(t, ok)
			parts := strings.SplitN(once.String(), " ", 2)
			twice, ok := n.Plate(s(parts[0]), s(parts[1]))
			require.True(t, ok)
			assert.Equal(t, once, twice)
		})
	}
}

func TestField(t *testing.T) {
	n := Default()

	key, ok := n.Field(SourceVendor, models.FieldKey, s("42"))
	assert.True(t, ok)
	assert.Equal(t, Key("000000042"), key)

	key, ok = n.Field(SourceTracker, models.FieldPlate, s("CA"), s("ABC1234"))
	assert.True(t, ok)
	assert.Equal(t, Key("CA ABC1234"), key)

	_, ok = n.Field(SourceTracker, models.FieldPlate, s("CA"))
	assert.False(t, ok)
	_, ok = n.Field(SourceTracker, models.FieldAgreement)
	assert.False(t, ok)
	_, ok = n.Field(SourceTracker, models.KeyField("vin"), s("1"))
	assert.False(t, ok)

	// Malformed input still yields a key that cannot collide with valid ones.
	key, ok = n.Field(SourceVendor, models.FieldAgreement, s("12#45"))
	assert.True(t, ok)
	assert.Equal(t, Key("U12#45"), key)
}

func TestVendorAndTrackerAgree(t *testing.T) {
	n := Default()
	tracker := &models.TrackerRecord{
		Status: models.StatusActive,
		Vehicle: models.Vehicle{
			VehicleID:         "VH-1",
			AgreementNumber:   s("12345678"),
			ReservationNumber: s("87654321US6"),
			KeyNumber:         s("000000042"),
			PlateState:        s("CA"),
			PlateNumber:       s("ABC1234"),
		},
	}
	vendor := &models.VendorRecord{
		RowID:             "r1",
		AgreementNumber:   s("U12345678"),
		ReservationNumber: s("876-5432-1-US-6"),
		KeyNumber:         s("42"),
		PlateState:        s("CA"),
		PlateNumber:       s("ABC1234"),
	}

	for _, field := range models.KeyFields {
		tk, tok := n.Tracker(tracker, field)
		vk, vok := n.Vendor(vendor, field)
		require.True(t, tok, field)
		require.True(t, vok, field)
		assert.Equal(t, tk, vk, field)
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.AgreementPrefix = "UX"
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.KeyWidth = 0
	assert.Error(t, bad.Validate())

	_, err := New(bad, nil)
	assert.Error(t, err)

	custom := DefaultConfig()
	custom.KeyWidth = 5
	n, err := New(custom, nil)
	require.NoError(t, err)
	key, _ := n.KeyNumber(s("42"))
	assert.Equal(t, Key("00042"), key)
}

func TestLocation(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"123 Main St., Fresno, CA", "123 MAIN ST FRESNO CA"},
		{"  São   Paulo  ", "SAO PAULO"},
		{"O'Hare Int'l Airport", "OHARE INTL AIRPORT"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Location(tt.in))
			assert.Equal(t, tt.want, Location(Location(tt.in)))
		})
	}
}
