package deployment

import (
	"os"
	"path/filepath"
	"testing"

	"fleet-reconciliation-service/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sp(s string) *string { return &s }

func TestDeployment_Identity(t *testing.T) {
	d := New("5", "23")

	assert.Equal(t, "005", d.PaddedNumber())
	assert.Equal(t, "005-23", d.ID())
	assert.Equal(t, "o365_token-005-23.txt", d.TokenFilename())
	assert.Equal(t, "dtt_cookies-005-23.txt", d.CookieFilename())
	assert.Equal(t, DefaultVendor, d.Vendor)
	assert.Equal(t, "DR005-23 (Avis)", d.String())
	assert.Equal(t, "1234-23", New("1234", "23").ID())
}

func TestDeployment_Validate(t *testing.T) {
	tests := []struct {
		name    string
		d       *Deployment
		wantErr bool
	}{
		{"valid", New("155", "22"), false},
		{"empty number", New("", "22"), true},
		{"letters in number", New("15A", "22"), true},
		{"four digit year", New("155", "2022"), true},
		{"empty year", New("155", ""), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultRegistry(t *testing.T) {
	r, err := DefaultRegistry()
	require.NoError(t, err)

	assert.Equal(t, 4, r.Len())

	d, err := r.Get("155-22")
	require.NoError(t, err)
	assert.Equal(t, "DR155-22Log-Tra2@redcross.org", d.SendEmail)
	assert.Equal(t, d.SendEmail, d.ReplyEmail, "reply defaults to send address")

	d, err = r.Get("dr204-22")
	require.NoError(t, err)
	assert.Equal(t, "DR204-22Log-Tra1@redcross.org", d.ReplyEmail)

	all := r.All()
	require.Len(t, all, 4)
	assert.Equal(t, "155-22", all[0].ID())
	assert.Equal(t, "234-22", all[3].ID())
}

func TestRegistry_GetAcceptsUnpaddedID(t *testing.T) {
	r, err := NewRegistry(New("7", "24"))
	require.NoError(t, err)

	d, err := r.Get("7-24")
	require.NoError(t, err)
	assert.Equal(t, "007-24", d.ID())

	_, err = r.Get("8-24")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnknownDeployment))
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(New("7", "24"), New("007", "24"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeDuplicateDeployment))
}

func TestRegistry_Select(t *testing.T) {
	r, err := NewRegistry(New("1", "24"), New("2", "24"), New("3", "24"))
	require.NoError(t, err)

	all, err := r.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	some, err := r.Select([]string{"003-24", "1-24"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "003-24", some[0].ID())
	assert.Equal(t, "001-24", some[1].ID())

	_, err = r.Select([]string{"009-24"})
	assert.Error(t, err)
}

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deployments.yaml")
	doc := "deployments:\n  - number: \"42\"\n    year: \"25\"\n    vendor: Enterprise\n    send_email: ops@example.org\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	r, err := LoadRegistry(path)
	require.NoError(t, err)
	d, err := r.Get("042-25")
	require.NoError(t, err)
	assert.Equal(t, "Enterprise", d.Vendor)
	assert.Equal(t, "ops@example.org", d.ReplyEmail)

	_, err = LoadRegistry(filepath.Join(dir, "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeFileNotFound))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("deployments: [number"), 0o600))
	_, err = LoadRegistry(bad)
	assert.Error(t, err)
}

func TestIsExcludedCode(t *testing.T) {
	for _, code := range []string{"", "  ", "NONE", "none", "N/A", "no  dr", "NODR", "SYNTH", "Synthesized row"} {
		assert.True(t, IsExcludedCode(code), code)
	}
	for _, code := range []string{"DR155-22", "155", "NONPROFIT"} {
		assert.False(t, IsExcludedCode(code), code)
	}
}

func TestParseCode(t *testing.T) {
	tests := []struct {
		code   string
		number int
		year   string
		ok     bool
	}{
		{"DR155-22", 155, "22", true},
		{"dr 155", 155, "", true},
		{"155-22", 155, "22", true},
		{"155-2022", 155, "22", true},
		{"155/20", 155, "20", true},
		{"DR#0155-22", 155, "22", true},
		{"  DR 204 - 22 Logistics", 204, "22", true},
		{"Red Cross DR155-22", 155, "22", true},
		{"ARC DR 155", 155, "", true},
		{"Shelter ops dr#0204/2022", 204, "22", true},
		{"2021 fleet DR155-22", 155, "22", true},
		{"DR-ABC", 0, "", false},
		{"ADDRESS 155", 0, "", false},
		{"Cost center 9", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			number, year, ok := ParseCode(tt.code)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.number, number)
			assert.Equal(t, tt.year, year)
		})
	}
}

func TestDeployment_MatchCode(t *testing.T) {
	d := New("155", "22")

	tests := []struct {
		code *string
		want CodeMatch
	}{
		{sp("DR155-22"), CodeMatched},
		{sp("155-22"), CodeMatched},
		{sp("DR 155"), CodeMatched},
		{sp("155-2022"), CodeMatched},
		{sp("DR0155-22"), CodeMatched},
		{sp("Red Cross DR155-22"), CodeMatched},
		{sp("ARC DR 155"), CodeMatched},
		{sp("Red Cross DR204-22"), CodeOther},
		{sp("Warehouse 155-22"), CodeOther},
		{sp("DR155-21"), CodeOther},
		{sp("DR204-22"), CodeOther},
		{sp("1552-22"), CodeOther},
		{sp("WAREHOUSE"), CodeOther},
		{sp("NONE"), CodeExcluded},
		{sp(""), CodeExcluded},
		{nil, CodeExcluded},
	}

	for _, tt := range tests {
		name := "<nil>"
		if tt.code != nil {
			name = *tt.code
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.MatchCode(tt.code), tt.want.String())
		})
	}

	assert.Equal(t, CodeMatched, New("5", "23").MatchCode(sp("DR005-23")))
	assert.Equal(t, CodeMatched, New("5", "23").MatchCode(sp("DR5-23")))
}
