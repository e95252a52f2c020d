package parsers

import (
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"fleet-reconciliation-service/internal/models"
	"fleet-reconciliation-service/pkg/errors"
	"fleet-reconciliation-service/pkg/logger"
)

type agencyJSON struct {
	Name    flexString `json:"Name"`
	Address flexString `json:"Address"`
	City    flexString `json:"City"`
	State   flexString `json:"State"`
	Zip     flexString `json:"Zip"`
}

// ParseAgenciesFile reads the agency directory, a JSON object keyed by
// agency identifier.
func ParseAgenciesFile(filePath string, log logger.Logger) (map[string]*models.Agency, error) {
	bp := NewBaseParser(nil, log, "agency_parser")
	file, err := bp.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseAgencies(file, filepath.Base(filePath))
}

// ParseAgencies decodes an agency directory from r.
func ParseAgencies(r io.Reader, name string) (map[string]*models.Agency, error) {
	var raw map[string]agencyJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, name, 0, "", "", err).
			WithSuggestion("The agency directory must be a JSON object keyed by agency id")
	}

	agencies := make(map[string]*models.Agency, len(raw))
	for id, a := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		agencies[id] = &models.Agency{
			ID:      id,
			Name:    strings.TrimSpace(string(a.Name)),
			Address: strings.TrimSpace(string(a.Address)),
			City:    strings.TrimSpace(string(a.City)),
			State:   strings.TrimSpace(string(a.State)),
			Zip:     strings.TrimSpace(string(a.Zip)),
		}
	}
	return agencies, nil
}
