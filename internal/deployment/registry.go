// Package deployment holds the per-deployment configuration the reconciler
// runs against: which disaster-relief deployment (DR) a run is for, which
// vendor supplies its rentals and where its reports go. It also decides
// whether a free-text vendor cost-control code belongs to a deployment.
package deployment

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"fleet-reconciliation-service/pkg/errors"

	"github.com/goccy/go-yaml"
)

//go:embed data/deployments.yaml
var defaultRegistry []byte

// DefaultVendor is used when a deployment does not name its vendor.
const DefaultVendor = "Avis"

// Deployment describes one disaster-relief deployment.
type Deployment struct {
	// Number is the DR number; it is padded to three digits by ID.
	Number string `yaml:"number" json:"number"`
	// Year is the two-digit fiscal year.
	Year       string `yaml:"year" json:"year"`
	Vendor     string `yaml:"vendor" json:"vendor"`
	SendEmail  string `yaml:"send_email" json:"send_email,omitempty"`
	ReplyEmail string `yaml:"reply_email" json:"reply_email,omitempty"`
	TargetList string `yaml:"target_list" json:"target_list,omitempty"`
}

// New creates a deployment with the default vendor.
func New(number, year string) *Deployment {
	d := &Deployment{Number: number, Year: year}
	d.applyDefaults()
	return d
}

func (d *Deployment) applyDefaults() {
	d.Number = strings.TrimSpace(d.Number)
	d.Year = strings.TrimSpace(d.Year)
	if d.Vendor == "" {
		d.Vendor = DefaultVendor
	}
	if d.ReplyEmail == "" {
		d.ReplyEmail = d.SendEmail
	}
}

// PaddedNumber returns the DR number left-padded with zeros to three digits.
func (d *Deployment) PaddedNumber() string {
	if len(d.Number) >= 3 {
		return d.Number
	}
	return strings.Repeat("0", 3-len(d.Number)) + d.Number
}

// ID returns the deployment identifier, NNN-YY.
func (d *Deployment) ID() string {
	return fmt.Sprintf("%s-%s", d.PaddedNumber(), d.Year)
}

// TokenFilename names the file the mail client token is cached in.
func (d *Deployment) TokenFilename() string {
	return fmt.Sprintf("o365_token-%s.txt", d.ID())
}

// CookieFilename names the file the tracker portal session is cached in.
func (d *Deployment) CookieFilename() string {
	return fmt.Sprintf("dtt_cookies-%s.txt", d.ID())
}

// Validate checks that the deployment is usable
func (d *Deployment) Validate() error {
	if d.Number == "" || !allDigits(d.Number) {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "deployment.number", d.Number, nil)
	}
	if len(d.Year) != 2 || !allDigits(d.Year) {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "deployment.year", d.Year, nil)
	}
	return nil
}

func (d *Deployment) String() string {
	return fmt.Sprintf("DR%s (%s)", d.ID(), d.Vendor)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// Registry is the set of configured deployments, keyed by ID.
type Registry struct {
	deployments map[string]*Deployment
}

type registryFile struct {
	Deployments []*Deployment `yaml:"deployments"`
}

// NewRegistry builds a registry. Deployments sharing an ID are rejected.
func NewRegistry(deployments ...*Deployment) (*Registry, error) {
	r := &Registry{deployments: make(map[string]*Deployment, len(deployments))}
	for _, d := range deployments {
		if err := r.Add(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry returns the built-in deployments.
func DefaultRegistry() (*Registry, error) {
	return ParseRegistry(defaultRegistry)
}

// LoadRegistry reads deployments from a YAML file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	}
	return ParseRegistry(data)
}

// ParseRegistry decodes a YAML deployments document.
func ParseRegistry(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfiguration, errors.CodeInvalidConfig,
			"failed to parse deployments")
	}
	return NewRegistry(file.Deployments...)
}

// Add registers a deployment after applying defaults and validating it.
func (r *Registry) Add(d *Deployment) error {
	if d == nil {
		return nil
	}
	d.applyDefaults()
	if err := d.Validate(); err != nil {
		return err
	}
	if _, exists := r.deployments[d.ID()]; exists {
		return errors.ConfigurationError(errors.CodeDuplicateDeployment, "deployments", d.ID(), nil)
	}
	r.deployments[d.ID()] = d
	return nil
}

// Get returns the deployment with the given ID. Unpadded numbers
// ("5-23" for "005-23") are accepted.
func (r *Registry) Get(id string) (*Deployment, error) {
	id = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(id)), "DR")
	if d, ok := r.deployments[id]; ok {
		return d, nil
	}
	if number, year, ok := strings.Cut(id, "-"); ok {
		if d, ok := r.deployments[New(number, year).ID()]; ok {
			return d, nil
		}
	}
	return nil, errors.ConfigurationError(errors.CodeUnknownDeployment, "deployment", id, nil)
}

// All returns the deployments ordered by ID.
func (r *Registry) All() []*Deployment {
	out := make([]*Deployment, 0, len(r.deployments))
	for _, d := range r.deployments {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Select resolves a list of IDs. An empty list selects every deployment.
func (r *Registry) Select(ids []string) ([]*Deployment, error) {
	if len(ids) == 0 {
		return r.All(), nil
	}
	out := make([]*Deployment, 0, len(ids))
	for _, id := range ids {
		d, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Len returns the number of configured deployments.
func (r *Registry) Len() int {
	return len(r.deployments)
}
