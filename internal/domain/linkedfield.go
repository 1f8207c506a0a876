package domain

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"github.com/go-yaml/yaml"
)

// ResourceKind selects the collector serving a linked field.
type ResourceKind string

const (
	ResourceProperty ResourceKind = "property"
	ResourceFile     ResourceKind = "file"
	ResourceRelation ResourceKind = "relation"
)

// RelationResource names the persisted relation a relation field maps onto.
type RelationResource string

const (
	ResourceTreeSpecies         RelationResource = "treeSpecies"
	ResourceSeedings            RelationResource = "seedings"
	ResourceInvasives           RelationResource = "invasives"
	ResourceStratas             RelationResource = "stratas"
	ResourceOwnershipStakes     RelationResource = "ownershipStakes"
	ResourceDemographics        RelationResource = "demographics"
	ResourceFundingTypes        RelationResource = "fundingTypes"
	ResourceFinancialIndicators RelationResource = "financialIndicators"
	ResourceDisturbances        RelationResource = "disturbances"
)

// VirtualKind names a computed property field.
type VirtualKind string

const (
	VirtualDemographicsAggregate   VirtualKind = "demographicsAggregate"
	VirtualDemographicsDescription VirtualKind = "demographicsDescription"
	VirtualProjectBoundary         VirtualKind = "projectBoundary"
)

type VirtualField struct {
	Kind             VirtualKind `yaml:"type"`
	DemographicsType string      `yaml:"demographicsType"`
	Collection       string      `yaml:"collection"`
	Collections      []string    `yaml:"collections"`
}

// LinkedFieldConfig is one row of the static linked field table.
type LinkedFieldConfig struct {
	Key          string           `yaml:"key"`
	ResourceKind ResourceKind     `yaml:"kind"`
	ModelType    string           `yaml:"model"`
	Label        string           `yaml:"label"`
	Property     string           `yaml:"property"`
	Collection   string           `yaml:"collection"`
	Resource     RelationResource `yaml:"resource"`
	Virtual      *VirtualField    `yaml:"virtual"`
}

// OwnerKind resolves the model type of the field.
func (c LinkedFieldConfig) OwnerKind() (OwnerKind, error) {
	kind, err := ParseModelType(c.ModelType)
	if err != nil {
		return OwnerUnknown, &ConfigurationError{Field: c.Key, Reason: err.(*ConfigurationError).Reason}
	}
	return kind, nil
}

// LinkedFieldTable is the versioned configuration keyed by field key.
type LinkedFieldTable struct {
	Version string
	fields  map[string]LinkedFieldConfig
}

type linkedFieldFile struct {
	Version string              `yaml:"version"`
	Fields  []LinkedFieldConfig `yaml:"fields"`
}

//go:embed linkedfields.yaml
var defaultLinkedFields []byte

// DefaultLinkedFields decodes the table compiled into the binary.
func DefaultLinkedFields() (*LinkedFieldTable, error) {
	return DecodeLinkedFields(bytes.NewReader(defaultLinkedFields))
}

// LoadLinkedFields decodes a table from path, falling back to the embedded table when path is empty.
func LoadLinkedFields(path string) (*LinkedFieldTable, error) {
	if path == "" {
		return DefaultLinkedFields()
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return DecodeLinkedFields(file)
}

func DecodeLinkedFields(r io.Reader) (*LinkedFieldTable, error) {
	var file linkedFieldFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, err
	}

	table := &LinkedFieldTable{
		Version: file.Version,
		fields:  make(map[string]LinkedFieldConfig, len(file.Fields)),
	}
	for _, field := range file.Fields {
		if field.Key == "" {
			return nil, &ConfigurationError{Reason: "linked field without key"}
		}
		if _, dup := table.fields[field.Key]; dup {
			return nil, &ConfigurationError{Field: field.Key, Reason: "duplicate key"}
		}
		if _, err := field.OwnerKind(); err != nil {
			return nil, err
		}
		table.fields[field.Key] = field
	}
	return table, nil
}

func (t *LinkedFieldTable) Get(key string) (LinkedFieldConfig, bool) {
	field, ok := t.fields[key]
	return field, ok
}

func (t *LinkedFieldTable) MustGet(key string) (LinkedFieldConfig, error) {
	field, ok := t.fields[key]
	if !ok {
		return LinkedFieldConfig{}, &ConfigurationError{Field: key, Reason: fmt.Sprintf("no linked field configured for %q", key)}
	}
	return field, nil
}

func (t *LinkedFieldTable) Len() int {
	return len(t.fields)
}
