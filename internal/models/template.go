package models

import (
	"database/sql/driver"
	"encoding/json"
)

// MappingType tells the renderer where a placeholder value comes from
type MappingType string

// Mapping types
const (
	MappingContactField MappingType = "contact_field"
	MappingStaticValue  MappingType = "static_value"
)

// TemplateMapping resolves one named placeholder
type TemplateMapping struct {
	PlaceholderName string      `json:"placeholder_name" yaml:"placeholder_name" validate:"required"`
	MappingType     MappingType `json:"mapping_type" yaml:"mapping_type" validate:"required,oneof=contact_field static_value"`
	MappingValue    string      `json:"mapping_value" yaml:"mapping_value"`
}

// TemplateMappings is stored on the job record as JSONB
type TemplateMappings []TemplateMapping

// Value implements driver.Valuer
func (m TemplateMappings) Value() (driver.Value, error) {
	if m == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *TemplateMappings) Scan(src interface{}) error {
	data, err := jsonBytes(src)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*m = TemplateMappings{}
		return nil
	}
	return json.Unmarshal(data, m)
}
