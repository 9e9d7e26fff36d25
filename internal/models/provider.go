package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Provider identifies a delivery adapter
type Provider string

// Supported providers
const (
	ProviderBrevo    Provider = "brevo"
	ProviderMSG91    Provider = "msg91"
	ProviderFast2SMS Provider = "fast2sms"
	ProviderWATI     Provider = "wati"
	ProviderSMTP     Provider = "smtp"
	ProviderMock     Provider = "mock"
)

// IsValidProvider checks if the provider is one of the supported adapters
func IsValidProvider(p Provider) bool {
	switch p {
	case ProviderBrevo, ProviderMSG91, ProviderFast2SMS, ProviderWATI, ProviderSMTP, ProviderMock:
		return true
	default:
		return false
	}
}

// Settings is an opaque per-provider key/value blob stored as JSONB
type Settings map[string]string

// Value implements driver.Valuer
func (s Settings) Value() (driver.Value, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner
func (s *Settings) Scan(src interface{}) error {
	data, err := jsonBytes(src)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*s = Settings{}
		return nil
	}
	return json.Unmarshal(data, s)
}

// Merge returns a copy of s overlaid with override
func (s Settings) Merge(override Settings) Settings {
	out := make(Settings, len(s)+len(override))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// ProviderCredentials holds a company's secrets and defaults for one provider
type ProviderCredentials struct {
	CompanyID      string    `db:"company_id" json:"company_id"`
	Provider       Provider  `db:"provider" json:"provider"`
	APIKey         string    `db:"api_key" json:"-"`
	SenderIdentity string    `db:"sender_identity" json:"sender_identity"`
	Settings       Settings  `db:"settings" json:"settings"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

func jsonBytes(src interface{}) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported JSON column type %T", src)
	}
}
