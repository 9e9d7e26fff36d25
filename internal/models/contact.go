package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// IdentityKind selects which contact address a provider delivers to
type IdentityKind string

// Identity kinds
const (
	IdentityEmail IdentityKind = "email"
	IdentityPhone IdentityKind = "phone"
)

// ContactFields holds open-ended scalar personalization attributes
type ContactFields map[string]interface{}

// Value implements driver.Valuer
func (f ContactFields) Value() (driver.Value, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(f)
}

// Scan implements sql.Scanner
func (f *ContactFields) Scan(src interface{}) error {
	data, err := jsonBytes(src)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*f = ContactFields{}
		return nil
	}
	return json.Unmarshal(data, f)
}

// ContactRecord is one addressable recipient inside a list
type ContactRecord struct {
	ID        string        `db:"id" json:"id" yaml:"id"`
	ListID    string        `db:"list_id" json:"list_id" yaml:"list_id"`
	Email     string        `db:"email" json:"email,omitempty" yaml:"email"`
	Phone     string        `db:"phone" json:"phone,omitempty" yaml:"phone"`
	Fields    ContactFields `db:"fields" json:"fields,omitempty" yaml:"fields"`
	CreatedAt time.Time     `db:"created_at" json:"created_at" yaml:"-"`
}

// Identity returns the raw address for the given kind
func (c *ContactRecord) Identity(kind IdentityKind) string {
	if kind == IdentityEmail {
		return c.Email
	}
	return c.Phone
}

// Validate performs basic validation on contact data
func (c *ContactRecord) Validate() error {
	if c.ID == "" {
		return NewValidationError("id", "is required")
	}
	if c.Email == "" && c.Phone == "" {
		return NewValidationError("email", "email or phone is required")
	}
	return nil
}

// RecipientList is a named, owned collection of contacts.
// ContactCount is denormalized and may drift from the live count.
type RecipientList struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	OwnerCompanyID string    `db:"owner_company_id" json:"owner_company_id"`
	ContactCount   int       `db:"contact_count" json:"contact_count"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Recipient is a deduplicated contact with its normalized identity key
type Recipient struct {
	Contact     *ContactRecord
	IdentityKey string
}

// ListSummary reports declared vs fetched contacts for one list
type ListSummary struct {
	ListID   string `json:"list_id"`
	Name     string `json:"name,omitempty"`
	Declared int    `json:"declared"`
	Fetched  int    `json:"fetched"`
	Missing  bool   `json:"missing,omitempty"`
}
