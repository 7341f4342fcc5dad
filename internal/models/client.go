package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Client is a registered OAuth 2.1 third-party application. Secret
// holds the base64 AEAD envelope produced by crypto.FieldCipher —
// never the plaintext — and is regenerated on every write by
// application CRUD (external to this core).
type Client struct {
	ID           string      `gorm:"primaryKey;size:36"`
	Name         string      `gorm:"not null"`
	Description  string      `gorm:"type:text"`
	Secret       string      `gorm:"column:secret_ciphertext;not null"`
	RedirectURIs StringArray `gorm:"type:json;not null"`
	Scope        StringArray `gorm:"type:json;not null"`
	GrantTypes   StringArray `gorm:"type:json;not null"`
	ClientType   string      `gorm:"not null;default:'confidential'"` // "confidential" or "public"
	OwnerID      string      `gorm:"not null;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Client) TableName() string {
	return "clients"
}

// IsPublic reports whether the client is a public (non-confidential) client.
func (c *Client) IsPublic() bool {
	return c.ClientType == "public"
}

// SupportsGrantType reports whether grantType is in the client's configured grant_types.
func (c *Client) SupportsGrantType(grantType string) bool {
	return c.GrantTypes.Contains(grantType)
}

// StringArray is an ordered, deduplicated set of strings stored as a JSON column.
type StringArray []string

func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("models: StringArray.Scan: unsupported type")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, s)
}

func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return json.Marshal([]string{})
	}
	return json.Marshal(s)
}

// Contains reports whether v is present in the set.
func (s StringArray) Contains(v string) bool {
	for _, item := range s {
		if item == v {
			return true
		}
	}
	return false
}

// Subset reports whether every element of requested is present in s.
func (s StringArray) Subset(requested []string) bool {
	for _, v := range requested {
		if !s.Contains(v) {
			return false
		}
	}
	return true
}

// Union returns the deduplicated, stable-order union of s and other,
// preserving s's existing order and appending new elements from other.
func (s StringArray) Union(other StringArray) StringArray {
	result := make(StringArray, len(s))
	copy(result, s)
	for _, v := range other {
		if !result.Contains(v) {
			result = append(result, v)
		}
	}
	return result
}

// Intersect returns the elements of s that are also present in other,
// preserving s's order.
func (s StringArray) Intersect(other StringArray) StringArray {
	result := make(StringArray, 0, len(s))
	for _, v := range s {
		if other.Contains(v) {
			result = append(result, v)
		}
	}
	return result
}
