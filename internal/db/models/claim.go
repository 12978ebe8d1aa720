package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ContextMap carries free-form structured metadata attached to claims and
// notifications. Stored as serialized JSON.
type ContextMap map[string]any

// Scan implements sql.Scanner for reading from database
func (m *ContextMap) Scan(value any) error {
	if value == nil {
		*m = make(ContextMap)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to scan ContextMap: expected []byte or string, got %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Value implements driver.Valuer for writing to database
func (m ContextMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	bytes, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Claim is a named attribute value owned by exactly one identity. The
// (owner, name) pair is unique; a second write for the same pair updates the
// existing row in place.
type Claim struct {
	bun.BaseModel `bun:"table:claims,alias:c"`

	ID          string     `bun:"id,pk,type:uuid"`
	Owner       string     `bun:"owner,notnull,type:uuid"` // FK to identities(id)
	Name        string     `bun:"name,notnull"`
	Value       string     `bun:"value,notnull"`
	Context     ContextMap `bun:"context,type:jsonb"`
	Fingerprint string     `bun:"fingerprint"` // content hash of (value, context), see internal/fingerprint
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

// ValidateForCreate verifies the record is well formed before insertion.
func (c *Claim) ValidateForCreate() error {
	if _, err := uuid.Parse(c.ID); err != nil {
		return errors.New("id must be a valid UUID")
	}
	if _, err := uuid.Parse(c.Owner); err != nil {
		return errors.New("owner must be a valid UUID")
	}
	if c.Name == "" {
		return errors.New("name is required")
	}
	return nil
}
