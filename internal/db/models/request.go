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

// RequestStatus is the disposition of an access request. PENDING is the only
// non-terminal state: once accepted or denied a request can only be deleted.
type RequestStatus string

const (
	StatusPending  RequestStatus = "PENDING"
	StatusAccepted RequestStatus = "ACCEPTED"
	StatusDenied   RequestStatus = "DENIED"
)

// ClaimNames is the set of claim names captured when a request is created.
// It is fixed at creation time and never re-synced against the claim store.
// Stored as a serialized JSON array.
type ClaimNames []string

// Scan implements sql.Scanner for reading from database
func (n *ClaimNames) Scan(value any) error {
	if value == nil {
		*n = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to scan ClaimNames: expected []byte or string, got %T", value)
	}
	return json.Unmarshal(bytes, n)
}

// Value implements driver.Valuer for writing to database
func (n ClaimNames) Value() (driver.Value, error) {
	if n == nil {
		return "[]", nil
	}
	bytes, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Contains reports whether name is in the captured set.
func (n ClaimNames) Contains(name string) bool {
	for _, c := range n {
		if c == name {
			return true
		}
	}
	return false
}

// AccessRequest is a proposal from a requester identity to read named claims
// of an owner identity, with explicit accept/deny disposition.
type AccessRequest struct {
	bun.BaseModel `bun:"table:access_requests,alias:ar"`

	ID        string        `bun:"id,pk,type:uuid"`
	Owner     string        `bun:"owner,notnull,type:uuid"`     // FK to identities(id)
	Requester string        `bun:"requester,notnull,type:uuid"` // FK to identities(id)
	Claims    ClaimNames    `bun:"claims,type:jsonb"`
	Status    RequestStatus `bun:"status,notnull,default:'PENDING'"`
	CreatedAt time.Time     `bun:"created_at,notnull,default:current_timestamp"`
}

// ValidateForCreate verifies the record is well formed before insertion.
func (r *AccessRequest) ValidateForCreate() error {
	if _, err := uuid.Parse(r.ID); err != nil {
		return errors.New("id must be a valid UUID")
	}
	if _, err := uuid.Parse(r.Owner); err != nil {
		return errors.New("owner must be a valid UUID")
	}
	if _, err := uuid.Parse(r.Requester); err != nil {
		return errors.New("requester must be a valid UUID")
	}
	if r.Owner == r.Requester {
		return errors.New("owner and requester must differ")
	}
	if len(r.Claims) == 0 {
		return errors.New("at least one claim name is required")
	}
	return nil
}

// Terminal reports whether the request has reached a final disposition.
func (r *AccessRequest) Terminal() bool {
	return r.Status != StatusPending
}
