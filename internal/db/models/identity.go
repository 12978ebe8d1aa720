package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Identity is an opaque pseudonym owned by one external subject. A subject
// may mint any number of identities; only the identity ID is ever exposed to
// other parties, never the subject.
type Identity struct {
	bun.BaseModel `bun:"table:identities,alias:i"`

	ID          string    `bun:"id,pk,type:uuid"`
	Subject     string    `bun:"subject,notnull"`
	DisplayName string    `bun:"display_name"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// ValidateForCreate verifies the record is well formed before insertion.
func (i *Identity) ValidateForCreate() error {
	if _, err := uuid.Parse(i.ID); err != nil {
		return errors.New("id must be a valid UUID")
	}
	if i.Subject == "" {
		return errors.New("subject is required")
	}
	return nil
}
