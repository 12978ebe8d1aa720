package bunx

import "github.com/google/uuid"

// NewUUIDv7 generates a time-ordered UUIDv7 string for database primary keys.
//
// UUIDv7 provides:
//   - Time-ordered sortability for better database index performance
//   - Compatibility with both PostgreSQL and SQLite (no gen_random_uuid() dependency)
//   - Monotonic ordering within the same millisecond
//
// This function panics if UUID generation fails, which only occurs on
// catastrophic system failures (e.g., entropy source exhaustion); all
// database ID generation would fail anyway in that situation.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// IsValidUUID reports whether s parses as a UUID of any version. Handlers use
// it to reject malformed identifiers before they reach the storage layer.
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
