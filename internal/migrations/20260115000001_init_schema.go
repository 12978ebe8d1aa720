package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/openpseudonym/idbroker/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20260115000001, down_20260115000001)
}

// up_20260115000001 initializes the full database schema
func up_20260115000001(ctx context.Context, db *bun.DB) error {
	// 1. Identities
	fmt.Print(" [up] creating identities table...")
	_, err := db.NewCreateTable().
		Model((*models.Identity)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create identities table: %w", err)
	}

	// Subject is intentionally NOT unique: one subject may hold many pseudonyms.
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_identities_subject ON identities(subject)`)
	if err != nil {
		return fmt.Errorf("failed to create index on subject: %w", err)
	}
	fmt.Println(" OK")

	// 2. Claims
	fmt.Print(" [up] creating claims table...")
	q := db.NewCreateTable().
		Model((*models.Claim)(nil)).
		IfNotExists()

	// For SQLite, define FKs during table creation
	if IsSQLite(db) {
		q = q.ForeignKey(`(owner) REFERENCES identities(id) ON DELETE CASCADE`)
	}
	_, err = q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create claims table: %w", err)
	}

	_, err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_claims_owner_name ON claims(owner, name)`)
	if err != nil {
		return fmt.Errorf("failed to create unique index on (owner, name): %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_claims_owner ON claims(owner)`)
	if err != nil {
		return fmt.Errorf("failed to create index on owner: %w", err)
	}

	if IsPostgreSQL(db) {
		_, err = db.Exec(`
			ALTER TABLE claims
			ADD CONSTRAINT fk_claims_owner
			FOREIGN KEY (owner) REFERENCES identities(id) ON DELETE CASCADE
		`)
		if err != nil {
			return fmt.Errorf("failed to add FK constraint on claims.owner: %w", err)
		}
	}
	fmt.Println(" OK")

	// 3. Access requests
	fmt.Print(" [up] creating access_requests table...")
	q = db.NewCreateTable().
		Model((*models.AccessRequest)(nil)).
		IfNotExists()

	if IsSQLite(db) {
		q = q.ForeignKey(`(owner) REFERENCES identities(id)`)
		q = q.ForeignKey(`(requester) REFERENCES identities(id)`)
	}
	_, err = q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create access_requests table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_access_requests_owner ON access_requests(owner)`)
	if err != nil {
		return fmt.Errorf("failed to create index on access_requests.owner: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_access_requests_requester ON access_requests(requester)`)
	if err != nil {
		return fmt.Errorf("failed to create index on access_requests.requester: %w", err)
	}

	if IsPostgreSQL(db) {
		_, err = db.Exec(`
			ALTER TABLE access_requests
			ADD CONSTRAINT fk_access_requests_owner
			FOREIGN KEY (owner) REFERENCES identities(id)
		`)
		if err != nil {
			return fmt.Errorf("failed to add FK constraint on access_requests.owner: %w", err)
		}
		_, err = db.Exec(`
			ALTER TABLE access_requests
			ADD CONSTRAINT fk_access_requests_requester
			FOREIGN KEY (requester) REFERENCES identities(id)
		`)
		if err != nil {
			return fmt.Errorf("failed to add FK constraint on access_requests.requester: %w", err)
		}
	}
	fmt.Println(" OK")

	// 4. Notifications
	fmt.Print(" [up] creating notifications table...")
	_, err = db.NewCreateTable().
		Model((*models.Notification)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create notifications table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_notifications_owner ON notifications(owner)`)
	if err != nil {
		return fmt.Errorf("failed to create index on notifications.owner: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20260115000001 drops all tables
func down_20260115000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping all tables...")

	tables := []string{
		"notifications",
		"access_requests",
		"claims",
		"identities",
	}

	for _, table := range tables {
		stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s", table)
		if IsPostgreSQL(db) {
			stmt += " CASCADE"
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}

	fmt.Println(" OK")
	return nil
}
