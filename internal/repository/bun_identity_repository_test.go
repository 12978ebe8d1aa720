package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpseudonym/idbroker/internal/db/bunx"
	"github.com/openpseudonym/idbroker/internal/db/models"
	"github.com/openpseudonym/idbroker/internal/testutil"
)

func TestBunIdentityRepository_CreateAndGet(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewBunIdentityRepository(db)
	ctx := context.Background()

	t.Run("create valid identity", func(t *testing.T) {
		identity := &models.Identity{
			ID:          bunx.NewUUIDv7(),
			Subject:     "subject-a",
			DisplayName: "Alice",
		}

		err := repo.Create(ctx, identity)
		require.NoError(t, err)

		retrieved, err := repo.GetByID(ctx, identity.ID)
		require.NoError(t, err)
		assert.Equal(t, identity.ID, retrieved.ID)
		assert.Equal(t, "subject-a", retrieved.Subject)
		assert.Equal(t, "Alice", retrieved.DisplayName)
		assert.NotZero(t, retrieved.CreatedAt)
	})

	t.Run("create with invalid UUID", func(t *testing.T) {
		err := repo.Create(ctx, &models.Identity{ID: "not-a-uuid", Subject: "subject-a"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "id must be a valid UUID")
	})

	t.Run("create with empty subject", func(t *testing.T) {
		err := repo.Create(ctx, &models.Identity{ID: bunx.NewUUIDv7()})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "subject is required")
	})

	t.Run("get nonexistent identity", func(t *testing.T) {
		_, err := repo.GetByID(ctx, bunx.NewUUIDv7())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestBunIdentityRepository_GetIfOwnedBy(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewBunIdentityRepository(db)
	ctx := context.Background()

	identity := &models.Identity{ID: bunx.NewUUIDv7(), Subject: "subject-a"}
	require.NoError(t, repo.Create(ctx, identity))

	t.Run("owner sees the identity", func(t *testing.T) {
		retrieved, err := repo.GetIfOwnedBy(ctx, identity.ID, "subject-a")
		require.NoError(t, err)
		assert.Equal(t, identity.ID, retrieved.ID)
	})

	t.Run("foreign subject gets not found", func(t *testing.T) {
		_, err := repo.GetIfOwnedBy(ctx, identity.ID, "subject-b")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown id gets not found", func(t *testing.T) {
		_, err := repo.GetIfOwnedBy(ctx, bunx.NewUUIDv7(), "subject-a")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestBunIdentityRepository_ListBySubject(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewBunIdentityRepository(db)
	ctx := context.Background()

	t.Run("empty for unknown subject", func(t *testing.T) {
		identities, err := repo.ListBySubject(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, identities)
	})

	t.Run("multiple pseudonyms per subject", func(t *testing.T) {
		first := &models.Identity{ID: bunx.NewUUIDv7(), Subject: "subject-a"}
		second := &models.Identity{ID: bunx.NewUUIDv7(), Subject: "subject-a"}
		other := &models.Identity{ID: bunx.NewUUIDv7(), Subject: "subject-b"}
		require.NoError(t, repo.Create(ctx, first))
		require.NoError(t, repo.Create(ctx, second))
		require.NoError(t, repo.Create(ctx, other))

		identities, err := repo.ListBySubject(ctx, "subject-a")
		require.NoError(t, err)
		require.Len(t, identities, 2)
		assert.Equal(t, first.ID, identities[0].ID)
		assert.Equal(t, second.ID, identities[1].ID)
	})
}

func TestBunIdentityRepository_UpdateDisplayName(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewBunIdentityRepository(db)
	ctx := context.Background()

	identity := &models.Identity{ID: bunx.NewUUIDv7(), Subject: "subject-a", DisplayName: "old"}
	require.NoError(t, repo.Create(ctx, identity))

	require.NoError(t, repo.UpdateDisplayName(ctx, identity.ID, "new"))

	retrieved, err := repo.GetByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", retrieved.DisplayName)

	err = repo.UpdateDisplayName(ctx, bunx.NewUUIDv7(), "whatever")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBunIdentityRepository_Delete(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewBunIdentityRepository(db)
	claimRepo := NewBunClaimRepository(db)
	ctx := context.Background()

	t.Run("delete removes identity and cascades claims", func(t *testing.T) {
		identity := &models.Identity{ID: bunx.NewUUIDv7(), Subject: "subject-a"}
		require.NoError(t, repo.Create(ctx, identity))

		claim := &models.Claim{
			ID:    bunx.NewUUIDv7(),
			Owner: identity.ID,
			Name:  "email",
			Value: "a@example.com",
		}
		require.NoError(t, claimRepo.Insert(ctx, claim))

		require.NoError(t, repo.Delete(ctx, identity.ID))

		_, err := repo.GetByID(ctx, identity.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = claimRepo.GetByID(ctx, claim.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete nonexistent identity", func(t *testing.T) {
		err := repo.Delete(ctx, bunx.NewUUIDv7())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
