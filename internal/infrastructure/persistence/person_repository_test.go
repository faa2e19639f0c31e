package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/meetprep/backend/internal/domain/person"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormPersonRepository_CreateIfAbsent(t *testing.T) {
	repo := NewGormPersonRepository(setupEnrichmentTestDB(t))
	ctx := context.Background()

	p, err := person.New("t1", "Ada@Acme.io")
	require.NoError(t, err)

	stored, created, err := repo.CreateIfAbsent(ctx, p)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, p.ID, stored.ID)

	again, err := person.New("t1", "ada@acme.io ")
	require.NoError(t, err)
	stored, created, err = repo.CreateIfAbsent(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p.ID, stored.ID, "natural key resolves to the first person")

	other, err := person.New("t2", "ada@acme.io")
	require.NoError(t, err)
	_, created, err = repo.CreateIfAbsent(ctx, other)
	require.NoError(t, err)
	assert.True(t, created, "tenants do not share persons")
}

func TestGormPersonRepository_UpsertRoundTrip(t *testing.T) {
	repo := NewGormPersonRepository(setupEnrichmentTestDB(t))
	ctx := context.Background()

	p, err := person.New("t1", "ada@acme.io")
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, p))

	fetchedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := person.Fetched(person.SourcePrimary, "clearbit", shared.Payload{"title": "CTO", "name": "Ada"}, fetchedAt)
	p.SetRecord(rec)
	p.Secondary = person.Failed(p.Secondary, "pdl", fetchedAt)
	p.ApplyWinner(rec)
	p.MarkProfile(person.ProfileWaiting, nil)
	require.NoError(t, repo.Upsert(ctx, p))

	got, err := repo.GetByEmail(ctx, "t1", "ADA@acme.io")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "acme.io", got.CompanyDomain)
	assert.Equal(t, "CTO", got.Data.String("title"))
	assert.Equal(t, person.StatusFetched, got.Primary.Status)
	assert.Equal(t, "clearbit", got.Primary.Provider)
	assert.True(t, fetchedAt.Equal(got.Primary.UpdatedAt))
	assert.Equal(t, person.StatusTriedButFailed, got.Secondary.Status)
	assert.True(t, got.Secondary.UpdatedAt.IsZero(), "a failed attempt is not a fetch")
	assert.True(t, fetchedAt.Equal(got.Secondary.AttemptedAt))
	assert.Equal(t, person.SourcePrimary, got.DataSource)
	assert.Equal(t, person.ProfileWaiting, got.ProfileState)

	exists, err := repo.Exists(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	waiting, err := repo.ListWaitingForCompany(ctx, "acme.io")
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, p.ID, waiting[0].ID)

	require.NoError(t, repo.Delete(ctx, p.ID))
	_, err = repo.Get(ctx, p.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, p.ID), shared.ErrNotFound)
}
