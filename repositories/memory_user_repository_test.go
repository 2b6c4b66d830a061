package repositories

import (
	"context"
	"testing"

	"rescuedispatch/models"
	"rescuedispatch/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDirectoryCandidatesNear(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	sender := &models.User{Username: "sender", Latitude: 12.97, Longitude: 77.59, IsActive: true, IsAvailableForRescue: true}
	near := &models.User{FullName: "Near", Latitude: 12.985, Longitude: 77.59, IsActive: true, IsAvailableForRescue: true}
	busy := &models.User{FullName: "Busy", Latitude: 12.975, Longitude: 77.59, IsActive: true}
	far := &models.User{FullName: "Far", Latitude: 13.2, Longitude: 77.59, IsActive: true, IsAvailableForRescue: true}
	for _, u := range []*models.User{sender, near, busy, far} {
		require.NoError(t, repo.Create(ctx, u))
	}

	got, err := repo.CandidatesNear(ctx, utils.Coordinate{Latitude: 12.97, Longitude: 77.59}, 5000, sender.ID.Hex())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, near.ID.Hex(), got[0].UserID)
	assert.Equal(t, "Near", got[0].Name)
}

func TestMemoryDirectoryProfileAndCounters(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()
	u := &models.User{Username: "kiran", Phone: "+919800000001", EmergencyContact: "Mom", EmergencyContactPhone: "+919800000002"}
	require.NoError(t, repo.Create(ctx, u))

	profile, err := repo.ProfileOf(ctx, u.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "kiran", profile.Name)
	assert.Equal(t, "Mom", profile.EmergencyContact)

	require.NoError(t, repo.IncrementSosCount(ctx, u.ID.Hex()))
	require.NoError(t, repo.IncrementRescueCount(ctx, u.ID.Hex()))
	require.NoError(t, repo.IncrementRescueCount(ctx, u.ID.Hex()))

	stored, err := repo.GetByID(ctx, u.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 1, stored.SosCount)
	assert.Equal(t, 2, stored.RescueCount)

	_, err = repo.ProfileOf(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}
