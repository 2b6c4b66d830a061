package repositories

import (
	"context"
	"sync"
	"time"

	"rescuedispatch/models"
	"rescuedispatch/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryUserRepository is the in-process directory used with STORE_DRIVER=memory.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*models.User)}
}

func (mr *MemoryUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Location = models.NewGeoPoint(user.Latitude, user.Longitude)

	copied := *user
	mr.mu.Lock()
	mr.users[user.ID.Hex()] = &copied
	mr.mu.Unlock()
	return nil
}

func (mr *MemoryUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	user, ok := mr.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (mr *MemoryUserRepository) ProfileOf(ctx context.Context, userID string) (*models.Profile, error) {
	user, err := mr.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile := user.Profile()
	return &profile, nil
}

// CandidatesNear scans every user: a bounding box prefilter, then the exact
// haversine radius.
func (mr *MemoryUserRepository) CandidatesNear(ctx context.Context, center utils.Coordinate, radiusMeters float64, excludeID string) ([]models.Candidate, error) {
	radiusKm := radiusMeters / 1000
	box := utils.CalculateBoundingBox(center, radiusKm)

	mr.mu.RLock()
	defer mr.mu.RUnlock()

	candidates := []models.Candidate{}
	for id, user := range mr.users {
		if id == excludeID || !user.IsAvailableForRescue || !user.IsActive {
			continue
		}
		point := utils.Coordinate{Latitude: user.Latitude, Longitude: user.Longitude}
		if !box.Contains(point) || utils.HaversineKm(center, point) > radiusKm {
			continue
		}
		candidates = append(candidates, user.Candidate())
	}
	return candidates, nil
}

func (mr *MemoryUserRepository) IncrementSosCount(ctx context.Context, userID string) error {
	return mr.increment(userID, func(u *models.User) { u.SosCount++ })
}

func (mr *MemoryUserRepository) IncrementRescueCount(ctx context.Context, userID string) error {
	return mr.increment(userID, func(u *models.User) { u.RescueCount++ })
}

func (mr *MemoryUserRepository) increment(userID string, apply func(u *models.User)) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	user, ok := mr.users[userID]
	if !ok {
		return ErrNotFound
	}
	apply(user)
	user.UpdatedAt = time.Now()
	return nil
}
