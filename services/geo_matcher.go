package services

import (
	"context"
	"sort"

	"rescuedispatch/interfaces"
	"rescuedispatch/models"
	"rescuedispatch/utils"
)

// DefaultDispatchRadiusKm is the automatic dispatch radius. A responder's own
// rescueRadiusKm is not consulted.
const DefaultDispatchRadiusKm = 5.0

type GeoMatcher struct {
	directory interfaces.Directory
}

func NewGeoMatcher(directory interfaces.Directory) *GeoMatcher {
	return &GeoMatcher{directory: directory}
}

// FindNearby returns candidates within radiusKm of center, closest first.
// The directory's coarse proximity result is re-checked with the haversine
// distance. An empty result is not an error.
func (gm *GeoMatcher) FindNearby(ctx context.Context, center utils.Coordinate, radiusKm float64, excludeID string) ([]models.Candidate, error) {
	raw, err := gm.directory.CandidatesNear(ctx, center, radiusKm*1000, excludeID)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		candidate models.Candidate
		distance  float64
	}
	inRange := make([]ranked, 0, len(raw))
	for _, c := range raw {
		if excludeID != "" && c.UserID == excludeID {
			continue
		}
		distance := utils.HaversineKm(center, utils.Coordinate{Latitude: c.Latitude, Longitude: c.Longitude})
		if distance > radiusKm {
			continue
		}
		inRange = append(inRange, ranked{candidate: c, distance: distance})
	}

	// rank on the exact distance, round only for display
	sort.SliceStable(inRange, func(i, j int) bool {
		return inRange[i].distance < inRange[j].distance
	})

	matched := make([]models.Candidate, len(inRange))
	for i, r := range inRange {
		matched[i] = r.candidate
		matched[i].DistanceKm = utils.RoundTo(r.distance, 3)
	}
	return matched, nil
}
