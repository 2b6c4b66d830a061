package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineSamePointIsZero(t *testing.T) {
	p := Coordinate{Latitude: 12.97, Longitude: 77.59}
	assert.Equal(t, 0.0, HaversineKm(p, p))
}

func TestHaversineOneDegreeAtEquator(t *testing.T) {
	a := Coordinate{Latitude: 0, Longitude: 0}
	b := Coordinate{Latitude: 0, Longitude: 1}
	assert.InDelta(t, 111.2, HaversineKm(a, b), 0.1)
	assert.InDelta(t, HaversineKm(a, b), HaversineKm(b, a), 1e-9)
}

func TestBoundingBoxContainsRadius(t *testing.T) {
	center := Coordinate{Latitude: 12.97, Longitude: 77.59}
	box := CalculateBoundingBox(center, 5)

	assert.True(t, box.Contains(center))
	assert.True(t, box.Contains(Coordinate{Latitude: 12.97 + 0.03, Longitude: 77.59}))
	assert.False(t, box.Contains(Coordinate{Latitude: 13.5, Longitude: 77.59}))
	assert.False(t, box.Contains(Coordinate{Latitude: 12.97, Longitude: 78.5}))
}

func TestBoundingBoxNearPole(t *testing.T) {
	box := CalculateBoundingBox(Coordinate{Latitude: 90, Longitude: 0}, 10)
	assert.Equal(t, 90.0, box.NorthEast.Latitude)
	assert.True(t, box.Contains(Coordinate{Latitude: 89.95, Longitude: 120}))
}

func TestIsValidCoordinate(t *testing.T) {
	assert.True(t, IsValidCoordinate(-90, 180))
	assert.False(t, IsValidCoordinate(90.1, 0))
	assert.False(t, IsValidCoordinate(0, -180.5))
}
