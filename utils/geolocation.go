package utils

import (
	"math"
)

const (
	EarthRadiusKm = 6371.0
	DegToRad      = math.Pi / 180.0
	KmPerDegree   = 111.0
)

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type BoundingBox struct {
	NorthEast Coordinate `json:"northEast"`
	SouthWest Coordinate `json:"southWest"`
}

// HaversineKm returns the great-circle distance between two coordinates in kilometres
func HaversineKm(a, b Coordinate) float64 {
	lat1Rad := a.Latitude * DegToRad
	lat2Rad := b.Latitude * DegToRad

	dlat := (b.Latitude - a.Latitude) * DegToRad
	dlon := (b.Longitude - a.Longitude) * DegToRad

	h := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// CalculateBoundingBox calculates a bounding box around a center point with a given radius.
// Used as a cheap prefilter before the exact haversine check.
func CalculateBoundingBox(center Coordinate, radiusKm float64) BoundingBox {
	latDelta := radiusKm / KmPerDegree
	cosLat := math.Cos(center.Latitude * DegToRad)
	lonDelta := 180.0
	if cosLat > 1e-9 {
		lonDelta = math.Min(180, radiusKm/(KmPerDegree*cosLat))
	}

	return BoundingBox{
		NorthEast: Coordinate{
			Latitude:  math.Min(90, center.Latitude+latDelta),
			Longitude: center.Longitude + lonDelta,
		},
		SouthWest: Coordinate{
			Latitude:  math.Max(-90, center.Latitude-latDelta),
			Longitude: center.Longitude - lonDelta,
		},
	}
}

// Contains reports whether c falls inside the box. Longitudes that wrap
// the antimeridian are accepted conservatively.
func (b BoundingBox) Contains(c Coordinate) bool {
	if c.Latitude < b.SouthWest.Latitude || c.Latitude > b.NorthEast.Latitude {
		return false
	}
	if b.SouthWest.Longitude < -180 || b.NorthEast.Longitude > 180 {
		return true
	}
	return c.Longitude >= b.SouthWest.Longitude && c.Longitude <= b.NorthEast.Longitude
}

// IsValidCoordinate checks if latitude and longitude values are valid
func IsValidCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// RoundTo rounds v to the given number of decimals
func RoundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
