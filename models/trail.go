package models

import "time"

// LocationSample is immutable once appended to a trail.
type LocationSample struct {
	Latitude  float64   `json:"latitude" bson:"latitude"`
	Longitude float64   `json:"longitude" bson:"longitude"`
	Accuracy  float64   `json:"accuracy" bson:"accuracy"`
	Source    string    `json:"source" bson:"source"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

func NewLocationSample(lat, lng, accuracy float64, source string, at time.Time) LocationSample {
	if source == "" {
		source = LocationSourceGPS
	}
	return LocationSample{
		Latitude:  lat,
		Longitude: lng,
		Accuracy:  accuracy,
		Source:    source,
		Timestamp: at,
	}
}

// LocationTrail is an append-only, insertion-ordered log of samples for one actor.
type LocationTrail []LocationSample

func (t *LocationTrail) Append(sample LocationSample) {
	*t = append(*t, sample)
}

func (t LocationTrail) Latest() (LocationSample, bool) {
	if len(t) == 0 {
		return LocationSample{}, false
	}
	return t[len(t)-1], true
}

func (t LocationTrail) Len() int {
	return len(t)
}

// Samples returns a copy so callers cannot rewrite history.
func (t LocationTrail) Samples() []LocationSample {
	out := make([]LocationSample, len(t))
	copy(out, t)
	return out
}
