package models

import "time"

// Candidate is a responder returned by the directory, with the distance filled in
// by the matcher.
type Candidate struct {
	UserID      string  `json:"userId"`
	Name        string  `json:"name"`
	Phone       string  `json:"phone,omitempty"`
	DeviceToken string  `json:"-"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	DistanceKm  float64 `json:"distanceKm"`
}

// ResponderEntry is one responder's relationship to one alert. Its status is
// independent of the alert status.
type ResponderEntry struct {
	UserID      string          `json:"userId" bson:"userId"`
	Name        string          `json:"name" bson:"name"`
	Phone       string          `json:"phone,omitempty" bson:"phone,omitempty"`
	Status      ResponderStatus `json:"status" bson:"status"`
	DistanceKm  float64         `json:"distanceKm" bson:"distanceKm"`
	NotifiedAt  time.Time       `json:"notifiedAt" bson:"notifiedAt"`
	RespondedAt *time.Time      `json:"respondedAt,omitempty" bson:"respondedAt,omitempty"`
}

func NewResponderEntry(c Candidate, at time.Time) ResponderEntry {
	return ResponderEntry{
		UserID:     c.UserID,
		Name:       c.Name,
		Phone:      c.Phone,
		Status:     ResponderStatusNotified,
		DistanceKm: c.DistanceKm,
		NotifiedAt: at,
	}
}

// ResponderRoster is the ordered set of responders notified for one alert.
// Rosters are bounded by the candidate count inside the dispatch radius, so
// lookups are linear.
type ResponderRoster []ResponderEntry

func (r ResponderRoster) Find(userID string) (int, bool) {
	for i := range r {
		if r[i].UserID == userID {
			return i, true
		}
	}
	return -1, false
}

func (r ResponderRoster) Contains(userID string) bool {
	_, ok := r.Find(userID)
	return ok
}

// Notify appends a NOTIFIED entry. A responder already on the roster is ignored.
func (r *ResponderRoster) Notify(c Candidate, at time.Time) bool {
	if r.Contains(c.UserID) {
		return false
	}
	*r = append(*r, NewResponderEntry(c, at))
	return true
}

func (r ResponderRoster) MarkAccepted(userID string, at time.Time) bool {
	return r.UpdateStatus(userID, ResponderStatusAccepted, at)
}

// UpdateStatus changes exactly the matching entry and leaves the others untouched.
func (r ResponderRoster) UpdateStatus(userID string, status ResponderStatus, at time.Time) bool {
	i, ok := r.Find(userID)
	if !ok {
		return false
	}
	respondedAt := at
	r[i].Status = status
	r[i].RespondedAt = &respondedAt
	return true
}

func (r ResponderRoster) UserIDs() []string {
	ids := make([]string, len(r))
	for i := range r {
		ids[i] = r[i].UserID
	}
	return ids
}
