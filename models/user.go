package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is the directory record of a sender or responder. Profile fields are
// owned by the account service, this service only reads them and bumps counters.
type User struct {
	ID       primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Username string             `json:"username" bson:"username"`
	FullName string             `json:"fullName" bson:"fullName"`
	Phone    string             `json:"phone" bson:"phone"`
	Email    string             `json:"email" bson:"email"`

	EmergencyContact      string `json:"emergencyContact,omitempty" bson:"emergencyContact,omitempty"`
	EmergencyContactPhone string `json:"emergencyContactPhone,omitempty" bson:"emergencyContactPhone,omitempty"`

	Location  GeoPoint `json:"-" bson:"location"`
	Latitude  float64  `json:"latitude" bson:"latitude"`
	Longitude float64  `json:"longitude" bson:"longitude"`

	IsAvailableForRescue bool    `json:"isAvailableForRescue" bson:"isAvailableForRescue"`
	IsActive             bool    `json:"isActive" bson:"isActive"`
	RescueRadiusKm       float64 `json:"rescueRadiusKm" bson:"rescueRadiusKm"` // never consulted by automatic dispatch
	DeviceToken          string  `json:"-" bson:"deviceToken,omitempty"`

	SosCount    int `json:"sosCount" bson:"sosCount"`
	RescueCount int `json:"rescueCount" bson:"rescueCount"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// DisplayName falls back to the username when no full name was provided.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// Profile is the slice of a User captured into an alert's sender snapshot.
type Profile struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Phone                 string `json:"phone"`
	EmergencyContact      string `json:"emergencyContact,omitempty"`
	EmergencyContactPhone string `json:"emergencyContactPhone,omitempty"`
	DeviceToken           string `json:"-"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:                    u.ID.Hex(),
		Name:                  u.DisplayName(),
		Phone:                 u.Phone,
		EmergencyContact:      u.EmergencyContact,
		EmergencyContactPhone: u.EmergencyContactPhone,
		DeviceToken:           u.DeviceToken,
	}
}

func (u *User) Candidate() Candidate {
	return Candidate{
		UserID:      u.ID.Hex(),
		Name:        u.DisplayName(),
		Phone:       u.Phone,
		DeviceToken: u.DeviceToken,
		Latitude:    u.Latitude,
		Longitude:   u.Longitude,
	}
}
