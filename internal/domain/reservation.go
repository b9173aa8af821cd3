// Package domain holds the entities the lifecycle engine reads and mutates.
//
// Statuses are closed string enums: Parse* rejects anything outside the set, so
// a row with an unknown status surfaces as an error instead of silently matching
// no predicate.
package domain

import (
	"fmt"
	"time"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationExpired   ReservationStatus = "expired"
	ReservationCancelled ReservationStatus = "cancelled"
)

func ParseReservationStatus(s string) (ReservationStatus, error) {
	switch st := ReservationStatus(s); st {
	case ReservationPending, ReservationConfirmed, ReservationExpired, ReservationCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown reservation status %q", s)
}

// Tier is the rank class of an elite slot.
type Tier string

const (
	TierTop    Tier = "top"
	TierMiddle Tier = "middle"
	TierBottom Tier = "bottom"
)

func ParseTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case TierTop, TierMiddle, TierBottom:
		return t, nil
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

// Property is the listing an elite slot promotes.
type Property struct {
	ID        string
	OwnerID   string
	Title     string
	CreatedAt time.Time
}

// Period is the shared expiry of a premium placement row.
type Period struct {
	ID     string
	EndsAt time.Time
}

type Reservation struct {
	ID         string
	PropertyID string
	UserID     string
	PeriodID   string
	Tier       Tier
	Status     ReservationStatus

	// EndsAt overrides the period expiry once an extension was approved.
	EndsAt       *time.Time
	PeriodEndsAt time.Time
	CreatedAt    time.Time
}

// EffectiveEnd is the reservation's own override if set, else its period's expiry.
func (r Reservation) EffectiveEnd() time.Time {
	if r.EndsAt != nil {
		return *r.EndsAt
	}
	return r.PeriodEndsAt
}

// ExpiryCandidate is a confirmed reservation close to its effective end,
// joined with what a reminder needs to render.
type ExpiryCandidate struct {
	ReservationID string
	PropertyID    string
	PropertyTitle string
	UserID        string
	Tier          Tier
	EffectiveEnd  time.Time
}
