package domain

import (
	"fmt"
	"time"
)

type PromotionStatus string

const (
	PromotionDraft   PromotionStatus = "draft"
	PromotionActive  PromotionStatus = "active"
	PromotionExpired PromotionStatus = "expired"
)

func ParsePromotionStatus(s string) (PromotionStatus, error) {
	switch st := PromotionStatus(s); st {
	case PromotionDraft, PromotionActive, PromotionExpired:
		return st, nil
	}
	return "", fmt.Errorf("unknown promotion status %q", s)
}

type Promotion struct {
	ID     string
	Code   string
	Status PromotionStatus

	StartAt time.Time
	EndAt   *time.Time // nil: no time limit

	UsageLimitTotal *int // nil: unlimited
	CurrentUsage    int
}

// Exhausted reports whether the usage limit has been reached.
func (p Promotion) Exhausted() bool {
	return p.UsageLimitTotal != nil && p.CurrentUsage >= *p.UsageLimitTotal
}

// ShouldExpire mirrors the store-side expire predicate.
func (p Promotion) ShouldExpire(now time.Time) bool {
	if p.Status != PromotionActive {
		return false
	}
	return (p.EndAt != nil && !p.EndAt.After(now)) || p.Exhausted()
}

// ShouldActivate mirrors the store-side activate predicate. A draft whose window
// already closed is never activated.
func (p Promotion) ShouldActivate(now time.Time) bool {
	if p.Status != PromotionDraft || p.StartAt.After(now) {
		return false
	}
	return (p.EndAt == nil || p.EndAt.After(now)) && !p.Exhausted()
}
