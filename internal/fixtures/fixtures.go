// Package fixtures loads marketplace rows from a YAML document, for demos and
// for exercising the sweeps against a scratch database.
//
// Times are RFC 3339 or a signed Go duration relative to the load time
// ("+36h", "-15m").
package fixtures

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"estatecron/internal/domain"
)

type Store interface {
	UpsertProperty(ctx context.Context, p domain.Property) error
	UpsertPeriod(ctx context.Context, p domain.Period) error
	UpsertReservation(ctx context.Context, r domain.Reservation) error
	UpsertPromotion(ctx context.Context, p domain.Promotion, now time.Time) error
}

// When is a fixture timestamp, absolute or relative to the load time.
type When struct {
	abs time.Time
	rel time.Duration
	set bool
}

func (w *When) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: time must be a scalar", n.Line)
	}
	raw := strings.TrimSpace(n.Value)
	if raw == "" {
		return nil
	}
	if raw[0] == '+' || raw[0] == '-' {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		*w = When{rel: d, set: true}
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*w = When{abs: t, set: true}
	return nil
}

func (w When) At(now time.Time) time.Time {
	if !w.abs.IsZero() {
		return w.abs
	}
	return now.Add(w.rel)
}

func (w When) ptr(now time.Time) *time.Time {
	if !w.set {
		return nil
	}
	t := w.At(now)
	return &t
}

type Document struct {
	Properties []struct {
		ID      string `yaml:"id"`
		OwnerID string `yaml:"owner_id"`
		Title   string `yaml:"title"`
	} `yaml:"properties"`

	Periods []struct {
		ID     string `yaml:"id"`
		EndsAt When   `yaml:"ends_at"`
	} `yaml:"periods"`

	Reservations []struct {
		ID         string `yaml:"id"`
		PropertyID string `yaml:"property_id"`
		UserID     string `yaml:"user_id"`
		PeriodID   string `yaml:"period_id"`
		Tier       string `yaml:"tier"`
		Status     string `yaml:"status"`
		EndsAt     When   `yaml:"ends_at"`
	} `yaml:"reservations"`

	Promotions []struct {
		ID              string `yaml:"id"`
		Code            string `yaml:"code"`
		Status          string `yaml:"status"`
		StartAt         When   `yaml:"start_at"`
		EndAt           When   `yaml:"end_at"`
		UsageLimitTotal *int   `yaml:"usage_limit_total"`
		CurrentUsage    int    `yaml:"current_usage"`
	} `yaml:"promotions"`
}

// Counts is how many rows of each kind were upserted.
type Counts struct {
	Properties   int
	Periods      int
	Reservations int
	Promotions   int
}

func (c Counts) String() string {
	return fmt.Sprintf("properties=%d periods=%d reservations=%d promotions=%d",
		c.Properties, c.Periods, c.Reservations, c.Promotions)
}

// Parse decodes a fixture document, rejecting unknown keys.
func Parse(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return &doc, nil
		}
		return nil, fmt.Errorf("fixtures: %w", err)
	}
	return &doc, nil
}

// Load upserts every row of doc in dependency order. Relative times resolve
// against now. It stops at the first invalid or failing row.
func Load(ctx context.Context, store Store, doc *Document, now time.Time) (Counts, error) {
	var c Counts
	for _, p := range doc.Properties {
		if err := store.UpsertProperty(ctx, domain.Property{ID: p.ID, OwnerID: p.OwnerID, Title: p.Title, CreatedAt: now}); err != nil {
			return c, fmt.Errorf("property %s: %w", p.ID, err)
		}
		c.Properties++
	}
	for _, p := range doc.Periods {
		if !p.EndsAt.set {
			return c, fmt.Errorf("period %s: ends_at required", p.ID)
		}
		if err := store.UpsertPeriod(ctx, domain.Period{ID: p.ID, EndsAt: p.EndsAt.At(now)}); err != nil {
			return c, fmt.Errorf("period %s: %w", p.ID, err)
		}
		c.Periods++
	}
	for _, r := range doc.Reservations {
		tier, err := domain.ParseTier(r.Tier)
		if err != nil {
			return c, fmt.Errorf("reservation %s: %w", r.ID, err)
		}
		status := domain.ReservationConfirmed
		if r.Status != "" {
			if status, err = domain.ParseReservationStatus(r.Status); err != nil {
				return c, fmt.Errorf("reservation %s: %w", r.ID, err)
			}
		}
		err = store.UpsertReservation(ctx, domain.Reservation{
			ID:         r.ID,
			PropertyID: r.PropertyID,
			UserID:     r.UserID,
			PeriodID:   r.PeriodID,
			Tier:       tier,
			Status:     status,
			EndsAt:     r.EndsAt.ptr(now),
			CreatedAt:  now,
		})
		if err != nil {
			return c, fmt.Errorf("reservation %s: %w", r.ID, err)
		}
		c.Reservations++
	}
	for _, p := range doc.Promotions {
		status := domain.PromotionDraft
		if p.Status != "" {
			var err error
			if status, err = domain.ParsePromotionStatus(p.Status); err != nil {
				return c, fmt.Errorf("promotion %s: %w", p.ID, err)
			}
		}
		err := store.UpsertPromotion(ctx, domain.Promotion{
			ID:              p.ID,
			Code:            p.Code,
			Status:          status,
			StartAt:         p.StartAt.At(now),
			EndAt:           p.EndAt.ptr(now),
			UsageLimitTotal: p.UsageLimitTotal,
			CurrentUsage:    p.CurrentUsage,
		}, now)
		if err != nil {
			return c, fmt.Errorf("promotion %s: %w", p.ID, err)
		}
		c.Promotions++
	}
	return c, nil
}
