package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type ExtensionStatus string

const (
	ExtensionPending  ExtensionStatus = "pending"
	ExtensionPaid     ExtensionStatus = "paid"
	ExtensionApproved ExtensionStatus = "approved"
	ExtensionRejected ExtensionStatus = "rejected"
)

func ParseExtensionStatus(s string) (ExtensionStatus, error) {
	switch st := ExtensionStatus(s); st {
	case ExtensionPending, ExtensionPaid, ExtensionApproved, ExtensionRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown extension status %q", s)
}

// Open reports whether the request still blocks a new one for the same reservation.
func (s ExtensionStatus) Open() bool {
	return s == ExtensionPending || s == ExtensionPaid
}

// Decision is an admin verdict on a paid extension request.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

func ParseDecision(s string) (Decision, error) {
	switch d := Decision(s); d {
	case DecisionApproved, DecisionRejected:
		return d, nil
	}
	return "", fmt.Errorf("unknown decision %q", s)
}

// Status is the request status a decision resolves to.
func (d Decision) Status() ExtensionStatus {
	if d == DecisionApproved {
		return ExtensionApproved
	}
	return ExtensionRejected
}

type ExtensionRequest struct {
	ID            string
	ReservationID string
	RequestedDays int

	PricePerDay decimal.Decimal
	PriceAmount decimal.Decimal
	VATAmount   decimal.Decimal
	TotalAmount decimal.Decimal

	Status       ExtensionStatus
	CustomerNote string
	AdminNote    string

	CreatedAt  time.Time
	PaidAt     *time.Time
	ReviewedAt *time.Time
}
