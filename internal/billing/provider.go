package billing

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned when the payment provider has no record of
// the checkout session.
var ErrSessionNotFound = errors.New("checkout session not found")

// CheckoutSession is the provider-neutral view of a checkout session. Only
// the fields the materializer needs cross this boundary.
type CheckoutSession struct {
	ID             string
	Paid           bool
	AmountTotal    int64
	Currency       string
	PurchaserEmail string
	Metadata       map[string]string
}

// PaymentView is the caller-facing projection of a checkout session,
// returned alongside the materialized bot.
type PaymentView struct {
	Status         string `json:"status"`
	AmountTotal    int64  `json:"amount_total"`
	Currency       string `json:"currency"`
	PurchaserEmail string `json:"purchaser_email"`
}

// View projects the session into its caller-facing form.
func (s *CheckoutSession) View() PaymentView {
	status := "unpaid"
	if s.Paid {
		status = "paid"
	}
	return PaymentView{
		Status:         status,
		AmountTotal:    s.AmountTotal,
		Currency:       s.Currency,
		PurchaserEmail: s.PurchaserEmail,
	}
}

// Provider retrieves checkout sessions from the payment processor.
type Provider interface {
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
}
