package tools

import (
	"context"
	"time"
)

// Customer is a billing-provider customer record.
type Customer struct {
	ID    string
	Name  string
	Email string
}

// Subscription summarizes one customer subscription for the model.
type Subscription struct {
	Status            string     `json:"status"`
	Product           string     `json:"product"`
	CurrentPeriodEnd  *time.Time `json:"-"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
}

// Product is a billing-provider catalog entry.
type Product struct {
	ID   string
	Name string
}

// Billing is the slice of the billing provider the tool handlers need.
// *StripeBilling satisfies this; tests substitute a stub. A nil Billing means
// the provider is not configured and the handlers answer accordingly.
type Billing interface {
	// FindCustomer returns the customer matching email, or nil when none exists.
	FindCustomer(ctx context.Context, email string) (*Customer, error)

	// ListSubscriptions returns up to a handful of the customer's
	// subscriptions across all statuses.
	ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)

	// SearchProducts searches the catalog by name.
	SearchProducts(ctx context.Context, name string) ([]Product, error)

	// ActivePriceID resolves the product's first active price, or "" when
	// the product has none.
	ActivePriceID(ctx context.Context, productID string) (string, error)

	// FindPaymentLink returns the URL of an existing active payment link
	// tagged with priceID, or "" when none exists.
	FindPaymentLink(ctx context.Context, priceID string) (string, error)

	// CreatePaymentLink creates a payment link for priceID, tagging it so a
	// later FindPaymentLink for the same price reuses it.
	CreatePaymentLink(ctx context.Context, priceID string) (string, error)
}
