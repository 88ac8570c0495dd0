package tools

import (
	"context"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// subscriptionListLimit bounds how many subscriptions are summarized per
// customer; more would only inflate the prompt.
const subscriptionListLimit = 5

// StripeBilling implements Billing against the Stripe API.
type StripeBilling struct {
	api *client.API
}

// NewStripeBilling creates a Stripe-backed billing client.
func NewStripeBilling(secretKey string) *StripeBilling {
	return &StripeBilling{api: client.New(secretKey, nil)}
}

// FindCustomer returns the first customer matching email, or nil.
func (b *StripeBilling) FindCustomer(ctx context.Context, email string) (*Customer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	it := b.api.Customers.List(params)
	for it.Next() {
		c := it.Customer()
		return &Customer{ID: c.ID, Name: c.Name, Email: c.Email}, nil
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("listing customers: %w", err)
	}
	return nil, nil
}

// ListSubscriptions summarizes the customer's subscriptions across all
// statuses, expanding prices and products so names can be reported.
func (b *StripeBilling) ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(subscriptionListLimit)
	params.AddExpand("data.items.data.price.product")

	var subs []Subscription
	it := b.api.Subscriptions.List(params)
	for it.Next() {
		s := it.Subscription()
		sub := Subscription{
			Status:            string(s.Status),
			Product:           "Desconhecido",
			CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		}
		if len(s.Items.Data) > 0 {
			item := s.Items.Data[0]
			if item.Price != nil {
				switch {
				case item.Price.Product != nil && item.Price.Product.Name != "":
					sub.Product = item.Price.Product.Name
				case item.Price.Nickname != "":
					sub.Product = item.Price.Nickname
				default:
					sub.Product = item.Price.ID
				}
			}
			if item.CurrentPeriodEnd > 0 {
				end := time.Unix(item.CurrentPeriodEnd, 0)
				sub.CurrentPeriodEnd = &end
			}
		}
		subs = append(subs, sub)
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}
	return subs, nil
}

// SearchProducts searches the Stripe catalog by product name.
func (b *StripeBilling) SearchProducts(ctx context.Context, name string) ([]Product, error) {
	params := &stripe.ProductSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   fmt.Sprintf("name~%q", name),
			Limit:   stripe.Int64(3),
			Context: ctx,
		},
	}

	var products []Product
	it := b.api.Products.Search(params)
	for it.Next() {
		p := it.Product()
		products = append(products, Product{ID: p.ID, Name: p.Name})
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("searching products: %w", err)
	}
	return products, nil
}

// ActivePriceID returns the product's first active price, or "".
func (b *StripeBilling) ActivePriceID(ctx context.Context, productID string) (string, error) {
	params := &stripe.PriceListParams{
		Product: stripe.String(productID),
		Active:  stripe.Bool(true),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	it := b.api.Prices.List(params)
	for it.Next() {
		return it.Price().ID, nil
	}
	if err := it.Err(); err != nil {
		return "", fmt.Errorf("listing prices: %w", err)
	}
	return "", nil
}

// FindPaymentLink returns the URL of an active payment link whose metadata
// tags it with priceID, or "" when none exists.
func (b *StripeBilling) FindPaymentLink(ctx context.Context, priceID string) (string, error) {
	params := &stripe.PaymentLinkListParams{Active: stripe.Bool(true)}
	params.Context = ctx

	it := b.api.PaymentLinks.List(params)
	for it.Next() {
		pl := it.PaymentLink()
		if pl.Metadata["price_id"] == priceID {
			return pl.URL, nil
		}
	}
	if err := it.Err(); err != nil {
		return "", fmt.Errorf("listing payment links: %w", err)
	}
	return "", nil
}

// CreatePaymentLink creates a payment link for priceID, tagged with the price
// so later lookups reuse it instead of creating duplicates.
func (b *StripeBilling) CreatePaymentLink(ctx context.Context, priceID string) (string, error) {
	params := &stripe.PaymentLinkParams{
		LineItems: []*stripe.PaymentLinkLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
	}
	params.Context = ctx
	params.AddMetadata("price_id", priceID)

	pl, err := b.api.PaymentLinks.New(params)
	if err != nil {
		return "", fmt.Errorf("creating payment link: %w", err)
	}
	return pl.URL, nil
}
