package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/aloewind/exportremix-sub001/app/config"
	"github.com/aloewind/exportremix-sub001/app/models"
	"github.com/aloewind/exportremix-sub001/app/store"

	"github.com/stripe/stripe-go/v79"
	portal "github.com/stripe/stripe-go/v79/billingportal/session"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
)

// InitStripe wires the Stripe API key.
func InitStripe(cfg config.StripeConfig) {
	stripe.Key = cfg.SecretKey
}

// Payments is the slice of the Stripe API the billing handlers use.
type Payments interface {
	CreateCustomer(ctx context.Context, userID, email string) (string, error)
	CheckoutURL(ctx context.Context, req CheckoutParams) (string, error)
	PortalURL(ctx context.Context, customerID, returnURL string) (string, error)
}

type CheckoutParams struct {
	UserID     string
	CustomerID string
	Tier       models.TierID
	PriceID    string
	SuccessURL string
	CancelURL  string
}

type stripePayments struct{}

func (stripePayments) CreateCustomer(ctx context.Context, userID, email string) (string, error) {
	params := &stripe.CustomerParams{}
	params.AddMetadata("user_id", userID)
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.Context = ctx
	cust, err := customer.New(params)
	if err != nil {
		return "", err
	}
	return cust.ID, nil
}

func (stripePayments) CheckoutURL(ctx context.Context, req CheckoutParams) (string, error) {
	meta := map[string]string{"user_id": req.UserID, "tier": string(req.Tier)}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(req.CustomerID),
		ClientReferenceID: stripe.String(req.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{Metadata: meta},
		SuccessURL:       stripe.String(req.SuccessURL),
		CancelURL:        stripe.String(req.CancelURL),
	}
	for k, v := range meta {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	sess, err := session.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

func (stripePayments) PortalURL(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := portal.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

// ensureStripeCustomer finds or creates the Stripe customer for a user and
// remembers the mapping.
func (s *Server) ensureStripeCustomer(ctx context.Context, acct models.Account) (string, error) {
	if acct.ID == "" {
		return "", errors.New("missing user id")
	}
	id, err := s.billing.StripeCustomerID(ctx, acct.ID)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	id, err = s.payments.CreateCustomer(ctx, acct.ID, acct.Email)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	if err := s.billing.SaveStripeCustomer(ctx, acct.ID, id); err != nil {
		return "", err
	}
	return id, nil
}

// tierForPrice maps a configured Stripe price back to its tier.
func (s *Server) tierForPrice(priceID string) (models.TierID, bool) {
	if priceID == "" {
		return "", false
	}
	for tier, id := range s.cfg.Stripe.PriceIDs {
		if id == priceID {
			return models.TierID(tier), true
		}
	}
	return "", false
}
