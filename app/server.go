// Package app wires shared HTTP routes for both local and Lambda execution.
package app

import (
	"github.com/aloewind/exportremix-sub001/app/aiproto"
	"github.com/aloewind/exportremix-sub001/app/config"
	"github.com/aloewind/exportremix-sub001/app/quota"
	"github.com/aloewind/exportremix-sub001/app/store"
	"github.com/aloewind/exportremix-sub001/app/tariff"
	"github.com/aloewind/exportremix-sub001/app/tiers"
	"github.com/aloewind/exportremix-sub001/auth"

	"go.uber.org/zap"
)

// Server holds every collaborator the handlers need. It is built once at
// start and shared by all requests.
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	gate      *quota.Gate
	protocol  *aiproto.Protocol
	reference *tariff.Reference
	catalog   *tiers.Catalog
	billing   store.BillingStore
	verifier  *auth.Verifier
	payments  Payments
}

type Deps struct {
	Config    *config.Config
	Logger    *zap.Logger
	Gate      *quota.Gate
	Protocol  *aiproto.Protocol
	Reference *tariff.Reference
	Catalog   *tiers.Catalog
	Billing   store.BillingStore
	Verifier  *auth.Verifier
	// Payments defaults to the live Stripe API.
	Payments Payments
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	payments := d.Payments
	if payments == nil {
		payments = stripePayments{}
	}
	return &Server{
		cfg:       d.Config,
		logger:    logger,
		gate:      d.Gate,
		protocol:  d.Protocol,
		reference: d.Reference,
		catalog:   d.Catalog,
		billing:   d.Billing,
		verifier:  d.Verifier,
		payments:  payments,
	}
}
