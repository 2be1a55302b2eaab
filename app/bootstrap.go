package app

import (
	"context"
	"fmt"

	"github.com/aloewind/exportremix-sub001/app/aiproto"
	"github.com/aloewind/exportremix-sub001/app/config"
	"github.com/aloewind/exportremix-sub001/app/llm"
	"github.com/aloewind/exportremix-sub001/app/quota"
	"github.com/aloewind/exportremix-sub001/app/tariff"
	"github.com/aloewind/exportremix-sub001/app/tiers"
	"github.com/aloewind/exportremix-sub001/auth"

	"go.uber.org/zap"
)

// Build assembles a Server from configuration. Callers must invoke the
// returned close func on shutdown.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, func() error, error) {
	catalog, err := tiers.Load(cfg.Quota.TierCatalogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load tier catalog: %w", err)
	}
	reference, err := tariff.Load(cfg.Quota.ReferenceDataPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load hs reference: %w", err)
	}

	var verifier *auth.Verifier
	if !auth.AuthDisabled(cfg.Auth.Disabled) {
		verifier, err = auth.NewVerifierFromConfig(cfg.Auth)
		if err != nil {
			return nil, nil, fmt.Errorf("auth verifier: %w", err)
		}
	}

	st, closeStore, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	InitStripe(cfg.Stripe)
	gate := quota.NewGate(catalog, st, st,
		quota.WithUnlimitedAccounts(cfg.Quota.UnlimitedAccounts...),
		quota.WithStorageTimeout(cfg.Quota.StorageTimeout),
		quota.WithLogger(logger.Named("quota")),
	)
	protocol := aiproto.New(llm.NewOpenAI(cfg.LLM, logger.Named("llm")),
		aiproto.WithLogger(logger.Named("aiproto")),
		aiproto.WithAttemptTimeout(cfg.LLM.Timeout),
	)

	return NewServer(Deps{
		Config:    cfg,
		Logger:    logger,
		Gate:      gate,
		Protocol:  protocol,
		Reference: reference,
		Catalog:   catalog,
		Billing:   st,
		Verifier:  verifier,
	}), closeStore, nil
}
