// Command remixctl runs maintenance and diagnostic tasks against the quota
// store and the AI protocol without going through HTTP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aloewind/exportremix-sub001/app"
	"github.com/aloewind/exportremix-sub001/app/aiproto"
	"github.com/aloewind/exportremix-sub001/app/config"
	"github.com/aloewind/exportremix-sub001/app/llm"
	"github.com/aloewind/exportremix-sub001/app/logging"
	"github.com/aloewind/exportremix-sub001/app/models"
	"github.com/aloewind/exportremix-sub001/app/quota"
	"github.com/aloewind/exportremix-sub001/app/tariff"
	"github.com/aloewind/exportremix-sub001/app/tiers"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg     *config.Config
	logger  *zap.Logger
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "remixctl",
	Short:         "ExportRemix operations CLI",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.LoadConfig(); err != nil {
			return err
		}
		logger, err = logging.New(config.LogConfig{Style: "console", Level: cfg.Logs.Level})
		return err
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the Postgres quota and billing tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		cfg.Quota.Backend = "postgres"
		_, closeStore, err := app.OpenStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage <user-id> [email]",
	Short: "Show this month's usage and remaining allowance for a user",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		catalog, err := tiers.Load(cfg.Quota.TierCatalogPath)
		if err != nil {
			return err
		}
		st, closeStore, err := app.OpenStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		acct := models.Account{ID: args[0]}
		if len(args) == 2 {
			acct.Email = args[1]
		}
		gate := quota.NewGate(catalog, st, st,
			quota.WithUnlimitedAccounts(cfg.Quota.UnlimitedAccounts...),
			quota.WithLogger(logger))
		return printJSON(cmd, gate.Usage(ctx, acct))
	},
}

var offline bool

var suggestCmd = &cobra.Command{
	Use:   "suggest <description>",
	Short: "Suggest HS codes for a product description",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		reference, err := tariff.Load(cfg.Quota.ReferenceDataPath)
		if err != nil {
			return err
		}
		req := models.HSSuggestRequest{Description: strings.Join(args, " ")}
		candidates := reference.Suggestions(req.Description, aiproto.MaxHSSuggestions)

		var gen llm.Generator = llm.NewOpenAI(cfg.LLM, logger)
		if offline || cfg.LLM.APIKey == "" {
			gen = llm.Func(func(context.Context, llm.Request) (string, error) {
				return "", fmt.Errorf("%w: offline", llm.ErrUnavailable)
			})
		}
		out := aiproto.Run(ctx, aiproto.New(gen, aiproto.WithLogger(logger)), aiproto.Call[models.HSSuggestionResult]{
			Endpoint: "hs-suggest",
			User:     "remixctl",
			Prompt:   aiproto.HSPrompt(req, candidates),
			Parse:    aiproto.ParseHSSuggestions,
			Fallback: aiproto.HSFallback(candidates),
			Normalize: func(r models.HSSuggestionResult) models.HSSuggestionResult {
				r.Suggestions = aiproto.MergeSuggestions(r.Suggestions, candidates, aiproto.MaxHSSuggestions)
				return aiproto.NormalizeHSResult(r)
			},
		})
		logger.Info("suggest finished",
			zap.String("state", string(out.State)),
			zap.Int("attempts", out.Attempts),
			zap.String("reason", out.Reason))
		return printJSON(cmd, out.Value)
	},
}

var tiersCmd = &cobra.Command{
	Use:   "tiers",
	Short: "Print the subscription tier catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := tiers.Load(cfg.Quota.TierCatalogPath)
		if err != nil {
			return err
		}
		return printJSON(cmd, catalog.All())
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall command timeout")
	suggestCmd.Flags().BoolVar(&offline, "offline", false, "skip the model and use the local reference table")
	rootCmd.AddCommand(migrateCmd, usageCmd, suggestCmd, tiersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
