package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"viammo.app/tripscan/common/id"
	"viammo.app/tripscan/common/llm"
	"viammo.app/tripscan/common/logger"
	"viammo.app/tripscan/core/config"
	"viammo.app/tripscan/internal/mailbox"
	"viammo.app/tripscan/internal/pipeline"
	"viammo.app/tripscan/internal/progress"
)

var (
	cfg       config.Config
	emlDir    string
	tokenFile string
	outFile   string
)

var rootCmd = &cobra.Command{
	Use:   "tripscan",
	Short: "Scan a mailbox for hotel stays and recommend trips",
	Long: `Run one scan locally and print the result as JSON.

Examples:
  tripscan --eml-dir ./mail                # Scan a directory of .eml files
  tripscan --token-file ~/.tripscan.json   # Scan Gmail with a cached token
  tripscan login                           # Cache a Gmail token first`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load(config.ServiceTypeCLI)
		if err != nil {
			return err
		}
		logger.Setup(cfg)
		return id.Init(3)
	},
	RunE: runScan,
}

func init() {
	home, _ := os.UserHomeDir()
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", home+"/.tripscan/token.json", "cached Gmail token")
	rootCmd.Flags().StringVar(&emlDir, "eml-dir", "", "scan a directory of .eml files instead of Gmail")
	rootCmd.Flags().StringVarP(&outFile, "out", "o", "", "write the result to a file instead of stdout")
	rootCmd.AddCommand(loginCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScan(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gateway, err := openGateway(ctx)
	if err != nil {
		return err
	}

	fast, err := llm.New(llmConfig(cfg.ClassifierLLM))
	if err != nil {
		return fmt.Errorf("classifier llm: %w", err)
	}
	reasoning, err := llm.New(llmConfig(cfg.InsightsLLM))
	if err != nil {
		return fmt.Errorf("insights llm: %w", err)
	}

	keywords, err := mailbox.KeywordsOrDefault(cfg.Scan.KeywordsFile)
	if err != nil {
		return fmt.Errorf("loading keywords: %w", err)
	}

	scanID := id.New()
	ctx = logger.WithLogFields(ctx, logger.LogFields{ScanID: &scanID})
	slog.InfoContext(ctx, "scan starting", "fast_model", fast.Model(), "reasoning_model", reasoning.Model())

	res, err := pipeline.New(pipeline.Deps{
		Gateway:   gateway,
		Fast:      fast,
		Reasoning: reasoning,
		Sink:      progress.LogSink{},
	}, cfg.Scan, keywords).Run(ctx)
	if err != nil {
		return err
	}

	out := os.Stdout
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"emails":          res.Emails,
		"trip_insights":   res.TripInsights,
		"recommendations": res.Recommendations,
	})
}

func openGateway(ctx context.Context) (mailbox.Gateway, error) {
	if emlDir != "" {
		return mailbox.NewEMLGateway(emlDir)
	}

	tok, err := mailbox.ReadToken(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("reading token (run `tripscan login` first): %w", err)
	}

	var ts oauth2.TokenSource = oauth2.StaticTokenSource(tok)
	if cfg.Google.Enabled() {
		oauthCfg := mailbox.NewOAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
		ts = oauthCfg.TokenSource(ctx, tok)
	}
	return mailbox.NewGmailGateway(ctx, ts)
}

func llmConfig(c config.LLMConfig) llm.Config {
	return llm.Config{
		APIKey:            c.APIKey,
		BaseURL:           c.BaseURL,
		Model:             c.Model,
		MaxTokens:         c.MaxTokens,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		MaxRetries:        c.MaxRetries,
	}
}
