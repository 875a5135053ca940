package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/lightscan/internal/config"
	"github.com/nao1215/lightscan/internal/database"
	"github.com/nao1215/lightscan/internal/log"
	"github.com/nao1215/lightscan/internal/runner"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [url]",
		Short: "Audit a web page",
		Long: `Run loads a page in Chrome through the remote debugging protocol and audits it.

The run has three stages:
- Gather: load the page once per configured pass and collect artifacts
  (performance trace, network records, viewport, service workers)
- Audit: evaluate every configured audit against the artifacts
- Score: combine audit scores into weighted category scores

Examples:
  # Audit a page with Chrome listening on the default port 9222
  lightscan run https://example.com

  # Connect to Chrome on another host through an SSH SOCKS tunnel
  lightscan run --hostname 10.0.0.5 --socks-proxy 127.0.0.1:1080 https://example.com

  # Gather only and keep the artifacts for later
  lightscan run --gather-only --artifacts-dir ./artifacts https://example.com

  # Audit previously saved artifacts without a browser
  lightscan run --audit-only --artifacts-dir ./artifacts

  # Write a Markdown report
  lightscan run -O markdown --output-path report.md https://example.com

Run configuration (.lightscan) example:
  passes:
    - passName: defaultPass
      recordTrace: true
      recordNetwork: true
      gatherers: [URL, ViewportDimensions]
  audits: [is-on-https, content-width]`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRunCmd,
	}

	// Browser connection flags
	cmd.Flags().IntP("port", "P", config.DefaultPort,
		"Chrome remote debugging port")
	cmd.Flags().StringP("hostname", "H", config.DefaultHostname,
		"Host where Chrome's debugging port listens")
	cmd.Flags().String("ws-url", "",
		"Connect to this page WebSocket URL directly instead of discovering a target")
	cmd.Flags().String("socks-proxy", "",
		"Reach the browser through a SOCKS5 proxy at host:port")

	// Run behavior flags
	cmd.Flags().StringP("config", "c", "",
		"Run configuration file (default: .lightscan in current or home directory)")
	cmd.Flags().Duration("max-wait-for-load", config.DefaultMaxWaitForLoad,
		"Maximum time to wait for the page to load")
	cmd.Flags().Bool("disable-device-emulation", false,
		"Disable mobile device emulation and throttling")
	cmd.Flags().Bool("disable-storage-reset", false,
		"Keep the browser cache and origin storage")

	// Artifact flags
	cmd.Flags().Bool("save-artifacts", false,
		"Save gathered artifacts")
	cmd.Flags().String("artifacts-dir", "",
		"Directory to save artifacts to or load them from (default: per-run cache directory)")
	cmd.Flags().BoolP("gather-only", "G", false,
		"Gather and save artifacts, then stop")
	cmd.Flags().BoolP("audit-only", "A", false,
		"Audit saved artifacts from --artifacts-dir without a browser")

	// Report flags
	cmd.Flags().StringP("output", "O", config.DefaultOutputFormat,
		"Report format: json, markdown or text")
	cmd.Flags().String("output-path", "",
		"Write the report to this file instead of stdout (creates directories if needed)")

	// History flags
	cmd.Flags().Bool("no-history", false,
		"Do not save the run to the history database")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory holding the history database")

	return cmd
}

// runRunCmd executes the run command.
func runRunCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewSecureLogger(cmd.ErrOrStderr(), getVerboseFlag(cmd))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = runAudit(ctx, cmd.OutOrStdout(), cfg, logger)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", errInterrupted, err)
	}
	return err
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.Port, err = flags.GetInt("port"); err != nil {
		return nil, err
	}
	if cfg.Hostname, err = flags.GetString("hostname"); err != nil {
		return nil, err
	}
	if cfg.WebSocketURL, err = flags.GetString("ws-url"); err != nil {
		return nil, err
	}
	if cfg.SOCKSProxy, err = flags.GetString("socks-proxy"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.MaxWaitForLoad, err = flags.GetDuration("max-wait-for-load"); err != nil {
		return nil, err
	}
	if cfg.DisableDeviceEmulation, err = flags.GetBool("disable-device-emulation"); err != nil {
		return nil, err
	}
	if cfg.DisableStorageReset, err = flags.GetBool("disable-storage-reset"); err != nil {
		return nil, err
	}
	if cfg.SaveArtifacts, err = flags.GetBool("save-artifacts"); err != nil {
		return nil, err
	}
	if cfg.ArtifactsDir, err = flags.GetString("artifacts-dir"); err != nil {
		return nil, err
	}
	if cfg.GatherOnly, err = flags.GetBool("gather-only"); err != nil {
		return nil, err
	}
	if cfg.AuditOnly, err = flags.GetBool("audit-only"); err != nil {
		return nil, err
	}
	if cfg.OutputFormat, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.OutputPath, err = flags.GetString("output-path"); err != nil {
		return nil, err
	}
	if cfg.NoHistory, err = flags.GetBool("no-history"); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	// An explicit --config must exist; otherwise fall back to the
	// built-in run configuration.
	runCfg, path, err := config.LoadRunConfig(cfg.ConfigFilePath)
	if err != nil {
		if path != "" {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		return nil, err
	}
	cfg.RunConfig = runCfg

	if len(args) > 0 {
		cfg.URL = args[0]
	}

	return cfg, nil
}

// runAudit executes the run and writes the report.
func runAudit(ctx context.Context, out io.Writer, cfg *config.Config, logger *slog.Logger) error {
	opts := []runner.Option{
		runner.WithLogger(logger),
		runner.WithVersion(getVersion()),
	}

	if !cfg.NoHistory && !cfg.GatherOnly {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		opts = append(opts, runner.WithHistory(db))
	}

	result, err := runner.New(cfg, opts...).Run(ctx, cfg.URL)
	if err != nil {
		return err
	}

	if cfg.GatherOnly {
		fmt.Fprintf(out, "Artifacts saved to %s\n", result.ArtifactsDir)
		return nil
	}

	return writeReport(out, cfg, result)
}
