package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/toolsascode/bfm/info/internal/bootstrap"
	"github.com/toolsascode/bfm/info/internal/config"
	"github.com/toolsascode/bfm/info/internal/logger"
	"github.com/toolsascode/bfm/info/internal/version"
)

var (
	outputFormat string
	serverAddr   string
	apiToken     string
	timeout      time.Duration
	verbose      bool

	infoView  string
	infoState string

	baselineVersion     string
	baselineDescription string
	baselineUser        string
)

var rootCmd = &cobra.Command{
	Use:   "bfm",
	Short: "BfM - Backend for Migrations CLI",
	Long: `BfM (Backend for Migrations) reports the state of database migrations.

Reads the migration scripts under BFM_SFM_PATH and the schema history of the
configured store, or asks a running BfM server when --server is set.
Supports PostgreSQL and etcd history stores.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Keep stdout for command output
		logger.SetOutput(cmd.ErrOrStderr())
		if verbose {
			logger.SetLevel(logger.DEBUG)
		} else {
			logger.SetLevel(logger.WARN)
		}
		if _, err := newPrinter(cmd.OutOrStdout(), outputFormat); err != nil {
			return err
		}
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "List migrations and their state",
	Long: `Info lists every migration known to the source or the history, with its state.

Example:
  bfm info
  bfm info --view pending
  bfm info --state FAILED --output json
  bfm info --server localhost:9090 --token $BFM_API_TOKEN`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSource(cmd, func(ctx context.Context, src infoSource, p printer) error {
			resp, err := src.Info(ctx, infoView, infoState)
			if err != nil {
				return err
			}
			return p.Info(resp)
		})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check applied migrations against the migration scripts",
	Long: `Validate reports the first integrity problem between the history and the
migration scripts. It exits with a non-zero status when a problem is found.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSource(cmd, func(ctx context.Context, src infoSource, p printer) error {
			resp, err := src.Validate(ctx)
			if err != nil {
				return err
			}
			if err := p.Validation(resp); err != nil {
				return err
			}
			if !resp.Valid {
				return errValidationFailed
			}
			return nil
		})
	},
}

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Record a baseline in an empty schema history",
	Long: `Baseline records a BASELINE marker so that migrations up to and including
the given version are treated as already applied.

Example:
  bfm baseline --version 20250115000000
  bfm baseline --version 1.0 --description "existing schema"`,
	Args: cobra.NoArgs,
	RunE: runBaseline,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "BfM CLI version %s\n", rootCmd.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatTable, "Output format: table, json or yaml")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "", "Address of a BfM gRPC server to query instead of the local configuration")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("BFM_API_TOKEN"), "API token for --server (default: $BFM_API_TOKEN)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout for the whole command")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	infoCmd.Flags().StringVar(&infoView, "view", "all", "Migrations to list: all, pending, applied, resolved, failed, future or out-of-order")
	infoCmd.Flags().StringVar(&infoState, "state", "", "Only list migrations in this state (e.g. PENDING, SUCCESS, FAILED)")

	baselineCmd.Flags().StringVar(&baselineVersion, "version", "", "Version to baseline at")
	baselineCmd.Flags().StringVar(&baselineDescription, "description", "", "Description of the baseline marker")
	baselineCmd.Flags().StringVar(&baselineUser, "installed-by", "", "User recorded on the baseline marker")
	_ = baselineCmd.MarkFlagRequired("version")

	rootCmd.AddCommand(infoCmd, validateCmd, baselineCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if err != errValidationFailed {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// withSource opens the local or remote info source and runs fn against it
func withSource(cmd *cobra.Command, fn func(ctx context.Context, src infoSource, p printer) error) error {
	p, err := newPrinter(cmd.OutOrStdout(), outputFormat)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var src infoSource
	if serverAddr != "" {
		src, err = dialRemote(serverAddr, apiToken)
	} else {
		src, err = openLocal(ctx)
	}
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	return fn(ctx, src, p)
}

func openLocal(ctx context.Context) (infoSource, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	rt, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	src := &localSource{service: rt.Service, closer: rt}
	if err := rt.Service.Refresh(ctx); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("failed to read migration info: %w", err)
	}
	return src, nil
}

func runBaseline(cmd *cobra.Command, args []string) error {
	if serverAddr != "" {
		return fmt.Errorf("baseline writes the schema history and cannot run against --server")
	}
	v, err := version.Parse(baselineVersion)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	rt, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if err := rt.Store.RecordBaseline(ctx, v, baselineDescription, baselineUser); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Baselined schema history at version %s\n", v)
	return nil
}
