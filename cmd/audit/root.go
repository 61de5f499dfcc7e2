package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/a11y-audit-service/pkg/config"
	"github.com/user/a11y-audit-service/pkg/logger"
)

const (
	exitOK      = 0
	exitCrashed = 1
	exitUsage   = 2
)

// exitError carries the process exit code out of a RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error { return &exitError{code: exitUsage, err: err} }

func failure(err error) error { return &exitError{code: exitCrashed, err: err} }

var rootCmd = &cobra.Command{
	Use:           "audit",
	Short:         "Run WCAG accessibility audits over lists of URLs",
	Long:          "Audit pages in headless Chrome against WCAG 2.x success criteria, score them and keep resumable batch state.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Set by setup before any subcommand runs.
var (
	cfg *config.Config
	log *slog.Logger
)

func init() {
	// Assigned here: setup refers back to rootCmd's flags.
	rootCmd.PersistentPreRunE = setup
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML or .env config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().String("log-format", logger.FormatText, "Log format on stderr: text or json")
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})
}

func setup(cmd *cobra.Command, _ []string) error {
	flags := cmd.Root().PersistentFlags()
	path, _ := flags.GetString("config")
	c, err := config.Load(path)
	if err != nil {
		return usageError(err)
	}
	if lvl, _ := flags.GetString("log-level"); lvl != "" {
		c.Log.Level = lvl
	}
	c.Log.Format, _ = flags.GetString("log-format")
	if err := c.Validate(); err != nil {
		return usageError(err)
	}

	level, err := logger.ParseLevel(c.Log.Level)
	if err != nil {
		return usageError(err)
	}
	cfg = c
	log = logger.Init(cmd.ErrOrStderr(), level, c.Log.Format)
	return nil
}

// Execute runs the root command and maps its error to an exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return execute(ctx, os.Args[1:])
}

func execute(ctx context.Context, args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", ee.err)
		}
		return ee.code
	}
	// Unknown commands and argument count errors come straight from cobra.
	fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	return exitUsage
}
