package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/a11y-audit-service/internal/usecase"
	"github.com/user/a11y-audit-service/pkg/utils"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Audit every URL of a list file",
	Long: "Audit the URLs of a newline-separated list file. With --target, probe the list in order " +
		"and audit the first N pages that load without redirecting elsewhere.",
	Args: cobra.NoArgs,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("urls", "", "File with one absolute URL per line, or - for stdin")
	runCmd.Flags().String("homepage", "", "Homepage, always audited first")
	runCmd.Flags().String("level", "AA", "WCAG conformance level: A, AA or AAA")
	runCmd.Flags().Int("concurrency", 2, "Pages audited in parallel")
	runCmd.Flags().Duration("timeout", 30*time.Second, "Per-page navigation timeout")
	runCmd.Flags().Int("retries", 2, "Retries for transient page failures")
	runCmd.Flags().Bool("persist", false, "Save batch state so it can be resumed")
	runCmd.Flags().String("state-id", "", "Id for the saved state (implies --persist)")
	runCmd.Flags().Int("target", 0, "Sample this many working pages from the list (0 audits all)")
	_ = runCmd.MarkFlagRequired("urls")
}

func runAudit(cmd *cobra.Command, _ []string) error {
	applyRunFlags(cmd)
	if err := cfg.Validate(); err != nil {
		return usageError(err)
	}
	level, err := cfg.AuditLevel()
	if err != nil {
		return usageError(err)
	}

	path, _ := cmd.Flags().GetString("urls")
	urls, err := loadURLs(cmd, path)
	if err != nil {
		return usageError(err)
	}
	homepage, _ := cmd.Flags().GetString("homepage")
	if homepage != "" {
		if err := utils.ValidateAuditURL(homepage); err != nil {
			return usageError(fmt.Errorf("invalid homepage: %w", err))
		}
	}
	if len(urls) == 0 && homepage == "" {
		return usageError(errors.New("no URLs to audit"))
	}
	target, _ := cmd.Flags().GetInt("target")
	if target < 0 {
		return usageError(fmt.Errorf("target must not be negative, got %d", target))
	}
	stateID, _ := cmd.Flags().GetString("state-id")

	env, err := openAuditEnv(cmd, cfg.Audit.Persist || stateID != "")
	if err != nil {
		return err
	}
	defer env.close()

	log.Info("Starting audit", "urls", len(urls), "level", level, "target", target, "concurrency", cfg.Audit.Concurrency)

	var report *usecase.RunReport
	if target > 0 {
		report, err = env.orchestrator.Sample(cmd.Context(), usecase.SampleRequest{
			Candidates: urls,
			Homepage:   homepage,
			Target:     target,
			Level:      level,
			StateID:    stateID,
		})
	} else {
		report, err = env.orchestrator.Run(cmd.Context(), usecase.RunRequest{
			URLs:     urls,
			Homepage: homepage,
			Level:    level,
			StateID:  stateID,
		})
	}
	return finishReport(cmd, report, err)
}

// applyRunFlags overrides config values with the flags given explicitly.
func applyRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("level") {
		cfg.Audit.Level, _ = f.GetString("level")
	}
	if f.Changed("concurrency") {
		cfg.Audit.Concurrency, _ = f.GetInt("concurrency")
	}
	if f.Changed("timeout") {
		cfg.Audit.PageTimeout, _ = f.GetDuration("timeout")
	}
	if f.Changed("retries") {
		cfg.Audit.MaxRetries, _ = f.GetInt("retries")
	}
	if f.Changed("persist") {
		cfg.Audit.Persist, _ = f.GetBool("persist")
	}
}

func loadURLs(cmd *cobra.Command, path string) ([]string, error) {
	if path == "-" {
		return readURLs(cmd.InOrStdin())
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open URL list: %w", err)
	}
	defer f.Close()
	return readURLs(f)
}

// readURLs parses one URL per line. Blank lines and lines starting with #
// are ignored.
func readURLs(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		u := strings.TrimSpace(scanner.Text())
		if u == "" || strings.HasPrefix(u, "#") {
			continue
		}
		if err := utils.ValidateAuditURL(u); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		urls = append(urls, u)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read URL list: %w", err)
	}
	return urls, nil
}
