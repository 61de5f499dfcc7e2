package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/internal/repository"
)

var resumeCmd = &cobra.Command{
	Use:   "resume STATE_ID",
	Short: "Finish a saved batch",
	Long:  "Audit the URLs of a saved batch that have no outcome yet. Finished URLs are not audited again.",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	resumeCmd.Flags().String("level", "", "Override the WCAG level stored with the batch")
}

func runResume(cmd *cobra.Command, args []string) error {
	level, err := levelFlag(cmd)
	if err != nil {
		return usageError(err)
	}

	env, err := openAuditEnv(cmd, true)
	if err != nil {
		return err
	}
	defer env.close()

	log.Info("Resuming audit", "state_id", args[0])
	report, err := env.orchestrator.Resume(cmd.Context(), args[0], level)
	if errors.Is(err, repository.ErrStateNotFound) {
		return usageError(err)
	}
	return finishReport(cmd, report, err)
}

// levelFlag parses an optional level flag; empty means unset.
func levelFlag(cmd *cobra.Command) (entity.Level, error) {
	s, _ := cmd.Flags().GetString("level")
	if s == "" {
		return 0, nil
	}
	return entity.ParseLevel(s)
}
