package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/user/a11y-audit-service/internal/app"
	"github.com/user/a11y-audit-service/internal/repository"
	"github.com/user/a11y-audit-service/internal/usecase"
)

var statesCmd = &cobra.Command{
	Use:   "states",
	Short: "Inspect saved batch states",
}

var statesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved batch states, newest first",
	Args:  cobra.NoArgs,
	RunE:  runStatesList,
}

var statesShowCmd = &cobra.Command{
	Use:   "show STATE_ID",
	Short: "Show the per-URL status of one batch",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatesShow,
}

func init() {
	rootCmd.AddCommand(statesCmd)
	statesCmd.AddCommand(statesListCmd, statesShowCmd)
	statesCmd.PersistentFlags().StringP("output", "o", outputYAML, "Output format: yaml or json")
}

func openStateBrowser(cmd *cobra.Command) (*usecase.StateBrowser, func(), error) {
	stores, err := app.OpenStores(cmd.Context(), cfg, false)
	if err != nil {
		return nil, nil, failure(err)
	}
	return usecase.NewStateBrowser(stores.States), func() {
		if err := stores.Close(); err != nil {
			log.Error("Failed to close stores", "error", err)
		}
	}, nil
}

func runStatesList(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("output")
	states, closeStores, err := openStateBrowser(cmd)
	if err != nil {
		return err
	}
	defer closeStores()

	list, err := states.List(cmd.Context())
	if err != nil {
		return failure(err)
	}
	return printAs(cmd.OutOrStdout(), format, list)
}

func runStatesShow(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output")
	states, closeStores, err := openStateBrowser(cmd)
	if err != nil {
		return err
	}
	defer closeStores()

	state, err := states.Show(cmd.Context(), args[0])
	if errors.Is(err, repository.ErrStateNotFound) {
		return usageError(err)
	}
	if err != nil {
		return failure(err)
	}
	return printAs(cmd.OutOrStdout(), format, state)
}
