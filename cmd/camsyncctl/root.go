package main

import (
	"strings"

	"github.com/spf13/cobra"

	"camsync/internal/alignment"
	"camsync/internal/platform/config"
	"camsync/internal/platform/kvstore"
)

func newRootCommand() *cobra.Command {
	var dbFlag string

	rootCmd := &cobra.Command{
		Use:           "camsyncctl",
		Short:         "Inspect saved camera sync state and preview alignments",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Path to the state database (default: STATE_DB_PATH or camsync.db)")

	open := func() (*kvstore.Store, *alignment.SyncStateStore, error) {
		path := strings.TrimSpace(dbFlag)
		if path == "" {
			path = config.GetEnv("STATE_DB_PATH", config.Default().State.DBPath)
		}
		db, err := kvstore.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return db, alignment.NewSyncStateStore(db), nil
	}

	rootCmd.AddCommand(newStateCommand(open))
	rootCmd.AddCommand(newPlanCommand())

	return rootCmd
}
