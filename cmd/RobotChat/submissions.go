package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/RobotChat/internal/config"
	"github.com/BTreeMap/RobotChat/internal/store"
)

var submissionsLimit int

var submissionsCmd = &cobra.Command{
	Use:   "submissions",
	Short: "List stored contact submissions as JSON",
	RunE:  runSubmissions,
}

func registerSubmissionsFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&submissionsLimit, "limit", 0, "show only the most recent N submissions (0 for all)")
}

func runSubmissions(cmd *cobra.Command, args []string) error {
	contact, err := config.Load(cfg.ContactConfig)
	if err != nil {
		return err
	}
	st, err := store.Open(cmd.Context(), buildStoreOptions(cfg, contact)...)
	if err != nil {
		return fmt.Errorf("failed to open submission store: %w", err)
	}
	defer st.Close()

	records, err := st.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list submissions: %w", err)
	}
	if submissionsLimit > 0 && len(records) > submissionsLimit {
		records = records[len(records)-submissionsLimit:]
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
