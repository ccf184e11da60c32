package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"switchboard/internal/store"
)

func newCommunitiesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "communities",
		Short: "Inspect per-community configuration records",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to Switchboard config file")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List known community IDs",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(configPath)
			if err != nil {
				return err
			}
			ids, err := st.List()
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No communities recorded.")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <community_id>",
		Short: "Print a community's configuration as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(configPath)
			if err != nil {
				return err
			}
			cc, err := st.Get(args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(cc, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <community_id>",
		Short: "Delete a community's configuration record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(configPath)
			if err != nil {
				return err
			}
			if err := st.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func openStore(configPath string) (*store.Store, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.DataDir)
}
