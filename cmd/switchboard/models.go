package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"switchboard/internal/ollama"
)

func newModelsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models advertised by the Ollama backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			client := ollama.NewClient(ollama.ClientOpts{
				BaseURL: cfg.Ollama.URL,
				Timeout: cfg.OllamaTimeout(),
			})
			names, err := client.ListModels(cmd.Context())
			if err != nil {
				return fmt.Errorf("list models from %s: %w", cfg.Ollama.URL, err)
			}
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No models found. Pull models using 'ollama pull model_name'")
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to Switchboard config file")
	return cmd
}
