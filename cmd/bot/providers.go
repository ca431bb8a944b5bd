package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show the registered AI providers and the one in use",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger := zap.NewNop()
		store, err := openStorage(cfg.Database, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		assistant := newAIService(cfg.AI, cfg.Bot, store, logger)
		if err := assistant.Initialize(cmd.Context()); err != nil {
			return err
		}

		current := "none"
		if p := assistant.Current(); p != nil {
			current = p.Name()
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "preference: %v\n", cfg.AI.Preference)
		for _, name := range assistant.Providers() {
			marker := " "
			if name == current {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s\n", marker, name)
		}
		fmt.Fprintf(out, "current: %s\n", current)
		return nil
	},
}
