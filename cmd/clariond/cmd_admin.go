package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// statsCmd prints aggregate engine state.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pattern store and breaker state",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := json.MarshalIndent(clarEngine.Stats(), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode stats: %w", err)
		}
		fmt.Fprintln(os.Stdout, string(out))
		return nil
	},
}

// resetBreakerCmd clears the failure counter and forces the breaker CLOSED.
var resetBreakerCmd = &cobra.Command{
	Use:   "reset-breaker",
	Short: "Force the circuit breaker closed",
	RunE: func(cmd *cobra.Command, args []string) error {
		clarEngine.ResetBreaker()
		fmt.Fprintln(os.Stdout, "circuit breaker reset")
		return nil
	},
}

// clearLearningCmd wipes the pattern store entirely.
var clearLearningCmd = &cobra.Command{
	Use:   "clear-learning",
	Short: "Wipe all learned pattern statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := clarEngine.ClearLearning(); err != nil {
			return fmt.Errorf("failed to clear learning data: %w", err)
		}
		fmt.Fprintln(os.Stdout, "learning data cleared")
		return nil
	},
}
