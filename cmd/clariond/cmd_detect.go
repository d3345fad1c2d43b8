package main

import (
	"encoding/json"
	"fmt"
	"os"

	"clariond/internal/engine"
	"clariond/internal/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	detectMode    string
	detectRound   int
	detectTraceID string
	detectHints   []string
)

// detectCmd runs one clarify-vs-proceed decision and prints it as JSON.
var detectCmd = &cobra.Command{
	Use:   "detect [prompt]",
	Short: "Decide whether a prompt needs clarification",
	Long: `Scores the prompt for ambiguity and prints the resulting decision.

Examples:
  clariond detect "Do it now"
  clariond detect "Optimize this" --round 2
  clariond detect "Fix the login bug" --hint flask --hint docker`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

func runDetect(cmd *cobra.Command, args []string) error {
	prompt := args[0]
	logger.Info("Running detection", zap.String("prompt", prompt))

	var ctx *types.ConversationContext
	if len(detectHints) > 0 {
		ctx = &types.ConversationContext{ProjectHints: detectHints}
	}

	decision := clarEngine.DetectAmbiguity(cmd.Context(), engine.DetectRequest{
		Prompt:  prompt,
		Context: ctx,
		Mode:    types.Mode(detectMode),
		Round:   detectRound,
		TraceID: detectTraceID,
	})

	out, err := json.MarshalIndent(decision, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}

// feedbackCmd reports the outcome of an earlier clarification.
var feedbackCmd = &cobra.Command{
	Use:   "feedback [trace-id]",
	Short: "Record the outcome of a clarification",
	Long: `Attributes a clarification outcome back to the template that asked it.

Provide --domain and --template when the original decision came from another
process; otherwise attribution uses the pending decision for the trace id.`,
	Args: cobra.ExactArgs(1),
	RunE: runFeedback,
}

var (
	fbSuccess  bool
	fbFailure  bool
	fbReply    string
	fbDomain   string
	fbTemplate string
)

func runFeedback(cmd *cobra.Command, args []string) error {
	if fbSuccess && fbFailure {
		return fmt.Errorf("--success and --failure are mutually exclusive")
	}

	fb := engine.Feedback{
		TraceID:    args[0],
		UserReply:  fbReply,
		Domain:     fbDomain,
		TemplateID: fbTemplate,
	}
	if fbSuccess || fbFailure {
		fb.Success = &fbSuccess
	}

	clarEngine.RecordClarificationFeedback(cmd.Context(), fb)
	logger.Info("Feedback recorded",
		zap.String("trace_id", args[0]),
		zap.String("domain", fbDomain),
		zap.String("template", fbTemplate))
	return nil
}

func init() {
	detectCmd.Flags().StringVar(&detectMode, "mode", "", "detection mode: quick or careful (default from config)")
	detectCmd.Flags().IntVar(&detectRound, "round", 0, "clarification round number")
	detectCmd.Flags().StringVar(&detectTraceID, "trace", "", "trace id (generated when empty)")
	detectCmd.Flags().StringArrayVar(&detectHints, "hint", nil, "project/environment hint (repeatable)")

	feedbackCmd.Flags().BoolVar(&fbSuccess, "success", false, "mark the clarification successful")
	feedbackCmd.Flags().BoolVar(&fbFailure, "failure", false, "mark the clarification failed")
	feedbackCmd.Flags().StringVar(&fbReply, "reply", "", "the user's free-text reply (classified when no explicit flag)")
	feedbackCmd.Flags().StringVar(&fbDomain, "domain", "", "explicit domain attribution")
	feedbackCmd.Flags().StringVar(&fbTemplate, "template", "", "explicit template attribution")
}
