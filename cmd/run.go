// File: cmd/run.go
package cmd

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vistral/deskpilot/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run <instruction>",
	Short: "Run a multi-step task against the desktop",
	Long: `Run captures the screen, asks the model for the next action, executes it,
and repeats until the model answers or terminates, a budget is exhausted,
or the process receives an interrupt.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		instruction := strings.Join(args, " ")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := buildStack(ctx, cfg)
		if err != nil {
			return err
		}

		ctrl := session.NewController(st.client, st.exec, st.capturer, st.store, cfg.Session, st.logger)
		result, runErr := ctrl.Run(ctx, instruction)

		printResult(cmd, result)

		switch result.State {
		case session.StateDone:
			return nil
		case session.StateAborted:
			st.logger.Warn("Run interrupted.", zap.Error(runErr))
			return runErr
		default:
			return runErr
		}
	},
}

func printResult(cmd *cobra.Command, result *session.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session %s: %s", result.ID, result.State)
	if result.Reason != "" {
		fmt.Fprintf(out, " (%s)", result.Reason)
	}
	fmt.Fprintf(out, " after %d step(s)\n", len(result.Steps))

	if result.Answer != "" {
		fmt.Fprintf(out, "answer: %s\n", result.Answer)
	}
	if result.TerminateStatus != "" {
		fmt.Fprintf(out, "verdict: %s\n", result.TerminateStatus)
	}
	for _, step := range result.Steps {
		marker := "ok"
		if step.Failed {
			marker = "failed"
		}
		fmt.Fprintf(out, "  %2d. [%s] %s\n", step.Index, marker, step.Result)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
}
