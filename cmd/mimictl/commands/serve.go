package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewServeCmd creates the `mimictl serve` command that runs the assistant
// runtime until a shutdown signal arrives, adapted from the teacher's
// `copilot serve` daemon-loop shape.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant runtime (control plane, orchestrator, dispatcher, cron)",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go rt.run(ctx)

	rt.logger.Info("mimictl running", "assistant_name", rt.cfg.AssistantName)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	rt.logger.Info("shutdown signal received, stopping")
	cancel()
	return nil
}
