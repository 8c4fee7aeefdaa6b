package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lexhaven/docintel/internal/queue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background job worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		w := queue.NewWorker(e.Queue, cfg.Worker)
		w.Handle(queue.KindProcessDocument, e.Orchestrator.HandleProcessDocument)
		w.Handle(queue.KindRecomputeRisk, e.Orchestrator.HandleRecomputeRisk)

		err = w.Run(ctx)
		zap.L().Info("worker: shut down")
		return err
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
