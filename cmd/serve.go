package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lexhaven/docintel/internal/queue"
	"github.com/lexhaven/docintel/internal/server"
)

var serveWithWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		srv := server.New(cfg.Server, e.Store, e.Queue, e.Orchestrator, e.Executor)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.ListenAndServe(ctx)
		})
		if serveWithWorker {
			w := queue.NewWorker(e.Queue, cfg.Worker)
			w.Handle(queue.KindProcessDocument, e.Orchestrator.HandleProcessDocument)
			w.Handle(queue.KindRecomputeRisk, e.Orchestrator.HandleRecomputeRisk)
			g.Go(func() error {
				return w.Run(ctx)
			})
		}

		err = g.Wait()
		zap.L().Info("serve: shut down")
		return err
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithWorker, "with-worker", false, "also run the job worker in-process")
	rootCmd.AddCommand(serveCmd)
}
