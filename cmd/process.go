package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var processTenant string

// processCmd runs one document through the pipeline synchronously, for
// operators and local debugging. Production traffic goes through the API
// and the worker.
var processCmd = &cobra.Command{
	Use:   "process <document-id>",
	Short: "Process a single document synchronously",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, err := uuid.Parse(processTenant)
		if err != nil {
			return eris.Wrap(err, "invalid --tenant")
		}
		documentID, err := uuid.Parse(args[0])
		if err != nil {
			return eris.Wrap(err, "invalid document id")
		}

		ctx := cmd.Context()
		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		run, err := e.Orchestrator.CreateRun(ctx, tenantID, documentID, nil)
		if err != nil {
			return err
		}
		if err := e.Orchestrator.Run(ctx, tenantID, run.ID); err != nil {
			return err
		}

		final, err := e.Store.GetRun(ctx, tenantID, run.ID)
		if err != nil {
			return err
		}
		fmt.Printf("run %s: %s (type=%s findings=%d actions=%d)\n",
			final.ID, final.Status, final.DocumentType, final.FindingsCount, final.ActionsCount)
		if final.FailureReason != "" {
			fmt.Printf("failed at %s: %s\n", final.FailedStage, final.FailureReason)
		}
		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&processTenant, "tenant", "", "tenant ID (required)")
	_ = processCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(processCmd)
}
