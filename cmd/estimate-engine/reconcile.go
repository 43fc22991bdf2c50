package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/terra-clan/estimate-engine/internal/project"
	"github.com/terra-clan/estimate-engine/internal/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Recompute stored metrics from saved estimates once",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(os.Stderr)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		repo, err := openRepository(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer repo.Close()

		sections, err := loadSections(cfg)
		if err != nil {
			return err
		}

		manager := project.NewService(repo, nil, sections, 0)
		repaired := reconcile.NewReconciler(manager, 0).Reconcile(ctx)

		fmt.Fprintf(cmd.OutOrStdout(), "repaired %d project(s)\n", repaired)
		return nil
	},
}
