package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/land-scheduler/internal/config"
	"github.com/example/land-scheduler/internal/db"
	"github.com/example/land-scheduler/internal/migrate"
	"github.com/example/land-scheduler/internal/slots"
)

func newSlotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slot",
		Short: "Manage reservation slots (non-API)",
	}
	cmd.AddCommand(newSlotCreateCmd())
	cmd.AddCommand(newSlotListCmd())
	return cmd
}

func newSlotCreateCmd() *cobra.Command {
	var (
		areaID int64
		at     string
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Schedule a reservation slot for an area",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := migrate.Up(ctx, d); err != nil {
				return err
			}

			when, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("invalid --at (want RFC 3339, e.g. 2026-10-01T09:00:00Z)")
			}

			s := slots.Slot{AreaID: areaID, ScheduledAt: when}
			if err := s.Validate(time.Now()); err != nil {
				return err
			}

			id, err := slots.NewRepo(d).Create(ctx, s)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "created slot %d for area %d at %s\n", id, areaID, when.Format(time.RFC3339))
			return nil
		},
	}

	c.Flags().Int64Var(&areaID, "area-id", 0, "area the slot belongs to")
	c.Flags().StringVar(&at, "at", "", "scheduled time (RFC 3339)")
	_ = c.MarkFlagRequired("area-id")
	_ = c.MarkFlagRequired("at")
	return c
}

func newSlotListCmd() *cobra.Command {
	var areaID int64

	c := &cobra.Command{
		Use:   "list",
		Short: "List reservation slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			list, err := slots.NewRepo(d).List(ctx, areaID, nil)
			if err != nil {
				return err
			}

			now := time.Now()
			for _, s := range list {
				fmt.Fprintf(os.Stdout, "%-6d %-20s %-25s %s\n", s.ID, s.AreaName, s.ScheduledAt.Format(time.RFC3339), s.State(now))
			}
			return nil
		},
	}

	c.Flags().Int64Var(&areaID, "area-id", 0, "filter by area")
	return c
}
