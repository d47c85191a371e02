package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/fuel-engine/client"
	"github.com/warp/fuel-engine/tank"
)

func newRemoteCmd(st *cliState) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Query a running fuel engine",
		Long: `Query a running fuel engine over its REST API.

The server address comes from FUEL_API_URL (or client.base_url in the
config file). Mutating calls send FUEL_API_TOKEN as a bearer token.`,
	}
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	var withClient clientRunner = func(run func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			st.logger.Debug("calling fuel api", zap.String("base_url", st.cfg.Client.BaseURL))
			return run(ctx, cmd, client.New(st.cfg.Client), args)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check that the engine and its database answer",
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, _ []string) error {
			if err := c.Health(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "tanks",
		Short: "List tanks with their shape and calibration size",
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, _ []string) error {
			tanks, err := c.ListTanks(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TANK\tNAME\tFUEL\tSHAPE\tPOINTS\tLITERS")
			for _, t := range tanks {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.0f\n",
					t.ID, t.Name, t.FuelType, t.Geometry.Shape, t.CalibrationPoints, t.CurrentStockLiters)
			}
			return tw.Flush()
		}),
	})

	cmd.AddCommand(newRemoteDipCmd(withClient))

	cmd.AddCommand(&cobra.Command{
		Use:   "digest",
		Short: "Show flagged shifts, sales and low-stock tanks",
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, _ []string) error {
			d, err := c.Digest(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(d.Shifts)+len(d.Sales)+len(d.Stock) == 0 {
				fmt.Fprintln(out, "nothing flagged")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, s := range d.Shifts {
				diff := "-"
				if s.Reconciliation != nil {
					diff = s.Reconciliation.Difference.StringFixed(2)
				}
				fmt.Fprintf(tw, "shift\t%s\t%s\tdiff %s\n", s.ID, s.Nozzleman, diff)
			}
			for _, s := range d.Sales {
				diff := "-"
				if s.Reconciliation != nil {
					diff = s.Reconciliation.Difference.StringFixed(2)
				}
				fmt.Fprintf(tw, "sale\t%s\t%s\tdiff %s\n", s.ID, s.FuelType, diff)
			}
			for _, s := range d.Stock {
				fmt.Fprintf(tw, "stock\t%s\t%s\t%s %.1f%%\n", s.TankID, s.Name, s.Status.Level, s.Status.PercentFull)
			}
			return tw.Flush()
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stock",
		Short: "Show stock levels for every tank",
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, _ []string) error {
			report, err := c.StockReport(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TANK\tNAME\tFUEL\tLITERS\tFULL\tLEVEL")
			for _, s := range report {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f\t%.1f%%\t%s\n",
					s.TankID, s.Name, s.FuelType, s.Status.CurrentLiters, s.Status.PercentFull, s.Status.Level)
			}
			return tw.Flush()
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import <tank-id> <file.csv>",
		Short: "Replace a tank's calibration table with a CSV file",
		Args:  cobra.ExactArgs(2),
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			cal, err := c.ImportCalibration(ctx, args[0], string(data))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d points into %s\n", len(cal.Points), args[0])
			return nil
		}),
	})

	return cmd
}

type clientRunner func(run func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error) func(*cobra.Command, []string) error

func newRemoteDipCmd(withClient clientRunner) *cobra.Command {
	var record bool
	cmd := &cobra.Command{
		Use:   "dip <tank-id> <dip-mm>",
		Short: "Convert a dip using the tank's stored calibration",
		Long: `Convert a dip using the tank's stored calibration table.

With --record the result becomes the tank's current stock. Recording is a
change, so it needs FUEL_API_TOKEN when the server has auth enabled.`,
		Args: cobra.ExactArgs(2),
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
			dip, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("dip-mm: %w", err)
			}
			var reading tank.DipReading
			if record {
				reading, err = c.RecordDip(ctx, args[0], dip)
			} else {
				reading, err = c.LookupDip(ctx, args[0], dip)
			}
			if err != nil {
				return err
			}
			printDipReading(cmd.OutOrStdout(), reading)
			if record {
				fmt.Fprintf(cmd.OutOrStdout(), "recorded as stock of %s\n", args[0])
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&record, "record", false, "Store the result as the tank's current stock")
	return cmd
}

func zapDecimal(key string, d decimal.Decimal) zap.Field {
	return zap.String(key, d.String())
}
