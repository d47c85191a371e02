package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/warp/fuel-engine/reconcile"
	"github.com/warp/fuel-engine/tank"
)

// =============================================================================
// TANK COMMANDS
// =============================================================================

func newVolumeCmd() *cobra.Command {
	var (
		shape                           string
		diameter, length, width, height float64
	)
	cmd := &cobra.Command{
		Use:   "volume",
		Short: "Compute the nominal volume of a tank shape",
		Long: `Compute the nominal volume of a tank from its dimensions in meters.

Shapes and their dimensions:
  horizontal_cylinder  --diameter --length
  rectangular          --length --width --height
  capsule              --diameter --length (length includes both end caps)
  custom               no formula; use a calibration table instead`,
		RunE: func(cmd *cobra.Command, args []string) error {
			gj := tank.GeometryJSON{Shape: tank.Shape(shape), Dimensions: map[string]float64{}}
			set := func(name string, v float64) {
				if cmd.Flags().Changed(name) {
					gj.Dimensions[name] = v
				}
			}
			set("diameter", diameter)
			set("length", length)
			set("width", width)
			set("height", height)

			g, err := tank.DecodeGeometry(gj)
			if err != nil {
				return err
			}
			v, err := tank.NominalVolume(g)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %.3f m3 (%.0f L)\n", shape, v.CubicMeters, v.Liters())
			return nil
		},
	}
	cmd.Flags().StringVar(&shape, "shape", string(tank.ShapeHorizontalCylinder), "Tank shape")
	cmd.Flags().Float64Var(&diameter, "diameter", 0, "Diameter in meters")
	cmd.Flags().Float64Var(&length, "length", 0, "Length in meters")
	cmd.Flags().Float64Var(&width, "width", 0, "Width in meters")
	cmd.Flags().Float64Var(&height, "height", 0, "Height in meters")
	return cmd
}

func newDipCmd() *cobra.Command {
	var (
		tablePath string
		dip       float64
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "dip",
		Short: "Convert a dip reading to liters using a calibration CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := readTable(cmd, tablePath)
			if err != nil {
				return err
			}
			reading, err := tank.VolumeFromDip(table, dip)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(reading)
			}
			printDipReading(out, reading)
			return nil
		},
	}
	cmd.Flags().StringVar(&tablePath, "table", "-", "Calibration CSV file (- for stdin)")
	cmd.Flags().Float64Var(&dip, "dip", 0, "Dip reading in millimeters")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the reading as JSON")
	cmd.MarkFlagRequired("dip")
	return cmd
}

func newCSVCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csv",
		Short: "Calibration CSV helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Parse a calibration CSV and print the sorted table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			table, err := readTable(cmd, path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d points, capacity %.2f L\n", table.Len(), table.Capacity())
			return tank.WriteCSV(out, table)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "template",
		Short: "Print the sample calibration CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := io.WriteString(cmd.OutOrStdout(), tank.TemplateCSV)
			return err
		},
	})
	return cmd
}

func readTable(cmd *cobra.Command, path string) (tank.Table, error) {
	if path == "-" || path == "" {
		return tank.ParseCSV(cmd.InOrStdin())
	}
	f, err := os.Open(path)
	if err != nil {
		return tank.Table{}, err
	}
	defer f.Close()
	return tank.ParseCSV(f)
}

// =============================================================================
// RECONCILIATION COMMANDS
// =============================================================================

func newShiftCmd(st *cliState) *cobra.Command {
	var start, end, rate, cash, tolerance string
	cmd := &cobra.Command{
		Use:   "shift",
		Short: "Reconcile a shift's collected cash against meter readings",
		RunE: func(cmd *cobra.Command, args []string) error {
			tol, err := toleranceOrConfig(tolerance, st, true)
			if err != nil {
				return err
			}
			vals, err := parseDecimals(map[string]string{"start": start, "end": end, "rate": rate, "cash": cash})
			if err != nil {
				return err
			}
			endReading, collected := vals["end"], vals["cash"]
			sh := reconcile.Shift{
				StartReading:  vals["start"],
				EndReading:    &endReading,
				Rate:          vals["rate"],
				CashCollected: &collected,
			}
			rec, err := sh.Reconcile(tol)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "fuel dispensed:  %s L\n", rec.FuelDispensed)
			fmt.Fprintf(out, "expected cash:   %s\n", rec.ExpectedCash.StringFixed(2))
			fmt.Fprintf(out, "cash collected:  %s\n", rec.CashCollected.StringFixed(2))
			fmt.Fprintf(out, "difference:      %s\n", rec.Difference.StringFixed(2))
			if rec.WithinTolerance {
				fmt.Fprintf(out, "status:          within tolerance (±%s)\n", rec.Tolerance)
			} else {
				fmt.Fprintf(out, "status:          DISCREPANCY (tolerance ±%s)\n", rec.Tolerance)
			}
			st.logger.Debug("shift reconciled", zapDecimal("difference", rec.Difference))
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "Start meter reading (liters)")
	cmd.Flags().StringVar(&end, "end", "", "End meter reading (liters)")
	cmd.Flags().StringVar(&rate, "rate", "", "Price per liter")
	cmd.Flags().StringVar(&cash, "cash", "", "Cash collected")
	cmd.Flags().StringVar(&tolerance, "tolerance", "", "Override the configured shift tolerance")
	for _, f := range []string{"start", "end", "rate", "cash"} {
		cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newSaleCmd(st *cliState) *cobra.Command {
	var liters, price, total, tolerance string
	cmd := &cobra.Command{
		Use:   "sale",
		Short: "Check a sale's total against liters times price",
		RunE: func(cmd *cobra.Command, args []string) error {
			tol, err := toleranceOrConfig(tolerance, st, false)
			if err != nil {
				return err
			}
			vals, err := parseDecimals(map[string]string{"liters": liters, "price": price, "total": total})
			if err != nil {
				return err
			}
			sale := reconcile.Sale{Liters: vals["liters"], Price: vals["price"], TotalAmount: vals["total"]}
			rec, err := sale.Reconcile(tol)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "expected amount: %s\n", rec.ExpectedAmount.StringFixed(2))
			fmt.Fprintf(out, "total amount:    %s\n", rec.TotalAmount.StringFixed(2))
			fmt.Fprintf(out, "difference:      %s\n", rec.Difference.StringFixed(2))
			if rec.HasDiscrepancy {
				fmt.Fprintf(out, "status:          DISCREPANCY (tolerance ±%s)\n", rec.Tolerance)
			} else {
				fmt.Fprintf(out, "status:          ok (±%s)\n", rec.Tolerance)
			}
			st.logger.Debug("sale reconciled", zapDecimal("difference", rec.Difference))
			return nil
		},
	}
	cmd.Flags().StringVar(&liters, "liters", "", "Liters sold")
	cmd.Flags().StringVar(&price, "price", "", "Price per liter")
	cmd.Flags().StringVar(&total, "total", "", "Total amount charged")
	cmd.Flags().StringVar(&tolerance, "tolerance", "", "Override the configured sales tolerance")
	for _, f := range []string{"liters", "price", "total"} {
		cmd.MarkFlagRequired(f)
	}
	return cmd
}

func printDipReading(out io.Writer, reading tank.DipReading) {
	fmt.Fprintf(out, "%.1f mm -> %.2f L\n", reading.DipMM, reading.Liters)
	if reading.OutOfRange {
		fmt.Fprintf(out, "warning: dip outside calibrated range (%s), value clamped\n", reading.Bound)
	}
}

func toleranceOrConfig(flag string, st *cliState, shift bool) (decimal.Decimal, error) {
	if flag != "" {
		tol, err := decimal.NewFromString(flag)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("--tolerance: %w", err)
		}
		if err := reconcile.CheckTolerance(tol); err != nil {
			return decimal.Decimal{}, fmt.Errorf("--tolerance: %w", err)
		}
		return tol, nil
	}
	tols, err := st.cfg.Tolerances()
	if err != nil {
		return decimal.Decimal{}, err
	}
	if shift {
		return tols.Shift, nil
	}
	return tols.Sales, nil
}

func parseDecimals(raw map[string]string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(raw))
	for name, s := range raw {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", name, err)
		}
		out[name] = d
	}
	return out, nil
}
