/*
main.go - fuelctl, the operator command line

PURPOSE:
  Runs the tank and reconciliation calculators locally (no server needed)
  and talks to a running engine for digests, stock and calibration uploads.

COMMANDS:
  volume                 Nominal volume of a tank shape
  dip                    Dip-to-liters lookup against a CSV calibration file
  csv validate|template  Check a calibration CSV or print the sample
  shift                  Shift cash reconciliation
  sale                   Sale amount reconciliation
  token                  Sign an API token with the configured JWT secret
  remote health|tanks|dip|digest|stock|import
                         Calls the REST API (FUEL_API_URL, FUEL_API_TOKEN)

EXAMPLES:
  fuelctl volume --shape horizontal_cylinder --diameter 2 --length 10
  fuelctl dip --table tank1.csv --dip 150
  fuelctl shift --start 1000 --end 1500 --rate 100 --cash 49985
  fuelctl token --subject priya
  fuelctl remote dip diesel-1 1500 --record
  fuelctl remote digest

SEE ALSO:
  - tank/: Geometry, calibration and CSV
  - reconcile/: Shift and sale calculators
  - client/: REST client used by remote commands
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/fuel-engine/config"
	"github.com/warp/fuel-engine/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cliState is shared by all subcommands of one root command.
type cliState struct {
	configPath string
	verbose    bool
	cfg        config.Config
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	st := &cliState{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "fuelctl",
		Short:         "Fuel station tank and reconciliation tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(st.configPath)
			if err != nil {
				return err
			}
			st.cfg = cfg
			if st.verbose {
				logger, err := logging.New("debug")
				if err != nil {
					return err
				}
				st.logger = logger
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&st.configPath, "config", "", "YAML config file")
	root.PersistentFlags().BoolVarP(&st.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newVolumeCmd())
	root.AddCommand(newDipCmd())
	root.AddCommand(newCSVCmd())
	root.AddCommand(newShiftCmd(st))
	root.AddCommand(newSaleCmd(st))
	root.AddCommand(newTokenCmd(st))
	root.AddCommand(newRemoteCmd(st))
	return root
}
