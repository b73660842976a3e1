// seismod - networked digital seismograph daemon
//
//	seismod run                 Run the detection daemon
//	seismod calibrate           Run sensor calibration and print the result
//	seismod simulate -r 4.0     Synthesize one seismic event
//	seismod status              Print the status of a running daemon
package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "seismod",
		Short:   "networked digital seismograph daemon",
		Version: version,
		Long: `seismod samples a tri-axial accelerometer at high rate, detects and
classifies seismic events with an STA/LTA trigger, persists annotated
event records, and pushes live data to dashboards and an MQTT broker.`,
		SilenceUsage: true,
	}

	var configPath string
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the detection daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), configPath)
		},
	}

	calibrateCmd := &cobra.Command{
		Use:   "calibrate",
		Short: "run sensor calibration and print the offsets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCalibrate(cmd.Context(), configPath)
		},
	}

	var richter float64
	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "synthesize one seismic event through the full pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulate(cmd.Context(), configPath, richter)
		},
	}
	simulateCmd.Flags().Float64VarP(&richter, "richter", "r", 4.0, "Richter magnitude to simulate")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "print the status of a running daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(configPath)
		},
	}

	root.AddCommand(runCmd, calibrateCmd, simulateCmd, statusCmd)

	if err := fang.Execute(context.Background(), root); err != nil {
		os.Exit(1)
	}
}
