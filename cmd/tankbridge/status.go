package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tankbridge/pkg/client"
)

var bold = color.New(color.Bold).SprintFunc()

func connStateText(state string) string {
	switch state {
	case "connected":
		return color.GreenString(state)
	case "connecting":
		return color.YellowString(state)
	default:
		return color.RedString(state)
	}
}

// NewStatusCommand reports the daemon's connection state, last readings,
// and the held setpoint.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of tankbridge",
		Long:    `Get the device connection state, the last telemetry sample, and the current setpoint.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			apiClient := client.NewClient(unixSocketPath)
			st, err := apiClient.GetStatus()
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			cmd.Println(bold("Device:"))
			cmd.Println("  Connection: " + connStateText(st.ConnectionState))
			cmd.Printf("  Last reading: upper=%.2f lower=%.2f pump=%d\n",
				st.LastReading.UpperDistance, st.LastReading.LowerDistance, st.LastReading.PumpRaw)

			cmd.Println(bold("Control:"))
			cmd.Printf("  Setpoint: %.1f%%\n", st.Setpoint)

			if st.LastSample != nil {
				s := st.LastSample
				cmd.Println(bold("Last push:"))
				cmd.Printf("  %s  PV=%.1f%%  CO=%.1f%%  lower=%.1f%%\n",
					s.Timestamp.Format("2006-01-02 15:04:05"),
					s.UpperPercent, s.PumpPercent, s.LowerPercent)
			}

			return nil
		},
	}
}
