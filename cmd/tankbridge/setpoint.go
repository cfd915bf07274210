package main

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tankbridge/pkg/client"
)

// NewSetpointCommand gets or overrides the setpoint held by the daemon.
func NewSetpointCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "setpoint",
		Short:   "Get or set the control setpoint",
		GroupID: gBasic,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Get the setpoint the daemon currently holds",
			RunE: func(cmd *cobra.Command, _ []string) error {
				v, err := client.NewClient(unixSocketPath).GetSetpoint()
				if err != nil {
					return fmt.Errorf("failed to get setpoint: %w", err)
				}
				cmd.Printf("%.1f\n", v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set [percent]",
			Short: "Override the setpoint locally (0-100)",
			Long: `Override the setpoint locally. The daemon relays the value to the device
immediately, the same way a remotely pulled change would be. A later remote
change overrides this one again.`,
			RunE: func(_ *cobra.Command, args []string) error {
				if len(args) != 1 {
					return fmt.Errorf("invalid number of arguments")
				}
				v, err := strconv.ParseFloat(args[0], 64)
				if err != nil {
					return fmt.Errorf("invalid setpoint: %v", err)
				}

				ret, err := client.NewClient(unixSocketPath).SetSetpoint(v)
				if err != nil {
					return fmt.Errorf("failed to set setpoint: %w", err)
				}
				if ret != "" {
					logrus.Infof("daemon responded: %s", ret)
				}
				return nil
			},
		},
	)

	return cmd
}
