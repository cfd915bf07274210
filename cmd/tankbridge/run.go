package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tankbridge/pkg/bridge"
	"tankbridge/pkg/config"
	"tankbridge/pkg/version"
)

// NewRunCommand runs the bridge daemon in the foreground.
func NewRunCommand() *cobra.Command {
	writeDefaultConfig := false

	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run the tankbridge daemon in the foreground",
		GroupID: gAdvanced,
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
			}).Info("tankbridge daemon starting")

			conf, err := config.NewFile(configPath)
			if err != nil {
				logrus.Fatalf("failed to parse config during startup: %v", err)
			}

			if writeDefaultConfig {
				if _, err := os.Stat(configPath); os.IsNotExist(err) {
					if err := conf.Save(); err != nil {
						logrus.Errorf("failed to write default config: %v", err)
					} else {
						logrus.Infof("wrote default config to %s", configPath)
					}
				}
			}

			return bridge.Run(conf, unixSocketPath)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&writeDefaultConfig, "write-default-config", false,
		"Write a default config file if none exists.")

	return cmd
}
