package main

import (
	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/xynclient/xyn/pkg/app"
)

var rebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Reboot the device out of download mode",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Reboot(cmd.Context()); err != nil {
			return err
		}
		glog.Infof("Reboot requested")
		return nil
	},
}
