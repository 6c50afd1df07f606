package main

import (
	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/xynclient/xyn/pkg/app"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect a connected device in download mode",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Detect(cmd.Context()); err != nil {
			return err
		}
		glog.Infof("Device %s answers download-mode traffic (helper: %v)",
			a.Desc.Family, a.HelperAvailable())
		return nil
	},
}
