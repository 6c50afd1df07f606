package main

import (
	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/xynclient/xyn/pkg/app"
)

var eraseConfirmed bool

var eraseCmd = &cobra.Command{
	Use:   "erase [partition]",
	Short: "Erase a partition (destructive)",
	Long:  "Erase the named partition's entire block range. Refuses to run without --force.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ErasePartition(cmd.Context(), args[0], eraseConfirmed); err != nil {
			return err
		}
		glog.Infof("Erased %q", args[0])
		return nil
	},
}
