package main

import (
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/xynclient/xyn/pkg/app"
)

var readCmd = &cobra.Command{
	Use:   "read [partition] [file]",
	Short: "Dump a partition to a file",
	Long:  "Read a partition from a connected device and write its contents to a file. Not very fast over the native path.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New()
		if err != nil {
			return err
		}
		defer a.Close()

		start := time.Now()
		n, err := a.ReadPartition(cmd.Context(), args[0], args[1], progressLogger("Reading"))
		if err != nil {
			return err
		}
		took := time.Since(start)
		glog.Infof("Done! %d bytes in %ds (%d B/s)",
			n, int(took.Seconds()), int(float64(n)/took.Seconds()))
		return nil
	},
}
