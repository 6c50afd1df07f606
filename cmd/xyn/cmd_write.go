package main

import (
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/xynclient/xyn/pkg/app"
)

var writeConfirmed bool

var writeCmd = &cobra.Command{
	Use:   "write [partition] [file]",
	Short: "Flash a file into a partition (destructive)",
	Long: `Write an image file into the named partition. Refuses to run without
--yes. Files ending in .xz are decompressed first. A transfer that fails
partway leaves the partition partially written; the completed byte count
is reported so you can decide how to recover.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New()
		if err != nil {
			return err
		}
		defer a.Close()

		start := time.Now()
		n, err := a.WritePartition(cmd.Context(), args[0], args[1], writeConfirmed, progressLogger("Flashing"))
		if err != nil {
			if n > 0 {
				glog.Errorf("Partition %q left partially written: %d bytes completed", args[0], n)
			}
			return err
		}
		took := time.Since(start)
		glog.Infof("Done! %d bytes in %ds (%d B/s)",
			n, int(took.Seconds()), int(float64(n)/took.Seconds()))
		return nil
	},
}
