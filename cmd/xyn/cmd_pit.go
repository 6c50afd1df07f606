package main

import (
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/xynclient/xyn/pkg/app"
)

var pitCmd = &cobra.Command{
	Use:   "pit [file]",
	Short: "Save the raw PIT blob to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New()
		if err != nil {
			return err
		}
		defer a.Close()

		cat, blob, err := a.RawPIT(cmd.Context())
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], blob, 0644); err != nil {
			return fmt.Errorf("could not write %s: %w", args[0], err)
		}
		glog.Infof("Wrote %d-byte PIT (%d partitions) to %s", len(blob), cat.Len(), args[0])
		return nil
	},
}
