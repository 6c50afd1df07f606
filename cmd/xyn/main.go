package main

import (
	"flag"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootCmd = &cobra.Command{
	Use:   "xyn",
	Short: "xyn inspects and flashes Exynos devices in download mode",
	Long: `Talks to Samsung Exynos devices halted in download (ODIN) mode over USB:
lists the device partition table, dumps partitions to files, and flashes
or erases them.

Flashing the wrong partition can permanently brick a device. Destructive
commands refuse to run without an explicit confirmation flag, and are
delegated to a locally installed heimdall binary when one is available.`,
	SilenceUsage: true,
}

func main() {
	partitionsCmd.Flags().BoolVar(&partitionsCached, "cached", false, "List from the on-disk PIT cache instead of the device")
	writeCmd.Flags().BoolVarP(&writeConfirmed, "yes", "y", false, "Confirm flashing (destructive)")
	eraseCmd.Flags().BoolVar(&eraseConfirmed, "force", false, "Confirm erasing (destructive)")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(partitionsCmd)
	rootCmd.AddCommand(pitCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(eraseCmd)
	rootCmd.AddCommand(rebootCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
}
