package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xynclient/xyn/pkg/app"
	"github.com/xynclient/xyn/pkg/devices"
	"github.com/xynclient/xyn/pkg/pit"
	"github.com/xynclient/xyn/pkg/pitcache"
)

var partitionsCached bool

var partitionsCmd = &cobra.Command{
	Use:   "partitions",
	Short: "List the device partition table",
	Long:  "Fetch the PIT from a connected device and print every entry in table order. With --cached, print the last table fetched from this device family without touching the device.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var cat *pit.Catalog
		if partitionsCached {
			var err error
			cat, err = cachedCatalog()
			if err != nil {
				return err
			}
		} else {
			a, err := app.New()
			if err != nil {
				return err
			}
			defer a.Close()
			cat, err = a.PIT(cmd.Context())
			if err != nil {
				return err
			}
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 8, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tID\tSTART\tBLOCKS\tWRITABLE\tFLASH FILE")
		for _, e := range cat.List() {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%v\t%s\n",
				e.Name, e.Identifier, e.StartBlock, e.BlockCount, e.Writable(), e.FlashFilename)
		}
		return w.Flush()
	},
}

func cachedCatalog() (*pit.Catalog, error) {
	for _, desc := range devices.Descriptions {
		blob, err := pitcache.Load(desc.PID)
		if err != nil {
			continue
		}
		return pit.Parse(blob)
	}
	return nil, fmt.Errorf("no cached PIT; run partitions with a device attached first")
}
