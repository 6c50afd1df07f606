package main

import (
	"github.com/golang/glog"

	"github.com/xynclient/xyn/pkg/transfer"
)

// progressLogger logs transfer progress roughly every 5%, plus the final
// event.
func progressLogger(verb string) transfer.Option {
	var lastPct uint64
	return transfer.WithProgress(func(p transfer.Progress) {
		if p.Total == 0 {
			return
		}
		pct := p.Done * 100 / p.Total
		if pct < lastPct+5 && p.Done != p.Total {
			return
		}
		lastPct = pct
		glog.Infof("%s... %d/%d bytes (%d%%)", verb, p.Done, p.Total, pct)
	})
}
