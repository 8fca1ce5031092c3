package main

import (
	"github.com/duskdb/duskdb/internal/cmd"
	del "github.com/duskdb/duskdb/internal/cmd/delete"
	"github.com/duskdb/duskdb/internal/cmd/get"
	"github.com/duskdb/duskdb/internal/cmd/put"
	"github.com/duskdb/duskdb/internal/cmd/scan"
	"github.com/duskdb/duskdb/internal/cmd/stats"
)

func main() {
	root := cmd.NewDuskDBCmd()
	root.AddCommand(
		put.NewPutCmd(),
		get.NewGetCmd(),
		del.NewDeleteCmd(),
		scan.NewScanCmd(),
		stats.NewStatsCmd(),
	)
	root.Execute()
}
