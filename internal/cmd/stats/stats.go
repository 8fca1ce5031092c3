package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/duskdb/duskdb/internal/client"
	"github.com/duskdb/duskdb/internal/cmd/util"
)

func NewStatsCmd() *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show server operation counters and per-level run counts",
		Run: func(cmd *cobra.Command, args []string) {
			address, err := util.GetAddress(cmd.Flags())
			if err != nil {
				fmt.Println("ERROR: invalid address:", err)
				return
			}
			c, err := client.Dial(address)
			if err != nil {
				fmt.Println("ERROR: failed to connect to server:", err)
				return
			}
			defer c.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			result, err := c.Stats(ctx)
			if err != nil {
				fmt.Println("ERROR:", err)
				return
			}
			fmt.Println(result)
		},
	}
	return statsCmd
}
