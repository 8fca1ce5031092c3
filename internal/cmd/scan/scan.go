package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/duskdb/duskdb/internal/client"
	"github.com/duskdb/duskdb/internal/cmd/util"
)

func NewScanCmd() *cobra.Command {
	var lo, hi string
	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "List keys in [--lo, --hi], or the whole database if both are omitted",
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

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			result, err := c.Scan(ctx, lo, hi)
			if err != nil {
				fmt.Println("ERROR:", err)
				return
			}
			fmt.Print(result)
		},
	}
	scanCmd.Flags().StringVar(&lo, "lo", "", "inclusive lower bound (omit for open)")
	scanCmd.Flags().StringVar(&hi, "hi", "", "inclusive upper bound (omit for open)")
	return scanCmd
}
