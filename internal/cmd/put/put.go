package put

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/duskdb/duskdb/internal/client"
	"github.com/duskdb/duskdb/internal/cmd/util"
)

func NewPutCmd() *cobra.Command {
	putCmd := &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Add or update a key-value pair in the database",
		Long: `Put stores a key and value in the database.

Arguments:
  key   - the row key
  value - the value to set for the key`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 2 {
				fmt.Println("Error: missing key or value")
				cmd.Usage()
				return
			}
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
			result, err := c.Put(ctx, args[0], []byte(args[1]))
			if err != nil {
				fmt.Println("ERROR:", err)
				return
			}
			fmt.Println(result)
		},
	}

	return putCmd
}
