package get

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/duskdb/duskdb/internal/client"
	"github.com/duskdb/duskdb/internal/cmd/util"
)

func NewGetCmd() *cobra.Command {
	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Retrieve a value by key from the database",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 1 {
				fmt.Println("Error: missing key")
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
			result, err := c.Get(ctx, args[0])
			if err != nil {
				fmt.Println("ERROR:", err)
				return
			}
			fmt.Println(result)
		},
	}

	return getCmd
}
