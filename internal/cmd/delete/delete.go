package del

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/duskdb/duskdb/internal/client"
	"github.com/duskdb/duskdb/internal/cmd/util"
)

func NewDeleteCmd() *cobra.Command {
	deleteCmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key-value pair from the database",
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
			result, err := c.Delete(ctx, args[0])
			if err != nil {
				fmt.Println("ERROR:", err)
				return
			}
			fmt.Println(result)
		},
	}

	return deleteCmd
}
