package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the storyva version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(Version)
		},
	})
}
