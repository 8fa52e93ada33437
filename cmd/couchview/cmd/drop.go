package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dropCmd = &cobra.Command{
	Use:   "drop <view>",
	Short: "Delete a view and its rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := db.ViewNamed(args[0]).DeleteView(); err != nil {
			return err
		}
		fmt.Printf("Deleted view %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dropCmd)
}
