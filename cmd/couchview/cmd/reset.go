package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset <view>",
	Short: "Delete a view's rows, keeping its definition",
	Long: `Delete every row of a view and reset its checkpoint. The next query
rebuilds it from the whole revision log.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := db.ViewNamed(args[0]).RemoveIndex(); err != nil {
			return err
		}
		fmt.Printf("Reset view %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
