package cmd

import (
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <view>",
	Short: "Print a view's checkpoint and row counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		view := db.ViewNamed(args[0])
		stats, err := view.Stats()
		if err != nil {
			return err
		}
		id, err := view.ID()
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"view":          view.Name(),
			"id":            id,
			"version":       stats.Version,
			"last_sequence": stats.LastSequence,
			"rows":          stats.Rows,
			"sequences":     stats.Sequences,
		})
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
