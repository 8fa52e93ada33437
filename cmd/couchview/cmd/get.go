package cmd

import (
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <doc-id>",
	Short: "Print the current revision of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := db.Get(args[0])
		if err != nil {
			return err
		}
		return printJSON(doc)
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
