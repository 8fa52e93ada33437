package cmd

import (
	"github.com/spf13/cobra"

	"github.com/andreyvit/couchview"
)

var deleteRev string

var deleteCmd = &cobra.Command{
	Use:   "delete <doc-id>",
	Short: "Delete a document",
	Long: `Store a deletion revision for a document. Its rows disappear from
every view on the next query.

Examples:
  couchview delete alice --rev 2-9bc1...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rev, err := db.Put(&couchview.PutRequest{
			DocID:     args[0],
			PrevRevID: deleteRev,
			Deleted:   true,
		})
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"ok": true, "id": rev.DocID, "rev": rev.RevID, "seq": rev.Sequence})
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().StringVar(&deleteRev, "rev", "", "current revision id of the document")
	deleteCmd.MarkFlagRequired("rev")
}
