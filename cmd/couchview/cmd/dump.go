package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andreyvit/couchview"
)

var dumpCmd = &cobra.Command{
	Use:   "dump [view]",
	Short: "Print raw index rows",
	Long: `Print the stored rows of a view without updating it, or of every view
when no name is given. With --key-field, the view is updated first.

Examples:
  couchview dump
  couchview dump by-age
  couchview dump by-age --key-field age`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return db.Read(func(tx *couchview.Tx) error {
				fmt.Print(tx.Dump(couchview.DumpAll))
				return nil
			})
		}
		view := db.ViewNamed(args[0])
		if keyField != "" {
			var err error
			if view, err = fieldView(args[0], keyField, valueField); err != nil {
				return err
			}
			if _, err := view.UpdateIndex(); err != nil {
				return err
			}
		}
		rows, err := view.Dump()
		if err != nil {
			return err
		}
		for _, r := range rows {
			fmt.Printf("%d\t%s\t%s\n", r.Seq, r.Key, r.Value)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	addFieldFlags(dumpCmd)
}
