package cmd

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/andreyvit/couchview"
)

var (
	keyField   string
	valueField string

	queryOpts     couchview.QueryOptions
	queryStartKey string
	queryEndKey   string
)

var queryCmd = &cobra.Command{
	Use:   "query <view>",
	Short: "Update a view and print its rows",
	Long: `Bring the view up to date and print its rows as JSON.

The view emits the value of --key-field as the key of every document that
has it, and the value of --value-field (or null) as the value. Changing the
fields rebuilds the view.

Examples:
  couchview query by-age --key-field age
  couchview query by-age --key-field age --value-field name --descending --limit 10
  couchview query by-age --key-field age --start-key 18 --end-key 65 --include-docs`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := fieldView(args[0], keyField, valueField)
		if err != nil {
			return err
		}
		opts := queryOpts
		if opts.StartKey, err = parseKeyFlag("start-key", queryStartKey); err != nil {
			return err
		}
		if opts.EndKey, err = parseKeyFlag("end-key", queryEndKey); err != nil {
			return err
		}
		result, err := view.Query(&opts)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func parseKeyFlag(name, raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("invalid --%s JSON: %w", name, err)
	}
	return v, nil
}

func addFieldFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&keyField, "key-field", "", "document field emitted as the key (dot-separated path)")
	cmd.Flags().StringVar(&valueField, "value-field", "", "document field emitted as the value")
}

func init() {
	rootCmd.AddCommand(queryCmd)
	addFieldFlags(queryCmd)
	f := queryCmd.Flags()
	f.IntVar(&queryOpts.Limit, "limit", 0, "maximum number of rows (0 for all)")
	f.IntVar(&queryOpts.Skip, "skip", 0, "number of rows to skip")
	f.BoolVar(&queryOpts.Descending, "descending", false, "reverse key order")
	f.BoolVar(&queryOpts.IncludeDocs, "include-docs", false, "include document bodies")
	f.BoolVar(&queryOpts.UpdateSeq, "update-seq", false, "report the sequence the view reflects")
	f.BoolVar(&queryOpts.ExclusiveEnd, "exclusive-end", false, "exclude rows matching --end-key")
	f.StringVar(&queryStartKey, "start-key", "", "first key to return (JSON)")
	f.StringVar(&queryEndKey, "end-key", "", "last key to return (JSON)")
}
