package cmd

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/andreyvit/couchview"
)

var (
	putRev    string
	putAttach []string
	putDetach []string
)

var putCmd = &cobra.Command{
	Use:   "put <doc-id> <json>",
	Short: "Create or update a document",
	Long: `Store a new revision of a document. Updating an existing document
requires its current revision id.

Examples:
  couchview put alice '{"name": "Alice", "age": 31}'
  couchview put alice '{"name": "Alice", "age": 32}' --rev 1-3f2a...
  couchview put alice '{"name": "Alice"}' --rev 2-9bc1... --attach photo=./alice.jpg`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var body map[string]any
		dec := json.NewDecoder(strings.NewReader(args[1]))
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			return fmt.Errorf("invalid document JSON: %w", err)
		}
		req := &couchview.PutRequest{
			DocID:     args[0],
			PrevRevID: putRev,
			Body:      body,
		}
		if len(putAttach) > 0 || len(putDetach) > 0 {
			req.Attachments = make(map[string]*couchview.AttachmentInput)
		}
		for _, spec := range putAttach {
			name, path, ok := strings.Cut(spec, "=")
			if !ok {
				return fmt.Errorf("invalid --attach %q, want name=path", spec)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			req.Attachments[name] = &couchview.AttachmentInput{
				ContentType: mime.TypeByExtension(filepath.Ext(path)),
				Data:        data,
			}
		}
		for _, name := range putDetach {
			req.Attachments[name] = nil
		}

		rev, err := db.Put(req)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"ok": true, "id": rev.DocID, "rev": rev.RevID, "seq": rev.Sequence})
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
	putCmd.Flags().StringVar(&putRev, "rev", "", "current revision id of the document")
	putCmd.Flags().StringArrayVar(&putAttach, "attach", nil, "add an attachment from a file (name=path)")
	putCmd.Flags().StringArrayVar(&putDetach, "detach", nil, "remove an attachment by name")
}
