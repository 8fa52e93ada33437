package cmd

import (
	"fmt"
	"log/slog"
	"os"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/andreyvit/couchview"
	"github.com/andreyvit/couchview/internal/config"
)

var (
	dbPath  string
	backend string
	verbose bool
	db      *couchview.DB
)

var rootCmd = &cobra.Command{
	Use:   "couchview",
	Short: "Incremental map views over a document revision log",
	Long: `couchview stores JSON documents as a revision log and maintains
incrementally updated map views over them.

Views are defined on the command line by the document field to use as
the key (and optionally the value). A view is brought up to date
whenever it is queried.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for help commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if err := config.ValidateBackend(backend); err != nil {
			return err
		}
		var err error
		db, err = openDB()
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if db == nil {
			return nil
		}
		err := db.Close()
		db = nil
		return err
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", config.DBPath(), "path to the database file")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", config.Backend(), "storage backend (bolt or sqlite)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log indexing details")
}

func openDB() (*couchview.DB, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opt := couchview.Options{
		Logger:  slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
		Verbose: verbose,
	}
	switch backend {
	case config.BackendSQLite:
		return couchview.OpenSQLite(dbPath, opt)
	default:
		return couchview.Open(dbPath, opt)
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// fieldView registers the named view with a field-based map function.
func fieldView(name, keyField, valueField string) (*couchview.View, error) {
	if keyField == "" {
		return nil, fmt.Errorf("--key-field is required")
	}
	view := db.ViewNamed(name)
	fn, version := couchview.EmitField(keyField, valueField)
	changed, err := view.SetMap(fn, version)
	if err != nil {
		return nil, err
	}
	if changed && verbose {
		fmt.Fprintf(os.Stderr, "view %s: definition changed, rebuilding\n", name)
	}
	return view, nil
}
