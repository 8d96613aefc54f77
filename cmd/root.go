package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	version string
	baseDir string
)

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "pos",
	Short: "Point-of-sale and inventory CLI for a small bookshop",
	Long: `pos - an offline-first point-of-sale and inventory client.

Catalog, sales and reports work against a remote inventory server when
reachable and fall back to a local cache when not; writes made offline are
queued and replayed automatically once connectivity returns.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// getBaseDir resolves the working directory holding the local database:
// --dir flag, POS_DIR env var, then the current directory.
func getBaseDir() string {
	if baseDir != "" {
		return baseDir
	}
	if dir := os.Getenv("POS_DIR"); dir != "" {
		return dir
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}

// addJSONFlag registers the shared --json output flag on a flag set.
func addJSONFlag(fs *pflag.FlagSet) {
	fs.Bool("json", false, "Output as JSON")
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseDir, "dir", "", "Base directory for the local database (default: current directory)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "catalog", Title: "Catalog Commands:"},
		&cobra.Group{ID: "sales", Title: "Sales Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)
}
