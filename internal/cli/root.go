// Package cli wires command-line parsing to the load pipeline.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sisyphus",
	Short: "Bulk-load delimited files into PostgreSQL",
	Long: `sisyphus uploads a directory of delimited text files into matching tables
of a PostgreSQL database. Table names are derived from file names, columns
are coerced to the destination schema's types, and files are uploaded
concurrently in bounded-size batches. Optional SQL scripts run before and
after the upload phase, e.g. to drop and recreate constraints.

Exit Codes:
  0  - Success
  1  - General error
  2  - CLI usage error (invalid arguments or flags)
  3  - Panic or unexpected system error
  10 - Invalid configuration or parameters
  11 - Database connection failed
  13 - Pre- or post-script execution failed
  14 - Load plan resolution failed (missing file, pattern or table)
  15 - One or more file uploads failed`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		printVersionInfo()
		return nil
	}
	return rootCmd.Execute()
}

func init() {
	// Register --help manually so -h stays free for --host, matching the
	// psql convention.
	rootCmd.PersistentFlags().Bool("help", false, "Help for sisyphus")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output for all commands")
}

// getVerboseFlag safely retrieves the verbose flag value
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to get verbose flag: %v\n", err)
		return false
	}
	return verbose
}
