package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	apiURL  string
	dataDir string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "blogsession",
	Short: "Manage the blog sign-in session from the command line",
	Long: `blogsession drives the blog's authentication lifecycle: sign in (with the
email second factor when the account requires it), inspect and extend the
current session, browse as guest, and sign out. Session state is shared
through a local database, so a sign-out here is observed by every other
process using the same state directory.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func Execute() {
	// A .env alongside the binary is a convenience, not a requirement.
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "Base URL of the blog API (default $BLOG_API_URL)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory for shared session state (default ~/.blogsession)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}
