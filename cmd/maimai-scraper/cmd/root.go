package cmd

import (
	"fmt"
	"os"

	"maimai-scraper/pkg/serviceutil"

	"github.com/spf13/cobra"
)

var (
	configPath string
	dbPath     string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "maimai-scraper",
	Short: "maimai-scraper keeps a local database of your maimai DX play records.",
	Long: "maimai-scraper logs into the maimai DX player portal and polls the recent records page, " +
		"every new play is stored along with its detail page.",
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		runPoller(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "<app>/config.env", "Path to the configuration file.")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "<app>/maimai_data.db", "Path to the database file, or a libsql:// url.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging/instrumentation.")
}

func Execute() {
	ctx := serviceutil.SignalContext()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
