package cmd

import (
	"fmt"
	"os"

	"maimai-scraper/internal/config"
	"maimai-scraper/internal/i18n"
	"maimai-scraper/pkg/apppath"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(initConfigCmd)
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Writes a default configuration file if there is none.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := apppath.ResolvePath(configPath)
		if err != nil {
			return err
		}
		created, err := config.WriteDefault(path)
		if err != nil {
			return err
		}
		if !created {
			fmt.Fprintf(os.Stdout, "%s already exists\n", path)
			return nil
		}
		fmt.Fprintln(os.Stdout, i18n.New("en").T(i18n.ConfigCreated))
		fmt.Fprintln(os.Stdout, path)
		return nil
	},
}
