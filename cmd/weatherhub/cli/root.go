package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/weatherhub/weatherhub/internal/config"
)

var (
	cfgFile    string
	appVersion string // reported by serve, mcp and version --short
)

// Execute creates the root command tree and runs it.
func Execute(info BuildInfo) error {
	return newRootCmd(info).Execute()
}

func newRootCmd(info BuildInfo) *cobra.Command {
	appVersion = info.Version
	cmd := &cobra.Command{
		Use:   "weatherhub",
		Short: "Weather history API with quota-metered keys",
		Long: `WeatherHub crawls daily weather history for Chinese cities, stores it in
SQLite or PostgreSQL and serves it over a REST API gated by quota-metered API
keys. Admins manage users, keys and runtime settings; AI agents can query and
analyse the data through the built-in MCP server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./weatherhub.yaml)")
	cmd.PersistentFlags().String("data-dir", "", "data directory for the SQLite database (default: ~/.weatherhub)")
	viper.BindPFlag("data_dir", cmd.PersistentFlags().Lookup("data-dir"))

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(info))
	cmd.AddCommand(newUserCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newMCPCmd())

	return cmd
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("weatherhub")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.weatherhub")
	}

	viper.ReadInConfig() // Ignore error - config file is optional
}
