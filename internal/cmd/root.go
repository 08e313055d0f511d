// Package cmd implements the opcoord command line.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/opcoord/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "opcoord",
	Short: "Coordinate independently submitted asynchronous operations",
	Long: `opcoord runs workloads of asynchronous operations through a coordinating
executor: mutually exclusive operations never overlap, observers see every
lifecycle event exactly once, a debounced activity indicator coalesces
bursts, and in-flight work holds an execution grant while the host is in
the background.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/opcoord/config.yaml)")
}

// bindFlags connects command-line flags to their configuration keys.
func bindFlags() {
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("tui.enabled", runCmd.Flags().Lookup("tui"))
	_ = viper.BindPFlag("executor.max_concurrent", runCmd.Flags().Lookup("max-concurrent"))
	_ = viper.BindPFlag("contracts.strict", runCmd.Flags().Lookup("strict"))
}

func initConfig() {
	bindFlags()

	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(config.EnvPrefix)
	// e.g., OPCOORD_EXECUTOR_MAX_CONCURRENT for executor.max_concurrent
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
