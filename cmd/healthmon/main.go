// Command healthmon runs the continuous health monitoring daemon and talks to
// a running daemon over its control socket.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/denster32/HealthAI-2030-sub022/internal/config"
)

var version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "healthmon",
	Short: "Continuous physiological monitoring engine",
	Long: `healthmon samples health metrics on a fixed cadence, detects anomalies,
raises deduplicated alerts and selects interventions that adapt to how well
past interventions worked.

Run the daemon with 'healthmon run'. The other commands talk to a running
daemon over its control socket.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger(viper.GetString("log_level"), viper.GetString("log_file"))
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeLogger()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "healthmon.yaml", "Path to the YAML configuration file")
	flags.String("socket", "", "Control socket path (default from config)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-file", "", "Also append logs to this file")

	// Flags win over HEALTHMON_* environment variables, which win over defaults
	viper.SetEnvPrefix(strings.TrimSuffix(config.EnvPrefix, "_"))
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for _, name := range []string{"config", "socket", "log-level", "log-file"} {
		_ = viper.BindPFlag(strings.ReplaceAll(name, "-", "_"), flags.Lookup(name))
	}

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the healthmon version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("healthmon %s\n", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
