package cmd

import (
	"fmt"
	"os"
	"strings"

	"fleet-reconciliation-service/cmd/reconciler/config"
	"fleet-reconciliation-service/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the CLI reads.
const EnvPrefix = "FLEETREC"

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Fleet rental reconciliation tool",
	Long: `Reconciler compares a fleet tracker's vehicle records with a rental
vendor's export for one or more disaster-relief deployments. Every vendor
row is classified as a full, partial or missing match, and rows the vendor
does not list are added so both sides can be audited.

Settings can come from flags, a YAML config file (--config) or environment
variables prefixed with FLEETREC_ (read from .env and .env.local as well).

Examples:
  reconciler reconcile --deployments 155-22 --tracker-file vehicles.json --vendor-open-file open.csv
  reconciler reconcile --data-dir ./exports --output-format json --output-file report.json
  reconciler stats --tracker-file vehicles.json --roster-file roster.csv --groups ALL,DST
  reconciler deployments`,
	Version:       getVersionString(),
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("registry", "", "deployments YAML file (default: built-in deployments)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text, json (default text, json with --log-file)")
	rootCmd.PersistentFlags().String("log-file", "", "append logs to this file instead of stderr")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("registry", rootCmd.PersistentFlags().Lookup("registry"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))
}

// initConfig reads in .env files, the config file and ENV variables.
func initConfig() {
	loadEnvFiles(".env", ".env.local")

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)

		// If a config file is specified, read it in.
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(4)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	// Read environment variables that match, FLEETREC_OUTPUT_FORMAT for
	// output-format.
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

// loadEnvFiles loads each file that exists. Later files override earlier
// ones; variables already set in the process environment are kept.
func loadEnvFiles(files ...string) {
	var existing []string
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return
	}

	env, err := godotenv.Read(existing...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to read env files: %v\n", err)
		return
	}
	for key, value := range env {
		if _, set := os.LookupEnv(key); !set {
			os.Setenv(key, value)
		}
	}
}

// setupLogging installs the global logger from the logging flags.
func setupLogging() error {
	logConfig := config.CreateLoggerConfig(
		viper.GetBool("verbose"),
		viper.GetString("log-level"),
		viper.GetString("log-format"),
		viper.GetString("log-file"),
	)

	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return err
	}
	logger.SetGlobalLogger(log)
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
