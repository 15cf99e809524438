// internal/cli/root.go
package mergeval

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/mwiater/mergeval/internal/appconfig"
	"github.com/mwiater/mergeval/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	currentConfig *appconfig.Config
	appVersion    = "dev"
	appCommit     = "none"
	appDate       = "unknown"
)

var (
	boolFlags   = []string{"debug", "jsonMode"}
	stringFlags = []string{"method", "dataset", "split", "subset", "artifactsDir", "catalogFile", "fallbackDataset", "logFile"}
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:          "mergeval",
	Short:        "mergeval merges fine-tuned checkpoints and records their benchmark accuracy",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureConfigLoaded(); err != nil {
			return err
		}

		for _, name := range boolFlags {
			if !cmd.Flags().Changed(name) {
				_ = cmd.Flags().Set(name, strconv.FormatBool(viper.GetBool(name)))
			}
		}
		for _, name := range stringFlags {
			if !cmd.Flags().Changed(name) {
				_ = cmd.Flags().Set(name, viper.GetString(name))
			}
		}
		if !cmd.Flags().Changed("baseIndex") {
			_ = cmd.Flags().Set("baseIndex", strconv.Itoa(viper.GetInt("baseIndex")))
		}

		var cfg appconfig.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
		cfg = cfg.WithDefaults()
		cfg.ConfigPath = viper.ConfigFileUsed()
		if err := cfg.Validate(); err != nil {
			return err
		}
		currentConfig = &cfg

		if err := logging.Init(currentConfig.LogFilePath()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", appVersion, appCommit, appDate)

	defer logging.Close()
	if err := rootCmd.Execute(); err != nil {
		logging.LogEvent("mergeval failed: %v", err)
		_ = logging.Close()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file (e.g., config/config.json)")

	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("jsonMode", false, "print results as JSON")
	rootCmd.PersistentFlags().String("method", "", "merge method requested from the backend (default task)")
	rootCmd.PersistentFlags().String("dataset", "", "benchmark dataset (default rte)")
	rootCmd.PersistentFlags().String("split", "", "benchmark split (default validation)")
	rootCmd.PersistentFlags().String("subset", "", "optional dataset subset passed to the evaluator")
	rootCmd.PersistentFlags().Int("baseIndex", 0, "index of the base model in the model list")
	rootCmd.PersistentFlags().String("artifactsDir", "", "root directory for merged weights (default ./artifacts)")
	rootCmd.PersistentFlags().String("catalogFile", "", "YAML file overriding the built-in model lists")
	rootCmd.PersistentFlags().String("fallbackDataset", "", "model list to merge when the dataset has none")
	rootCmd.PersistentFlags().String("logFile", "", "path to the log file")

	for _, name := range append(append([]string{"baseIndex"}, boolFlags...), stringFlags...) {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// ensureConfigLoaded reads the config. A missing file leaves defaults and flags in effect.
func ensureConfigLoaded() error {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

// GetConfig returns the loaded application configuration for other packages.
func GetConfig() *appconfig.Config {
	return currentConfig
}

// DebugEnabled returns true if debug mode is enabled.
func DebugEnabled() bool { return viper.GetBool("debug") }

// JSONModeEnabled returns true if JSON mode is enabled.
func JSONModeEnabled() bool { return viper.GetBool("jsonMode") }

// SetVersionInfo allows the main package to inject build-time variables.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}
