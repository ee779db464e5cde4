// Package main is the formatconv command: an HTTP service and a batch
// converter for SVG, PDF, PNG/JPG, HEIC and WebP files.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"formatconv/config"
	"formatconv/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "formatconv",
	Short: "Convert images and PDFs between formats",
	Long: `formatconv converts between SVG, PDF, PNG, JPG, HEIC and WebP.

Run "formatconv serve" for the HTTP API, or "formatconv convert" to
convert files and directories from the command line.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./formatconv.yaml or ~/.config/formatconv/formatconv.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: json or console")
	v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	config.SetDefaults(v)

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("formatconv")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "formatconv"))
		}
	}

	if err := v.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "[ERROR]: reading config %s: %v\n", cfgFile, err)
		os.Exit(1)
	}
}

// loadConfig validates the merged configuration and sets up logging.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, err
	}
	logger.Init("formatconv", cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
