package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nacholabs/nacho/pkg/log"
)

var cfgFile string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "nacho",
	Short: "A high-level emulator for foreign programs",
	Long: `Nacho runs foreign compiled programs without emulating their original platform.

Programs are decoded and lifted into an intermediate representation, optimized,
and executed against a high-level emulation of the platform framework surface.
Rendered frames are painted on the terminal or discarded.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	err := RootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.nacho.yaml)")
	RootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	RootCmd.PersistentFlags().String("log-file", "", "also write JSON logs to this file")
	RootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	_ = viper.BindPFlag("log.level", RootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.file", RootCmd.PersistentFlags().Lookup("log-file"))
	_ = viper.BindPFlag("log.nocolor", RootCmd.PersistentFlags().Lookup("no-color"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".nacho" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".nacho")
	}

	viper.SetEnvPrefix("nacho")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// buildLogger assembles the process logger from config and installs it as the
// slog default. Returns a closer for the optional JSON log file.
func buildLogger() (*slog.Logger, func() error, error) {
	level, err := log.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return nil, nil, err
	}

	logger, closer, err := log.New(log.Options{
		Level:   level,
		File:    viper.GetString("log.file"),
		NoColor: viper.GetBool("log.nocolor"),
	})
	if err != nil {
		return nil, nil, err
	}

	slog.SetDefault(logger)
	return logger, closer, nil
}
