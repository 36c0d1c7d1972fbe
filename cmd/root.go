package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/killallgit/scout/pkg/config"
	"github.com/killallgit/scout/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "scout",
	Short: "Stream research answers from a multi-agent backend",
	Long: `Scout sends a research query to a streaming research backend and renders
agent activity, discovered sources and the final answer as they arrive.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is .scout/settings.yaml)")

	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("url", "", "research backend websocket url")
	viper.BindPFlag("backend.url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("adapter", "a", "", "backend protocol: research, workflow or local")
	viper.BindPFlag("backend.adapter", rootCmd.PersistentFlags().Lookup("adapter"))

	rootCmd.PersistentFlags().Bool("show-thinking", true, "show model thinking blocks")
	viper.BindPFlag("show_thinking", rootCmd.PersistentFlags().Lookup("show-thinking"))

	rootCmd.PersistentFlags().Bool("color", false, "colorize output")
	viper.BindPFlag("color", rootCmd.PersistentFlags().Lookup("color"))
}

func initConfig() error {
	// .env only fills variables that are not already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	if _, err := config.Load(cfgFile); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(); err != nil {
		return err
	}
	if used := config.GetConfigFileUsed(); used != "" {
		logger.Debug("Using config file: %s", used)
	}
	return nil
}
