package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Dima2024Alekseev/bot-pm2/internal/config"
)

var (
	cfgFile  string
	logLevel string
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "bot-pm2",
	Short: "PM2 log relay and remote control over Telegram",
	Long: `bot-pm2 follows the out and err logs of a PM2-managed app, classifies
every new line by keyword and relays it to an admin Telegram chat. The same
chat can check status, read recent logs, run a system health check and
restart, stop or start the app.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: $HOME/.bot-pm2.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	cobra.CheckErr(viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level")))
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".bot-pm2")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Warn("config file not loaded", "err", err)
		}
	}
	if err := config.MergeDotEnv(viper.GetViper(), ".env"); err != nil {
		log.Warn(".env not loaded", "err", err)
	}
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level, err := log.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)
	return nil
}
