package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/assistant-desk/internal/config"
	"github.com/zhouzirui/assistant-desk/internal/logging"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "assistant",
	Short:         "Terminal client for the AI Business Assistant",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envErr := godotenv.Load()

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		level := cfg.Log.Level
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = "debug"
		}
		logging.Setup(logging.Options{Level: level, Format: cfg.Log.Format})
		if envErr != nil {
			log.Debug().Err(envErr).Msg("no .env file loaded")
		}
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(newChatCommand(), newAppointmentsCommand(), newStatusCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
