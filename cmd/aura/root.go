// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root aura command with all subcommands
// registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "aura",
		Short:         "AURA — conversational gateway for an unstable inference backend",
		Long:          "AURA relays chat messages to a text-generation backend, negotiating across its endpoint variants and normalizing whatever reply shape comes back.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			// .env is optional; real environment variables win.
			_ = godotenv.Load()

			verbose, _ := cmd.Flags().GetBool("verbose")
			configureLogging(verbose)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newStartCmd(),
		newSecretCmd(),
		newVersionCmd(),
	)

	return root
}

func configureLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}
