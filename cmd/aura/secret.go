// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aura-dev/aura/internal/secrets"
	auraerr "github.com/aura-dev/aura/pkg/errors"
)

// secretStoreFactory creates a secrets.Store. It is a package-level
// variable so tests can substitute a mock implementation.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets stored in the OS keyring",
		Long:  "Store, read, and delete secrets under the AURA service in the operating system keyring. Reference a stored secret from configuration as keyring://aura/<name>.",
	}

	cmd.AddCommand(
		newSecretSetCmd(),
		newSecretGetCmd(),
		newSecretDeleteCmd(),
	)

	return cmd
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Store a secret",
		Args:  cobra.ExactArgs(2),
		RunE:  runSecretSet,
	}
}

func newSecretGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Print a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretGet,
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a secret by name",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretDelete,
	}
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	name, value := args[0], args[1]

	if err := secretStoreFactory().Store(secrets.Service, name, value); err != nil {
		return err
	}

	_, err := fmt.Fprintf(cmd.OutOrStdout(),
		"Stored %q. Reference it as keyring://%s/%s\n", name, secrets.Service, name)
	return err
}

func runSecretGet(cmd *cobra.Command, args []string) error {
	name := args[0]

	value, err := secretStoreFactory().Retrieve(secrets.Service, name)
	if err != nil {
		if auraerr.HasCode(err, auraerr.CodeSecretNotFound) {
			return auraerr.Errorf(auraerr.CodeSecretNotFound, "secret %q not found", name)
		}
		return err
	}

	_, werr := fmt.Fprintln(cmd.OutOrStdout(), value)
	return werr
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	if err := secretStoreFactory().Delete(secrets.Service, name); err != nil {
		if auraerr.HasCode(err, auraerr.CodeSecretNotFound) {
			return auraerr.Errorf(auraerr.CodeSecretNotFound, "secret %q not found", name)
		}
		return err
	}

	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q.\n", name)
	return err
}
