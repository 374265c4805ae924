// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

package secrets

// Store provides secure secret storage operations. Implementations may
// use OS keyrings, encrypted files, or other backends.
type Store interface {
	// Store saves a secret value under the given service and key.
	Store(service, key, value string) error

	// Retrieve fetches the secret value for the given service and key.
	// Returns CodeSecretNotFound (via auraerr.HasCode) if the key does
	// not exist.
	Retrieve(service, key string) (string, error)

	// Delete removes the secret for the given service and key.
	Delete(service, key string) error
}

// Service is the keyring service name the gateway stores its secrets
// under.
const Service = "aura"

// BackendKeyName is the conventional key for the backend credential.
const BackendKeyName = "backend-key"
