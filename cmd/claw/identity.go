// ABOUTME: Local identity file handling: key generation, load, save
// ABOUTME: Identities are JSON files under ~/.config/claw with 0600 permissions

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/clawnet/claw-gateway/internal/signing"
)

// identity is the on-disk form of a claw's keys and server binding.
// The private keys never leave this file.
type identity struct {
	ClawID               string `json:"claw_id"`
	PublicKey            string `json:"public_key"`
	PrivateKey           string `json:"private_key"`
	EncryptionPublicKey  string `json:"encryption_public_key"`
	EncryptionPrivateKey string `json:"encryption_private_key"`
	Label                string `json:"label,omitempty"`
	Server               string `json:"server,omitempty"`
}

func defaultIdentityPath() string {
	if env := os.Getenv("CLAW_IDENTITY"); env != "" {
		return env
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "identity.json"
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "claw", "identity.json")
}

func identityPath() string {
	if flagIdentity != "" {
		return flagIdentity
	}
	return defaultIdentityPath()
}

func newIdentity(label string) (*identity, error) {
	signKeys, err := signing.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating signing keys: %w", err)
	}
	encKeys, err := signing.GenerateEncryptionKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating encryption keys: %w", err)
	}
	return &identity{
		ClawID:               signing.DeriveClawID(signKeys.PublicKey),
		PublicKey:            signKeys.PublicKey,
		PrivateKey:           signKeys.PrivateKey,
		EncryptionPublicKey:  encKeys.PublicKey,
		EncryptionPrivateKey: encKeys.PrivateKey,
		Label:                label,
	}, nil
}

func loadIdentity() (*identity, error) {
	path := identityPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no identity at %s (run \"claw keygen\" first)", path)
		}
		return nil, fmt.Errorf("reading identity: %w", err)
	}
	var id identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("parsing identity %s: %w", path, err)
	}
	if id.PrivateKey == "" {
		return nil, fmt.Errorf("identity %s has no private key", path)
	}
	return &id, nil
}

func saveIdentity(id *identity) error {
	path := identityPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating identity directory: %w", err)
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing identity: %w", err)
	}
	return nil
}

// serverURL resolves the gateway address: flag, then CLAW_SERVER, then
// whatever the identity was registered against.
func serverURL(id *identity) string {
	if flagServer != "" {
		return flagServer
	}
	if env := os.Getenv("CLAW_SERVER"); env != "" {
		return env
	}
	if id != nil && id.Server != "" {
		return id.Server
	}
	return "http://localhost:8080"
}
