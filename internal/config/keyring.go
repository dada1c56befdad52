package config

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "voxroom"
	keyringUser    = "discord-token"
)

// keyringProvider abstracts go-keyring calls for testing.
type keyringProvider interface {
	Set(service, user, password string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}

type osKeyring struct{}

func (osKeyring) Set(service, user, password string) error {
	return keyring.Set(service, user, password)
}
func (osKeyring) Get(service, user string) (string, error) { return keyring.Get(service, user) }
func (osKeyring) Delete(service, user string) error        { return keyring.Delete(service, user) }

var secrets keyringProvider = osKeyring{}

// SaveToken stores the bot token in the OS keychain.
func SaveToken(token string) error {
	if token == "" {
		return errors.New("empty token")
	}
	if err := secrets.Set(keyringService, keyringUser, token); err != nil {
		return fmt.Errorf("store token in keychain: %w", err)
	}
	return nil
}

// DeleteToken removes the stored bot token. A missing entry is not an error.
func DeleteToken() error {
	err := secrets.Delete(keyringService, keyringUser)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("remove token from keychain: %w", err)
	}
	return nil
}

// ResolveToken fills Discord.Token from the keychain when neither the file
// nor the environment set it. It reports where the token came from.
func (c *Config) ResolveToken() (string, error) {
	if c.Discord.Token != "" {
		return "config", nil
	}
	token, err := secrets.Get(keyringService, keyringUser)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", errors.New("no discord token: set discord.token, VOXROOM_DISCORD_TOKEN or run `voxroom login`")
	case err != nil:
		return "", fmt.Errorf("read token from keychain: %w", err)
	}
	c.Discord.Token = token
	return "keychain", nil
}
