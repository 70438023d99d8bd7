package cfg

import (
	"fmt"

	"github.com/99designs/keyring"
)

// KeyringService is the name of the entries in the OS keyring
const KeyringService = "imapfilter"

// openKeyring is replaced in tests
var openKeyring = func() (keyring.Keyring, error) {
	return keyring.Open(keyring.Config{
		ServiceName: KeyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.KWalletBackend,
			keyring.PassBackend,
		},
		KeychainTrustApplication: true,
	})
}

// KeyringKey is the name of the password entry of this account
func (c *Config) KeyringKey() string {
	return c.User + "@" + c.Server
}

// ResolvePassword loads the password from the keyring when the configuration asks for it
func (c *Config) ResolvePassword() error {
	if !c.PasswordKeyring {
		return nil
	}
	ring, err := openKeyring()
	if err != nil {
		return fmt.Errorf("opening keyring: %w", err)
	}
	item, err := ring.Get(c.KeyringKey())
	if err != nil {
		return fmt.Errorf("getting password %q from keyring: %w", c.KeyringKey(), err)
	}
	c.Password = string(item.Data)
	return nil
}

// StorePassword saves the password of this account in the keyring
func (c *Config) StorePassword(password string) error {
	ring, err := openKeyring()
	if err != nil {
		return fmt.Errorf("opening keyring: %w", err)
	}
	err = ring.Set(keyring.Item{
		Key:         c.KeyringKey(),
		Data:        []byte(password),
		Label:       "imapfilter " + c.KeyringKey(),
		Description: "IMAP password",
	})
	if err != nil {
		return fmt.Errorf("setting password %q in keyring: %w", c.KeyringKey(), err)
	}
	return nil
}
