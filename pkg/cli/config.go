// Package cli simplifies configuring the command-line tools that ship with this repository.
//
// The package reads account credentials from flags and the environment, prompts for the account
// password on a terminal when nothing else supplies it, and can cache access tokens in the
// system keyring so repeated invocations skip the login flow.
package cli

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/99designs/keyring"
	"golang.org/x/term"
)

// Supported environment variables. Command-line flags take precedence.
const (
	EnvPolestarEmail     = "POLESTAR_EMAIL"
	EnvPolestarPassword  = "POLESTAR_PASSWORD"
	EnvPolestarTokenName = "POLESTAR_TOKEN_NAME"
)

const (
	keyringServiceName  = "com.polestar.auth"
	keyringTokenService = "oauthtoken"
)

// Config groups the account settings shared by the command-line tools.
type Config struct {
	// Email is the Polestar account login.
	Email string
	// KeyringTokenName, when set, names the system keyring entry used to cache the access
	// token between runs.
	KeyringTokenName string
	// Backend configures the system keyring.
	Backend keyring.Config

	password *string
}

// NewConfig returns a Config with keyring defaults applied.
func NewConfig() *Config {
	c := &Config{
		Backend: keyring.Config{
			ServiceName:              keyringServiceName,
			KeychainTrustApplication: true,
			KeyCtlScope:              "user",
		},
	}
	c.Backend.KeychainPasswordFunc = c.getPassword
	c.Backend.FilePasswordFunc = c.getPassword
	return c
}

// RegisterCommandLineFlags installs the config's flags into the default flag set. Call
// flag.Parse() after.
func (c *Config) RegisterCommandLineFlags() {
	flag.StringVar(&c.Email, "email", "", fmt.Sprintf("Polestar account email. Defaults to $%s.", EnvPolestarEmail))
	flag.StringVar(&c.KeyringTokenName, "token-name", "", fmt.Sprintf("System keyring `name` for cached access token. Defaults to $%s.", EnvPolestarTokenName))
}

// ReadFromEnvironment fills in settings that were not provided on the command line. Reading the
// environment only as a fallback keeps explicit flags authoritative.
func (c *Config) ReadFromEnvironment() {
	if c.Email == "" {
		c.Email = os.Getenv(EnvPolestarEmail)
	}
	if c.KeyringTokenName == "" {
		c.KeyringTokenName = os.Getenv(EnvPolestarTokenName)
	}
	if c.password == nil {
		if password := os.Getenv(EnvPolestarPassword); password != "" {
			c.password = &password
		}
	}
}

// Password returns the account password, prompting the user on a terminal when it was not
// supplied through the environment.
func (c *Config) Password() (string, error) {
	return c.getPassword("Polestar account password")
}

func (c *Config) getPassword(prompt string) (string, error) {
	if c.password != nil && *c.password != "" {
		return *c.password, nil
	}

	var w io.Writer
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		fd = int(os.Stderr.Fd())
		if !term.IsTerminal(fd) {
			return "", fmt.Errorf("no terminal output available for password prompt")
		}
		w = os.Stderr
	} else {
		w = os.Stdout
	}

	fmt.Fprintf(w, "%s: ", prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	fmt.Fprintln(w)
	password := string(b)
	c.password = &password
	return password, nil
}

func (c *Config) openKeyring() (keyring.Keyring, error) {
	return keyring.Open(c.Backend)
}

// LoadTokenFromKeyring loads a cached access token from the system keyring.
func (c *Config) LoadTokenFromKeyring() (string, error) {
	kr, err := c.openKeyring()
	if err != nil {
		return "", err
	}
	item, err := kr.Get(keyringTokenService + "." + c.KeyringTokenName)
	if err != nil {
		return "", fmt.Errorf("could not load token: %s", err)
	}
	return string(item.Data), nil
}

// SaveTokenToKeyring caches an access token in the system keyring under the configured name.
func (c *Config) SaveTokenToKeyring(token string) error {
	kr, err := c.openKeyring()
	if err != nil {
		return err
	}
	if err := kr.Set(keyring.Item{
		Key:  keyringTokenService + "." + c.KeyringTokenName,
		Data: []byte(token),
	}); err != nil {
		return fmt.Errorf("failed to save token to keyring: %s", err)
	}
	return nil
}
