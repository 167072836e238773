package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/artpar/crudkit/internal/core/route"
	"github.com/artpar/crudkit/internal/shell/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config keys, also settable as CRUDCTL_<KEY> environment variables.
const (
	cfgKeyServer  = "server"
	cfgKeyAPIRoot = "api_root"
	cfgKeyToken   = "token"
	cfgKeySecret  = "secret"
	cfgKeySubject = "subject"
	cfgKeyIssuer  = "issuer"
	cfgKeyTimeout = "timeout"
)

// cli carries state shared by every subcommand.
type cli struct {
	v          *viper.Viper
	configFile string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "crudctl",
		Short: "crudctl talks to a crudkit server",
		Long: `crudctl drives the generic CRUD endpoints of a crudkit server.

Every request carries a bearer token, taken from --token or minted
from the server's shared --secret.`,
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return c.loadConfig() },
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "config file")
	flags.String(cfgKeyServer, "http://localhost:8080", "server base URL")
	flags.String("api-root", "api", "API mount path on the server")
	flags.String(cfgKeyToken, "", "bearer token")
	flags.String(cfgKeySecret, "", "shared HS256 secret used to mint a token when --token is empty")
	flags.String(cfgKeySubject, "crudctl", "subject of minted tokens")
	flags.String(cfgKeyIssuer, "", "issuer of minted tokens")
	flags.Duration(cfgKeyTimeout, 30*time.Second, "request timeout")

	for key, name := range map[string]string{
		cfgKeyServer:  cfgKeyServer,
		cfgKeyAPIRoot: "api-root",
		cfgKeyToken:   cfgKeyToken,
		cfgKeySecret:  cfgKeySecret,
		cfgKeySubject: cfgKeySubject,
		cfgKeyIssuer:  cfgKeyIssuer,
		cfgKeyTimeout: cfgKeyTimeout,
	} {
		// Binding only fails for a nil flag.
		_ = c.v.BindPFlag(key, flags.Lookup(name))
	}

	c.v.SetEnvPrefix("CRUDCTL")
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	c.v.AutomaticEnv()

	root.AddCommand(
		c.listCmd(),
		c.getCmd(),
		c.createCmd(),
		c.updateCmd(),
		c.deleteCmd(),
	)
	return root
}

// loadConfig merges the config file, if any, beneath flags and environment.
func (c *cli) loadConfig() error {
	if c.configFile == "" {
		return nil
	}
	c.v.SetConfigFile(c.configFile)
	if err := c.v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// newClient builds a client for one resource.
func (c *cli) newClient(resource string) (*client.Client[entity, entity], error) {
	server, err := parseServer(c.v.GetString(cfgKeyServer))
	if err != nil {
		return nil, err
	}

	return client.NewSymmetric[entity](client.Config{
		Server:     server,
		APIRoot:    strings.Trim(c.v.GetString(cfgKeyAPIRoot), "/"),
		Controller: resource,
		HTTPClient: &http.Client{Timeout: c.v.GetDuration(cfgKeyTimeout)},
		Tokens:     c.tokens(),
	}), nil
}

// tokens prefers an explicit token over a minted one. A nil source makes
// every request fail with client.ErrUnauthorized.
func (c *cli) tokens() client.TokenSource {
	if token := c.v.GetString(cfgKeyToken); token != "" {
		return client.StaticToken(token)
	}
	if secret := c.v.GetString(cfgKeySecret); secret != "" {
		return client.NewSignedTokenSource(
			[]byte(secret),
			c.v.GetString(cfgKeySubject),
			c.v.GetString(cfgKeyIssuer),
			0,
		)
	}
	return nil
}

// parseServer turns a base URL such as https://api.example.com into a
// server address, filling in the scheme's default port.
func parseServer(raw string) (route.ServerAddress, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return route.ServerAddress{}, fmt.Errorf("invalid server %q: %w", raw, err)
	}
	if u.Hostname() == "" {
		return route.ServerAddress{}, fmt.Errorf("invalid server %q: missing host", raw)
	}

	port := u.Port()
	switch u.Scheme {
	case "http":
		if port == "" {
			port = "80"
		}
	case "https":
		if port == "" {
			port = "443"
		}
	default:
		return route.ServerAddress{}, errors.New("server scheme must be http or https")
	}

	return route.ServerAddress{Protocol: u.Scheme, Address: u.Hostname(), Port: port}, nil
}
