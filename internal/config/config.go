// Package config loads the Oempro connection settings of the manager from
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"go.miloapis.com/email-provider-oempro/pkg/oempro"
)

// Oempro holds the settings used to build and authenticate the Oempro client.
type Oempro struct {
	// APIURL is the Oempro api.php endpoint.
	APIURL   string `env:"API_URL,required,notEmpty"`
	Username string `env:"USERNAME,required,notEmpty"`
	Password string `env:"PASSWORD,required,notEmpty"`

	// UserAgent overrides the User-Agent header. Empty selects the build default.
	UserAgent string        `env:"USER_AGENT"`
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"10s"`

	// ContactsListID is the subscriber list every Milo contact is mirrored to.
	ContactsListID int `env:"CONTACTS_LIST_ID,required"`
	// SubscriberIP is reported to Oempro as the address subscribers signed up from.
	SubscriberIP   string `env:"SUBSCRIBER_IP" envDefault:"127.0.0.1"`
	ResponseFormat string `env:"RESPONSE_FORMAT" envDefault:"JSON"`
}

// Config is the environment configuration of the manager.
type Config struct {
	Oempro Oempro `envPrefix:"OEMPRO_"`
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return load(env.Options{})
}

func loadFrom(environment map[string]string) (*Config, error) {
	return load(env.Options{Environment: environment})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("error getting env configs: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Oempro.Timeout <= 0 {
		return fmt.Errorf("%w: OEMPRO_TIMEOUT must be positive", oempro.ErrInvalidArgument)
	}
	if c.Oempro.ContactsListID <= 0 {
		return fmt.Errorf("%w: OEMPRO_CONTACTS_LIST_ID must be a positive list ID", oempro.ErrInvalidArgument)
	}
	format := oempro.ResponseFormat(strings.ToUpper(c.Oempro.ResponseFormat))
	if format != oempro.ResponseFormatJSON && format != oempro.ResponseFormatXML {
		return fmt.Errorf("%w: OEMPRO_RESPONSE_FORMAT must be JSON or XML, got %q", oempro.ErrInvalidArgument, c.Oempro.ResponseFormat)
	}
	c.Oempro.ResponseFormat = string(format)
	return nil
}

// ClientOptions translates the configuration into Oempro client options.
// defaultUserAgent is used when OEMPRO_USER_AGENT is unset.
func (o Oempro) ClientOptions(defaultUserAgent string) []oempro.ClientOption {
	userAgent := o.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return []oempro.ClientOption{
		oempro.WithTimeout(o.Timeout),
		oempro.WithUserAgent(userAgent),
		oempro.WithSubscriberIPAddress(o.SubscriberIP),
		oempro.WithResponseFormat(oempro.ResponseFormat(o.ResponseFormat)),
	}
}
