package main

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/skyward-school/skyward/internal/email"
	"github.com/skyward-school/skyward/internal/email/mailgun"
	"github.com/skyward-school/skyward/internal/email/postmark"
	"github.com/skyward-school/skyward/internal/email/sendgrid"
	"github.com/skyward-school/skyward/internal/email/smtp"
	"github.com/skyward-school/skyward/internal/krypto"
	"github.com/skyward-school/skyward/internal/reset"
	"github.com/skyward-school/skyward/internal/web"
)

// httpConfig is the configuration for the HTTP server.
type httpConfig struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	server          web.ServerConfig
}

// dbConfig is the configuration for the database.
type dbConfig struct {
	file           string
	migrate        bool
	blindIndexSalt krypto.Key
	encryptionKeys []krypto.Key
}

// resetConfig is the configuration for password reset codes.
type resetConfig struct {
	service reset.Config
	// codeHashKey switches code digests from plain SHA-256 to HMAC-SHA256.
	codeHashKey *krypto.Key
}

const (
	driverLog      = "log"
	driverSMTP     = "smtp"
	driverSendgrid = "sendgrid"
	driverPostmark = "postmark"
	driverMailgun  = "mailgun"
)

// emailConfig is the configuration for sending emails.
type emailConfig struct {
	driver   string
	service  email.ServiceConfig
	smtp     smtp.Settings
	sendgrid sendgrid.Settings
	postmark postmark.Settings
	mailgun  mailgun.Settings
}

// config is the configuration for the server command.
type config struct {
	http  httpConfig
	db    dbConfig
	reset resetConfig
	email emailConfig
}

// defaultConfig returns a config with sane default values.
func defaultConfig() config {
	return config{
		http: httpConfig{
			addr:            ":8888",
			readTimeout:     time.Second * 5,
			writeTimeout:    time.Second * 10,
			idleTimeout:     time.Second * 120,
			shutdownTimeout: time.Second * 15,
			server: web.ServerConfig{
				SecureCookie:   true,
				ResetRateLimit: 10,
			},
		},
		db: dbConfig{
			file:    "skyward.db",
			migrate: true,
		},
		reset: resetConfig{
			service: reset.DefaultConfig(),
		},
		email: emailConfig{
			driver: driverLog,
			smtp: smtp.Settings{
				Port:    587,
				Timeout: time.Second * 10,
			},
			sendgrid: sendgrid.Settings{
				APIURL: mustURL("https://api.sendgrid.com"),
			},
			postmark: postmark.Settings{
				APIURL:        mustURL("https://api.postmarkapp.com"),
				MessageStream: "outbound",
			},
			mailgun: mailgun.Settings{
				APIURL: mustURL("https://api.mailgun.net"),
			},
		},
	}
}

// requiredEnv are the environment variables without a usable default.
var requiredEnv = []string{
	"HTTP_COOKIE_KEYS",
	"DB_BLIND_INDEX_SALT",
	"DB_ENCRYPTION_KEYS",
	"EMAIL_FROM",
}

// envMap maps environment variable names to fields in the config struct.
var envMap = map[string]func(v string, c *config) error{
	"HTTP_ADDR": func(v string, c *config) error {
		c.http.addr = v
		return nil
	},
	"HTTP_READ_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.readTimeout, 0, math.MaxInt64)
	},
	"HTTP_WRITE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.writeTimeout, 0, math.MaxInt64)
	},
	"HTTP_IDLE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.idleTimeout, 0, math.MaxInt64)
	},
	"HTTP_SHUTDOWN_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.shutdownTimeout, 0, math.MaxInt64)
	},
	"HTTP_COOKIE_KEYS": func(v string, c *config) error {
		keys, err := krypto.ParseKeys(v)
		if err != nil {
			return err
		}

		if len(keys)%2 != 0 {
			return fmt.Errorf("got %d keys, need pairs of hash and encryption keys", len(keys))
		}

		c.http.server.CookieKeys = keys
		return nil
	},
	"HTTP_SECURE_COOKIE": func(v string, c *config) error {
		return confBool(v, &c.http.server.SecureCookie)
	},
	"HTTP_RESET_RATE_LIMIT": func(v string, c *config) error {
		return confInt(v, &c.http.server.ResetRateLimit, 0, math.MaxInt32)
	},
	"DB_FILENAME": func(v string, c *config) error {
		if v == "" {
			return errors.New("empty filename")
		}

		c.db.file = v
		return nil
	},
	"DB_MIGRATE": func(v string, c *config) error {
		return confBool(v, &c.db.migrate)
	},
	"DB_BLIND_INDEX_SALT": func(v string, c *config) error {
		return confKey(v, &c.db.blindIndexSalt)
	},
	"DB_ENCRYPTION_KEYS": func(v string, c *config) error {
		keys, err := krypto.ParseKeys(v)
		if err != nil {
			return err
		}

		c.db.encryptionKeys = keys
		return nil
	},
	"RESET_CODE_TTL": func(v string, c *config) error {
		return confDuration(v, &c.reset.service.TTL, time.Minute, 24*time.Hour)
	},
	"RESET_COOLDOWN": func(v string, c *config) error {
		return confDuration(v, &c.reset.service.Cooldown, 0, 24*time.Hour)
	},
	"RESET_STORE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.reset.service.StoreTimeout, time.Millisecond, math.MaxInt64)
	},
	"RESET_NOTIFIER_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.reset.service.NotifierTimeout, time.Millisecond, math.MaxInt64)
	},
	"RESET_CODE_HASH_KEY": func(v string, c *config) error {
		var k krypto.Key
		err := confKey(v, &k)
		if err != nil {
			return err
		}

		c.reset.codeHashKey = &k
		return nil
	},
	"EMAIL_FROM": func(v string, c *config) error {
		addr, err := email.ParseAddress(v)
		if err != nil {
			return err
		}

		c.email.service.From = addr
		return nil
	},
	"EMAIL_DRIVER": func(v string, c *config) error {
		switch v {
		case driverLog, driverSMTP, driverSendgrid, driverPostmark, driverMailgun:
			c.email.driver = v
			return nil
		default:
			return fmt.Errorf("unknown driver %q", v)
		}
	},
	"SMTP_HOST": func(v string, c *config) error {
		c.email.smtp.Host = v
		return nil
	},
	"SMTP_PORT": func(v string, c *config) error {
		return confInt(v, &c.email.smtp.Port, 1, 65535)
	},
	"SMTP_USERNAME": func(v string, c *config) error {
		c.email.smtp.Username = v
		return nil
	},
	"SMTP_PASSWORD": func(v string, c *config) error {
		c.email.smtp.Password = krypto.NewSecret(v)
		return nil
	},
	"SMTP_REQUIRE_TLS": func(v string, c *config) error {
		return confBool(v, &c.email.smtp.RequireTLS)
	},
	"SENDGRID_API_URL": func(v string, c *config) error {
		return confURL(v, &c.email.sendgrid.APIURL)
	},
	"SENDGRID_API_KEY": func(v string, c *config) error {
		c.email.sendgrid.APIKey = krypto.NewSecret(v)
		return nil
	},
	"POSTMARK_API_URL": func(v string, c *config) error {
		return confURL(v, &c.email.postmark.APIURL)
	},
	"POSTMARK_SERVER_TOKEN": func(v string, c *config) error {
		c.email.postmark.ServerToken = krypto.NewSecret(v)
		return nil
	},
	"POSTMARK_MESSAGE_STREAM": func(v string, c *config) error {
		c.email.postmark.MessageStream = v
		return nil
	},
	"MAILGUN_API_URL": func(v string, c *config) error {
		return confURL(v, &c.email.mailgun.APIURL)
	},
	"MAILGUN_DOMAIN": func(v string, c *config) error {
		c.email.mailgun.Domain = v
		return nil
	},
	"MAILGUN_API_KEY": func(v string, c *config) error {
		c.email.mailgun.APIKey = krypto.NewSecret(v)
		return nil
	},
}

// configFromEnv returns a config with values from the environment. It falls
// back to default values for any missing environment variables.
//
// It does a best effort to validate provided values, so that mistakes are
// caught ASAP. However, there is no guarantee that the returned config
// is valid and will work.
//
// All problems are reported at once.
func configFromEnv() (config, error) {
	c := defaultConfig()

	var errs []error
	for _, key := range requiredEnv {
		if _, ok := os.LookupEnv(key); !ok {
			errs = append(errs, fmt.Errorf("missing required env variable %s", key))
		}
	}

	// sorted, so errors are reported in a stable order.
	keys := make([]string, 0, len(envMap))
	for key := range envMap {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			if err := envMap[key](val, &c); err != nil {
				errs = append(errs, fmt.Errorf("invalid env variable %s: %w", key, err))
			}
		}
	}

	errs = append(errs, c.email.validate()...)

	return c, errors.Join(errs...)
}

// validate checks that the selected driver has its credentials.
func (c emailConfig) validate() []error {
	var missing []string
	switch c.driver {
	case driverSMTP:
		if c.smtp.Host == "" {
			missing = append(missing, "SMTP_HOST")
		}
	case driverSendgrid:
		if c.sendgrid.APIKey.IsZero() {
			missing = append(missing, "SENDGRID_API_KEY")
		}
	case driverPostmark:
		if c.postmark.ServerToken.IsZero() {
			missing = append(missing, "POSTMARK_SERVER_TOKEN")
		}
	case driverMailgun:
		if c.mailgun.Domain == "" {
			missing = append(missing, "MAILGUN_DOMAIN")
		}
		if c.mailgun.APIKey.IsZero() {
			missing = append(missing, "MAILGUN_API_KEY")
		}
	}

	errs := make([]error, 0, len(missing))
	for _, key := range missing {
		errs = append(errs, fmt.Errorf("env variable %s is required for EMAIL_DRIVER=%s", key, c.driver))
	}
	return errs
}

// confDuration attempts to parse v into tgt and checks if the result is in
// the provided range (inclusive).
func confDuration(v string, tgt *time.Duration, min, max time.Duration) error {
	dur, err := time.ParseDuration(v)
	if err != nil {
		return err
	}

	if dur < min || dur > max {
		return fmt.Errorf("duration %s not in range [%s, %s] (inclusive)", dur, min, max)
	}

	*tgt = dur

	return nil
}

// confInt attempts to parse v into tgt and checks if the result is in
// the provided range (inclusive).
func confInt(v string, tgt *int, min, max int) error {
	i, err := strconv.Atoi(v)
	if err != nil {
		return err
	}

	if i < min || i > max {
		return fmt.Errorf("%d not in range [%d, %d] (inclusive)", i, min, max)
	}

	*tgt = i

	return nil
}

func confBool(v string, tgt *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}

	*tgt = b

	return nil
}

func confKey(v string, tgt *krypto.Key) error {
	k, err := krypto.ParseKey(v)
	if err != nil {
		return err
	}

	*tgt = k

	return nil
}

// confURL requires an absolute URL.
func confURL(v string, tgt **url.URL) error {
	u, err := url.Parse(v)
	if err != nil {
		return err
	}

	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute url", v)
	}

	*tgt = u

	return nil
}

func mustURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
