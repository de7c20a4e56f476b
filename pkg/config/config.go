// Package config loads connector settings from a Java-style properties file,
// a .env file and the environment.
//
// Keys follow redmine-connector.properties:
//
//	redmine.server=https://redmine.example.com
//	security.key=0123456789abcdef
//	redmine.page.size=25
//
// Every key can be overridden by its upper-case environment form, with dots
// replaced by underscores (REDMINE_SERVER, SECURITY_KEY, REDMINE_PAGE_SIZE).
package config

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/redmine-connector/pkg/apierr"
	"github.com/Sternrassler/redmine-connector/pkg/pagination"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultFileName is looked up in the working directory when Load gets no path.
const DefaultFileName = "redmine-connector.properties"

// DotEnvFile is loaded into the environment before the properties are read.
// Variables that are already set win.
const DotEnvFile = ".env"

// Property keys.
const (
	KeyServer    = "redmine.server"
	KeyAPIKey    = "security.key"
	KeyPageSize  = "redmine.page.size"
	KeyTimeout   = "redmine.timeout"
	KeyUserAgent = "redmine.user.agent"
	KeyRedisAddr = "redis.addr"
	KeyLogLevel  = "log.level"
	KeyLogPretty = "log.pretty"
)

// Config is the resolved connector configuration.
type Config struct {
	Server    string
	APIKey    string
	PageSize  int
	Timeout   time.Duration
	UserAgent string
	RedisAddr string
	LogLevel  string
	LogPretty bool
}

// Load reads configuration and validates it. An explicit path must exist;
// with an empty path DefaultFileName is used when present and the
// environment alone otherwise.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for callers that apply their own
// overrides first.
func Read(path string) (*Config, error) {
	if err := loadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("properties")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	file := path
	if file == "" {
		if _, err := os.Stat(DefaultFileName); err == nil {
			file = DefaultFileName
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, apierr.Wrap(apierr.KindResourceNotFound, "configuration file "+file+" not found", err)
			}
			return nil, apierr.Wrap(apierr.KindIllegalArgument, "read configuration file "+file, err)
		}
	}

	cfg := &Config{
		Server:    strings.TrimSpace(v.GetString(KeyServer)),
		APIKey:    strings.TrimSpace(v.GetString(KeyAPIKey)),
		PageSize:  v.GetInt(KeyPageSize),
		Timeout:   v.GetDuration(KeyTimeout),
		UserAgent: v.GetString(KeyUserAgent),
		RedisAddr: strings.TrimSpace(v.GetString(KeyRedisAddr)),
		LogLevel:  v.GetString(KeyLogLevel),
		LogPretty: v.GetBool(KeyLogPretty),
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyPageSize, pagination.DefaultPageSize)
	v.SetDefault(KeyTimeout, 30*time.Second)
	v.SetDefault(KeyUserAgent, "redmine-connector/1.0")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogPretty, false)
}

// Validate checks the values Load cannot default.
func (c *Config) Validate() error {
	if c.Server == "" {
		return apierr.New(apierr.KindIllegalArgument, KeyServer+" is not set")
	}
	u, err := url.Parse(c.Server)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return apierr.Newf(apierr.KindIllegalArgument, "%s must be an absolute http(s) url (got %q)", KeyServer, c.Server)
	}
	if c.PageSize < 0 || c.PageSize > pagination.MaxPageSize {
		return apierr.Newf(apierr.KindIllegalArgument, "%s must be between 0 and %d (got %d)", KeyPageSize, pagination.MaxPageSize, c.PageSize)
	}
	if c.Timeout < 0 {
		return apierr.Newf(apierr.KindIllegalArgument, "%s must not be negative (got %s)", KeyTimeout, c.Timeout)
	}
	return nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return apierr.Wrap(apierr.KindIllegalArgument, "load "+path, err)
	}
	return nil
}
