package config

import (
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "LEADBOX"

const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// StorageConfig selects where submissions and the visit counter live.
type StorageConfig struct {
	DataDir string
	Storage string
	DBUrl   string
}

type Config struct {
	StorageConfig
	Addr              string
	TokenSecret       string
	TokenTTL          time.Duration
	AdminUser         string
	AdminPassword     string
	AdminPasswordHash string
	SessionKey        string
	PublicDir         string
	PrivateDir        string
	MaxBodyBytes      int64
	SubmitInterval    time.Duration
	LogFormat         string
	Debug             bool
}

// Flags declares every setting on fs. Each flag can also be given as an
// environment variable, e.g. --token-secret as LEADBOX_TOKEN_SECRET.
func Flags(fs *pflag.FlagSet) {
	StorageFlags(fs)
	fs.String("host", "0.0.0.0", "listen host name")
	fs.Uint("port", 80, "listen port number")
	fs.String("token-secret", "", "secret key for token encryption and decryption")
	fs.Uint("token-ttl", 3600, "access token TTL in seconds")
	fs.String("admin-user", "admin", "admin username")
	fs.String("admin-password", "", "admin password, hashed at startup")
	fs.String("admin-password-hash", "", "bcrypt hash of the admin password")
	fs.String("session-key", "", "key signing the visitor session cookie")
	fs.String("public-dir", "public", "directory of the built front end")
	fs.String("private-dir", "private", "directory of the admin dashboard")
	fs.Int64("max-body-bytes", 64<<10, "maximum accepted request body size")
	fs.Duration("submit-interval", 10*time.Second, "minimum interval between form submissions from one IP")
	fs.String("log-format", "text", "log output format: text or json")
	fs.Bool("debug", false, "log at DEBUG level")
}

func ParseFlags(args []string) (cfg Config, err error) {
	fs := pflag.NewFlagSet("leadbox", pflag.ContinueOnError)
	Flags(fs)
	if err = fs.Parse(args); err != nil {
		return
	}
	return Load(fs)
}

func StorageFlags(fs *pflag.FlagSet) {
	fs.String("data-dir", "data", "directory holding persisted submissions and the visit counter")
	fs.String("storage", StorageFile, "storage backend: file or sqlite")
	fs.String("db-url", "leadbox.sqlite", "path to SQLite3 DB file (storage=sqlite)")
}

func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v, v.BindPFlags(fs)
}

// LoadStorage reads the settings declared by StorageFlags.
func LoadStorage(fs *pflag.FlagSet) (StorageConfig, error) {
	v, err := newViper(fs)
	if err != nil {
		return StorageConfig{}, err
	}
	return loadStorage(v)
}

func loadStorage(v *viper.Viper) (sc StorageConfig, err error) {
	sc.DataDir = v.GetString("data-dir")
	sc.Storage = v.GetString("storage")
	sc.DBUrl = v.GetString("db-url")
	if sc.Storage != StorageFile && sc.Storage != StorageSQLite {
		err = errors.New("--storage must be file or sqlite")
	}
	return
}

// Load reads the settings declared by Flags, letting environment variables
// override flag defaults.
func Load(fs *pflag.FlagSet) (cfg Config, err error) {
	v, err := newViper(fs)
	if err != nil {
		return
	}

	cfg.StorageConfig, err = loadStorage(v)
	if err != nil {
		return
	}
	cfg.Addr = net.JoinHostPort(v.GetString("host"), strconv.Itoa(v.GetInt("port")))
	cfg.TokenSecret = v.GetString("token-secret")
	cfg.TokenTTL = time.Duration(v.GetInt("token-ttl")) * time.Second
	cfg.AdminUser = v.GetString("admin-user")
	cfg.AdminPassword = v.GetString("admin-password")
	cfg.AdminPasswordHash = v.GetString("admin-password-hash")
	cfg.SessionKey = v.GetString("session-key")
	cfg.PublicDir = v.GetString("public-dir")
	cfg.PrivateDir = v.GetString("private-dir")
	cfg.MaxBodyBytes = v.GetInt64("max-body-bytes")
	cfg.SubmitInterval = v.GetDuration("submit-interval")
	cfg.LogFormat = v.GetString("log-format")
	cfg.Debug = v.GetBool("debug")

	err = cfg.validate()
	return
}

func (cfg Config) validate() error {
	switch {
	case cfg.TokenSecret == "":
		return errors.New("missing parameter --token-secret")
	case cfg.SessionKey == "":
		return errors.New("missing parameter --session-key")
	case cfg.AdminPassword == "" && cfg.AdminPasswordHash == "":
		return errors.New("missing parameter --admin-password or --admin-password-hash")
	case cfg.LogFormat != "text" && cfg.LogFormat != "json":
		return errors.New("--log-format must be text or json")
	}
	return nil
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}
