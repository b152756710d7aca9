package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kr "github.com/99designs/keyring"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rbaliyan/phiguard"
	"github.com/rbaliyan/phiguard/filestore"
	"github.com/rbaliyan/phiguard/keyring"
)

// Key store backends selectable with the keystore setting.
const (
	keyStoreKeyring = "keyring"
	keyStoreFile    = "file"
	keyStoreMemory  = "memory"
)

// Config is the CLI configuration resolved from flags, PHIGUARD_* environment
// variables and an optional phiguard.yaml.
type Config struct {
	KeyStore        string `mapstructure:"keystore"`
	Dir             string `mapstructure:"dir"`
	Service         string `mapstructure:"service"`
	Account         string `mapstructure:"account"`
	Algorithm       string `mapstructure:"algorithm"`
	LogLevel        string `mapstructure:"log_level"`
	KeyringPassword string `mapstructure:"keyring_password"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("phiguard")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.phiguard")
	v.AddConfigPath("/etc/phiguard")

	v.SetEnvPrefix("PHIGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("keystore", keyStoreKeyring)
	v.SetDefault("dir", defaultDir())
	v.SetDefault("service", phiguard.DefaultKeyRecordID.Service)
	v.SetDefault("account", phiguard.DefaultKeyRecordID.Account)
	v.SetDefault("algorithm", string(phiguard.AlgorithmAES256GCM))
	v.SetDefault("log_level", "warn")
	v.SetDefault("keyring_password", "")
	return v
}

func defaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".phiguard"
	}
	return filepath.Join(home, ".phiguard")
}

// loadConfig reads the config file, if any, and decodes the merged settings.
func loadConfig(v *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

func (c Config) recordID() phiguard.KeyRecordID {
	return phiguard.KeyRecordID{Service: c.Service, Account: c.Account}
}

func (c Config) keyStore() (phiguard.KeyStore, error) {
	switch strings.ToLower(c.KeyStore) {
	case keyStoreKeyring:
		prompt := kr.TerminalPrompt
		if c.KeyringPassword != "" {
			prompt = kr.FixedStringPrompt(c.KeyringPassword)
		}
		return keyring.New(keyring.WithFileBackend(filepath.Join(c.Dir, "keyring"), prompt)), nil
	case keyStoreFile:
		return filestore.New(filepath.Join(c.Dir, "keys"))
	case keyStoreMemory:
		return phiguard.NewMemoryKeyStore(), nil
	default:
		return nil, fmt.Errorf("unknown keystore %q (want %s, %s or %s)", c.KeyStore, keyStoreKeyring, keyStoreFile, keyStoreMemory)
	}
}

func (c Config) logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
