package domain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type StorageDriver string

const (
	StorageDriverMemory     StorageDriver = "memory"
	StorageDriverRedis      StorageDriver = "redis"
	StorageDriverPostgreSQL StorageDriver = "postgresql"
)

type EngineConfig struct {
	Address  string `mapstructure:"address"`
	LogLevel string `mapstructure:"log_level"`

	Site      SiteConfig      `mapstructure:"site"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Google    GoogleConfig    `mapstructure:"google"`
	Engine    RuntimeConfig   `mapstructure:"engine"`
}

type SiteConfig struct {
	Name        string `mapstructure:"name"`
	URL         string `mapstructure:"url"`
	Description string `mapstructure:"description"`
	AdminEmail  string `mapstructure:"admin_email"`
}

func (c SiteConfig) Variables() map[string]string {
	return map[string]string{
		"site_name":        c.Name,
		"site_url":         c.URL,
		"site_description": c.Description,
		"admin_email":      c.AdminEmail,
	}
}

type StorageConfig struct {
	Driver     StorageDriver    `mapstructure:"driver"`
	Redis      RedisConfig      `mapstructure:"redis"`
	PostgreSQL PostgreSQLConfig `mapstructure:"postgresql"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type PostgreSQLConfig struct {
	URI         string `mapstructure:"uri"`
	TablePrefix string `mapstructure:"table_prefix"`
}

type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type ProvidersConfig struct {
	OpenAI     ProviderConfig `mapstructure:"openai"`
	OpenRouter ProviderConfig `mapstructure:"openrouter"`
	Anthropic  ProviderConfig `mapstructure:"anthropic"`
	Gemini     ProviderConfig `mapstructure:"gemini"`
	Perplexity ProviderConfig `mapstructure:"perplexity"`
	Unsplash   ProviderConfig `mapstructure:"unsplash"`
	Firecrawl  ProviderConfig `mapstructure:"firecrawl"`
}

type GoogleConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
}

type RuntimeConfig struct {
	NodeDelay             time.Duration `mapstructure:"node_delay"`
	RSSLockTTL            time.Duration `mapstructure:"rss_lock_ttl"`
	HTTPTimeout           time.Duration `mapstructure:"http_timeout"`
	ModelTimeout          time.Duration `mapstructure:"model_timeout"`
	SkipReconvergingNodes bool          `mapstructure:"skip_reconverging_nodes"`
}

type ConfigManager interface {
	GetConfig(ctx context.Context) (EngineConfig, error)
	ConfigFileUsed() string
	ResetConfig(ctx context.Context) error
}

type configManager struct {
	viper *viper.Viper
}

// NewConfigManager loads configuration from defaults, an optional config file
// and AUTOFLOW_* environment variables. configFile overrides the search path.
func NewConfigManager(configFile string) (ConfigManager, error) {
	v := viper.New()

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("AUTOFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envMappings := map[string]string{
		"providers.openai.api_key":     "OPENAI_API_KEY",
		"providers.openrouter.api_key": "OPENROUTER_API_KEY",
		"providers.anthropic.api_key":  "ANTHROPIC_API_KEY",
		"providers.gemini.api_key":     "GEMINI_API_KEY",
		"providers.perplexity.api_key": "PERPLEXITY_API_KEY",
		"providers.unsplash.api_key":   "UNSPLASH_ACCESS_KEY",
		"providers.firecrawl.api_key":  "FIRECRAWL_API_KEY",
	}

	for configKey, envVar := range envMappings {
		if err := v.BindEnv(configKey, "AUTOFLOW_"+strings.ToUpper(strings.ReplaceAll(configKey, ".", "_")), envVar); err != nil {
			log.Warn().Err(err).Msgf("Failed to bind environment variable %s for %s", envVar, configKey)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.autoflow")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("Config file not found, using environment variables and defaults")
	} else {
		log.Debug().Msgf("Using config file: %s", v.ConfigFileUsed())
	}

	return &configManager{
		viper: v,
	}, nil
}

func (m *configManager) GetConfig(ctx context.Context) (EngineConfig, error) {
	var config EngineConfig
	if err := m.viper.Unmarshal(&config); err != nil {
		return EngineConfig{}, fmt.Errorf("unable to decode config: %w", err)
	}

	switch config.Storage.Driver {
	case StorageDriverMemory, StorageDriverRedis, StorageDriverPostgreSQL:
	default:
		return EngineConfig{}, fmt.Errorf("unknown storage driver %q", config.Storage.Driver)
	}

	return config, nil
}

func (m *configManager) ConfigFileUsed() string {
	return m.viper.ConfigFileUsed()
}

func (m *configManager) ResetConfig(ctx context.Context) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".autoflow", "config.yaml")
	if err := os.Remove(configPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove config file: %w", err)
	}

	for key := range m.viper.AllSettings() {
		m.viper.Set(key, nil)
	}

	setDefaults(m.viper)

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("address", ":8081")
	v.SetDefault("log_level", "info")

	v.SetDefault("site.name", "")
	v.SetDefault("site.url", "")
	v.SetDefault("site.description", "")
	v.SetDefault("site.admin_email", "")

	v.SetDefault("storage.driver", string(StorageDriverMemory))
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.username", "")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key_prefix", "autoflow")
	v.SetDefault("storage.postgresql.uri", "")
	v.SetDefault("storage.postgresql.table_prefix", "autoflow_")

	for _, provider := range []string{"openai", "openrouter", "anthropic", "gemini", "perplexity", "unsplash", "firecrawl"} {
		v.SetDefault("providers."+provider+".api_key", "")
		v.SetDefault("providers."+provider+".base_url", "")
	}
	v.SetDefault("providers.openrouter.base_url", "https://openrouter.ai/api/v1")

	v.SetDefault("google.credentials_file", "")

	v.SetDefault("engine.node_delay", "0s")
	v.SetDefault("engine.rss_lock_ttl", "60s")
	v.SetDefault("engine.http_timeout", "60s")
	v.SetDefault("engine.model_timeout", "600s")
	v.SetDefault("engine.skip_reconverging_nodes", false)
}
