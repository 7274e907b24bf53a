package tool

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/moyoez/productshot/types"
)

var (
	ConfigPath    = "config.yaml" // be aware that it can be changed, default to ./config.yaml
	CurrentConfig types.AppConfig
)

const DefaultConcurrency = 3

func defaultConfig() types.AppConfig {
	return types.AppConfig{
		Server: types.ServerConfig{
			Port:        8000,
			Protocol:    "http",
			CSRF:        true,
			MaxUploadMB: 20,
			UploadRate:  10,
			UploadBurst: 20,
			Storage: types.StorageConfig{
				Driver:   "local",
				LocalDir: "media",
				BaseURL:  "/media",
			},
			Repository: types.RepoConfig{
				Driver: "memory",
			},
		},
		Client: types.ClientConfig{
			BaseURL:     "http://127.0.0.1:8000",
			Concurrency: DefaultConcurrency,
		},
	}
}

func LoadConfig(path string) (types.AppConfig, error) {
	if path == "" {
		path = ConfigPath
	}
	ConfigPath = path

	cfg := defaultConfig()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if writeErr := writeDefaultConfig(path, cfg); writeErr != nil {
				return cfg, fmt.Errorf("config file not found, and failed to generate default config: %v", writeErr)
			}
			DefaultLogger.Infof("Created new config file at %s", path)
			CurrentConfig = cfg
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if info.IsDir() {
		return cfg, fmt.Errorf("config file path is a directory: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %v", err)
	}
	if cfg.Client.Concurrency <= 0 {
		cfg.Client.Concurrency = DefaultConcurrency
	}
	if cfg.Server.Protocol == "" {
		cfg.Server.Protocol = "http"
	}

	CurrentConfig = cfg
	return cfg, nil
}

// ApplyFlags merges CLI overrides into the loaded config. Flags win over the file.
func ApplyFlags(cfg *types.AppConfig, flags types.Config) {
	if flags.UsePort > 0 {
		cfg.Server.Port = flags.UsePort
	}
	if flags.UseHttps {
		cfg.Server.Protocol = "https"
	}
	if flags.UseBaseURL != "" {
		cfg.Client.BaseURL = strings.TrimRight(flags.UseBaseURL, "/")
	}
	if flags.UseCSRFToken != "" {
		cfg.Client.CSRFToken = flags.UseCSRFToken
	}
	if flags.UseUser != "" {
		cfg.Client.User = flags.UseUser
	}
	if flags.Concurrency > 0 {
		cfg.Client.Concurrency = flags.Concurrency
	}
	if flags.SkipNotify {
		cfg.Server.NotifySocket = ""
	}
	CurrentConfig = *cfg
}

func writeDefaultConfig(path string, cfg types.AppConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func GetCurrentConfig() *types.AppConfig {
	return &CurrentConfig
}

// PersistAppConfig updates the in-memory config and writes it back to the config file.
func PersistAppConfig(cfg *types.AppConfig) {
	if cfg == nil {
		return
	}
	CurrentConfig = *cfg
	if err := writeDefaultConfig(ConfigPath, CurrentConfig); err != nil {
		DefaultLogger.Warnf("Failed to persist config: %v", err)
	}
}
