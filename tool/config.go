package tool

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chemora/batchup/types"
)

var (
	ConfigPath    = "config.yaml" // be aware that it can be changed, default to ./config.yaml
	CurrentConfig types.AppConfig
)

func defaultConfig() types.AppConfig {
	return types.AppConfig{
		Port:          8317,
		Endpoint:      "http://127.0.0.1:9000/api/v1/assets/upload",
		Destination:   "products",
		TokenEnv:      "BATCHUP_TOKEN",
		SessionTTLMin: 60,
		Policy: types.PolicyConfig{
			AllowedKinds: []string{"image/jpeg", "image/png", "image/webp", "application/pdf"},
			MinSize:      1,               // zero-byte selections are corrupt, reject them
			MaxSize:      20 * 1024 * 1024,
			Capacity:     10,
		},
		Transform: types.TransformConfig{
			Resize:      true,
			Compress:    true,
			MaxWidth:    1920,
			MaxHeight:   1920,
			Quality:     85,
			Concurrency: 3,
		},
	}
}

// LoadConfig reads config.yaml, writing a default one when missing.
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

	if cfg.Endpoint == "" {
		return cfg, fmt.Errorf("endpoint must not be empty")
	}
	if cfg.Policy.Capacity <= 0 {
		cfg.Policy.Capacity = defaultConfig().Policy.Capacity
	}
	if cfg.Transform.Concurrency <= 0 {
		cfg.Transform.Concurrency = 1
	}

	CurrentConfig = cfg
	return cfg, nil
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

// BearerToken reads the credential from the configured env var.
// Empty result means the transport proceeds unauthenticated.
func BearerToken(cfg *types.AppConfig) string {
	if cfg == nil || cfg.TokenEnv == "" {
		return ""
	}
	return os.Getenv(cfg.TokenEnv)
}
