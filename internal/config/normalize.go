package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProvider()
	c.normalizeTelemetry()
	c.normalizeRedis()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.AssetDir) == "" {
		c.Paths.AssetDir = defaultAssetDir
	}
	if c.Paths.AssetDir, err = expandPath(c.Paths.AssetDir); err != nil {
		return fmt.Errorf("paths.asset_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeProvider() {
	c.Provider.Name = strings.ToLower(strings.TrimSpace(c.Provider.Name))
	if c.Provider.Name == "" {
		c.Provider.Name = defaultProviderName
	}
	c.Provider.BaseURL = strings.TrimSpace(c.Provider.BaseURL)
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = defaultProviderBaseURL
	}
	c.Provider.APIKey = strings.TrimSpace(c.Provider.APIKey)
	if c.Provider.APIKey == "" {
		if value, ok := os.LookupEnv("DOCFORGE_PROVIDER_API_KEY"); ok {
			c.Provider.APIKey = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Provider.Model) == "" {
		c.Provider.Model = defaultProviderModel
	}
	if c.Provider.TimeoutSeconds <= 0 {
		c.Provider.TimeoutSeconds = defaultProviderTimeout
	}
}

func (c *Config) normalizeTelemetry() {
	c.Telemetry.Exporter = strings.ToLower(strings.TrimSpace(c.Telemetry.Exporter))
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = defaultTelemetryExporter
	}
	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = defaultServiceName
	}
}

func (c *Config) normalizeRedis() {
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	if c.Redis.Addr == "" {
		c.Redis.Addr = defaultRedisAddr
	}
	c.Redis.ChannelPrefix = strings.TrimSpace(c.Redis.ChannelPrefix)
	if c.Redis.ChannelPrefix == "" {
		c.Redis.ChannelPrefix = defaultRedisPrefix
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
