package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Load reads the process-environment configuration from viper.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	cfg.Transport.Type = viper.GetString("transport.type")
	if cfg.Transport.Type == "" {
		cfg.Transport.Type = "serial"
	}

	cfg.Transport.Serial.Port = viper.GetString("transport.serial.port")
	cfg.Transport.Serial.Baud = viper.GetInt("transport.serial.baud")
	if cfg.Transport.Serial.Baud == 0 {
		cfg.Transport.Serial.Baud = 115200
	}

	cfg.Transport.TCP.Host = viper.GetString("transport.tcp.host")
	cfg.Transport.TCP.Port = viper.GetInt("transport.tcp.port")
	if cfg.Transport.TCP.Port == 0 {
		cfg.Transport.TCP.Port = 4403
	}

	if viper.IsSet("virtual_device.enabled") {
		cfg.VirtualDevice.Enabled = viper.GetBool("virtual_device.enabled")
	}
	if addr := viper.GetString("virtual_device.addr"); addr != "" {
		cfg.VirtualDevice.Addr = addr
	}
	cfg.VirtualDevice.AllowAdminCommands = viper.GetBool("virtual_device.allow_admin_commands")

	if path := viper.GetString("store.path"); path != "" {
		cfg.Store.Path = path
	}

	cfg.VersionCheckDisabled = viper.GetBool("version_check_disabled")

	cfg.Logging.Level = viper.GetString("logging.level")
	cfg.Logging.Format = viper.GetString("logging.format")
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Transport.Type {
	case "serial", "tcp":
	case "":
		return fmt.Errorf("transport.type is required")
	default:
		return fmt.Errorf("invalid transport.type: %s (must be serial or tcp)", c.Transport.Type)
	}

	switch c.Transport.Type {
	case "serial":
		if c.Transport.Serial.Port == "" {
			return fmt.Errorf("transport.serial.port is required for serial transport")
		}
	case "tcp":
		if c.Transport.TCP.Host == "" {
			return fmt.Errorf("transport.tcp.host is required for tcp transport")
		}
	}

	if c.VirtualDevice.Enabled && c.VirtualDevice.Addr == "" {
		return fmt.Errorf("virtual_device.addr is required when virtual_device.enabled is true")
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}

	return nil
}
