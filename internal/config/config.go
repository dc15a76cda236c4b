// Package config provides configuration types and loading for the
// gateway service.
package config

// Config represents the process-environment configuration read once at
// startup. Per §6.6, this is deliberately small: transport host/port,
// the virtual-device listener's port and admin-allow flag, the
// version-check-disabled flag, the mesh state database path, and
// logging. Everything else (scheduler intervals/filters/budgets,
// geofence definitions, trigger patterns, welcome/announce text, MQTT
// mirror settings) lives in the mesh state store's settings table and
// is read at runtime, not here.
type Config struct {
	Transport     TransportConfig     `mapstructure:"transport"`
	VirtualDevice VirtualDeviceConfig `mapstructure:"virtual_device"`
	Store         StoreConfig         `mapstructure:"store"`
	Logging       LoggingConfig       `mapstructure:"logging"`

	// VersionCheckDisabled is loaded from version_check_disabled. No
	// component of the gateway reads it, so it has no effect on startup.
	VersionCheckDisabled bool `mapstructure:"version_check_disabled"`
}

// TransportConfig defines how to reach the physical radio.
type TransportConfig struct {
	Type   string       `mapstructure:"type"` // serial, tcp
	Serial SerialConfig `mapstructure:"serial"`
	TCP    TCPConfig    `mapstructure:"tcp"`
}

// SerialConfig defines serial port connection settings.
type SerialConfig struct {
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`
}

// TCPConfig defines TCP connection settings.
type TCPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// VirtualDeviceConfig defines the auxiliary client listener (§4.5).
type VirtualDeviceConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Addr               string `mapstructure:"addr"`
	AllowAdminCommands bool   `mapstructure:"allow_admin_commands"`
}

// StoreConfig defines where the mesh state database lives.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// OutputConfig configures a single outbound notification sink (stdout,
// file, apprise, webhook). Unlike the rest of Config, these are not
// process-environment configuration: the gateway builds one per element
// of the "outputs" settings entry (a JSON array) when it is constructed,
// so a change to that entry takes effect on the next start.
type OutputConfig struct {
	Type    string
	Enabled bool
	Options map[string]interface{}
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			Type: "serial",
			Serial: SerialConfig{
				Port: "/dev/ttyUSB0",
				Baud: 115200,
			},
			TCP: TCPConfig{
				Host: "localhost",
				Port: 4403,
			},
		},
		VirtualDevice: VirtualDeviceConfig{
			Enabled:            true,
			Addr:               ":4403",
			AllowAdminCommands: false,
		},
		Store: StoreConfig{
			Path: "meshtastic-gateway.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
