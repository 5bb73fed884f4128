package server

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config represents the complete server configuration.
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Game   GameSettings   `hcl:"game,block"`
}

// ServerSettings contains transport-level configuration.
type ServerSettings struct {
	Address    string `hcl:"address,optional"`
	ListenPort int    `hcl:"listen_port,optional"`
	BrokerURL  string `hcl:"broker_url,optional"`
	LogLevel   string `hcl:"log_level,optional"`
}

// GameSettings contains the table stakes and timing knobs.
type GameSettings struct {
	SmallBlind        int `hcl:"small_blind,optional"`
	BigBlind          int `hcl:"big_blind,optional"`
	StartingTiles     int `hcl:"starting_tiles,optional"`
	TurnTimeoutMS     int `hcl:"turn_timeout_ms,optional"`
	RevealDelayMS     int `hcl:"reveal_delay_ms,optional"`
	DisconnectGraceMS int `hcl:"disconnect_grace_ms,optional"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Address:    "",
			ListenPort: 3001,
			LogLevel:   "info",
		},
		Game: GameSettings{
			SmallBlind:        10,
			BigBlind:          20,
			StartingTiles:     1000,
			TurnTimeoutMS:     30000,
			RevealDelayMS:     5000,
			DisconnectGraceMS: 60000,
		},
	}
}

// LoadConfig loads configuration from an HCL file. A missing file yields
// the defaults.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	defaults := DefaultConfig()
	if config.Server.ListenPort == 0 {
		config.Server.ListenPort = defaults.Server.ListenPort
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = defaults.Server.LogLevel
	}
	if config.Game.SmallBlind == 0 {
		config.Game.SmallBlind = defaults.Game.SmallBlind
	}
	if config.Game.BigBlind == 0 {
		config.Game.BigBlind = defaults.Game.BigBlind
	}
	if config.Game.StartingTiles == 0 {
		config.Game.StartingTiles = defaults.Game.StartingTiles
	}
	if config.Game.TurnTimeoutMS == 0 {
		config.Game.TurnTimeoutMS = defaults.Game.TurnTimeoutMS
	}
	if config.Game.RevealDelayMS == 0 {
		config.Game.RevealDelayMS = defaults.Game.RevealDelayMS
	}
	if config.Game.DisconnectGraceMS == 0 {
		config.Game.DisconnectGraceMS = defaults.Game.DisconnectGraceMS
	}

	return &config, nil
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Server.ListenPort < 1 || c.Server.ListenPort > 65535 {
		return fmt.Errorf("invalid listen_port: %d", c.Server.ListenPort)
	}
	if c.Game.SmallBlind <= 0 {
		return fmt.Errorf("small_blind must be positive")
	}
	if c.Game.BigBlind <= c.Game.SmallBlind {
		return fmt.Errorf("big_blind must be greater than small_blind")
	}
	if c.Game.StartingTiles < c.Game.BigBlind {
		return fmt.Errorf("starting_tiles must cover the big blind")
	}
	if c.Game.TurnTimeoutMS <= 0 || c.Game.RevealDelayMS <= 0 || c.Game.DisconnectGraceMS <= 0 {
		return fmt.Errorf("timers must be positive")
	}
	return nil
}

// ListenAddr returns the address to bind the HTTP listener to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.ListenPort)
}
