package core

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings represents the main configuration for the application
type Settings struct {
	Database DatabaseSettings `yaml:"database"` // Registry backend selection
	Keeper   KeeperSettings   `yaml:"keeper"`   // Automation daemon configuration
	Oracle   OracleSettings   `yaml:"oracle"`   // Price feed behavior
	Gateway  GatewaySettings  `yaml:"gateway"`  // Execution handshake behavior
	Venue    VenueSettings    `yaml:"venue"`    // Swap venue wiring
	API      APISettings      `yaml:"api"`      // HTTP automation API
	Telegram TelegramSettings `yaml:"telegram"` // Telegram notification settings
	Audit    AuditSettings    `yaml:"audit"`    // Event journal
	Log      LogSettings      `yaml:"log"`      // Logger tuning
}

// DatabaseSettings selects and locates the registry backend
type DatabaseSettings struct {
	Driver string `yaml:"driver"` // "buntdb" (default) or "sqlite"
	Path   string `yaml:"path"`   // file path, ":memory:" for ephemeral buntdb
}

// KeeperSettings drives the automation daemon
type KeeperSettings struct {
	Interval Duration        `yaml:"interval"` // poll cadence of the watch loop
	Orders   []OrderSettings `yaml:"orders"`   // stops configured and watched at boot
}

// OrderSettings bootstraps one trailing stop at startup. Already configured
// ids are watched without being reconfigured.
type OrderSettings struct {
	ID          string        `yaml:"id"`           // 32-byte hex order id
	Oracle      string        `yaml:"oracle"`       // feed reference
	InitialStop string        `yaml:"initial_stop"` // decimal price
	DistanceBps int64         `yaml:"distance_bps"`
	UpdateEvery Duration      `yaml:"update_every"`
	Exec        *ExecSettings `yaml:"exec,omitempty"` // optional execution intent
}

// ExecSettings is the execution intent registered with the keeper for an
// order; when present the keeper settles the order once its stop is hit.
type ExecSettings struct {
	Maker        string `yaml:"maker"`
	Receiver     string `yaml:"receiver,omitempty"`
	MakerAsset   string `yaml:"maker_asset"`
	TakerAsset   string `yaml:"taker_asset"`
	MakingAmount string `yaml:"making_amount"` // decimal amount
	MinOutput    string `yaml:"min_output"`    // decimal amount
	Venue        string `yaml:"venue"`
	Payload      string `yaml:"payload,omitempty"` // hex blob passed to the venue
}

// OracleSettings bounds oracle reads
type OracleSettings struct {
	Timeout   Duration            `yaml:"timeout"`     // per-read deadline
	MaxAge    Duration            `yaml:"max_age"`     // reject older quotes, 0 disables
	Binance   BinanceFeedSettings `yaml:"binance"`     // "binance:" scheme
	HTTPFeeds []HTTPFeedSettings  `yaml:"http_feeds"`  // extra JSON-over-HTTP feeds
}

// BinanceFeedSettings enables the Binance spot ticker feed
type BinanceFeedSettings struct {
	Enabled bool `yaml:"enabled"`
}

// HTTPFeedSettings registers one JSON-over-HTTP price feed
type HTTPFeedSettings struct {
	Scheme    string   `yaml:"scheme"`     // oracle reference scheme
	BaseURL   string   `yaml:"base_url"`   // target appended per reference
	PricePath string   `yaml:"price_path"` // gjson path to the price value
	Timeout   Duration `yaml:"timeout"`
	Retries   int      `yaml:"retries"`
}

// GatewaySettings bounds the execution handshake
type GatewaySettings struct {
	Escrow      string   `yaml:"escrow"`       // gateway custody account
	SwapTimeout Duration `yaml:"swap_timeout"` // venue deadline, ExecutionTimeout after
}

// VenueSettings wires swap venues into the gateway
type VenueSettings struct {
	Paper PaperVenueSettings `yaml:"paper"`
}

// PaperVenueSettings configures the simulated venue and its ledger
type PaperVenueSettings struct {
	Enabled bool                `yaml:"enabled"`
	Account string              `yaml:"account"` // venue liquidity account
	FeeBps  int64               `yaml:"fee_bps"`
	Rates   []PaperRateSettings `yaml:"rates"`
	Funds   []PaperFundSettings `yaml:"funds"`
}

// PaperRateSettings fixes the venue exchange rate for one asset pair
type PaperRateSettings struct {
	In   string `yaml:"in"`
	Out  string `yaml:"out"`
	Rate string `yaml:"rate"` // decimal units of Out per unit of In
}

// PaperFundSettings credits a ledger account at boot
type PaperFundSettings struct {
	Owner  string `yaml:"owner"`
	Asset  string `yaml:"asset"`
	Amount string `yaml:"amount"` // decimal amount
}

// APISettings exposes the automation API
type APISettings struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Token   string `yaml:"token"` // bearer token for mutating routes
}

// TelegramSettings holds configuration for Telegram integration
type TelegramSettings struct {
	Enabled bool   `yaml:"enabled"` // Whether Telegram notifications are enabled
	Token   string `yaml:"token"`   // Telegram bot token
	Users   []int  `yaml:"users"`   // List of authorized user IDs
}

// AuditSettings enables the append-only event journal
type AuditSettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LogSettings tunes the logger beyond the environment defaults
type LogSettings struct {
	Level      string `yaml:"level"`
	TimeFormat string `yaml:"time_format"`
	Colored    bool   `yaml:"colored"`
	JSON       bool   `yaml:"json"`
	File       string `yaml:"file"`         // rotating file sink, empty disables
	MaxSizeMB  int    `yaml:"max_size_mb"`  // rotation threshold
	MaxBackups int    `yaml:"max_backups"`  // rotated files kept
	MaxAgeDays int    `yaml:"max_age_days"` // rotated file retention
}

// Environment override for the API token so it can stay out of config files
const envAPIToken = "STOPKEEP_API_TOKEN"

// LoadSettings reads a YAML settings file and applies defaults.
func LoadSettings(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	settings := new(Settings)
	if err := yaml.Unmarshal(raw, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}

	settings.ApplyDefaults()
	if token := os.Getenv(envAPIToken); token != "" {
		settings.API.Token = token
	}
	return settings, nil
}

// DefaultSettings returns the settings used when no file is given.
func DefaultSettings() *Settings {
	settings := new(Settings)
	settings.ApplyDefaults()
	return settings
}

// ApplyDefaults fills unset fields in place. It is idempotent, so
// hand-built settings can be passed through it safely.
func (s *Settings) ApplyDefaults() {
	if s.Database.Driver == "" {
		s.Database.Driver = "buntdb"
	}
	if s.Database.Path == "" {
		s.Database.Path = "stopkeep.db"
	}
	if s.Keeper.Interval <= 0 {
		s.Keeper.Interval = Duration(time.Minute)
	}
	if s.Oracle.Timeout <= 0 {
		s.Oracle.Timeout = Duration(10 * time.Second)
	}
	if s.Gateway.SwapTimeout <= 0 {
		s.Gateway.SwapTimeout = Duration(30 * time.Second)
	}
	if s.API.Addr == "" {
		s.API.Addr = ":8080"
	}
	if s.Audit.Path == "" {
		s.Audit.Path = "stopkeep-audit"
	}
	if s.Log.MaxSizeMB <= 0 {
		s.Log.MaxSizeMB = 50
	}
	if s.Log.MaxBackups <= 0 {
		s.Log.MaxBackups = 5
	}
	if s.Log.MaxAgeDays <= 0 {
		s.Log.MaxAgeDays = 14
	}
}
