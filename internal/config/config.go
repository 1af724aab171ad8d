// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Discovery configures the opportunity scan against Dexscreener-style search endpoints.
type Discovery struct {
	BaseURL            string   `yaml:"base_url"`
	DefaultChain       string   `yaml:"default_chain"`
	Keywords           []string `yaml:"keywords"`
	Chains             []string `yaml:"chains"`
	MaxPairs           int      `yaml:"max_pairs"`
	MaxPairsPerKeyword int      `yaml:"max_pairs_per_keyword"`
}

// Feed configures the live price stream used to mark open positions.
type Feed struct {
	Provider       string `yaml:"provider"` // stub|dexscreener|ws
	RelayURL       string `yaml:"relay_url"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
}

// FilterWeights tunes the composite score applied to surviving opportunities.
type FilterWeights struct {
	Confidence  float64 `yaml:"confidence"`
	Volatility  float64 `yaml:"volatility"`
	VolumeSpike float64 `yaml:"volume_spike"`
	MarketCap   float64 `yaml:"market_cap"`
	AgeDecay    float64 `yaml:"age_decay"`
}

// Filter encodes the hard exclusion rules every opportunity must pass before entry.
type Filter struct {
	MaxMarketCapUSD  float64       `yaml:"max_market_cap_usd"`
	MaxAgeHours      float64       `yaml:"max_age_hours"`
	MinVolatilityPct float64       `yaml:"min_volatility_pct"`
	MinVolumeSpike   float64       `yaml:"min_volume_spike"`
	MinConfidence    float64       `yaml:"min_confidence"`
	MinLiquidityUSD  float64       `yaml:"min_liquidity_usd"`
	MaxOwnershipRisk float64       `yaml:"max_ownership_risk"`
	Weights          FilterWeights `yaml:"weights"`
}

// Sizing bounds how much capital a single entry may commit.
type Sizing struct {
	StartingBalanceSOL float64 `yaml:"starting_balance_sol"`
	AllocationFraction float64 `yaml:"allocation_fraction"`
	MaxPositionSOL     float64 `yaml:"max_position_sol"`
	MinPositionSOL     float64 `yaml:"min_position_sol"`
	AdvantageCap       float64 `yaml:"advantage_cap"`
	MaxOpenPositions   int     `yaml:"max_open_positions"`
	ReinvestRatio      float64 `yaml:"reinvest_ratio"`
}

// Exits holds the per-position exit thresholds evaluated on every monitoring tick.
type Exits struct {
	TargetProfitPct   float64 `yaml:"target_profit_pct"`
	StopLossPct       float64 `yaml:"stop_loss_pct"`
	TrailingStopPct   float64 `yaml:"trailing_stop_pct"`
	TrailingArmPct    float64 `yaml:"trailing_arm_pct"`
	MaxHoldMinutes    int     `yaml:"max_hold_minutes"`
	ScaleThresholdPct float64 `yaml:"scale_threshold_pct"`
}

// Rotation tunes the advisory health checks run over open positions.
type Rotation struct {
	GraduationMcapUSD float64 `yaml:"graduation_mcap_usd"`
	StaleAfterMinutes int     `yaml:"stale_after_minutes"`
	VolumeDecayRatio  float64 `yaml:"volume_decay_ratio"`
	MoonbagMultiple   float64 `yaml:"moonbag_multiple"`
	UnwindPct         float64 `yaml:"unwind_pct"`
	IntervalMs        int     `yaml:"interval_ms"`
}

// Engine sets the cadence of the scan and monitoring loops.
type Engine struct {
	ScanIntervalMs    int `yaml:"scan_interval_ms"`
	MonitorIntervalMs int `yaml:"monitor_interval_ms"`
	MaxSlippageBps    int `yaml:"max_slippage_bps"`
}

// History configures the closed-trade record on disk.
type History struct {
	Path string `yaml:"path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App       `yaml:"app"`
	Discovery Discovery `yaml:"discovery"`
	Feed      Feed      `yaml:"feed"`
	Filter    Filter    `yaml:"filter"`
	Sizing    Sizing    `yaml:"sizing"`
	Exits     Exits     `yaml:"exits"`
	Rotation  Rotation  `yaml:"rotation"`
	Engine    Engine    `yaml:"engine"`
	Endpoints Endpoints `yaml:"endpoints"`
	Wallet    Wallet    `yaml:"wallet"`
	History   History   `yaml:"history"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
