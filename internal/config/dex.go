// Package config also contains DEX-specific configuration surfaces.
package config

// Endpoints defines the rotation pools for network connectivity and swap routing.
type Endpoints struct {
	RPCURLs           []string `yaml:"rpc_urls"`            // ordered ledger endpoint pool
	RouterBases       []string `yaml:"router_bases"`        // ordered routing-service pool, e.g. https://quote-api.jup.ag
	FallbackBases     []string `yaml:"fallback_bases"`      // alternative aggregators tried after the primary pool
	Commitment        string   `yaml:"commitment"`          // processed|confirmed|finalized
	RetriesPerBase    int      `yaml:"retries_per_base"`    // backoff attempts before rotating
	QuoteRatePerSec   float64  `yaml:"quote_rate_per_sec"`  // per-base quote request throttle
	ConfirmTimeoutSec int      `yaml:"confirm_timeout_sec"` // confirmation poll budget
	MinOutLamports    uint64   `yaml:"min_out_lamports"`    // dust threshold; smaller quotes mean no liquidity
}

// Wallet stores encrypted or env-backed signing material metadata.
type Wallet struct {
	PrivateKeyBase58 string `yaml:"private_key_base58"`
}
