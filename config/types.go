package config

const (
	DefaultFee                  = "0.03"
	DefaultValidatorFeeShareBps = 7500
	DefaultMaxIndexers          = 5
)

// Network identifies the ledger a node joins.
type Network struct {
	// Bootstrap is the hex-encoded genesis writer key. Empty means this node's
	// own log key bootstraps a new network.
	Bootstrap     string `toml:"Bootstrap"`
	AddressPrefix string `toml:"AddressPrefix"`
	// Channel is the hex-encoded 32-byte channel peers rendezvous on.
	Channel string `toml:"Channel"`
}

// Ledger holds the economic and role limits the apply engine enforces.
type Ledger struct {
	// Fee is charged on validator co-signed operations, in token units.
	Fee                  string `toml:"Fee"`
	ValidatorFeeShareBps uint32 `toml:"ValidatorFeeShareBps"`
	MaxIndexers          int    `toml:"MaxIndexers"`
	MaxWriters           int    `toml:"MaxWriters"`
}

// Telemetry points trace export at an OTLP/HTTP collector. An empty Endpoint
// disables export.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	// Headers is a comma-separated list of key=value pairs.
	Headers string `toml:"Headers"`
}

// Ingest throttles operations msbd reads from stdin. Zero RatePerSecond means
// unlimited.
type Ingest struct {
	RatePerSecond float64 `toml:"RatePerSecond"`
	Burst         int     `toml:"Burst"`
}
