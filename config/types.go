package config

// RPC configures the HTTP surface.
type RPC struct {
	ListenAddress     string  `toml:"ListenAddress"`
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
	PinSubject        bool    `toml:"PinSubject"`
	Auth              Auth    `toml:"auth"`
}

// Auth configures bearer tokens on the submit route. The secret may be read
// from the environment variable named by HMACSecretEnv.
type Auth struct {
	Enabled          bool   `toml:"Enabled"`
	HMACSecret       string `toml:"HMACSecret"`
	HMACSecretEnv    string `toml:"HMACSecretEnv"`
	Issuer           string `toml:"Issuer"`
	Audience         string `toml:"Audience"`
	ClockSkewSeconds int    `toml:"ClockSkewSeconds"`
}

// Log selects level and optional rotated file output.
type Log struct {
	Level       string `toml:"Level"`
	Environment string `toml:"Environment"`
	File        string `toml:"File"`
	MaxSizeMB   int    `toml:"MaxSizeMB"`
	MaxBackups  int    `toml:"MaxBackups"`
	MaxAgeDays  int    `toml:"MaxAgeDays"`
}

// Telemetry configures OTLP export. An empty endpoint disables it.
type Telemetry struct {
	ServiceName string `toml:"ServiceName"`
	Endpoint    string `toml:"Endpoint"`
	Insecure    bool   `toml:"Insecure"`
	Headers     string `toml:"Headers"`
}

// Journal configures the SQL event journal. An empty driver disables it.
type Journal struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// Export configures periodic reserve snapshots. A zero interval disables them.
type Export struct {
	Dir             string `toml:"Dir"`
	IntervalSeconds int    `toml:"IntervalSeconds"`
}

// Webhook posts committed events to an external endpoint. An empty URL
// disables it.
type Webhook struct {
	URL         string   `toml:"URL"`
	SecretEnv   string   `toml:"SecretEnv"`
	EventTypes  []string `toml:"EventTypes"`
	MaxAttempts int      `toml:"MaxAttempts"`
}

// Global carries operator controls applied at startup.
type Global struct {
	// PausedModules lists modules rejected at startup: lending, oracle or token.
	PausedModules []string `toml:"PausedModules"`
}
