package config

import "time"

// Config is the root configuration for the agent daemon.
type Config struct {
	RPC         RPCConfig         `json:"rpc"`
	RemoteStore RemoteStoreConfig `json:"remote_store"`
	Sync        SyncConfig        `json:"sync"`
	Dispatch    DispatchConfig    `json:"dispatch"`
	Approval    ApprovalConfig    `json:"approval"`
	Metrics     MetricsConfig     `json:"metrics"`
	Events      EventsConfig      `json:"events"`
}

// RPCConfig holds the external RPC listener settings.
type RPCConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// RemoteStoreConfig configures the Sync Bridge's remote store client.
type RemoteStoreConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	RootCAPath string `json:"root_ca_path,omitempty"`
}

// SyncConfig toggles and tunes the Sync Bridge.
type SyncConfig struct {
	Enabled *bool `json:"enabled"` // default: true
}

// IsEnabled returns true if the sync bridge is enabled (default: true).
func (c SyncConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// DispatchConfig holds the Task Dispatcher's bounded worker pool settings.
type DispatchConfig struct {
	PoolWidth int `json:"pool_width"` // default: 5
}

// ApprovalConfig holds Approval Workflow defaults.
type ApprovalConfig struct {
	DefaultExpiryHours    int    `json:"default_expiry_hours"`    // default: 24
	HousekeepingSchedule  string `json:"housekeeping_schedule"`   // default: "@every 30s"
}

// MetricsConfig holds the Metrics Ticker's refresh cadence.
type MetricsConfig struct {
	TickerInterval Duration `json:"ticker_interval,omitempty"` // default: 5s
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int    `json:"buffer_size"`
	LogLevel   string `json:"log_level"` // "debug" | "info" | "warn" | "error" (default: "info")
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
