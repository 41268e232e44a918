// Package config provides configuration types and loading for katra.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Root, TCP, Tiers, Consolidation.
type Config struct {
	Root          string          `json:"root" envconfig:"ROOT"`
	TCP           TCPConfig       `json:"tcp"`
	Tiers         TiersConfig     `json:"tiers"`
	Consolidation Consolidation   `json:"consolidation"`
}

// ---------------------------------------------------------------------------
// TCP – transport networking
// ---------------------------------------------------------------------------

// TCPConfig groups the TCP transport's networking settings.
type TCPConfig struct {
	Port        int    `json:"port" envconfig:"TCP_PORT"`
	Bind        string `json:"bind" envconfig:"TCP_BIND"`
	MaxClients  int    `json:"maxClients" envconfig:"TCP_MAX_CLIENTS"`
	HealthCheck bool   `json:"healthCheck" envconfig:"TCP_HEALTH_CHECK"`
}

// ---------------------------------------------------------------------------
// Tiers – hot/warm tier retention and size caps
// ---------------------------------------------------------------------------

// TiersConfig groups hot-tier and warm-tier retention/size settings.
type TiersConfig struct {
	Tier1RetentionDays int `json:"tier1RetentionDays" envconfig:"TIER1_RETENTION_DAYS"`
	Tier2RetentionDays int `json:"tier2RetentionDays" envconfig:"TIER2_RETENTION_DAYS"`
	Tier1MaxFileMB     int `json:"tier1MaxFileMB" envconfig:"TIER1_MAX_FILE_MB"`
	Tier2MaxFileMB     int `json:"tier2MaxFileMB" envconfig:"TIER2_MAX_FILE_MB"`
}

// ---------------------------------------------------------------------------
// Consolidation – periodic archival job cadence
// ---------------------------------------------------------------------------

// Consolidation groups the consolidation engine's scheduling settings.
type Consolidation struct {
	IntervalHours int `json:"intervalHours" envconfig:"CONSOLIDATION_INTERVAL_HOURS"`
	MaxAgeDays    int `json:"maxAgeDays" envconfig:"CONSOLIDATION_MAX_AGE_DAYS"`
}

// DefaultConfig returns sensible katra defaults, matching spec.md §6.
func DefaultConfig() *Config {
	return &Config{
		TCP: TCPConfig{
			Port:        3141,
			Bind:        "127.0.0.1",
			MaxClients:  32,
			HealthCheck: true,
		},
		Tiers: TiersConfig{
			Tier1RetentionDays: 90,
			Tier2RetentionDays: 365,
			Tier1MaxFileMB:     50,
			Tier2MaxFileMB:     50,
		},
		Consolidation: Consolidation{
			IntervalHours: 6,
			MaxAgeDays:    90,
		},
	}
}

// TickInterval returns the consolidation cadence as a time.Duration.
func (c Consolidation) TickInterval() time.Duration {
	if c.IntervalHours <= 0 {
		return 6 * time.Hour
	}
	return time.Duration(c.IntervalHours) * time.Hour
}
