package entity

import "time"

type ConfigArchive struct {
	Enabled      bool   `json:"enabled"`
	ArchiveAfter int    `json:"archive_after"`
	Type         string `json:"type,omitempty"`
	URL          string `json:"url,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
}

type ConfigPurge struct {
	Enabled    bool `json:"enabled"`
	PurgeAfter int  `json:"purge_after"`
}

type ConfigTelemetry struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url,omitempty"`
}

// Config is the cluster wide configuration.
type Config struct {
	ID               string          `json:"_id,omitempty"`
	MaxmindKey       string          `json:"maxmind_key,omitempty"`
	CACertificate    string          `json:"ca_certificate,omitempty"`
	CAPrivate        string          `json:"ca_private,omitempty"`
	ACMEDirectoryURL string          `json:"acme_directory_url,omitempty"`
	Archive          ConfigArchive   `json:"archive"`
	Purge            ConfigPurge     `json:"purge"`
	Telemetry        ConfigTelemetry `json:"telemetry"`
}

// Change marks a resource kind mutated since the last apply.
type Change struct {
	ID        string     `json:"_id,omitempty"`
	Name      string     `json:"name"`
	CreatedOn *time.Time `json:"created_on,omitempty"`
}

// ApplyResult is the outcome of pushing pending changes to the cluster.
type ApplyResult struct {
	Succeed bool   `json:"succeed"`
	Message string `json:"message,omitempty"`
}

// HealthStatus reports pending changes and whether an apply is running.
type HealthStatus struct {
	ApplyPending []Change `json:"apply_pendding"`
	ApplyActive  bool     `json:"apply_active"`
}

// Pending reports whether there are changes waiting to be applied.
func (h HealthStatus) Pending() bool {
	return len(h.ApplyPending) > 0
}
