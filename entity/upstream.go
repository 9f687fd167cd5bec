package entity

import "time"

type Protocol string

const (
	ProtocolHTTP    Protocol = "HTTP"
	ProtocolHTTPS   Protocol = "HTTPS"
	ProtocolFastCGI Protocol = "FASTCGI"
	ProtocolAJP     Protocol = "AJP"
)

type SessionPersistenceType string

const (
	PersistenceNone   SessionPersistenceType = "NONE"
	PersistenceCookie SessionPersistenceType = "COOKIE"
)

// Target is a single backend of an upstream.
type Target struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Weight int    `json:"weight"`
}

type SessionPersistence struct {
	Type         SessionPersistenceType `json:"type"`
	CookieName   string                 `json:"cookie_name,omitempty"`
	CookieDomain string                 `json:"cookie_domain,omitempty"`
	CookiePath   string                 `json:"cookie_path,omitempty"`
	CookieExpire int                    `json:"cookie_expire,omitempty"`
}

type Upstream struct {
	ID           string              `json:"_id,omitempty"`
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	Type         string              `json:"type"`
	Protocol     Protocol            `json:"protocol"`
	ScriptPath   string              `json:"script_path,omitempty"`
	Index        string              `json:"index,omitempty"`
	Retry        int                 `json:"retry"`
	RetryTimeout int                 `json:"retry_timeout"`
	ConnTimeout  int                 `json:"conn_timeout"`
	Targets      []Target            `json:"targets"`
	Persist      *SessionPersistence `json:"persist,omitempty"`
}

type UpstreamTargetStatus struct {
	Endpoint string `json:"endpoint"`
	Healthy  bool   `json:"healthy"`
}

type UpstreamStatus struct {
	ID      string                 `json:"_id,omitempty"`
	Name    string                 `json:"name"`
	Healthy bool                   `json:"healthy"`
	Targets []UpstreamTargetStatus `json:"targets"`
}

// NodeStatus is the health report of a single cluster node.
type NodeStatus struct {
	ID        string           `json:"_id,omitempty"`
	Name      string           `json:"name"`
	SCN       string           `json:"scn"`
	Version   string           `json:"version"`
	Role      string           `json:"role"`
	NetSend   int64            `json:"net_send"`
	NetRecv   int64            `json:"net_recv"`
	Healthy   bool             `json:"healthy"`
	LastCheck *time.Time       `json:"last_check,omitempty"`
	Upstreams []UpstreamStatus `json:"upstreams"`
}
