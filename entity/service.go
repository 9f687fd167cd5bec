package entity

type Bind struct {
	Port       int      `json:"port"`
	Protocol   Protocol `json:"protocol"`
	SSLUpgrade bool     `json:"ssl_upgrade"`
}

type Header struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type Redirect struct {
	Code int    `json:"code"`
	URL  string `json:"url"`
}

// Route maps paths of a service to an upstream, a redirect or a static server.
type Route struct {
	Name         string        `json:"name"`
	Type         string        `json:"type"`
	Upstream     *Upstream     `json:"upstream,omitempty"`
	Redirect     *Redirect     `json:"redirect,omitempty"`
	MonitorOnly  bool          `json:"monitor_only"`
	Sensor       *Sensor       `json:"sensor,omitempty"`
	Paths        []string      `json:"paths"`
	Methods      []string      `json:"methods,omitempty"`
	CacheMethods []string      `json:"cache_methods,omitempty"`
	Filters      []RouteFilter `json:"filters,omitempty"`
}

type Service struct {
	ID               string       `json:"_id,omitempty"`
	Name             string       `json:"name"`
	Bindings         []Bind       `json:"bindings"`
	Headers          []Header     `json:"headers,omitempty"`
	Routes           []Route      `json:"routes"`
	BodyLimit        int          `json:"body_limit"`
	Timeout          int          `json:"timeout"`
	Buffer           int          `json:"buffer"`
	Compression      bool         `json:"compression"`
	CompressionTypes []string     `json:"compression_types,omitempty"`
	RateLimit        bool         `json:"rate_limit"`
	RateLimitPerSec  int          `json:"rate_limit_per_sec"`
	SANs             []string     `json:"sans,omitempty"`
	SSLProtocols     []string     `json:"ssl_protocols,omitempty"`
	Certificate      *Certificate `json:"certificate,omitempty"`
	SSLClientCA      string       `json:"ssl_client_ca,omitempty"`
	SSLClientAuth    bool         `json:"ssl_client_auth"`
}

type RouteFilter struct {
	ID               string `json:"_id,omitempty"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	Type             string `json:"type"`
	SSLDNRegex       string `json:"ssl_dn_regex,omitempty"`
	SSLFingerprints  string `json:"ssl_fingerprints,omitempty"`
	LDAPHost         string `json:"ldap_host,omitempty"`
	LDAPBaseDN       string `json:"ldap_base_dn,omitempty"`
	LDAPBindDN       string `json:"ldap_bind_dn,omitempty"`
	LDAPBindPassword string `json:"ldap_bind_password,omitempty"`
	LDAPGroupDN      string `json:"ldap_group_dn,omitempty"`
	GeoBlockList     string `json:"geo_block_list,omitempty"`
}
