package entity

import "time"

type Dictionary struct {
	ID          string   `json:"_id,omitempty"`
	Name        string   `json:"name"`
	Slug        string   `json:"slug,omitempty"`
	Type        string   `json:"type"`
	Scope       string   `json:"scope,omitempty"`
	Description string   `json:"description,omitempty"`
	Content     []string `json:"content"`
	Usage       int      `json:"usage,omitempty"`
}

type Sensor struct {
	ID          string       `json:"_id,omitempty"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Block       []Dictionary `json:"block,omitempty"`
	Permit      []Dictionary `json:"permit,omitempty"`
	Categories  []string     `json:"categories,omitempty"`
	Exclusions  []int        `json:"exclusions,omitempty"`
}

type SecRule struct {
	SchemaType string `json:"schema_type,omitempty"`
	Code       int    `json:"code"`
	Msg        string `json:"msg"`
	Action     string `json:"action"`
	Active     bool   `json:"active"`
	Phase      string `json:"phase"`
	Logging    string `json:"logging,omitempty"`
	AuditLog   string `json:"auditLog,omitempty"`
	Comment    string `json:"comment,omitempty"`
	Condition  string `json:"condition,omitempty"`
	Scope      string `json:"scope,omitempty"`
}

type RuleCategory struct {
	ID        int       `json:"_id,omitempty"`
	Name      string    `json:"name"`
	Rules     []SecRule `json:"rules"`
	Mandatory bool      `json:"mandatory"`
}

type Feed struct {
	ID             string     `json:"_id,omitempty"`
	Name           string     `json:"name"`
	Action         string     `json:"action"`
	Slug           string     `json:"slug,omitempty"`
	Type           string     `json:"type"`
	Scope          string     `json:"scope,omitempty"`
	Description    string     `json:"description,omitempty"`
	Provider       string     `json:"provider,omitempty"`
	Version        string     `json:"version,omitempty"`
	Content        []string   `json:"content,omitempty"`
	Source         string     `json:"source,omitempty"`
	UpdateInterval string     `json:"update_interval,omitempty"`
	UpdatedOn      *time.Time `json:"updated_on,omitempty"`
}

type JailEntry struct {
	IPAddr   string    `json:"ipaddr"`
	BannedOn time.Time `json:"banned_on"`
}

type JailRule struct {
	Field string `json:"field"`
	Regex string `json:"regex"`
}

type Jail struct {
	ID         string      `json:"_id,omitempty"`
	Name       string      `json:"name"`
	Type       string      `json:"type"`
	Content    []JailEntry `json:"content"`
	BanTime    int         `json:"bantime"`
	Occurrence int         `json:"occurrence"`
	Interval   int         `json:"interval"`
	Rules      []JailRule  `json:"rules"`
}
