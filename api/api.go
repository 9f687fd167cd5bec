package api

import (
	"github.com/bartossh/Rampart/entity"
	"github.com/bartossh/Rampart/httpclient"
	"github.com/bartossh/Rampart/resource"
)

// Collection names of the management API.
const (
	CertificateCollection = "certificate"
	ServiceCollection     = "service"
	UpstreamCollection    = "upstream"
	SensorCollection      = "sensor"
	RuleCategoryColl      = "rulecat"
	RuleCollection        = "rulesec"
	JailCollection        = "jail"
	FeedCollection        = "feed"
	RouteFilterCollection = "route_filter"
	DictionaryCollection  = "dictionary"
	UserCollection        = "user"
	TransactionCollection = "trn"
	ClusterCollection     = "cluster"
)

// Client groups the typed services of the management API.
// All of them dispatch through the same doer, usually the authenticated pipeline.
type Client struct {
	Certificates   *Certificates
	Services       *Services
	Upstreams      *resource.Client[entity.Upstream, string]
	Sensors        *resource.Client[entity.Sensor, string]
	Jails          *resource.Client[entity.Jail, string]
	Feeds          *resource.Client[entity.Feed, string]
	RouteFilters   *resource.Client[entity.RouteFilter, string]
	RuleCategories *RuleCategories
	Rules          *Rules
	Dictionaries   *Dictionaries
	Users          *Users
	Transactions   *Transactions
	Config         *Config
	Cluster        *Cluster
}

// New creates Client for the API served at baseURL.
func New(doer httpclient.Doer, baseURL string) *Client {
	return &Client{
		Certificates:   &Certificates{resource.New[entity.Certificate, string](doer, baseURL, CertificateCollection)},
		Services:       &Services{resource.New[entity.Service, string](doer, baseURL, ServiceCollection)},
		Upstreams:      resource.New[entity.Upstream, string](doer, baseURL, UpstreamCollection),
		Sensors:        resource.New[entity.Sensor, string](doer, baseURL, SensorCollection),
		Jails:          resource.New[entity.Jail, string](doer, baseURL, JailCollection),
		Feeds:          resource.New[entity.Feed, string](doer, baseURL, FeedCollection),
		RouteFilters:   resource.New[entity.RouteFilter, string](doer, baseURL, RouteFilterCollection),
		RuleCategories: &RuleCategories{resource.New[entity.RuleCategory, int](doer, baseURL, RuleCategoryColl)},
		Rules:          &Rules{resource.New[entity.SecRule, string](doer, baseURL, RuleCollection)},
		Dictionaries:   &Dictionaries{resource.New[entity.Dictionary, string](doer, baseURL, DictionaryCollection)},
		Users:          &Users{resource.New[entity.User, string](doer, baseURL, UserCollection)},
		Transactions:   &Transactions{resource.New[entity.TransactionLog, string](doer, baseURL, TransactionCollection)},
		Config:         &Config{resource.New[entity.Config, string](doer, baseURL, ClusterCollection)},
		Cluster:        &Cluster{resource.New[entity.Change, string](doer, baseURL, ClusterCollection)},
	}
}
