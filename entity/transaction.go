package entity

import "time"

type TransactionHeader struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type TransactionRequest struct {
	Method  string              `json:"method"`
	URI     string              `json:"uri"`
	Bytes   int64               `json:"bytes"`
	Headers []TransactionHeader `json:"headers"`
}

type TransactionResponse struct {
	StatusCode int                 `json:"status_code"`
	Bytes      int64               `json:"bytes"`
	Headers    []TransactionHeader `json:"headers"`
}

type TransactionHTTP struct {
	Request     TransactionRequest  `json:"request"`
	Response    TransactionResponse `json:"response"`
	Version     string              `json:"version"`
	Duration    float64             `json:"duration"`
	RequestLine string              `json:"request_line"`
}

type TransactionGeo struct {
	Addr         string `json:"addr,omitempty"`
	NetStart     string `json:"net_start,omitempty"`
	NetEnd       string `json:"net_end,omitempty"`
	ASNNumber    string `json:"ans_number,omitempty"`
	Organization string `json:"organization,omitempty"`
	Country      string `json:"country,omitempty"`
}

type TransactionSource struct {
	IP   string          `json:"ip"`
	Port string          `json:"port"`
	Geo  *TransactionGeo `json:"geo,omitempty"`
}

type TransactionDestination struct {
	IP   string `json:"ip"`
	Port string `json:"port"`
}

type TransactionUserAgent struct {
	Family string `json:"family"`
	Major  string `json:"major"`
	Minor  string `json:"minor"`
}

// TransactionLog is a single request observed by the proxy.
type TransactionLog struct {
	ID             string                  `json:"_id,omitempty"`
	Action         string                  `json:"action"`
	LogTime        time.Time               `json:"logtime"`
	RouteName      string                  `json:"route_name,omitempty"`
	UniqueID       string                  `json:"unique_id"`
	ServerID       string                  `json:"server_id"`
	HTTP           TransactionHTTP         `json:"http"`
	Destination    *TransactionDestination `json:"destination,omitempty"`
	Source         *TransactionSource      `json:"source,omitempty"`
	UserAgent      *TransactionUserAgent   `json:"user_agent,omitempty"`
	Service        *Service                `json:"service,omitempty"`
	Upstream       *Upstream               `json:"upstream,omitempty"`
	Sensor         *Sensor                 `json:"sensor,omitempty"`
	LimitReqStatus string                  `json:"limit_req_status,omitempty"`
	GeoIPStatus    string                  `json:"geoip_status,omitempty"`
	RBLStatus      string                  `json:"rbl_status,omitempty"`
	Score          float64                 `json:"score"`
}

// TPMPoint is the number of transactions logged in a single minute.
type TPMPoint struct {
	Count   int64     `json:"count"`
	LogTime time.Time `json:"logtime"`
}
