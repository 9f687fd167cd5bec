package entity

import "time"

// CertificateProvider tells who issues and renews the certificate.
type CertificateProvider string

const (
	ProviderManaged  CertificateProvider = "MANAGED"
	ProviderExternal CertificateProvider = "EXTERNAL"
	ProviderSelf     CertificateProvider = "SELF"
)

// Valid reports whether p is a known provider.
func (p CertificateProvider) Valid() bool {
	switch p {
	case ProviderManaged, ProviderExternal, ProviderSelf:
		return true
	}
	return false
}

type Certificate struct {
	ID          string              `json:"_id,omitempty"`
	Name        string              `json:"name"`
	Chain       string              `json:"chain,omitempty"`
	Certificate string              `json:"certificate,omitempty"`
	PrivateKey  string              `json:"private_key,omitempty"`
	SSLClientCA string              `json:"ssl_client_ca,omitempty"`
	Provider    CertificateProvider `json:"provider"`
	NotBefore   *time.Time          `json:"not_before,omitempty"`
	NotAfter    *time.Time          `json:"not_after,omitempty"`
	ForceRenew  bool                `json:"force_renew"`
}
