// Package service defines provisioned services and their type-specific
// provisioning payloads.
package service

import (
	"time"

	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/servicetype"
	"github.com/xraph/fulfill/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

// Service is the provisioned instance of a service type for a customer.
// NextBillingDate only moves forward and is always set while active.
type Service struct {
	types.Entity
	ID               id.ServiceID     `json:"id"`
	CustomerID       id.CustomerID    `json:"customer_id"`
	ServiceTypeID    id.ServiceTypeID `json:"service_type_id"`
	OrderID          id.OrderID       `json:"order_id,omitempty"`
	DomainName       string           `json:"domain_name,omitempty"`
	Configuration    Configuration    `json:"configuration"`
	Status           Status           `json:"status"`
	NextBillingDate  time.Time        `json:"next_billing_date"`
	ExpiryDate       time.Time        `json:"expiry_date"`
	ProvisioningData ProvisioningData `json:"provisioning_data"`
}

// Configuration is the platform snapshot taken at provisioning time.
type Configuration struct {
	ServerLocation string         `json:"server_location"`
	PHPVersion     string         `json:"php_version,omitempty"`
	MySQLVersion   string         `json:"mysql_version,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	Features       map[string]any `json:"features,omitempty"`
}

// ProvisioningData is a tagged variant: Kind selects which of the typed
// payloads is populated. Unknown kinds carry only the common fields.
// Extra holds provider-specific values that have no typed home.
type ProvisioningData struct {
	Kind          servicetype.Type  `json:"kind"`
	ProvisionedAt time.Time         `json:"provisioned_at"`
	ServerID      string            `json:"server_id"`
	Hosting       *Hosting          `json:"hosting,omitempty"`
	Domain        *Domain           `json:"domain,omitempty"`
	SSL           *SSL              `json:"ssl,omitempty"`
	Email         *Email            `json:"email,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

type Hosting struct {
	AccountUsername string   `json:"account_username"`
	AccountPassword string   `json:"account_password"`
	ControlPanelURL string   `json:"control_panel_url"`
	FTPHost         string   `json:"ftp_host"`
	Nameservers     []string `json:"nameservers"`
}

type Domain struct {
	Registrar          string   `json:"registrar"`
	Nameservers        []string `json:"nameservers"`
	RegistrationPeriod int      `json:"registration_period"`
	AutoRenewal        bool     `json:"auto_renewal"`
}

type SSL struct {
	CertificateAuthority string `json:"certificate_authority"`
	CertificateType      string `json:"certificate_type"`
	ValidationMethod     string `json:"validation_method"`
	CertificateStatus    string `json:"certificate_status"`
}

type Email struct {
	MailServer string `json:"mail_server"`
	IMAPPort   int    `json:"imap_port"`
	SMTPPort   int    `json:"smtp_port"`
	WebmailURL string `json:"webmail_url"`
}

// ListOpts filters service listings.
type ListOpts struct {
	CustomerID id.CustomerID
	OrderID    id.OrderID
	Status     Status
	// DueBefore, when set, keeps services whose next billing date is at or
	// before it.
	DueBefore time.Time
	Limit     int
	Offset    int
}
