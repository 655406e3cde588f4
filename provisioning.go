package fulfill

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"maps"
	"math/big"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/order"
	"github.com/xraph/fulfill/provisioner"
	"github.com/xraph/fulfill/service"
	"github.com/xraph/fulfill/servicetype"
	"github.com/xraph/fulfill/types"
)

// ProvisioningDefaults are the platform values written into new services.
type ProvisioningDefaults struct {
	ServerLocation string `json:"server_location" yaml:"server_location"`
	PHPVersion     string `json:"php_version" yaml:"php_version"`
	MySQLVersion   string `json:"mysql_version" yaml:"mysql_version"`

	ControlPanelURL    string   `json:"control_panel_url" yaml:"control_panel_url"`
	FTPHost            string   `json:"ftp_host" yaml:"ftp_host"`
	HostingNameservers []string `json:"hosting_nameservers" yaml:"hosting_nameservers"`

	Registrar          string   `json:"registrar" yaml:"registrar"`
	DomainNameservers  []string `json:"domain_nameservers" yaml:"domain_nameservers"`
	RegistrationPeriod int      `json:"registration_period" yaml:"registration_period"`
	AutoRenewal        bool     `json:"auto_renewal" yaml:"auto_renewal"`

	CertificateAuthority string `json:"certificate_authority" yaml:"certificate_authority"`
	CertificateType      string `json:"certificate_type" yaml:"certificate_type"`
	ValidationMethod     string `json:"validation_method" yaml:"validation_method"`
	CertificateStatus    string `json:"certificate_status" yaml:"certificate_status"`

	MailServer string `json:"mail_server" yaml:"mail_server"`
	IMAPPort   int    `json:"imap_port" yaml:"imap_port"`
	SMTPPort   int    `json:"smtp_port" yaml:"smtp_port"`
	WebmailURL string `json:"webmail_url" yaml:"webmail_url"`
}

// DefaultProvisioningDefaults returns the stock platform values.
func DefaultProvisioningDefaults() ProvisioningDefaults {
	return ProvisioningDefaults{
		ServerLocation: "US-East",
		PHPVersion:     "8.2",
		MySQLVersion:   "8.0",

		ControlPanelURL:    "https://cp.hostingprovider.com",
		FTPHost:            "ftp.hostingprovider.com",
		HostingNameservers: []string{"ns1.hostingprovider.com", "ns2.hostingprovider.com"},

		Registrar:          "NameCheap",
		DomainNameservers:  []string{"dns1.registrar.com", "dns2.registrar.com"},
		RegistrationPeriod: 1,
		AutoRenewal:        true,

		CertificateAuthority: "Let's Encrypt",
		CertificateType:      "DV",
		ValidationMethod:     "HTTP",
		CertificateStatus:    "issued",

		MailServer: "mail.hostingprovider.com",
		IMAPPort:   993,
		SMTPPort:   587,
		WebmailURL: "https://webmail.hostingprovider.com",
	}
}

// Provision creates an active service for one order item and then asks
// the provisioner to set it up externally.
//
// The returned error covers only building and persisting the service. A
// failed external call is logged, traced and reported to plugins, but the
// committed service is returned unchanged.
func (e *Engine) Provision(ctx context.Context, customerID id.CustomerID, orderID id.OrderID, st *servicetype.ServiceType, item order.Item, now time.Time) (*service.Service, error) {
	ctx, span := e.startSpan(ctx, "Provision")
	defer span.End()
	span.SetAttributes(
		attribute.String("customer.id", customerID.String()),
		attribute.String("service_type.id", st.ID.String()),
		attribute.String("service_type.type", string(st.Type)),
	)

	data, err := e.provisioningData(st.Type, now)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("provision: %w", err)
	}

	next := servicetype.NextBillingDate(st.BillingCycle, now.UTC())
	svc := &service.Service{
		Entity:           types.NewEntityAt(now),
		ID:               id.NewServiceID(),
		CustomerID:       customerID,
		ServiceTypeID:    st.ID,
		OrderID:          orderID,
		DomainName:       item.DomainName,
		Configuration:    e.configuration(st, now),
		Status:           service.StatusActive,
		NextBillingDate:  next,
		ExpiryDate:       next,
		ProvisioningData: data,
	}

	if err := e.store.CreateService(ctx, svc); err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("provision: %w", err)
	}
	span.SetAttributes(attribute.String("service.id", svc.ID.String()))

	e.logger.Info("service provisioned",
		"service_id", svc.ID.String(),
		"service_type", string(st.Type),
		"customer_id", customerID.String(),
		"domain_name", svc.DomainName,
		"next_billing_date", next,
	)

	if err := e.callProvisioner(ctx, svc, st); err != nil {
		recordError(span, err)
	}

	return svc, nil
}

// callProvisioner runs the external side effect under its own deadline.
// The service is already committed when this runs.
func (e *Engine) callProvisioner(ctx context.Context, svc *service.Service, st *servicetype.ServiceType) error {
	callCtx, cancel := context.WithTimeout(ctx, e.provisionTimeout)
	defer cancel()

	if err := e.provisioner.Provision(callCtx, svc, st); err != nil {
		perr := &ProvisioningError{ServiceID: svc.ID.String(), Err: err}
		e.logger.Error("external provisioning failed",
			"service_id", svc.ID.String(),
			"service_type", string(st.Type),
			"error", err,
		)
		e.plugins.EmitProvisioningFailed(ctx, svc, perr)
		return perr
	}

	e.plugins.EmitServiceProvisioned(ctx, svc, st)
	return nil
}

func (e *Engine) configuration(st *servicetype.ServiceType, now time.Time) service.Configuration {
	return service.Configuration{
		ServerLocation: e.defaults.ServerLocation,
		PHPVersion:     e.defaults.PHPVersion,
		MySQLVersion:   e.defaults.MySQLVersion,
		CreatedAt:      now.UTC(),
		Features:       maps.Clone(st.Features),
	}
}

// provisioningData builds the typed payload for kind. Unknown kinds get
// only the common fields.
func (e *Engine) provisioningData(kind servicetype.Type, now time.Time) (service.ProvisioningData, error) {
	d := e.defaults
	data := service.ProvisioningData{
		Kind:          kind,
		ProvisionedAt: now.UTC(),
		ServerID:      e.numbers.Server(now),
	}

	switch kind {
	case servicetype.TypeHosting:
		username, err := randomUsername(e.random)
		if err != nil {
			return data, err
		}
		password, err := randomPassword(e.random)
		if err != nil {
			return data, err
		}
		data.Hosting = &service.Hosting{
			AccountUsername: username,
			AccountPassword: password,
			ControlPanelURL: d.ControlPanelURL,
			FTPHost:         d.FTPHost,
			Nameservers:     slices.Clone(d.HostingNameservers),
		}
	case servicetype.TypeDomain:
		data.Domain = &service.Domain{
			Registrar:          d.Registrar,
			Nameservers:        slices.Clone(d.DomainNameservers),
			RegistrationPeriod: d.RegistrationPeriod,
			AutoRenewal:        d.AutoRenewal,
		}
	case servicetype.TypeSSL:
		data.SSL = &service.SSL{
			CertificateAuthority: d.CertificateAuthority,
			CertificateType:      d.CertificateType,
			ValidationMethod:     d.ValidationMethod,
			CertificateStatus:    d.CertificateStatus,
		}
	case servicetype.TypeEmail:
		data.Email = &service.Email{
			MailServer: d.MailServer,
			IMAPPort:   d.IMAPPort,
			SMTPPort:   d.SMTPPort,
			WebmailURL: d.WebmailURL,
		}
	}

	return data, nil
}

// randomUsername returns "user" followed by four digits.
func randomUsername(r io.Reader) (string, error) {
	n, err := rand.Int(r, big.NewInt(9000))
	if err != nil {
		return "", fmt.Errorf("generate username: %w", err)
	}
	return fmt.Sprintf("user%d", n.Int64()+1000), nil
}

// randomPassword returns 16 hex characters.
func randomPassword(r io.Reader) (string, error) {
	b := make([]byte, 8)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ──────────────────────────────────────────────────
// Service lifecycle
// ──────────────────────────────────────────────────

// SuspendService moves an active service to suspended.
func (e *Engine) SuspendService(ctx context.Context, svcID id.ServiceID, now time.Time) (*service.Service, error) {
	return e.transitionService(ctx, "SuspendService", svcID,
		[]service.Status{service.StatusActive}, service.StatusSuspended, now)
}

// ReactivateService moves a suspended service back to active.
func (e *Engine) ReactivateService(ctx context.Context, svcID id.ServiceID, now time.Time) (*service.Service, error) {
	return e.transitionService(ctx, "ReactivateService", svcID,
		[]service.Status{service.StatusSuspended}, service.StatusActive, now)
}

// CancelService cancels a service in any other state. Cancelled services
// are never billed again.
func (e *Engine) CancelService(ctx context.Context, svcID id.ServiceID, now time.Time) (*service.Service, error) {
	return e.transitionService(ctx, "CancelService", svcID,
		[]service.Status{service.StatusPending, service.StatusActive, service.StatusSuspended}, service.StatusCancelled, now)
}

// statusCall picks the provisioner method that mirrors a move to status to,
// or nil when the provisioner has none.
func (e *Engine) statusCall(to service.Status) func(context.Context, *service.Service) error {
	if to == service.StatusCancelled {
		if c, ok := e.provisioner.(provisioner.Canceller); ok {
			return c.Cancel
		}
	}
	s, ok := e.provisioner.(provisioner.Suspender)
	if !ok {
		return nil
	}
	if to == service.StatusActive {
		return s.Reactivate
	}
	return s.Suspend
}

func (e *Engine) transitionService(ctx context.Context, op string, svcID id.ServiceID, from []service.Status, to service.Status, now time.Time) (*service.Service, error) {
	ctx, span := e.startSpan(ctx, op)
	defer span.End()
	span.SetAttributes(
		attribute.String("service.id", svcID.String()),
		attribute.String("service.status", string(to)),
	)

	before, err := e.store.GetService(ctx, svcID)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := e.store.UpdateServiceStatus(ctx, svcID, from, to, now); err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	svc := before
	prev := before.Status
	svc.Status = to
	svc.Touch(now)

	if call := e.statusCall(to); call != nil {
		callCtx, cancel := context.WithTimeout(ctx, e.provisionTimeout)
		extErr := call(callCtx, svc)
		cancel()
		if extErr != nil {
			perr := &ProvisioningError{ServiceID: svcID.String(), Err: extErr}
			recordError(span, perr)
			e.logger.Error("external status change failed",
				"service_id", svcID.String(),
				"status", string(to),
				"error", extErr,
			)
			e.plugins.EmitProvisioningFailed(ctx, svc, perr)
		}
	}

	e.plugins.EmitServiceStatusChanged(ctx, svc, prev, to)
	e.logger.Info("service status changed",
		"service_id", svcID.String(),
		"from", string(prev),
		"to", string(to),
	)

	return svc, nil
}
