// Package webhook provisions services by posting them to an HTTP endpoint
// owned by the hosting platform.
package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/xraph/fulfill/provisioner"
	"github.com/xraph/fulfill/service"
	"github.com/xraph/fulfill/servicetype"
)

var (
	_ provisioner.Provisioner = (*Provisioner)(nil)
	_ provisioner.Suspender   = (*Provisioner)(nil)
	_ provisioner.Canceller   = (*Provisioner)(nil)
)

// Request paths relative to the base URL.
const (
	PathProvision  = "/provision"
	PathSuspend    = "/suspend"
	PathReactivate = "/reactivate"
	PathCancel     = "/cancel"
)

// Payload is the JSON body sent for every call.
type Payload struct {
	Event       string                   `json:"event"`
	Service     *service.Service         `json:"service"`
	ServiceType *servicetype.ServiceType `json:"service_type,omitempty"`
}

// Provisioner is a provisioner.Provisioner backed by a resty client.
type Provisioner struct {
	client *resty.Client
	logger *slog.Logger
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithToken sends token as a bearer Authorization header.
func WithToken(token string) Option {
	return func(p *Provisioner) {
		p.client.SetAuthToken(token)
	}
}

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provisioner) {
		p.client.SetTimeout(d)
	}
}

// WithRetries sets how many times a failed attempt is retried and the
// initial wait between attempts.
func WithRetries(count int, wait time.Duration) Option {
	return func(p *Provisioner) {
		p.client.SetRetryCount(count).
			SetRetryWaitTime(wait).
			SetRetryMaxWaitTime(wait * 5)
	}
}

// WithHeader adds a static header to every request.
func WithHeader(key, value string) Option {
	return func(p *Provisioner) {
		p.client.SetHeader(key, value)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provisioner) {
		p.logger = logger
	}
}

// New creates a webhook provisioner posting to baseURL.
func New(baseURL string, opts ...Option) *Provisioner {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r != nil && r.StatusCode() >= http.StatusInternalServerError
		})

	p := &Provisioner{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision posts the service and its type to PathProvision.
func (p *Provisioner) Provision(ctx context.Context, svc *service.Service, st *servicetype.ServiceType) error {
	return p.post(ctx, PathProvision, Payload{Event: "service.provision", Service: svc, ServiceType: st})
}

// Suspend posts the service to PathSuspend.
func (p *Provisioner) Suspend(ctx context.Context, svc *service.Service) error {
	return p.post(ctx, PathSuspend, Payload{Event: "service.suspend", Service: svc})
}

// Reactivate posts the service to PathReactivate.
func (p *Provisioner) Reactivate(ctx context.Context, svc *service.Service) error {
	return p.post(ctx, PathReactivate, Payload{Event: "service.reactivate", Service: svc})
}

// Cancel posts the service to PathCancel.
func (p *Provisioner) Cancel(ctx context.Context, svc *service.Service) error {
	return p.post(ctx, PathCancel, Payload{Event: "service.cancel", Service: svc})
}

func (p *Provisioner) post(ctx context.Context, path string, body Payload) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		p.logger.Error("provisioning webhook failed",
			"path", path,
			"service_id", body.Service.ID.String(),
			"error", err,
		)
		return fmt.Errorf("webhook %s: %w", path, err)
	}

	if !resp.IsSuccess() {
		p.logger.Error("provisioning webhook rejected",
			"path", path,
			"service_id", body.Service.ID.String(),
			"status", resp.StatusCode(),
		)
		return &StatusError{Path: path, StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	p.logger.Debug("provisioning webhook delivered",
		"path", path,
		"service_id", body.Service.ID.String(),
		"attempts", resp.Request.Attempt,
	)
	return nil
}

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook %s: unexpected status %d", e.Path, e.StatusCode)
}
