package fulfill_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/fulfill"
	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/invoice"
	"github.com/xraph/fulfill/order"
	"github.com/xraph/fulfill/provisioner"
	"github.com/xraph/fulfill/service"
	"github.com/xraph/fulfill/servicetype"
)

func TestMarkPaidProvisionsEveryItem(t *testing.T) {
	rec := &eventRecorder{}
	f := newFixture(t, fulfill.WithPlugin(rec))
	ctx := context.Background()

	o, inv, err := f.engine.CreateOrder(ctx, f.customer.ID, []order.ItemInput{
		{ServiceTypeID: f.hosting.ID, Quantity: 1, DomainName: "example.com"},
		{ServiceTypeID: f.domain.ID, Quantity: 1, DomainName: "example.com"},
		{ServiceTypeID: f.ssl.ID, Quantity: 1, DomainName: "example.com"},
		{ServiceTypeID: f.email.ID, Quantity: 1},
	}, t0)
	require.NoError(t, err)

	paidAt := t0.Add(time.Hour)
	res, err := f.engine.MarkPaid(ctx, o.ID, paidAt)
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, 4, res.Provisioned)
	require.Len(t, res.Services, 4)

	stored, err := f.engine.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
	assert.Equal(t, paidAt, *stored.PaidAt)

	storedInv, err := f.engine.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, storedInv.Status)
	require.NotNil(t, storedInv.PaidAt)

	hosting := res.Services[0]
	assert.Equal(t, service.StatusActive, hosting.Status)
	assert.Equal(t, o.ID.String(), hosting.OrderID.String())
	assert.Equal(t, f.customer.ID.String(), hosting.CustomerID.String())
	assert.Equal(t, "example.com", hosting.DomainName)
	assert.Equal(t, time.Date(2024, 2, 15, 11, 0, 0, 0, time.UTC), hosting.NextBillingDate)
	assert.Equal(t, hosting.NextBillingDate, hosting.ExpiryDate)
	assert.Equal(t, "US-East", hosting.Configuration.ServerLocation)
	assert.Equal(t, "8.2", hosting.Configuration.PHPVersion)
	assert.Equal(t, "10GB", hosting.Configuration.Features["storage"])

	data := hosting.ProvisioningData
	assert.Equal(t, servicetype.TypeHosting, data.Kind)
	assert.True(t, strings.HasPrefix(data.ServerID, "SRV-"))
	require.NotNil(t, data.Hosting)
	assert.Regexp(t, `^user\d{4}$`, data.Hosting.AccountUsername)
	assert.Regexp(t, `^[0-9a-f]{16}$`, data.Hosting.AccountPassword)
	assert.Equal(t, "https://cp.hostingprovider.com", data.Hosting.ControlPanelURL)
	assert.Equal(t, []string{"ns1.hostingprovider.com", "ns2.hostingprovider.com"}, data.Hosting.Nameservers)
	assert.Nil(t, data.Domain)

	domain := res.Services[1].ProvisioningData
	require.NotNil(t, domain.Domain)
	assert.Equal(t, "NameCheap", domain.Domain.Registrar)
	assert.Equal(t, 1, domain.Domain.RegistrationPeriod)
	assert.True(t, domain.Domain.AutoRenewal)
	assert.Equal(t, time.Date(2025, 1, 15, 11, 0, 0, 0, time.UTC), res.Services[1].NextBillingDate)

	ssl := res.Services[2].ProvisioningData
	require.NotNil(t, ssl.SSL)
	assert.Equal(t, "Let's Encrypt", ssl.SSL.CertificateAuthority)
	assert.Equal(t, "issued", ssl.SSL.CertificateStatus)

	email := res.Services[3].ProvisioningData
	require.NotNil(t, email.Email)
	assert.Equal(t, 993, email.Email.IMAPPort)
	assert.Equal(t, 587, email.Email.SMTPPort)
	assert.Equal(t, time.Date(2024, 4, 15, 11, 0, 0, 0, time.UTC), res.Services[3].NextBillingDate)

	assert.Equal(t, 1, rec.ordersPaid)
	assert.Equal(t, 4, rec.provisioned)
	assert.Empty(t, rec.provisioningFailed)
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	rec := &eventRecorder{}
	f := newFixture(t, fulfill.WithPlugin(rec))
	ctx := context.Background()

	o, _ := f.order(t, f.hosting, "example.com", t0)

	first, err := f.engine.MarkPaid(ctx, o.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Provisioned)

	second, err := f.engine.MarkPaid(ctx, o.ID, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, second.Provisioned)
	assert.Empty(t, second.Services)

	services, err := f.engine.ListServices(ctx, service.ListOpts{OrderID: o.ID})
	require.NoError(t, err)
	assert.Len(t, services, 1)

	stored, err := f.engine.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PaidAt)
	assert.Equal(t, t0, *stored.PaidAt)
	assert.Equal(t, 1, rec.ordersPaid)
}

func TestMarkPaidRejectsCancelledOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, _ := f.order(t, f.hosting, "", t0)
	_, err := f.engine.SetOrderStatus(ctx, o.ID, order.StatusCancelled, t0)
	require.NoError(t, err)

	_, err = f.engine.MarkPaid(ctx, o.ID, t0)
	require.Error(t, err)
	assert.ErrorIs(t, err, fulfill.ErrInvalidTransition)

	services, err := f.engine.ListServices(ctx, service.ListOpts{OrderID: o.ID})
	require.NoError(t, err)
	assert.Empty(t, services)
}

func TestMarkPaidUnknownOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.MarkPaid(context.Background(), id.NewOrderID(), t0)
	require.Error(t, err)
	assert.True(t, fulfill.IsNotFound(err))
}

func TestMarkPaidContinuesAfterMissingServiceType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, _, err := f.engine.CreateOrder(ctx, f.customer.ID, []order.ItemInput{
		{ServiceTypeID: f.hosting.ID, Quantity: 1},
		{ServiceTypeID: f.ssl.ID, Quantity: 1},
	}, t0)
	require.NoError(t, err)
	require.NoError(t, f.engine.DeleteServiceType(ctx, f.hosting.ID))

	res, err := f.engine.MarkPaid(ctx, o.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Provisioned)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 0, res.Errors[0].Index)
	assert.ErrorIs(t, res.Errors[0], fulfill.ErrServiceTypeNotFound)
	assert.ErrorIs(t, res.Err(), fulfill.ErrServiceTypeNotFound)

	stored, err := f.engine.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, stored.Status)
}

func TestProvisionerFailureKeepsService(t *testing.T) {
	rec := &eventRecorder{}
	boom := errors.New("panel unreachable")
	f := newFixture(t,
		fulfill.WithPlugin(rec),
		fulfill.WithProvisioner(provisioner.Func(func(context.Context, *service.Service, *servicetype.ServiceType) error {
			return boom
		})),
	)
	ctx := context.Background()

	o, _ := f.order(t, f.hosting, "example.com", t0)
	res, err := f.engine.MarkPaid(ctx, o.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Provisioned)
	assert.Empty(t, res.Errors)

	svc, err := f.engine.GetService(ctx, res.Services[0].ID)
	require.NoError(t, err)
	assert.Equal(t, service.StatusActive, svc.Status)

	require.Len(t, rec.provisioningFailed, 1)
	assert.ErrorIs(t, rec.provisioningFailed[0], boom)
	assert.ErrorIs(t, rec.provisioningFailed[0], fulfill.ErrProvisioningFailed)
	assert.Zero(t, rec.provisioned)
}

func TestProvisionerReceivesDeadline(t *testing.T) {
	var hadDeadline bool
	f := newFixture(t,
		fulfill.WithProvisionTimeout(time.Second),
		fulfill.WithProvisioner(provisioner.Func(func(ctx context.Context, _ *service.Service, _ *servicetype.ServiceType) error {
			_, hadDeadline = ctx.Deadline()
			return nil
		})),
	)

	f.paidService(t, f.hosting, "", t0)
	assert.True(t, hadDeadline)
}

func TestSetOrderStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("paid provisions", func(t *testing.T) {
		f := newFixture(t)
		o, _ := f.order(t, f.hosting, "", t0)
		res, err := f.engine.SetOrderStatus(ctx, o.ID, order.StatusPaid, t0)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Provisioned)
	})

	t.Run("refund requires paid", func(t *testing.T) {
		f := newFixture(t)
		o, _ := f.order(t, f.hosting, "", t0)
		_, err := f.engine.SetOrderStatus(ctx, o.ID, order.StatusRefunded, t0)
		assert.ErrorIs(t, err, fulfill.ErrInvalidTransition)

		_, err = f.engine.MarkPaid(ctx, o.ID, t0)
		require.NoError(t, err)
		_, err = f.engine.SetOrderStatus(ctx, o.ID, order.StatusRefunded, t0)
		require.NoError(t, err)

		stored, err := f.engine.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusRefunded, stored.Status)
	})

	t.Run("never back to pending", func(t *testing.T) {
		f := newFixture(t)
		o, _ := f.order(t, f.hosting, "", t0)
		_, err := f.engine.SetOrderStatus(ctx, o.ID, order.StatusPending, t0)
		assert.ErrorIs(t, err, fulfill.ErrInvalidTransition)
	})

	t.Run("unknown status", func(t *testing.T) {
		f := newFixture(t)
		o, _ := f.order(t, f.hosting, "", t0)
		_, err := f.engine.SetOrderStatus(ctx, o.ID, order.Status("shipped"), t0)
		assert.ErrorIs(t, err, fulfill.ErrInvalidInput)
	})
}

func TestPayInvoiceSettlesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, inv := f.order(t, f.hosting, "", t0)
	res, err := f.engine.PayInvoice(ctx, inv.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Provisioned)

	stored, err := f.engine.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, stored.Status)

	_, err = f.engine.PayInvoice(ctx, inv.ID, t0)
	assert.ErrorIs(t, err, fulfill.ErrInvalidTransition)
}

func TestPayInvoiceRejectsCancelledOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, inv := f.order(t, f.hosting, "", t0)
	_, err := f.engine.SetOrderStatus(ctx, o.ID, order.StatusCancelled, t0)
	require.NoError(t, err)

	_, err = f.engine.PayInvoice(ctx, inv.ID, t0)
	assert.ErrorIs(t, err, fulfill.ErrInvalidTransition)

	stored, err := f.engine.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPending, stored.Status)
}

func TestPayRecurringInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	svc := f.paidService(t, f.hosting, "", t0)
	_, err := f.engine.RunRecurringBilling(ctx, svc.NextBillingDate)
	require.NoError(t, err)

	invs := f.recurringInvoices(t, svc.ID)
	require.Len(t, invs, 1)

	res, err := f.engine.PayInvoice(ctx, invs[0].ID, svc.NextBillingDate)
	require.NoError(t, err)
	assert.Zero(t, res.Provisioned)

	paid, err := f.engine.GetInvoice(ctx, invs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, paid.Status)
	assert.NotNil(t, paid.PaidAt)
}

func TestCancelInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, inv := f.order(t, f.hosting, "", t0)
	require.NoError(t, f.engine.CancelInvoice(ctx, inv.ID, t0))

	stored, err := f.engine.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusCancelled, stored.Status)

	err = f.engine.CancelInvoice(ctx, inv.ID, t0)
	assert.ErrorIs(t, err, fulfill.ErrInvalidTransition)
}
