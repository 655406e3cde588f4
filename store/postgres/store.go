package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/fulfill"
	"github.com/xraph/fulfill/customer"
	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/invoice"
	"github.com/xraph/fulfill/order"
	"github.com/xraph/fulfill/service"
	"github.com/xraph/fulfill/servicetype"
	"github.com/xraph/fulfill/store"
	"github.com/xraph/fulfill/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

var openInvoiceStatuses = []string{string(invoice.StatusPending), string(invoice.StatusOverdue)}

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("fulfill/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("fulfill/postgres: %w: %w", fulfill.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Customer Store ====================

func (s *Store) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	_, err := s.pg.NewInsert(toCustomerModel(c)).Exec(ctx)
	return mapError(err, fulfill.ErrCustomerNotFound)
}

func (s *Store) GetCustomer(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	m := new(customerModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", customerID.String()).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, fulfill.ErrCustomerNotFound)
	}
	return fromCustomerModel(m)
}

func (s *Store) CountCustomers(ctx context.Context) (int64, error) {
	var total int64
	err := s.pg.NewRaw(`SELECT COUNT(*) FROM fulfill_customers`).Scan(ctx, &total)
	return total, err
}

// ==================== ServiceType Store ====================

func (s *Store) CreateServiceType(ctx context.Context, st *servicetype.ServiceType) error {
	m, err := toServiceTypeModel(st)
	if err != nil {
		return err
	}
	_, err = s.pg.NewInsert(m).Exec(ctx)
	return mapError(err, fulfill.ErrServiceTypeNotFound)
}

func (s *Store) GetServiceType(ctx context.Context, stID id.ServiceTypeID) (*servicetype.ServiceType, error) {
	m := new(serviceTypeModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", stID.String()).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, fulfill.ErrServiceTypeNotFound)
	}
	return fromServiceTypeModel(m)
}

func (s *Store) GetServiceTypeBySlug(ctx context.Context, slug string) (*servicetype.ServiceType, error) {
	m := new(serviceTypeModel)
	err := s.pg.NewSelect(m).
		Where("slug = $1", slug).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, fulfill.ErrServiceTypeNotFound)
	}
	return fromServiceTypeModel(m)
}

func (s *Store) ListServiceTypes(ctx context.Context, opts servicetype.ListOpts) ([]*servicetype.ServiceType, error) {
	var models []serviceTypeModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.ActiveOnly {
		q = q.Where("active = TRUE")
	}
	if opts.Type != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("type = $%d", argIdx), string(opts.Type))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("name ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*servicetype.ServiceType, len(models))
	for i := range models {
		st, err := fromServiceTypeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = st
	}
	return result, nil
}

func (s *Store) DeleteServiceType(ctx context.Context, stID id.ServiceTypeID) error {
	res, err := s.pg.NewDelete((*serviceTypeModel)(nil)).
		Where("id = $1", stID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res, fulfill.ErrServiceTypeNotFound)
}

// ==================== Order Store ====================

func (s *Store) CreateOrder(ctx context.Context, o *order.Order, inv *invoice.Invoice) error {
	om, err := toOrderModel(o)
	if err != nil {
		return err
	}
	im, err := toInvoiceModel(inv)
	if err != nil {
		return err
	}

	tx, err := s.pg.BeginTxQuery(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.NewInsert(om).Exec(ctx); err != nil {
		return mapError(err, fulfill.ErrOrderNotFound)
	}
	if _, err := tx.NewInsert(im).Exec(ctx); err != nil {
		return mapError(err, fulfill.ErrInvoiceNotFound)
	}
	return mapError(tx.Commit(), fulfill.ErrOrderNotFound)
}

func (s *Store) GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error) {
	m := new(orderModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", orderID.String()).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, fulfill.ErrOrderNotFound)
	}
	return fromOrderModel(m)
}

func (s *Store) GetOrderByNumber(ctx context.Context, number string) (*order.Order, error) {
	m := new(orderModel)
	err := s.pg.NewSelect(m).
		Where("number = $1", number).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, fulfill.ErrOrderNotFound)
	}
	return fromOrderModel(m)
}

func (s *Store) ListOrders(ctx context.Context, opts order.ListOpts) ([]*order.Order, error) {
	var models []orderModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if !opts.CustomerID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("customer_id = $%d", argIdx), opts.CustomerID.String())
	}
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*order.Order, len(models))
	for i := range models {
		o, err := fromOrderModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = o
	}
	return result, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID id.OrderID, from []order.Status, to order.Status, at time.Time) error {
	res, err := s.pg.NewUpdate((*orderModel)(nil)).
		Set("status = $1", string(to)).
		Set("updated_at = $2", at.UTC()).
		Where("id = $3", orderID.String()).
		Where("status = ANY($4)", statusStrings(from)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		current, err := s.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		return fmt.Errorf("order %s is %s: %w", orderID, current.Status, fulfill.ErrInvalidTransition)
	}
	return nil
}

func (s *Store) SettleOrder(ctx context.Context, orderID id.OrderID, paidAt time.Time) (bool, error) {
	paidAt = paidAt.UTC()

	tx, err := s.pg.BeginTxQuery(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.NewUpdate((*orderModel)(nil)).
		Set("status = $1", string(order.StatusPaid)).
		Set("paid_at = $2", paidAt).
		Set("updated_at = $3", paidAt).
		Where("id = $4", orderID.String()).
		Where("status = $5", string(order.StatusPending)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		if _, err := s.GetOrder(ctx, orderID); err != nil {
			return false, err
		}
		return false, nil
	}

	_, err = tx.NewUpdate((*invoiceModel)(nil)).
		Set("status = $1", string(invoice.StatusPaid)).
		Set("paid_at = $2", paidAt).
		Set("updated_at = $3", paidAt).
		Where("order_id = $4", orderID.String()).
		Where("status = ANY($5)", openInvoiceStatuses).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, mapError(err, fulfill.ErrOrderNotFound)
	}
	return true, nil
}

// ==================== Invoice Store ====================

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", invID.String()).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, fulfill.ErrInvoiceNotFound)
	}
	return fromInvoiceModel(m)
}

func (s *Store) GetInvoiceByNumber(ctx context.Context, number string) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.pg.NewSelect(m).
		Where("number = $1", number).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, fulfill.ErrInvoiceNotFound)
	}
	return fromInvoiceModel(m)
}

func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if !opts.CustomerID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("customer_id = $%d", argIdx), opts.CustomerID.String())
	}
	if !opts.OrderID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("order_id = $%d", argIdx), opts.OrderID.String())
	}
	if !opts.ServiceID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("service_id = $%d", argIdx), opts.ServiceID.String())
	}
	if opts.Recurring != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("is_recurring = $%d", argIdx), *opts.Recurring)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*invoice.Invoice, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = inv
	}
	return result, nil
}

func (s *Store) MarkInvoicePaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time) error {
	paidAt = paidAt.UTC()
	res, err := s.pg.NewUpdate((*invoiceModel)(nil)).
		Set("status = $1", string(invoice.StatusPaid)).
		Set("paid_at = $2", paidAt).
		Set("updated_at = $3", paidAt).
		Where("id = $4", invID.String()).
		Where("status = ANY($5)", openInvoiceStatuses).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.checkInvoiceTransition(ctx, res, invID)
}

func (s *Store) CancelInvoice(ctx context.Context, invID id.InvoiceID, at time.Time) error {
	res, err := s.pg.NewUpdate((*invoiceModel)(nil)).
		Set("status = $1", string(invoice.StatusCancelled)).
		Set("updated_at = $2", at.UTC()).
		Where("id = $3", invID.String()).
		Where("status = ANY($4)", openInvoiceStatuses).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.checkInvoiceTransition(ctx, res, invID)
}

func (s *Store) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	now = now.UTC()
	res, err := s.pg.NewUpdate((*invoiceModel)(nil)).
		Set("status = $1", string(invoice.StatusOverdue)).
		Set("updated_at = $2", now).
		Where("status = $3", string(invoice.StatusPending)).
		Where("due_date < $4", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) checkInvoiceTransition(ctx context.Context, res rowsAffecter, invID id.InvoiceID) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	current, err := s.GetInvoice(ctx, invID)
	if err != nil {
		return err
	}
	return fmt.Errorf("invoice %s is %s: %w", invID, current.Status, fulfill.ErrInvalidTransition)
}

// ==================== Service Store ====================

func (s *Store) CreateService(ctx context.Context, svc *service.Service) error {
	m, err := toServiceModel(svc)
	if err != nil {
		return err
	}
	_, err = s.pg.NewInsert(m).Exec(ctx)
	return mapError(err, fulfill.ErrServiceNotFound)
}

func (s *Store) GetService(ctx context.Context, svcID id.ServiceID) (*service.Service, error) {
	m := new(serviceModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", svcID.String()).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, fulfill.ErrServiceNotFound)
	}
	return fromServiceModel(m)
}

func (s *Store) ListServices(ctx context.Context, opts service.ListOpts) ([]*service.Service, error) {
	var models []serviceModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if !opts.CustomerID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("customer_id = $%d", argIdx), opts.CustomerID.String())
	}
	if !opts.OrderID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("order_id = $%d", argIdx), opts.OrderID.String())
	}
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if !opts.DueBefore.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("next_billing_date <= $%d", argIdx), opts.DueBefore.UTC())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromServiceModels(models)
}

func (s *Store) ListDueServices(ctx context.Context, now time.Time) ([]*service.Service, error) {
	var models []serviceModel
	err := s.pg.NewSelect(&models).
		Where("status = $1", string(service.StatusActive)).
		Where("next_billing_date <= $2", now.UTC()).
		OrderExpr("next_billing_date ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromServiceModels(models)
}

// BillService locks the service row so concurrent runs serialize on it;
// the loser observes the advanced date and reports ErrBillingClaimLost.
func (s *Store) BillService(ctx context.Context, inv *invoice.Invoice, svcID id.ServiceID, expectedNext, newNext time.Time) error {
	im, err := toInvoiceModel(inv)
	if err != nil {
		return err
	}

	tx, err := s.pg.BeginTxQuery(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	current := new(serviceModel)
	err = tx.NewSelect(current).
		Where("id = $1", svcID.String()).
		ForUpdate().
		Scan(ctx)
	if err != nil {
		return mapError(err, fulfill.ErrServiceNotFound)
	}
	if current.Status != string(service.StatusActive) || !current.NextBillingDate.Equal(expectedNext) {
		return fulfill.ErrBillingClaimLost
	}

	if _, err := tx.NewInsert(im).Exec(ctx); err != nil {
		return mapError(err, fulfill.ErrInvoiceNotFound)
	}

	_, err = tx.NewUpdate((*serviceModel)(nil)).
		Set("next_billing_date = $1", newNext.UTC()).
		Set("expiry_date = $2", newNext.UTC()).
		Set("updated_at = $3", inv.CreatedAt.UTC()).
		Where("id = $4", svcID.String()).
		Exec(ctx)
	if err != nil {
		return mapError(err, fulfill.ErrServiceNotFound)
	}
	return mapError(tx.Commit(), fulfill.ErrServiceNotFound)
}

func (s *Store) UpdateServiceStatus(ctx context.Context, svcID id.ServiceID, from []service.Status, to service.Status, at time.Time) error {
	res, err := s.pg.NewUpdate((*serviceModel)(nil)).
		Set("status = $1", string(to)).
		Set("updated_at = $2", at.UTC()).
		Where("id = $3", svcID.String()).
		Where("status = ANY($4)", statusStrings(from)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		current, err := s.GetService(ctx, svcID)
		if err != nil {
			return err
		}
		return fmt.Errorf("service %s is %s: %w", svcID, current.Status, fulfill.ErrInvalidTransition)
	}
	return nil
}

// ==================== Stats ====================

func (s *Store) BillingStats(ctx context.Context, monthStart, monthEnd, dueBefore time.Time) (*store.Stats, error) {
	st := store.NewStats()

	err := s.pg.NewRaw(`
		SELECT
			(SELECT COUNT(*) FROM fulfill_customers),
			(SELECT COUNT(*) FROM fulfill_invoices WHERE status = 'pending'),
			(SELECT COUNT(*) FROM fulfill_invoices WHERE status = 'overdue'),
			(SELECT COUNT(*) FROM fulfill_orders WHERE status = 'pending'),
			(SELECT COUNT(*) FROM fulfill_services WHERE status = 'active'),
			(SELECT COUNT(*) FROM fulfill_services WHERE status = 'active' AND next_billing_date <= $1)
	`, dueBefore.UTC()).Scan(ctx,
		&st.TotalCustomers,
		&st.PendingInvoices,
		&st.OverdueInvoices,
		&st.PendingOrders,
		&st.ActiveServices,
		&st.ServicesDueBilling,
	)
	if err != nil {
		return nil, err
	}

	err = s.sumByCurrency(ctx, st.AddRevenue, `
		SELECT currency, SUM(total)::BIGINT FROM fulfill_invoices
		WHERE status = 'paid' AND paid_at >= $1 AND paid_at < $2
		GROUP BY currency
	`, monthStart.UTC(), monthEnd.UTC())
	if err != nil {
		return nil, err
	}

	err = s.sumByCurrency(ctx, st.AddOutstanding, `
		SELECT currency, SUM(total)::BIGINT FROM fulfill_invoices
		WHERE status IN ('pending', 'overdue')
		GROUP BY currency
	`)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) sumByCurrency(ctx context.Context, add func(types.Money), query string, args ...any) error {
	rows, err := s.pg.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			currency string
			total    int64
		)
		if err := rows.Scan(&currency, &total); err != nil {
			return err
		}
		add(types.New(total, currency))
	}
	return rows.Err()
}

// ==================== Helpers ====================

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func requireRow(res rowsAffecter, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func fromServiceModels(models []serviceModel) ([]*service.Service, error) {
	result := make([]*service.Service, len(models))
	for i := range models {
		svc, err := fromServiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = svc
	}
	return result, nil
}

func statusStrings[S ~string](statuses []S) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

// mapError translates driver errors into fulfill sentinels.
func mapError(err, notFound error) error {
	if err == nil {
		return nil
	}
	if isNoRows(err) {
		return notFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, fulfill.ErrDuplicateKey)
		case "40001", "40P01":
			return fmt.Errorf("%s: %w", pgErr.Message, fulfill.ErrTransactionFailed)
		}
	}
	return err
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
