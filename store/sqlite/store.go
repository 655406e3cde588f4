package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
	"github.com/xraph/grove/migrate"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

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

var openInvoiceStatuses = []invoice.Status{invoice.StatusPending, invoice.StatusOverdue}

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("fulfill/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("fulfill/sqlite: %w: %w", fulfill.ErrMigrationFailed, err)
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
	m, err := toCustomerModel(c)
	if err != nil {
		return err
	}
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	return mapError(err, fulfill.ErrCustomerNotFound)
}

func (s *Store) GetCustomer(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	m := new(customerModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", customerID.String()).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, fulfill.ErrCustomerNotFound)
	}
	return fromCustomerModel(m)
}

func (s *Store) CountCustomers(ctx context.Context) (int64, error) {
	var total int64
	err := s.sdb.NewRaw(`SELECT COUNT(*) FROM fulfill_customers`).Scan(ctx, &total)
	return total, err
}

// ==================== ServiceType Store ====================

func (s *Store) CreateServiceType(ctx context.Context, st *servicetype.ServiceType) error {
	m, err := toServiceTypeModel(st)
	if err != nil {
		return err
	}
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	return mapError(err, fulfill.ErrServiceTypeNotFound)
}

func (s *Store) GetServiceType(ctx context.Context, stID id.ServiceTypeID) (*servicetype.ServiceType, error) {
	m := new(serviceTypeModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", stID.String()).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, fulfill.ErrServiceTypeNotFound)
	}
	return fromServiceTypeModel(m)
}

func (s *Store) GetServiceTypeBySlug(ctx context.Context, slug string) (*servicetype.ServiceType, error) {
	m := new(serviceTypeModel)
	err := s.sdb.NewSelect(m).
		Where("slug = ?", slug).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, fulfill.ErrServiceTypeNotFound)
	}
	return fromServiceTypeModel(m)
}

func (s *Store) ListServiceTypes(ctx context.Context, opts servicetype.ListOpts) ([]*servicetype.ServiceType, error) {
	var models []serviceTypeModel
	q := s.sdb.NewSelect(&models)

	if opts.ActiveOnly {
		q = q.Where("active = 1")
	}
	if opts.Type != "" {
		q = q.Where("type = ?", string(opts.Type))
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
	res, err := s.sdb.NewDelete((*serviceTypeModel)(nil)).
		Where("id = ?", stID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fulfill.ErrServiceTypeNotFound
	}
	return nil
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

	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return mapError(err, fulfill.ErrOrderNotFound)
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
	err := s.sdb.NewSelect(m).
		Where("id = ?", orderID.String()).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, fulfill.ErrOrderNotFound)
	}
	return fromOrderModel(m)
}

func (s *Store) GetOrderByNumber(ctx context.Context, number string) (*order.Order, error) {
	m := new(orderModel)
	err := s.sdb.NewSelect(m).
		Where("number = ?", number).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, fulfill.ErrOrderNotFound)
	}
	return fromOrderModel(m)
}

func (s *Store) ListOrders(ctx context.Context, opts order.ListOpts) ([]*order.Order, error) {
	var models []orderModel
	q := s.sdb.NewSelect(&models)

	if !opts.CustomerID.IsNil() {
		q = q.Where("customer_id = ?", opts.CustomerID.String())
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
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
	guard, guardArgs := inClause("status", from)
	res, err := s.sdb.NewUpdate((*orderModel)(nil)).
		Set("status = ?", string(to)).
		Set("updated_at = ?", toMicros(at)).
		Where("id = ?", orderID.String()).
		Where(guard, guardArgs...).
		Exec(ctx)
	if err != nil {
		return mapError(err, fulfill.ErrOrderNotFound)
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
	paid := toMicros(paidAt)

	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return false, mapError(err, fulfill.ErrOrderNotFound)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.NewUpdate((*orderModel)(nil)).
		Set("status = ?", string(order.StatusPaid)).
		Set("paid_at = ?", paid).
		Set("updated_at = ?", paid).
		Where("id = ?", orderID.String()).
		Where("status = ?", string(order.StatusPending)).
		Exec(ctx)
	if err != nil {
		return false, mapError(err, fulfill.ErrOrderNotFound)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		var exists int64
		err := tx.NewRaw(`SELECT COUNT(*) FROM fulfill_orders WHERE id = ?`, orderID.String()).Scan(ctx, &exists)
		if err != nil {
			return false, err
		}
		if exists == 0 {
			return false, fulfill.ErrOrderNotFound
		}
		return false, nil
	}

	guard, guardArgs := inClause("status", openInvoiceStatuses)
	_, err = tx.NewUpdate((*invoiceModel)(nil)).
		Set("status = ?", string(invoice.StatusPaid)).
		Set("paid_at = ?", paid).
		Set("updated_at = ?", paid).
		Where("order_id = ?", orderID.String()).
		Where(guard, guardArgs...).
		Exec(ctx)
	if err != nil {
		return false, mapError(err, fulfill.ErrInvoiceNotFound)
	}
	if err := tx.Commit(); err != nil {
		return false, mapError(err, fulfill.ErrOrderNotFound)
	}
	return true, nil
}

// ==================== Invoice Store ====================

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", invID.String()).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, fulfill.ErrInvoiceNotFound)
	}
	return fromInvoiceModel(m)
}

func (s *Store) GetInvoiceByNumber(ctx context.Context, number string) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.sdb.NewSelect(m).
		Where("number = ?", number).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, fulfill.ErrInvoiceNotFound)
	}
	return fromInvoiceModel(m)
}

func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	q := s.sdb.NewSelect(&models)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if !opts.CustomerID.IsNil() {
		q = q.Where("customer_id = ?", opts.CustomerID.String())
	}
	if !opts.OrderID.IsNil() {
		q = q.Where("order_id = ?", opts.OrderID.String())
	}
	if !opts.ServiceID.IsNil() {
		q = q.Where("service_id = ?", opts.ServiceID.String())
	}
	if opts.Recurring != nil {
		q = q.Where("is_recurring = ?", *opts.Recurring)
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
	paid := toMicros(paidAt)
	guard, guardArgs := inClause("status", openInvoiceStatuses)
	res, err := s.sdb.NewUpdate((*invoiceModel)(nil)).
		Set("status = ?", string(invoice.StatusPaid)).
		Set("paid_at = ?", paid).
		Set("updated_at = ?", paid).
		Where("id = ?", invID.String()).
		Where(guard, guardArgs...).
		Exec(ctx)
	if err != nil {
		return mapError(err, fulfill.ErrInvoiceNotFound)
	}
	return s.checkInvoiceTransition(ctx, res, invID)
}

func (s *Store) CancelInvoice(ctx context.Context, invID id.InvoiceID, at time.Time) error {
	guard, guardArgs := inClause("status", openInvoiceStatuses)
	res, err := s.sdb.NewUpdate((*invoiceModel)(nil)).
		Set("status = ?", string(invoice.StatusCancelled)).
		Set("updated_at = ?", toMicros(at)).
		Where("id = ?", invID.String()).
		Where(guard, guardArgs...).
		Exec(ctx)
	if err != nil {
		return mapError(err, fulfill.ErrInvoiceNotFound)
	}
	return s.checkInvoiceTransition(ctx, res, invID)
}

func (s *Store) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	at := toMicros(now)
	res, err := s.sdb.NewUpdate((*invoiceModel)(nil)).
		Set("status = ?", string(invoice.StatusOverdue)).
		Set("updated_at = ?", at).
		Where("status = ?", string(invoice.StatusPending)).
		Where("due_date < ?", at).
		Exec(ctx)
	if err != nil {
		return 0, mapError(err, fulfill.ErrInvoiceNotFound)
	}
	return res.RowsAffected()
}

func (s *Store) checkInvoiceTransition(ctx context.Context, res interface{ RowsAffected() (int64, error) }, invID id.InvoiceID) error {
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
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	return mapError(err, fulfill.ErrServiceNotFound)
}

func (s *Store) GetService(ctx context.Context, svcID id.ServiceID) (*service.Service, error) {
	m := new(serviceModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", svcID.String()).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, fulfill.ErrServiceNotFound)
	}
	return fromServiceModel(m)
}

func (s *Store) ListServices(ctx context.Context, opts service.ListOpts) ([]*service.Service, error) {
	var models []serviceModel
	q := s.sdb.NewSelect(&models)

	if !opts.CustomerID.IsNil() {
		q = q.Where("customer_id = ?", opts.CustomerID.String())
	}
	if !opts.OrderID.IsNil() {
		q = q.Where("order_id = ?", opts.OrderID.String())
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if !opts.DueBefore.IsZero() {
		q = q.Where("next_billing_date <= ?", toMicros(opts.DueBefore))
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
	err := s.sdb.NewSelect(&models).
		Where("status = ?", string(service.StatusActive)).
		Where("next_billing_date <= ?", toMicros(now)).
		OrderExpr("next_billing_date ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromServiceModels(models)
}

// BillService advances the billing date first so the write lock is taken
// before the invoice insert; a zero-row update means another run won.
func (s *Store) BillService(ctx context.Context, inv *invoice.Invoice, svcID id.ServiceID, expectedNext, newNext time.Time) error {
	im, err := toInvoiceModel(inv)
	if err != nil {
		return err
	}

	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return mapError(err, fulfill.ErrServiceNotFound)
	}
	defer func() { _ = tx.Rollback() }()

	next := toMicros(newNext)
	res, err := tx.NewUpdate((*serviceModel)(nil)).
		Set("next_billing_date = ?", next).
		Set("expiry_date = ?", next).
		Set("updated_at = ?", toMicros(inv.CreatedAt)).
		Where("id = ?", svcID.String()).
		Where("status = ?", string(service.StatusActive)).
		Where("next_billing_date = ?", toMicros(expectedNext)).
		Exec(ctx)
	if err != nil {
		return mapError(err, fulfill.ErrServiceNotFound)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var exists int64
		err := tx.NewRaw(`SELECT COUNT(*) FROM fulfill_services WHERE id = ?`, svcID.String()).Scan(ctx, &exists)
		if err != nil {
			return mapError(err, fulfill.ErrServiceNotFound)
		}
		if exists == 0 {
			return fulfill.ErrServiceNotFound
		}
		return fulfill.ErrBillingClaimLost
	}

	if _, err := tx.NewInsert(im).Exec(ctx); err != nil {
		return mapError(err, fulfill.ErrInvoiceNotFound)
	}
	return mapError(tx.Commit(), fulfill.ErrServiceNotFound)
}

func (s *Store) UpdateServiceStatus(ctx context.Context, svcID id.ServiceID, from []service.Status, to service.Status, at time.Time) error {
	guard, guardArgs := inClause("status", from)
	res, err := s.sdb.NewUpdate((*serviceModel)(nil)).
		Set("status = ?", string(to)).
		Set("updated_at = ?", toMicros(at)).
		Where("id = ?", svcID.String()).
		Where(guard, guardArgs...).
		Exec(ctx)
	if err != nil {
		return mapError(err, fulfill.ErrServiceNotFound)
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

	err := s.sdb.NewRaw(`
		SELECT
			(SELECT COUNT(*) FROM fulfill_customers),
			(SELECT COUNT(*) FROM fulfill_invoices WHERE status = 'pending'),
			(SELECT COUNT(*) FROM fulfill_invoices WHERE status = 'overdue'),
			(SELECT COUNT(*) FROM fulfill_orders WHERE status = 'pending'),
			(SELECT COUNT(*) FROM fulfill_services WHERE status = 'active'),
			(SELECT COUNT(*) FROM fulfill_services WHERE status = 'active' AND next_billing_date <= ?)
	`, toMicros(dueBefore)).Scan(ctx,
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
		SELECT currency, SUM(total) FROM fulfill_invoices
		WHERE status = 'paid' AND paid_at >= ? AND paid_at < ?
		GROUP BY currency
	`, toMicros(monthStart), toMicros(monthEnd))
	if err != nil {
		return nil, err
	}

	err = s.sumByCurrency(ctx, st.AddOutstanding, `
		SELECT currency, SUM(total) FROM fulfill_invoices
		WHERE status IN ('pending', 'overdue')
		GROUP BY currency
	`)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) sumByCurrency(ctx context.Context, add func(types.Money), query string, args ...any) error {
	rows, err := s.sdb.Query(ctx, query, args...)
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

// inClause renders "col IN (?, ?, ...)". An empty set matches nothing.
func inClause[S ~string](col string, values []S) (string, []any) {
	if len(values) == 0 {
		return "1 = 0", nil
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = string(v)
	}
	return col + " IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ") + ")", args
}

// mapError translates driver errors into fulfill sentinels.
func mapError(err, notFound error) error {
	if err == nil {
		return nil
	}
	if isNoRows(err) {
		return notFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch code := se.Code(); {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w", se.Error(), fulfill.ErrDuplicateKey)
		case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%s: %w", se.Error(), fulfill.ErrTransactionFailed)
		}
	}
	return err
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
