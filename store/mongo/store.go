package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

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

// Collection name constants.
const (
	colCustomers    = "fulfill_customers"
	colServiceTypes = "fulfill_service_types"
	colOrders       = "fulfill_orders"
	colInvoices     = "fulfill_invoices"
	colServices     = "fulfill_services"
)

var openInvoiceStatuses = bson.A{string(invoice.StatusPending), string(invoice.StatusOverdue)}

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
//
// Multi-document writes run in a session transaction when the server is a
// replica set or sharded cluster. On a standalone server they fall back to
// ordered writes with compensation: the recurring invoice is inserted before
// the billing date is claimed, so a date never advances without its invoice.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB

	txMode txMode
	txn    atomic.Bool
}

type txMode int

const (
	txAuto txMode = iota
	txOn
	txOff
)

// Option configures a Store.
type Option func(*Store)

// WithTransactions forces session transactions on or off instead of
// detecting server support during Migrate.
func WithTransactions(enabled bool) Option {
	return func(s *Store) {
		if enabled {
			s.txMode = txOn
			s.txn.Store(true)
		} else {
			s.txMode = txOff
			s.txn.Store(false)
		}
	}
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB, opts ...Option) *Store {
	s := &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transactions reports whether multi-document writes use session
// transactions.
func (s *Store) Transactions() bool { return s.txn.Load() }

// detectTransactions asks the server whether it is a replica set member or
// a mongos router. Standalone servers reject transactions.
func (s *Store) detectTransactions(ctx context.Context) error {
	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	err := s.mdb.Database().RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello)
	if err != nil {
		return fmt.Errorf("fulfill/mongo: hello: %w", err)
	}
	s.txn.Store(hello.SetName != "" || hello.Msg == "isdbgrid")
	return nil
}

// atomically runs fn inside a session transaction when they are enabled,
// and directly otherwise. fn must use the context it is given.
func (s *Store) atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.txn.Load() {
		return fn(ctx)
	}
	return s.mdb.Client().UseSession(ctx, func(sctx context.Context) error {
		sess := mongo.SessionFromContext(sctx)
		_, err := sess.WithTransaction(sctx, func(tctx context.Context) (any, error) {
			return nil, fn(tctx)
		})
		return err
	})
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all fulfill collections.
func (s *Store) Migrate(ctx context.Context) error {
	if s.txMode == txAuto {
		if err := s.detectTransactions(ctx); err != nil {
			return fmt.Errorf("%w: %w", fulfill.ErrMigrationFailed, err)
		}
	}

	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("fulfill/mongo: migrate %s indexes: %w: %w", col, fulfill.ErrMigrationFailed, err)
		}
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
	_, err := s.mdb.NewInsert(toCustomerModel(c)).Exec(ctx)
	if err != nil {
		return mapError("create customer", err)
	}
	return nil
}

func (s *Store) GetCustomer(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	var m customerModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": customerID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fulfill.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("fulfill/mongo: get customer: %w", err)
	}
	return fromCustomerModel(&m)
}

func (s *Store) CountCustomers(ctx context.Context) (int64, error) {
	n, err := s.mdb.Collection(colCustomers).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("fulfill/mongo: count customers: %w", err)
	}
	return n, nil
}

// ==================== ServiceType Store ====================

func (s *Store) CreateServiceType(ctx context.Context, st *servicetype.ServiceType) error {
	_, err := s.mdb.NewInsert(toServiceTypeModel(st)).Exec(ctx)
	if err != nil {
		return mapError("create service type", err)
	}
	return nil
}

func (s *Store) GetServiceType(ctx context.Context, stID id.ServiceTypeID) (*servicetype.ServiceType, error) {
	return s.findServiceType(ctx, bson.M{"_id": stID.String()})
}

func (s *Store) GetServiceTypeBySlug(ctx context.Context, slug string) (*servicetype.ServiceType, error) {
	return s.findServiceType(ctx, bson.M{"slug": slug})
}

func (s *Store) findServiceType(ctx context.Context, filter bson.M) (*servicetype.ServiceType, error) {
	var m serviceTypeModel
	err := s.mdb.NewFind(&m).Filter(filter).Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fulfill.ErrServiceTypeNotFound
		}
		return nil, fmt.Errorf("fulfill/mongo: get service type: %w", err)
	}
	return fromServiceTypeModel(&m)
}

func (s *Store) ListServiceTypes(ctx context.Context, opts servicetype.ListOpts) ([]*servicetype.ServiceType, error) {
	var models []serviceTypeModel

	filter := bson.M{}
	if opts.ActiveOnly {
		filter["active"] = true
	}
	if opts.Type != "" {
		filter["type"] = string(opts.Type)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "name", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fulfill/mongo: list service types: %w", err)
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
	res, err := s.mdb.NewDelete((*serviceTypeModel)(nil)).
		Filter(bson.M{"_id": stID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fulfill/mongo: delete service type: %w", err)
	}
	if res.DeletedCount() == 0 {
		return fulfill.ErrServiceTypeNotFound
	}
	return nil
}

// ==================== Order Store ====================

// CreateOrder inserts the order and then its invoice. Without transactions
// the order is removed again if the invoice is rejected.
func (s *Store) CreateOrder(ctx context.Context, o *order.Order, inv *invoice.Invoice) error {
	return s.atomically(ctx, func(ctx context.Context) error {
		if _, err := s.mdb.NewInsert(toOrderModel(o)).Exec(ctx); err != nil {
			return mapError("create order", err)
		}
		if _, err := s.mdb.NewInsert(toInvoiceModel(inv)).Exec(ctx); err != nil {
			return errors.Join(mapError("create order invoice", err), s.deleteDoc(ctx, colOrders, o.ID.String()))
		}
		return nil
	})
}

// deleteDoc removes one document by id. It undoes an earlier write of the
// same operation.
func (s *Store) deleteDoc(ctx context.Context, col, docID string) error {
	if _, err := s.mdb.Collection(col).DeleteOne(ctx, bson.M{"_id": docID}); err != nil {
		return fmt.Errorf("fulfill/mongo: undo %s insert: %w", col, err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error) {
	return s.findOrder(ctx, bson.M{"_id": orderID.String()})
}

func (s *Store) GetOrderByNumber(ctx context.Context, number string) (*order.Order, error) {
	return s.findOrder(ctx, bson.M{"number": number})
}

func (s *Store) findOrder(ctx context.Context, filter bson.M) (*order.Order, error) {
	var m orderModel
	err := s.mdb.NewFind(&m).Filter(filter).Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fulfill.ErrOrderNotFound
		}
		return nil, fmt.Errorf("fulfill/mongo: get order: %w", err)
	}
	return fromOrderModel(&m)
}

func (s *Store) ListOrders(ctx context.Context, opts order.ListOpts) ([]*order.Order, error) {
	var models []orderModel

	filter := bson.M{}
	if !opts.CustomerID.IsNil() {
		filter["customer_id"] = opts.CustomerID.String()
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(newestFirst)

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fulfill/mongo: list orders: %w", err)
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
	res, err := s.mdb.NewUpdate((*orderModel)(nil)).
		Filter(bson.M{"_id": orderID.String(), "status": bson.M{"$in": statusList(from)}}).
		Set("status", string(to)).
		Set("updated_at", at.UTC()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fulfill/mongo: update order status: %w", err)
	}
	if res.MatchedCount() == 0 {
		current, err := s.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		return fmt.Errorf("order %s is %s: %w", orderID, current.Status, fulfill.ErrInvalidTransition)
	}
	return nil
}

// SettleOrder claims the order with a conditional update; only the winner
// goes on to settle the order's open invoices. Without transactions a
// failed invoice update returns the order to pending.
func (s *Store) SettleOrder(ctx context.Context, orderID id.OrderID, paidAt time.Time) (bool, error) {
	paidAt = paidAt.UTC()

	var settled bool
	err := s.atomically(ctx, func(ctx context.Context) error {
		settled = false
		res, err := s.mdb.NewUpdate((*orderModel)(nil)).
			Filter(bson.M{"_id": orderID.String(), "status": string(order.StatusPending)}).
			Set("status", string(order.StatusPaid)).
			Set("paid_at", paidAt).
			Set("updated_at", paidAt).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("fulfill/mongo: settle order: %w", err)
		}
		if res.MatchedCount() == 0 {
			_, err := s.GetOrder(ctx, orderID)
			return err
		}

		_, err = s.mdb.NewUpdate((*invoiceModel)(nil)).
			Filter(bson.M{"order_id": orderID.String(), "status": bson.M{"$in": openInvoiceStatuses}}).
			Set("status", string(invoice.StatusPaid)).
			Set("paid_at", paidAt).
			Set("updated_at", paidAt).
			Many().
			Exec(ctx)
		if err != nil {
			_, rerr := s.mdb.Collection(colOrders).UpdateOne(ctx,
				bson.M{"_id": orderID.String(), "status": string(order.StatusPaid)},
				bson.M{
					"$set":   bson.M{"status": string(order.StatusPending)},
					"$unset": bson.M{"paid_at": ""},
				},
			)
			return errors.Join(fmt.Errorf("fulfill/mongo: settle order invoices: %w", err), rerr)
		}
		settled = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return settled, nil
}

// ==================== Invoice Store ====================

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	return s.findInvoice(ctx, bson.M{"_id": invID.String()})
}

func (s *Store) GetInvoiceByNumber(ctx context.Context, number string) (*invoice.Invoice, error) {
	return s.findInvoice(ctx, bson.M{"number": number})
}

func (s *Store) findInvoice(ctx context.Context, filter bson.M) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.mdb.NewFind(&m).Filter(filter).Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fulfill.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("fulfill/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel

	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if !opts.CustomerID.IsNil() {
		filter["customer_id"] = opts.CustomerID.String()
	}
	if !opts.OrderID.IsNil() {
		filter["order_id"] = opts.OrderID.String()
	}
	if !opts.ServiceID.IsNil() {
		filter["service_id"] = opts.ServiceID.String()
	}
	if opts.Recurring != nil {
		filter["is_recurring"] = *opts.Recurring
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(newestFirst)

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fulfill/mongo: list invoices: %w", err)
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
	res, err := s.mdb.NewUpdate((*invoiceModel)(nil)).
		Filter(bson.M{"_id": invID.String(), "status": bson.M{"$in": openInvoiceStatuses}}).
		Set("status", string(invoice.StatusPaid)).
		Set("paid_at", paidAt).
		Set("updated_at", paidAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fulfill/mongo: mark invoice paid: %w", err)
	}
	return s.checkInvoiceTransition(ctx, res.MatchedCount(), invID)
}

func (s *Store) CancelInvoice(ctx context.Context, invID id.InvoiceID, at time.Time) error {
	res, err := s.mdb.NewUpdate((*invoiceModel)(nil)).
		Filter(bson.M{"_id": invID.String(), "status": bson.M{"$in": openInvoiceStatuses}}).
		Set("status", string(invoice.StatusCancelled)).
		Set("updated_at", at.UTC()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fulfill/mongo: cancel invoice: %w", err)
	}
	return s.checkInvoiceTransition(ctx, res.MatchedCount(), invID)
}

func (s *Store) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	now = now.UTC()
	res, err := s.mdb.NewUpdate((*invoiceModel)(nil)).
		Filter(bson.M{"status": string(invoice.StatusPending), "due_date": bson.M{"$lt": now}}).
		Set("status", string(invoice.StatusOverdue)).
		Set("updated_at", now).
		Many().
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("fulfill/mongo: mark overdue: %w", err)
	}
	return res.ModifiedCount(), nil
}

func (s *Store) checkInvoiceTransition(ctx context.Context, matched int64, invID id.InvoiceID) error {
	if matched > 0 {
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
	_, err := s.mdb.NewInsert(toServiceModel(svc)).Exec(ctx)
	if err != nil {
		return mapError("create service", err)
	}
	return nil
}

func (s *Store) GetService(ctx context.Context, svcID id.ServiceID) (*service.Service, error) {
	var m serviceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": svcID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fulfill.ErrServiceNotFound
		}
		return nil, fmt.Errorf("fulfill/mongo: get service: %w", err)
	}
	return fromServiceModel(&m)
}

func (s *Store) ListServices(ctx context.Context, opts service.ListOpts) ([]*service.Service, error) {
	var models []serviceModel

	filter := bson.M{}
	if !opts.CustomerID.IsNil() {
		filter["customer_id"] = opts.CustomerID.String()
	}
	if !opts.OrderID.IsNil() {
		filter["order_id"] = opts.OrderID.String()
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if !opts.DueBefore.IsZero() {
		filter["next_billing_date"] = bson.M{"$lte": opts.DueBefore.UTC()}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(newestFirst)

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fulfill/mongo: list services: %w", err)
	}
	return fromServiceModels(models)
}

func (s *Store) ListDueServices(ctx context.Context, now time.Time) ([]*service.Service, error) {
	var models []serviceModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"status":            string(service.StatusActive),
			"next_billing_date": bson.M{"$lte": now.UTC()},
		}).
		Sort(bson.D{{Key: "next_billing_date", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fulfill/mongo: list due services: %w", err)
	}
	return fromServiceModels(models)
}

// BillService inserts the recurring invoice, then claims the billing period
// with a conditional update on the service document. A lost claim removes
// the invoice again, so the date never advances without one.
func (s *Store) BillService(ctx context.Context, inv *invoice.Invoice, svcID id.ServiceID, expectedNext, newNext time.Time) error {
	return s.atomically(ctx, func(ctx context.Context) error {
		if _, err := s.mdb.NewInsert(toInvoiceModel(inv)).Exec(ctx); err != nil {
			return mapError("create recurring invoice", err)
		}

		coll := s.mdb.Collection(colServices)
		res, err := coll.UpdateOne(ctx,
			bson.M{
				"_id":               svcID.String(),
				"status":            string(service.StatusActive),
				"next_billing_date": expectedNext.UTC(),
			},
			bson.M{"$set": bson.M{
				"next_billing_date": newNext.UTC(),
				"expiry_date":       newNext.UTC(),
				"updated_at":        inv.CreatedAt.UTC(),
			}},
		)
		if err != nil {
			return errors.Join(
				fmt.Errorf("fulfill/mongo: claim service: %w", err),
				s.deleteDoc(ctx, colInvoices, inv.ID.String()),
			)
		}
		if res.MatchedCount > 0 {
			return nil
		}

		claimErr := fulfill.ErrBillingClaimLost
		n, cerr := coll.CountDocuments(ctx, bson.M{"_id": svcID.String()})
		switch {
		case cerr != nil:
			claimErr = fmt.Errorf("fulfill/mongo: claim service: %w", cerr)
		case n == 0:
			claimErr = fulfill.ErrServiceNotFound
		}
		return errors.Join(claimErr, s.deleteDoc(ctx, colInvoices, inv.ID.String()))
	})
}

func (s *Store) UpdateServiceStatus(ctx context.Context, svcID id.ServiceID, from []service.Status, to service.Status, at time.Time) error {
	res, err := s.mdb.NewUpdate((*serviceModel)(nil)).
		Filter(bson.M{"_id": svcID.String(), "status": bson.M{"$in": statusList(from)}}).
		Set("status", string(to)).
		Set("updated_at", at.UTC()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fulfill/mongo: update service status: %w", err)
	}
	if res.MatchedCount() == 0 {
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

	counts := []struct {
		col    string
		filter bson.M
		dest   *int64
	}{
		{colCustomers, bson.M{}, &st.TotalCustomers},
		{colInvoices, bson.M{"status": string(invoice.StatusPending)}, &st.PendingInvoices},
		{colInvoices, bson.M{"status": string(invoice.StatusOverdue)}, &st.OverdueInvoices},
		{colOrders, bson.M{"status": string(order.StatusPending)}, &st.PendingOrders},
		{colServices, bson.M{"status": string(service.StatusActive)}, &st.ActiveServices},
		{colServices, bson.M{
			"status":            string(service.StatusActive),
			"next_billing_date": bson.M{"$lte": dueBefore.UTC()},
		}, &st.ServicesDueBilling},
	}
	for _, c := range counts {
		n, err := s.mdb.Collection(c.col).CountDocuments(ctx, c.filter)
		if err != nil {
			return nil, fmt.Errorf("fulfill/mongo: stats count %s: %w", c.col, err)
		}
		*c.dest = n
	}

	err := s.sumByCurrency(ctx, st.AddRevenue, bson.M{
		"status":  string(invoice.StatusPaid),
		"paid_at": bson.M{"$gte": monthStart.UTC(), "$lt": monthEnd.UTC()},
	})
	if err != nil {
		return nil, err
	}
	err = s.sumByCurrency(ctx, st.AddOutstanding, bson.M{
		"status": bson.M{"$in": openInvoiceStatuses},
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) sumByCurrency(ctx context.Context, add func(types.Money), match bson.M) error {
	pipeline := bson.A{
		bson.M{"$match": match},
		bson.M{
			"$group": bson.M{
				"_id":   "$currency",
				"total": bson.M{"$sum": "$total"},
			},
		},
	}

	cursor, err := s.mdb.Collection(colInvoices).Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("fulfill/mongo: aggregate: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Currency string `bson:"_id"`
		Total    int64  `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return fmt.Errorf("fulfill/mongo: aggregate decode: %w", err)
	}
	for _, r := range results {
		add(types.New(r.Total, r.Currency))
	}
	return nil
}

// ==================== Helpers ====================

var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

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

func statusList[S ~string](statuses []S) bson.A {
	out := make(bson.A, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

// mapError wraps a write error, translating unique index violations.
func mapError(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("fulfill/mongo: %s: %w", op, fulfill.ErrDuplicateKey)
	}
	return fmt.Errorf("fulfill/mongo: %s: %w", op, err)
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all fulfill collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colCustomers: {
			{Keys: bson.D{{Key: "email", Value: 1}}},
		},
		colServiceTypes: {
			{
				Keys:    bson.D{{Key: "slug", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "type", Value: 1}, {Key: "active", Value: 1}}},
		},
		colOrders: {
			{
				Keys:    bson.D{{Key: "number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		colInvoices: {
			{
				Keys:    bson.D{{Key: "number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "order_id", Value: 1}}},
			{Keys: bson.D{{Key: "service_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "due_date", Value: 1}}},
		},
		colServices: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "order_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "next_billing_date", Value: 1}}},
		},
	}
}
