package sqlite

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/fulfill/customer"
	"github.com/xraph/fulfill/id"
	"github.com/xraph/fulfill/invoice"
	"github.com/xraph/fulfill/order"
	"github.com/xraph/fulfill/service"
	"github.com/xraph/fulfill/servicetype"
	"github.com/xraph/fulfill/types"
)

// Timestamps are stored as unix microseconds so range predicates compare
// integers. JSON documents are stored as TEXT.

// ==================== Customer models ====================

type customerModel struct {
	grove.BaseModel `grove:"table:fulfill_customers"`

	ID        string `grove:"id,pk"`
	Name      string `grove:"name"`
	Email     string `grove:"email"`
	Company   string `grove:"company"`
	Phone     string `grove:"phone"`
	Metadata  string `grove:"metadata"`
	CreatedAt int64  `grove:"created_at"`
	UpdatedAt int64  `grove:"updated_at"`
}

func toCustomerModel(c *customer.Customer) (*customerModel, error) {
	meta, err := marshalJSON(c.Metadata, "{}")
	if err != nil {
		return nil, err
	}
	return &customerModel{
		ID:        c.ID.String(),
		Name:      c.Name,
		Email:     c.Email,
		Company:   c.Company,
		Phone:     c.Phone,
		Metadata:  meta,
		CreatedAt: toMicros(c.CreatedAt),
		UpdatedAt: toMicros(c.UpdatedAt),
	}, nil
}

func fromCustomerModel(m *customerModel) (*customer.Customer, error) {
	custID, err := id.ParseCustomerID(m.ID)
	if err != nil {
		return nil, err
	}
	c := &customer.Customer{
		Entity:  entity(m.CreatedAt, m.UpdatedAt),
		ID:      custID,
		Name:    m.Name,
		Email:   m.Email,
		Company: m.Company,
		Phone:   m.Phone,
	}
	if err := unmarshalJSON(m.Metadata, &c.Metadata); err != nil {
		return nil, err
	}
	return c, nil
}

// ==================== ServiceType models ====================

type serviceTypeModel struct {
	grove.BaseModel `grove:"table:fulfill_service_types"`

	ID           string `grove:"id,pk"`
	Name         string `grove:"name"`
	Slug         string `grove:"slug"`
	Description  string `grove:"description"`
	Type         string `grove:"type"`
	PriceAmount  int64  `grove:"price_amount"`
	Currency     string `grove:"currency"`
	BillingCycle string `grove:"billing_cycle"`
	Features     string `grove:"features"`
	Active       bool   `grove:"active"`
	CreatedAt    int64  `grove:"created_at"`
	UpdatedAt    int64  `grove:"updated_at"`
}

func toServiceTypeModel(st *servicetype.ServiceType) (*serviceTypeModel, error) {
	features, err := marshalJSON(st.Features, "{}")
	if err != nil {
		return nil, err
	}
	return &serviceTypeModel{
		ID:           st.ID.String(),
		Name:         st.Name,
		Slug:         st.Slug,
		Description:  st.Description,
		Type:         string(st.Type),
		PriceAmount:  st.Price.Amount,
		Currency:     st.Price.Currency,
		BillingCycle: string(st.BillingCycle),
		Features:     features,
		Active:       st.Active,
		CreatedAt:    toMicros(st.CreatedAt),
		UpdatedAt:    toMicros(st.UpdatedAt),
	}, nil
}

func fromServiceTypeModel(m *serviceTypeModel) (*servicetype.ServiceType, error) {
	stID, err := id.ParseServiceTypeID(m.ID)
	if err != nil {
		return nil, err
	}
	st := &servicetype.ServiceType{
		Entity:       entity(m.CreatedAt, m.UpdatedAt),
		ID:           stID,
		Name:         m.Name,
		Slug:         m.Slug,
		Description:  m.Description,
		Type:         servicetype.Type(m.Type),
		Price:        types.New(m.PriceAmount, m.Currency),
		BillingCycle: servicetype.BillingCycle(m.BillingCycle),
		Active:       m.Active,
	}
	if err := unmarshalJSON(m.Features, &st.Features); err != nil {
		return nil, err
	}
	return st, nil
}

// ==================== Order models ====================

type orderModel struct {
	grove.BaseModel `grove:"table:fulfill_orders"`

	ID         string `grove:"id,pk"`
	CustomerID string `grove:"customer_id"`
	Number     string `grove:"number"`
	Items      string `grove:"items"`
	Currency   string `grove:"currency"`
	Subtotal   int64  `grove:"subtotal"`
	TaxAmount  int64  `grove:"tax_amount"`
	Total      int64  `grove:"total"`
	Status     string `grove:"status"`
	PaidAt     *int64 `grove:"paid_at"`
	Notes      string `grove:"notes"`
	CreatedAt  int64  `grove:"created_at"`
	UpdatedAt  int64  `grove:"updated_at"`
}

func toOrderModel(o *order.Order) (*orderModel, error) {
	items, err := marshalJSON(o.Items, "[]")
	if err != nil {
		return nil, err
	}
	return &orderModel{
		ID:         o.ID.String(),
		CustomerID: o.CustomerID.String(),
		Number:     o.Number,
		Items:      items,
		Currency:   o.Currency,
		Subtotal:   o.Subtotal.Amount,
		TaxAmount:  o.TaxAmount.Amount,
		Total:      o.Total.Amount,
		Status:     string(o.Status),
		PaidAt:     toMicrosPtr(o.PaidAt),
		Notes:      o.Notes,
		CreatedAt:  toMicros(o.CreatedAt),
		UpdatedAt:  toMicros(o.UpdatedAt),
	}, nil
}

func fromOrderModel(m *orderModel) (*order.Order, error) {
	orderID, err := id.ParseOrderID(m.ID)
	if err != nil {
		return nil, err
	}
	custID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	o := &order.Order{
		Entity:     entity(m.CreatedAt, m.UpdatedAt),
		ID:         orderID,
		CustomerID: custID,
		Number:     m.Number,
		Currency:   m.Currency,
		Subtotal:   types.New(m.Subtotal, m.Currency),
		TaxAmount:  types.New(m.TaxAmount, m.Currency),
		Total:      types.New(m.Total, m.Currency),
		Status:     order.Status(m.Status),
		PaidAt:     fromMicrosPtr(m.PaidAt),
		Notes:      m.Notes,
	}
	if err := unmarshalJSON(m.Items, &o.Items); err != nil {
		return nil, err
	}
	return o, nil
}

// ==================== Invoice models ====================

type invoiceModel struct {
	grove.BaseModel `grove:"table:fulfill_invoices"`

	ID          string `grove:"id,pk"`
	CustomerID  string `grove:"customer_id"`
	OrderID     string `grove:"order_id"`
	ServiceID   string `grove:"service_id"`
	Number      string `grove:"number"`
	Currency    string `grove:"currency"`
	Amount      int64  `grove:"amount"`
	TaxAmount   int64  `grove:"tax_amount"`
	Total       int64  `grove:"total"`
	Status      string `grove:"status"`
	DueDate     int64  `grove:"due_date"`
	PaidAt      *int64 `grove:"paid_at"`
	LineItems   string `grove:"line_items"`
	IsRecurring bool   `grove:"is_recurring"`
	CreatedAt   int64  `grove:"created_at"`
	UpdatedAt   int64  `grove:"updated_at"`
}

func toInvoiceModel(inv *invoice.Invoice) (*invoiceModel, error) {
	lines, err := marshalJSON(inv.LineItems, "[]")
	if err != nil {
		return nil, err
	}
	return &invoiceModel{
		ID:          inv.ID.String(),
		CustomerID:  inv.CustomerID.String(),
		OrderID:     optionalID(inv.OrderID),
		ServiceID:   optionalID(inv.ServiceID),
		Number:      inv.Number,
		Currency:    inv.Currency,
		Amount:      inv.Amount.Amount,
		TaxAmount:   inv.TaxAmount.Amount,
		Total:       inv.Total.Amount,
		Status:      string(inv.Status),
		DueDate:     toMicros(inv.DueDate),
		PaidAt:      toMicrosPtr(inv.PaidAt),
		LineItems:   lines,
		IsRecurring: inv.IsRecurring,
		CreatedAt:   toMicros(inv.CreatedAt),
		UpdatedAt:   toMicros(inv.UpdatedAt),
	}, nil
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}
	custID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	orderID, err := id.ParseOptional(m.OrderID, id.PrefixOrder)
	if err != nil {
		return nil, err
	}
	svcID, err := id.ParseOptional(m.ServiceID, id.PrefixService)
	if err != nil {
		return nil, err
	}
	inv := &invoice.Invoice{
		Entity:      entity(m.CreatedAt, m.UpdatedAt),
		ID:          invID,
		CustomerID:  custID,
		OrderID:     orderID,
		ServiceID:   svcID,
		Number:      m.Number,
		Currency:    m.Currency,
		Amount:      types.New(m.Amount, m.Currency),
		TaxAmount:   types.New(m.TaxAmount, m.Currency),
		Total:       types.New(m.Total, m.Currency),
		Status:      invoice.Status(m.Status),
		DueDate:     fromMicros(m.DueDate),
		PaidAt:      fromMicrosPtr(m.PaidAt),
		IsRecurring: m.IsRecurring,
	}
	if err := unmarshalJSON(m.LineItems, &inv.LineItems); err != nil {
		return nil, err
	}
	return inv, nil
}

// ==================== Service models ====================

type serviceModel struct {
	grove.BaseModel `grove:"table:fulfill_services"`

	ID               string `grove:"id,pk"`
	CustomerID       string `grove:"customer_id"`
	ServiceTypeID    string `grove:"service_type_id"`
	OrderID          string `grove:"order_id"`
	DomainName       string `grove:"domain_name"`
	Configuration    string `grove:"configuration"`
	Status           string `grove:"status"`
	NextBillingDate  int64  `grove:"next_billing_date"`
	ExpiryDate       int64  `grove:"expiry_date"`
	ProvisioningData string `grove:"provisioning_data"`
	CreatedAt        int64  `grove:"created_at"`
	UpdatedAt        int64  `grove:"updated_at"`
}

func toServiceModel(svc *service.Service) (*serviceModel, error) {
	cfg, err := marshalJSON(svc.Configuration, "{}")
	if err != nil {
		return nil, err
	}
	data, err := marshalJSON(svc.ProvisioningData, "{}")
	if err != nil {
		return nil, err
	}
	return &serviceModel{
		ID:               svc.ID.String(),
		CustomerID:       svc.CustomerID.String(),
		ServiceTypeID:    svc.ServiceTypeID.String(),
		OrderID:          optionalID(svc.OrderID),
		DomainName:       svc.DomainName,
		Configuration:    cfg,
		Status:           string(svc.Status),
		NextBillingDate:  toMicros(svc.NextBillingDate),
		ExpiryDate:       toMicros(svc.ExpiryDate),
		ProvisioningData: data,
		CreatedAt:        toMicros(svc.CreatedAt),
		UpdatedAt:        toMicros(svc.UpdatedAt),
	}, nil
}

func fromServiceModel(m *serviceModel) (*service.Service, error) {
	svcID, err := id.ParseServiceID(m.ID)
	if err != nil {
		return nil, err
	}
	custID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	stID, err := id.ParseServiceTypeID(m.ServiceTypeID)
	if err != nil {
		return nil, err
	}
	orderID, err := id.ParseOptional(m.OrderID, id.PrefixOrder)
	if err != nil {
		return nil, err
	}
	svc := &service.Service{
		Entity:          entity(m.CreatedAt, m.UpdatedAt),
		ID:              svcID,
		CustomerID:      custID,
		ServiceTypeID:   stID,
		OrderID:         orderID,
		DomainName:      m.DomainName,
		Status:          service.Status(m.Status),
		NextBillingDate: fromMicros(m.NextBillingDate),
		ExpiryDate:      fromMicros(m.ExpiryDate),
	}
	if err := unmarshalJSON(m.Configuration, &svc.Configuration); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(m.ProvisioningData, &svc.ProvisioningData); err != nil {
		return nil, err
	}
	return svc, nil
}

// ==================== Helpers ====================

func toMicros(t time.Time) int64 { return t.UnixMicro() }

func fromMicros(us int64) time.Time { return time.UnixMicro(us).UTC() }

func toMicrosPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	us := t.UnixMicro()
	return &us
}

func fromMicrosPtr(us *int64) *time.Time {
	if us == nil {
		return nil
	}
	t := fromMicros(*us)
	return &t
}

func entity(created, updated int64) types.Entity {
	return types.Entity{CreatedAt: fromMicros(created), UpdatedAt: fromMicros(updated)}
}

func marshalJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func unmarshalJSON(s string, v any) error {
	if s == "" || s == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

func optionalID(i id.ID) string {
	if i.IsNil() {
		return ""
	}
	return i.String()
}
