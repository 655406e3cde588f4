package postgres

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

// ==================== Customer models ====================

type customerModel struct {
	grove.BaseModel `grove:"table:fulfill_customers"`

	ID        string            `grove:"id,pk"`
	Name      string            `grove:"name"`
	Email     string            `grove:"email"`
	Company   string            `grove:"company"`
	Phone     string            `grove:"phone"`
	Metadata  map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt time.Time         `grove:"created_at"`
	UpdatedAt time.Time         `grove:"updated_at"`
}

func toCustomerModel(c *customer.Customer) *customerModel {
	meta := c.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	return &customerModel{
		ID:        c.ID.String(),
		Name:      c.Name,
		Email:     c.Email,
		Company:   c.Company,
		Phone:     c.Phone,
		Metadata:  meta,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func fromCustomerModel(m *customerModel) (*customer.Customer, error) {
	custID, err := id.ParseCustomerID(m.ID)
	if err != nil {
		return nil, err
	}
	return &customer.Customer{
		Entity:   types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:       custID,
		Name:     m.Name,
		Email:    m.Email,
		Company:  m.Company,
		Phone:    m.Phone,
		Metadata: m.Metadata,
	}, nil
}

// ==================== ServiceType models ====================

type serviceTypeModel struct {
	grove.BaseModel `grove:"table:fulfill_service_types"`

	ID           string          `grove:"id,pk"`
	Name         string          `grove:"name"`
	Slug         string          `grove:"slug"`
	Description  string          `grove:"description"`
	Type         string          `grove:"type"`
	PriceAmount  int64           `grove:"price_amount"`
	Currency     string          `grove:"currency"`
	BillingCycle string          `grove:"billing_cycle"`
	Features     json.RawMessage `grove:"features,type:jsonb"`
	Active       bool            `grove:"active"`
	CreatedAt    time.Time       `grove:"created_at"`
	UpdatedAt    time.Time       `grove:"updated_at"`
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
		CreatedAt:    st.CreatedAt,
		UpdatedAt:    st.UpdatedAt,
	}, nil
}

func fromServiceTypeModel(m *serviceTypeModel) (*servicetype.ServiceType, error) {
	stID, err := id.ParseServiceTypeID(m.ID)
	if err != nil {
		return nil, err
	}
	var features map[string]any
	if err := unmarshalJSON(m.Features, &features); err != nil {
		return nil, err
	}
	return &servicetype.ServiceType{
		Entity:       types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:           stID,
		Name:         m.Name,
		Slug:         m.Slug,
		Description:  m.Description,
		Type:         servicetype.Type(m.Type),
		Price:        types.New(m.PriceAmount, m.Currency),
		BillingCycle: servicetype.BillingCycle(m.BillingCycle),
		Features:     features,
		Active:       m.Active,
	}, nil
}

// ==================== Order models ====================

type orderModel struct {
	grove.BaseModel `grove:"table:fulfill_orders"`

	ID         string          `grove:"id,pk"`
	CustomerID string          `grove:"customer_id"`
	Number     string          `grove:"number"`
	Items      json.RawMessage `grove:"items,type:jsonb"`
	Currency   string          `grove:"currency"`
	Subtotal   int64           `grove:"subtotal"`
	TaxAmount  int64           `grove:"tax_amount"`
	Total      int64           `grove:"total"`
	Status     string          `grove:"status"`
	PaidAt     *time.Time      `grove:"paid_at"`
	Notes      string          `grove:"notes"`
	CreatedAt  time.Time       `grove:"created_at"`
	UpdatedAt  time.Time       `grove:"updated_at"`
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
		PaidAt:     o.PaidAt,
		Notes:      o.Notes,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
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
	var items []order.Item
	if err := unmarshalJSON(m.Items, &items); err != nil {
		return nil, err
	}
	return &order.Order{
		Entity:     types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:         orderID,
		CustomerID: custID,
		Number:     m.Number,
		Items:      items,
		Currency:   m.Currency,
		Subtotal:   types.New(m.Subtotal, m.Currency),
		TaxAmount:  types.New(m.TaxAmount, m.Currency),
		Total:      types.New(m.Total, m.Currency),
		Status:     order.Status(m.Status),
		PaidAt:     utcPtr(m.PaidAt),
		Notes:      m.Notes,
	}, nil
}

// ==================== Invoice models ====================

type invoiceModel struct {
	grove.BaseModel `grove:"table:fulfill_invoices"`

	ID          string          `grove:"id,pk"`
	CustomerID  string          `grove:"customer_id"`
	OrderID     string          `grove:"order_id"`
	ServiceID   string          `grove:"service_id"`
	Number      string          `grove:"number"`
	Currency    string          `grove:"currency"`
	Amount      int64           `grove:"amount"`
	TaxAmount   int64           `grove:"tax_amount"`
	Total       int64           `grove:"total"`
	Status      string          `grove:"status"`
	DueDate     time.Time       `grove:"due_date"`
	PaidAt      *time.Time      `grove:"paid_at"`
	LineItems   json.RawMessage `grove:"line_items,type:jsonb"`
	IsRecurring bool            `grove:"is_recurring"`
	CreatedAt   time.Time       `grove:"created_at"`
	UpdatedAt   time.Time       `grove:"updated_at"`
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
		DueDate:     inv.DueDate,
		PaidAt:      inv.PaidAt,
		LineItems:   lines,
		IsRecurring: inv.IsRecurring,
		CreatedAt:   inv.CreatedAt,
		UpdatedAt:   inv.UpdatedAt,
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
	var lines []invoice.LineItem
	if err := unmarshalJSON(m.LineItems, &lines); err != nil {
		return nil, err
	}
	return &invoice.Invoice{
		Entity:      types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
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
		DueDate:     m.DueDate.UTC(),
		PaidAt:      utcPtr(m.PaidAt),
		LineItems:   lines,
		IsRecurring: m.IsRecurring,
	}, nil
}

// ==================== Service models ====================

type serviceModel struct {
	grove.BaseModel `grove:"table:fulfill_services"`

	ID               string          `grove:"id,pk"`
	CustomerID       string          `grove:"customer_id"`
	ServiceTypeID    string          `grove:"service_type_id"`
	OrderID          string          `grove:"order_id"`
	DomainName       string          `grove:"domain_name"`
	Configuration    json.RawMessage `grove:"configuration,type:jsonb"`
	Status           string          `grove:"status"`
	NextBillingDate  time.Time       `grove:"next_billing_date"`
	ExpiryDate       time.Time       `grove:"expiry_date"`
	ProvisioningData json.RawMessage `grove:"provisioning_data,type:jsonb"`
	CreatedAt        time.Time       `grove:"created_at"`
	UpdatedAt        time.Time       `grove:"updated_at"`
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
		NextBillingDate:  svc.NextBillingDate,
		ExpiryDate:       svc.ExpiryDate,
		ProvisioningData: data,
		CreatedAt:        svc.CreatedAt,
		UpdatedAt:        svc.UpdatedAt,
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
		Entity:          types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:              svcID,
		CustomerID:      custID,
		ServiceTypeID:   stID,
		OrderID:         orderID,
		DomainName:      m.DomainName,
		Status:          service.Status(m.Status),
		NextBillingDate: m.NextBillingDate.UTC(),
		ExpiryDate:      m.ExpiryDate.UTC(),
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

func marshalJSON(v any, empty string) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return json.RawMessage(empty), nil
	}
	return b, nil
}

func unmarshalJSON(b json.RawMessage, v any) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return json.Unmarshal(b, v)
}

func optionalID(i id.ID) string {
	if i.IsNil() {
		return ""
	}
	return i.String()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
