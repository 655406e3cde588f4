package mongo

import (
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

	ID        string            `grove:"id,pk"      bson:"_id"`
	Name      string            `grove:"name"       bson:"name"`
	Email     string            `grove:"email"      bson:"email"`
	Company   string            `grove:"company"    bson:"company"`
	Phone     string            `grove:"phone"      bson:"phone"`
	Metadata  map[string]string `grove:"metadata"   bson:"metadata,omitempty"`
	CreatedAt time.Time         `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time         `grove:"updated_at" bson:"updated_at"`
}

func toCustomerModel(c *customer.Customer) *customerModel {
	return &customerModel{
		ID:        c.ID.String(),
		Name:      c.Name,
		Email:     c.Email,
		Company:   c.Company,
		Phone:     c.Phone,
		Metadata:  c.Metadata,
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
		Entity:   entity(m.CreatedAt, m.UpdatedAt),
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

	ID           string         `grove:"id,pk"         bson:"_id"`
	Name         string         `grove:"name"          bson:"name"`
	Slug         string         `grove:"slug"          bson:"slug"`
	Description  string         `grove:"description"   bson:"description"`
	Type         string         `grove:"type"          bson:"type"`
	PriceAmount  int64          `grove:"price_amount"  bson:"price_amount"`
	Currency     string         `grove:"currency"      bson:"currency"`
	BillingCycle string         `grove:"billing_cycle" bson:"billing_cycle"`
	Features     map[string]any `grove:"features"      bson:"features,omitempty"`
	Active       bool           `grove:"active"        bson:"active"`
	CreatedAt    time.Time      `grove:"created_at"    bson:"created_at"`
	UpdatedAt    time.Time      `grove:"updated_at"    bson:"updated_at"`
}

func toServiceTypeModel(st *servicetype.ServiceType) *serviceTypeModel {
	return &serviceTypeModel{
		ID:           st.ID.String(),
		Name:         st.Name,
		Slug:         st.Slug,
		Description:  st.Description,
		Type:         string(st.Type),
		PriceAmount:  st.Price.Amount,
		Currency:     st.Price.Currency,
		BillingCycle: string(st.BillingCycle),
		Features:     st.Features,
		Active:       st.Active,
		CreatedAt:    st.CreatedAt,
		UpdatedAt:    st.UpdatedAt,
	}
}

func fromServiceTypeModel(m *serviceTypeModel) (*servicetype.ServiceType, error) {
	stID, err := id.ParseServiceTypeID(m.ID)
	if err != nil {
		return nil, err
	}
	return &servicetype.ServiceType{
		Entity:       entity(m.CreatedAt, m.UpdatedAt),
		ID:           stID,
		Name:         m.Name,
		Slug:         m.Slug,
		Description:  m.Description,
		Type:         servicetype.Type(m.Type),
		Price:        types.New(m.PriceAmount, m.Currency),
		BillingCycle: servicetype.BillingCycle(m.BillingCycle),
		Features:     m.Features,
		Active:       m.Active,
	}, nil
}

// ==================== Order models ====================

type orderModel struct {
	grove.BaseModel `grove:"table:fulfill_orders"`

	ID         string      `grove:"id,pk"       bson:"_id"`
	CustomerID string      `grove:"customer_id" bson:"customer_id"`
	Number     string      `grove:"number"      bson:"number"`
	Items      []itemModel `grove:"items"       bson:"items"`
	Currency   string      `grove:"currency"    bson:"currency"`
	Subtotal   int64       `grove:"subtotal"    bson:"subtotal"`
	TaxAmount  int64       `grove:"tax_amount"  bson:"tax_amount"`
	Total      int64       `grove:"total"       bson:"total"`
	Status     string      `grove:"status"      bson:"status"`
	PaidAt     *time.Time  `grove:"paid_at"     bson:"paid_at,omitempty"`
	Notes      string      `grove:"notes"       bson:"notes"`
	CreatedAt  time.Time   `grove:"created_at"  bson:"created_at"`
	UpdatedAt  time.Time   `grove:"updated_at"  bson:"updated_at"`
}

type itemModel struct {
	ServiceTypeID string `bson:"service_type_id"`
	Name          string `bson:"name"`
	Quantity      int64  `bson:"quantity"`
	UnitPrice     int64  `bson:"unit_price"`
	LineTotal     int64  `bson:"line_total"`
	DomainName    string `bson:"domain_name,omitempty"`
}

func toOrderModel(o *order.Order) *orderModel {
	items := make([]itemModel, len(o.Items))
	for i, it := range o.Items {
		items[i] = itemModel{
			ServiceTypeID: it.ServiceTypeID.String(),
			Name:          it.Name,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice.Amount,
			LineTotal:     it.LineTotal.Amount,
			DomainName:    it.DomainName,
		}
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
	}
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
	items := make([]order.Item, len(m.Items))
	for i, it := range m.Items {
		stID, err := id.ParseServiceTypeID(it.ServiceTypeID)
		if err != nil {
			return nil, err
		}
		items[i] = order.Item{
			ServiceTypeID: stID,
			Name:          it.Name,
			Quantity:      it.Quantity,
			UnitPrice:     types.New(it.UnitPrice, m.Currency),
			LineTotal:     types.New(it.LineTotal, m.Currency),
			DomainName:    it.DomainName,
		}
	}
	return &order.Order{
		Entity:     entity(m.CreatedAt, m.UpdatedAt),
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

	ID          string          `grove:"id,pk"        bson:"_id"`
	CustomerID  string          `grove:"customer_id"  bson:"customer_id"`
	OrderID     string          `grove:"order_id"     bson:"order_id"`
	ServiceID   string          `grove:"service_id"   bson:"service_id"`
	Number      string          `grove:"number"       bson:"number"`
	Currency    string          `grove:"currency"     bson:"currency"`
	Amount      int64           `grove:"amount"       bson:"amount"`
	TaxAmount   int64           `grove:"tax_amount"   bson:"tax_amount"`
	Total       int64           `grove:"total"        bson:"total"`
	Status      string          `grove:"status"       bson:"status"`
	DueDate     time.Time       `grove:"due_date"     bson:"due_date"`
	PaidAt      *time.Time      `grove:"paid_at"      bson:"paid_at,omitempty"`
	LineItems   []lineItemModel `grove:"line_items"   bson:"line_items"`
	IsRecurring bool            `grove:"is_recurring" bson:"is_recurring"`
	CreatedAt   time.Time       `grove:"created_at"   bson:"created_at"`
	UpdatedAt   time.Time       `grove:"updated_at"   bson:"updated_at"`
}

type lineItemModel struct {
	Description string `bson:"description"`
	Quantity    int64  `bson:"quantity"`
	UnitPrice   int64  `bson:"unit_price"`
	Total       int64  `bson:"total"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	lines := make([]lineItemModel, len(inv.LineItems))
	for i, li := range inv.LineItems {
		lines[i] = lineItemModel{
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice.Amount,
			Total:       li.Total.Amount,
		}
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
	}
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
	lines := make([]invoice.LineItem, len(m.LineItems))
	for i, li := range m.LineItems {
		lines[i] = invoice.LineItem{
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   types.New(li.UnitPrice, m.Currency),
			Total:       types.New(li.Total, m.Currency),
		}
	}
	return &invoice.Invoice{
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
		DueDate:     m.DueDate.UTC(),
		PaidAt:      utcPtr(m.PaidAt),
		LineItems:   lines,
		IsRecurring: m.IsRecurring,
	}, nil
}

// ==================== Service models ====================

// Configuration and provisioning payloads are stored as embedded
// documents using the driver's default field naming.
type serviceModel struct {
	grove.BaseModel `grove:"table:fulfill_services"`

	ID               string                   `grove:"id,pk"             bson:"_id"`
	CustomerID       string                   `grove:"customer_id"       bson:"customer_id"`
	ServiceTypeID    string                   `grove:"service_type_id"   bson:"service_type_id"`
	OrderID          string                   `grove:"order_id"          bson:"order_id"`
	DomainName       string                   `grove:"domain_name"       bson:"domain_name"`
	Configuration    service.Configuration    `grove:"configuration"     bson:"configuration"`
	Status           string                   `grove:"status"            bson:"status"`
	NextBillingDate  time.Time                `grove:"next_billing_date" bson:"next_billing_date"`
	ExpiryDate       time.Time                `grove:"expiry_date"       bson:"expiry_date"`
	ProvisioningData service.ProvisioningData `grove:"provisioning_data" bson:"provisioning_data"`
	CreatedAt        time.Time                `grove:"created_at"        bson:"created_at"`
	UpdatedAt        time.Time                `grove:"updated_at"        bson:"updated_at"`
}

func toServiceModel(svc *service.Service) *serviceModel {
	return &serviceModel{
		ID:               svc.ID.String(),
		CustomerID:       svc.CustomerID.String(),
		ServiceTypeID:    svc.ServiceTypeID.String(),
		OrderID:          optionalID(svc.OrderID),
		DomainName:       svc.DomainName,
		Configuration:    svc.Configuration,
		Status:           string(svc.Status),
		NextBillingDate:  svc.NextBillingDate,
		ExpiryDate:       svc.ExpiryDate,
		ProvisioningData: svc.ProvisioningData,
		CreatedAt:        svc.CreatedAt,
		UpdatedAt:        svc.UpdatedAt,
	}
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
	cfg := m.Configuration
	cfg.CreatedAt = cfg.CreatedAt.UTC()
	data := m.ProvisioningData
	data.ProvisionedAt = data.ProvisionedAt.UTC()
	return &service.Service{
		Entity:           entity(m.CreatedAt, m.UpdatedAt),
		ID:               svcID,
		CustomerID:       custID,
		ServiceTypeID:    stID,
		OrderID:          orderID,
		DomainName:       m.DomainName,
		Configuration:    cfg,
		Status:           service.Status(m.Status),
		NextBillingDate:  m.NextBillingDate.UTC(),
		ExpiryDate:       m.ExpiryDate.UTC(),
		ProvisioningData: data,
	}, nil
}

// ==================== Helpers ====================

func entity(created, updated time.Time) types.Entity {
	return types.Entity{CreatedAt: created.UTC(), UpdatedAt: updated.UTC()}
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
