package audithook

// Action constants for audit events.
const (
	// Order actions
	ActionOrderCreated   = "order.created"
	ActionOrderPaid      = "order.paid"
	ActionOrderCancelled = "order.cancelled"
	ActionOrderRefunded  = "order.refunded"

	// Invoice actions
	ActionInvoicePaid      = "invoice.paid"
	ActionInvoiceCancelled = "invoice.cancelled"
	ActionInvoicesOverdue  = "invoice.overdue"

	// Billing actions
	ActionRecurringInvoiceGenerated = "billing.invoice_generated"
	ActionBillingRunCompleted       = "billing.run_completed"

	// Service actions
	ActionServiceProvisioned = "service.provisioned"
	ActionProvisioningFailed = "service.provisioning_failed"
	ActionServiceSuspended   = "service.suspended"
	ActionServiceReactivated = "service.reactivated"
	ActionServiceCancelled   = "service.cancelled"
)

// Resource constants for audit events.
const (
	ResourceOrder   = "order"
	ResourceInvoice = "invoice"
	ResourceBilling = "billing"
	ResourceService = "service"
)

// Category constants for audit events.
const (
	CategoryOrders       = "orders"
	CategoryPayment      = "payment"
	CategoryBilling      = "billing"
	CategoryProvisioning = "provisioning"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
