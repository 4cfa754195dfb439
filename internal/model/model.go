// Package model contains the domain entities of the storefront service.
package model

import "time"

// Role describes the access level of a user account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User represents a registered storefront account.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash []byte
	Role         Role
	Phone        string
	Address      *Address
	CreatedAt    time.Time
}

// PaymentStatus describes the settlement state of an order's payment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// Terminal reports whether no further payment transition is defined.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed || s == PaymentStatusRefunded
}

// OrderStatus describes the fulfillment state of an order. It is tracked
// independently of the payment status.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusReturned   OrderStatus = "returned"
)

// Terminal reports whether no further fulfillment transition is defined.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled || s == OrderStatusReturned
}

// Valid reports whether the status is one of the known fulfillment states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned:
		return true
	}
	return false
}

// OrderItem is a single line of an order. Monetary amounts are in minor
// currency units (paise).
type OrderItem struct {
	ProductRef string
	Name       string
	Grade      string
	Quantity   int32
	PriceCents int64
	Unit       string
	TotalCents int64
	Image      string
}

// Address holds a shipping address as supplied at checkout.
type Address struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Street    string `json:"street,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	ZipCode   string `json:"zipCode,omitempty"`
	Country   string `json:"country,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// PaymentInfo is the payment attachment of an order, populated once a
// payment attempt resolves.
type PaymentInfo struct {
	Provider        string `json:"provider,omitempty"`
	IntentID        string `json:"intentId,omitempty"`
	MethodID        string `json:"methodId,omitempty"`
	AmountCents     int64  `json:"amountCents,omitempty"`
	Currency        string `json:"currency,omitempty"`
	ProcessorStatus string `json:"processorStatus,omitempty"`
	CardBrand       string `json:"cardBrand,omitempty"`
	CardLast4       string `json:"cardLast4,omitempty"`
	ReceiptURL      string `json:"receiptUrl,omitempty"`
}

// Order is the central entity: a priced, owned set of line items moving
// through payment and fulfillment states.
type Order struct {
	ID                 int64
	Number             string
	UserID             int64
	Items              []OrderItem
	ShippingAddress    *Address
	PaymentMethod      string
	PaymentStatus      PaymentStatus
	OrderStatus        OrderStatus
	SubtotalCents      int64
	TaxCents           int64
	ShippingCents      int64
	DiscountCents      int64
	TotalCents         int64
	Currency           string
	CustomerNote       string
	Payment            *PaymentInfo
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeliveredAt        *time.Time
	CancelledAt        *time.Time
	CancelledBy        *int64
	CancellationReason string
	RefundAmountCents  int64
	RefundReason       string
}

// RecomputeTotals derives line totals, subtotal and grand total from the
// items. Client-supplied totals are never trusted.
func (o *Order) RecomputeTotals() {
	var subtotal int64
	for i := range o.Items {
		o.Items[i].TotalCents = int64(o.Items[i].Quantity) * o.Items[i].PriceCents
		subtotal += o.Items[i].TotalCents
	}
	o.SubtotalCents = subtotal
	o.TotalCents = subtotal + o.TaxCents + o.ShippingCents - o.DiscountCents
}

// Review is a product review; at most one per (product, user).
type Review struct {
	ID         int64
	ProductRef string
	UserID     int64
	UserName   string
	Rating     int32
	Comment    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StatusStat aggregates orders sharing a fulfillment status.
type StatusStat struct {
	Count      int64
	TotalCents int64
}
