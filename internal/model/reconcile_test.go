package model

import (
	"reflect"
	"testing"
)

func TestReconcilePayment_SetsStatuses(t *testing.T) {
	o := Order{
		Number:        "RGO2608290001",
		PaymentStatus: PaymentStatusPending,
		OrderStatus:   OrderStatusPending,
	}

	got := ReconcilePayment(o, PaymentInfo{IntentID: "pi_1", ProcessorStatus: "succeeded"})

	if got.PaymentStatus != PaymentStatusCompleted {
		t.Fatalf("paymentStatus = %s, want completed", got.PaymentStatus)
	}
	if got.OrderStatus != OrderStatusConfirmed {
		t.Fatalf("orderStatus = %s, want confirmed", got.OrderStatus)
	}
	if got.Payment == nil || got.Payment.IntentID != "pi_1" {
		t.Fatalf("payment not attached: %+v", got.Payment)
	}
}

func TestReconcilePayment_Idempotent(t *testing.T) {
	o := Order{PaymentStatus: PaymentStatusPending, OrderStatus: OrderStatusPending}
	pay := PaymentInfo{IntentID: "pi_1", AmountCents: 60000, Currency: "inr", ProcessorStatus: "succeeded"}

	once := ReconcilePayment(o, pay)
	twice := ReconcilePayment(once, pay)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("reapplying the same confirmation changed the order:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestReconcilePayment_OrderIndependent(t *testing.T) {
	o := Order{PaymentStatus: PaymentStatusPending, OrderStatus: OrderStatusPending}
	client := PaymentInfo{IntentID: "pi_1", MethodID: "pm_1", CardBrand: "visa", CardLast4: "4242"}
	webhook := PaymentInfo{IntentID: "pi_1", AmountCents: 60000, Currency: "inr", ProcessorStatus: "succeeded"}

	ab := ReconcilePayment(ReconcilePayment(o, client), webhook)
	ba := ReconcilePayment(ReconcilePayment(o, webhook), client)

	if !reflect.DeepEqual(ab, ba) {
		t.Fatalf("event order changed the final state:\nab: %+v\nba: %+v", ab, ba)
	}
}

func TestReconcilePayment_DoesNotClobberPresentFields(t *testing.T) {
	o := Order{
		PaymentStatus: PaymentStatusCompleted,
		OrderStatus:   OrderStatusConfirmed,
		Payment: &PaymentInfo{
			IntentID:  "pi_1",
			CardBrand: "visa",
			CardLast4: "4242",
		},
	}

	got := ReconcilePayment(o, PaymentInfo{IntentID: "pi_1", ProcessorStatus: "succeeded"})

	if got.Payment.CardBrand != "visa" || got.Payment.CardLast4 != "4242" {
		t.Fatalf("present card fields clobbered: %+v", got.Payment)
	}
	if got.Payment.ProcessorStatus != "succeeded" {
		t.Fatalf("incoming status not merged: %+v", got.Payment)
	}
}

func TestReconcilePayment_TerminalFulfillmentPreserved(t *testing.T) {
	o := Order{PaymentStatus: PaymentStatusPending, OrderStatus: OrderStatusCancelled}

	got := ReconcilePayment(o, PaymentInfo{IntentID: "pi_1"})

	if got.OrderStatus != OrderStatusCancelled {
		t.Fatalf("terminal fulfillment status changed to %s", got.OrderStatus)
	}
	if got.PaymentStatus != PaymentStatusCompleted {
		t.Fatalf("paymentStatus = %s, want completed", got.PaymentStatus)
	}
}

func TestRecomputeTotals(t *testing.T) {
	o := Order{
		Items: []OrderItem{
			{Quantity: 2, PriceCents: 15000},
			{Quantity: 1, PriceCents: 30000},
		},
		TaxCents:      500,
		ShippingCents: 2000,
		DiscountCents: 1000,
		// a lying client total, must be overwritten
		TotalCents: 1,
	}

	o.RecomputeTotals()

	if o.SubtotalCents != 60000 {
		t.Fatalf("subtotal = %d, want 60000", o.SubtotalCents)
	}
	if want := int64(60000 + 500 + 2000 - 1000); o.TotalCents != want {
		t.Fatalf("total = %d, want %d", o.TotalCents, want)
	}
	if o.Items[0].TotalCents != 30000 || o.Items[1].TotalCents != 30000 {
		t.Fatalf("line totals = %d/%d, want 30000/30000", o.Items[0].TotalCents, o.Items[1].TotalCents)
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := []OrderStatus{OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}

	open := []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped}
	for _, s := range open {
		if s.Terminal() {
			t.Fatalf("%s must not be terminal", s)
		}
	}
}
