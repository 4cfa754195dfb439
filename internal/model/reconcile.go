package model

// ReconcilePayment merges a payment confirmation into an order and returns
// the resulting state. The function is pure and idempotent: applying the
// same confirmation any number of times, in any interleaving with other
// confirmations for the same intent, yields the same order. Fields already
// present on the order are never clobbered by absent incoming fields.
func ReconcilePayment(o Order, incoming PaymentInfo) Order {
	o.PaymentStatus = PaymentStatusCompleted
	if !o.OrderStatus.Terminal() {
		o.OrderStatus = OrderStatusConfirmed
	}

	merged := PaymentInfo{}
	if o.Payment != nil {
		merged = *o.Payment
	}
	if incoming.Provider != "" {
		merged.Provider = incoming.Provider
	}
	if incoming.IntentID != "" {
		merged.IntentID = incoming.IntentID
	}
	if incoming.MethodID != "" {
		merged.MethodID = incoming.MethodID
	}
	if incoming.AmountCents != 0 {
		merged.AmountCents = incoming.AmountCents
	}
	if incoming.Currency != "" {
		merged.Currency = incoming.Currency
	}
	if incoming.ProcessorStatus != "" {
		merged.ProcessorStatus = incoming.ProcessorStatus
	}
	if incoming.CardBrand != "" {
		merged.CardBrand = incoming.CardBrand
	}
	if incoming.CardLast4 != "" {
		merged.CardLast4 = incoming.CardLast4
	}
	if incoming.ReceiptURL != "" {
		merged.ReceiptURL = incoming.ReceiptURL
	}
	o.Payment = &merged

	return o
}
