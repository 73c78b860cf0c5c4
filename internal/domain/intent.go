package domain

// Intent is what the customer asked the system to do, as read from the
// conversation.
type Intent struct {
	Email              string
	ReservationID      string
	CancelReservation  bool
	Refund             bool
	SubscriptionAction SubscriptionAction
	Preferences        map[string]string
}

// Write reports whether the customer requested a state change.
func (i Intent) Write() bool {
	return i.CancelReservation || i.Refund || i.SubscriptionAction != ""
}
