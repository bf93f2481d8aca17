// Package queue defines message payloads exchanged over the message broker.
package queue

// NotificationQueueName is the durable queue carrying booking
// lifecycle notifications to the dispatcher.
const NotificationQueueName = "booking.events"

// NotificationEvent is published whenever a booking changes status in
// a way the other party should hear about.  The engine deliberately
// sends only the routing facts; the dispatcher owns templating,
// delivery channels and opt-out preferences, so it must look up any
// display data it needs.
type NotificationEvent struct {
	Type        string `json:"type"`         // inquiry_received, quote_received, deposit_paid, trip_confirmed, booking_completed, ...
	BookingID   uint64 `json:"booking_id"`   // booking the event concerns
	RecipientID uint64 `json:"recipient_id"` // user to notify
	OccurredAt  string `json:"occurred_at"`  // RFC3339 UTC timestamp
}
