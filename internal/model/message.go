package model

import "time"

// BookingMessage is one entry in the free-text conversation attached
// to a booking.  Messages are append-only and ordered by creation
// time; there is no edit or delete path.
//
// Fields:
//  ID        – primary key identifier.
//  BookingID – booking the message belongs to.
//  SenderID  – user who wrote the message.
//  Body      – message text.
//  CreatedAt – creation timestamp.
type BookingMessage struct {
	ID        uint64    // booking_messages.id
	BookingID uint64    // booking_messages.booking_id
	SenderID  uint64    // booking_messages.sender_id
	Body      string    // booking_messages.body
	CreatedAt time.Time // booking_messages.created_at
}
