package repository

import (
	"context"
	"database/sql"

	"github.com/medivoyage/booking-api/internal/model"
)

// MessageRepo provides access to the append-only booking_messages log.
// Messages carry the quote/reply conversation between a patient and a
// provider; there is no update or delete path.
type MessageRepo struct {
	db *sql.DB
}

// NewMessageRepo returns a new MessageRepo bound to the given database.
func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

// Append inserts a message and returns it with the generated id and
// timestamp populated.
func (r *MessageRepo) Append(ctx context.Context, bookingID, senderID uint64, body string) (*model.BookingMessage, error) {
	const ins = `INSERT INTO booking_messages (booking_id, sender_id, body) VALUES (?, ?, ?)`
	res, err := r.db.ExecContext(ctx, ins, bookingID, senderID, body)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	const sel = `SELECT id, booking_id, sender_id, body, created_at
				 FROM booking_messages WHERE id = ?`
	var m model.BookingMessage
	if err := r.db.QueryRowContext(ctx, sel, id).Scan(&m.ID, &m.BookingID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// AppendTx is Append within an existing transaction, used when the
// first message is written together with the inquiry itself.
func (r *MessageRepo) AppendTx(ctx context.Context, tx *sql.Tx, bookingID, senderID uint64, body string) error {
	const ins = `INSERT INTO booking_messages (booking_id, sender_id, body) VALUES (?, ?, ?)`
	_, err := tx.ExecContext(ctx, ins, bookingID, senderID, body)
	return err
}

// ListByBooking returns a booking's messages ordered oldest first, so
// the conversation reads top to bottom.
func (r *MessageRepo) ListByBooking(ctx context.Context, bookingID uint64) ([]model.BookingMessage, error) {
	const q = `SELECT id, booking_id, sender_id, body, created_at
			   FROM booking_messages WHERE booking_id = ? ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.BookingMessage, 0)
	for rows.Next() {
		var m model.BookingMessage
		if err := rows.Scan(&m.ID, &m.BookingID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
