package storage

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"vhrealtime/tools/errs"
)

// PgMessageStore writes to the chat_messages table owned by the account service.
type PgMessageStore struct {
	pool *pgxpool.Pool
}

func NewPgMessageStore(pool *pgxpool.Pool) *PgMessageStore {
	return &PgMessageStore{pool: pool}
}

const insertMessageSQL = `
INSERT INTO chat_messages (appointment_id, sender_id, message, timestamp)
VALUES ($1, $2, $3, now())
RETURNING id, timestamp`

func (s *PgMessageStore) Persist(ctx context.Context, msg NewMessage) (Persisted, error) {
	var (
		id  int64
		out Persisted
	)
	err := s.pool.QueryRow(ctx, insertMessageSQL, msg.AppointmentID, msg.SenderID, msg.Body).
		Scan(&id, &out.Timestamp)
	if err != nil {
		return Persisted{}, errs.WrapMsg(err, "insert chat message")
	}
	out.ID = strconv.FormatInt(id, 10)
	return out, nil
}

const historySQL = `
SELECT m.id, m.appointment_id, m.sender_id,
       u.first_name, u.last_name, u.username, u.role,
       m.message, m.timestamp
FROM chat_messages m
JOIN users u ON u.id = m.sender_id
WHERE m.appointment_id = $1
ORDER BY m.timestamp, m.id`

func (s *PgMessageStore) History(ctx context.Context, appointmentID int64) ([]ChatMessage, error) {
	rows, err := s.pool.Query(ctx, historySQL, appointmentID)
	if err != nil {
		return nil, errs.WrapMsg(err, "query chat history")
	}
	defer rows.Close()

	out := make([]ChatMessage, 0)
	for rows.Next() {
		var (
			id int64
			m  ChatMessage
			u  User
		)
		if err := rows.Scan(&id, &m.AppointmentID, &m.SenderID,
			&u.FirstName, &u.LastName, &u.Username, &m.SenderRole,
			&m.Body, &m.Timestamp); err != nil {
			return nil, errs.WrapMsg(err, "scan chat message")
		}
		m.ID = strconv.FormatInt(id, 10)
		m.SenderName = u.DisplayName()
		out = append(out, m)
	}
	return out, errs.Wrap(rows.Err())
}
