package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const (
	accountColumns = "id, username, email, password_hash, avatar, last_seen, created_at, updated_at"
	messageColumns = "id, external_id, sender_id, receiver_id, content, message_type, " +
		"is_read, read_at, is_deleted, deleted_at, created_at"
)

type scanner interface {
	Scan(dest ...any) error
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func scanAccount(row scanner) (User, error) {
	var (
		u        User
		lastSeen sql.NullTime
	)
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.PasswordHash,
		&u.Avatar,
		&lastSeen,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	u.LastSeen = nullTime(lastSeen)

	return u, err
}

func scanMessage(row scanner) (Message, error) {
	var (
		m         Message
		readAt    sql.NullTime
		deletedAt sql.NullTime
	)
	err := row.Scan(
		&m.Id,
		&m.ExternalId,
		&m.SenderId,
		&m.ReceiverId,
		&m.Content,
		&m.MessageType,
		&m.IsRead,
		&readAt,
		&m.IsDeleted,
		&deletedAt,
		&m.CreatedAt,
	)
	m.ReadAt = nullTime(readAt)
	m.DeletedAt = nullTime(deletedAt)
	m.CreatedAt = m.CreatedAt.UTC()

	return m, err
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return messages, nil
}

func collectAccounts(rows *sql.Rows) ([]User, error) {
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return users, nil
}

func (db *PgGoChatRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO accounts (username, email, password_hash, avatar, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING "+accountColumns,
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		params.Avatar,
		now,
		now,
	)

	return scanAccount(row)
}

func (db *PgGoChatRepository) GetAccountById(ctx context.Context, id int) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1 LIMIT 1",
		id,
	)

	u, err := scanAccount(row)
	return u, notFound(err)
}

func (db *PgGoChatRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	u, err := scanAccount(row)
	return u, notFound(err)
}

func (db *PgGoChatRepository) ListAccounts(ctx context.Context) ([]User, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts ORDER BY username ASC, id ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	return collectAccounts(rows)
}

func (db *PgGoChatRepository) GetAccountsByIds(ctx context.Context, ids []int) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}

	keys := make(pq.Int64Array, len(ids))
	for i, id := range ids {
		keys[i] = int64(id)
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ANY($1)",
		keys,
	)
	if err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}

	return collectAccounts(rows)
}

func (db *PgGoChatRepository) UpdateLastSeen(ctx context.Context, id int, at time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE accounts SET last_seen = $2 WHERE id = $1",
		id,
		at,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *PgGoChatRepository) CreateMessage(ctx context.Context, msg *Message) error {
	if msg.MessageType == "" {
		msg.MessageType = DefaultMessageType
	}

	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO messages (external_id, sender_id, receiver_id, content, message_type, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
		msg.ExternalId,
		msg.SenderId,
		msg.ReceiverId,
		msg.Content,
		msg.MessageType,
		msg.CreatedAt,
	)

	return row.Scan(&msg.Id)
}

func (db *PgGoChatRepository) GetMessageByExternalId(ctx context.Context, externalId string) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	m, err := scanMessage(row)
	return m, notFound(err)
}

func (db *PgGoChatRepository) GetMessagesBetween(ctx context.Context, userId, peerId, limit int) ([]Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM ("+
			"SELECT "+messageColumns+" FROM messages "+
			"WHERE is_deleted = FALSE AND "+
			"((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)) "+
			"ORDER BY created_at DESC, id DESC LIMIT $3"+
			") recent ORDER BY created_at ASC, id ASC",
		userId,
		peerId,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}

	return collectMessages(rows)
}

func (db *PgGoChatRepository) ListMessagesForUser(ctx context.Context, userId int) ([]Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM messages "+
			"WHERE is_deleted = FALSE AND (sender_id = $1 OR receiver_id = $1) "+
			"ORDER BY created_at ASC, id ASC",
		userId,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	return collectMessages(rows)
}

func (db *PgGoChatRepository) MarkMessagesRead(ctx context.Context, readerId, senderId int, at time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE messages SET is_read = TRUE, read_at = $3 "+
			"WHERE receiver_id = $1 AND sender_id = $2 AND is_read = FALSE AND is_deleted = FALSE",
		readerId,
		senderId,
		at,
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (db *PgGoChatRepository) SoftDeleteMessage(ctx context.Context, messageId int, at time.Time) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE messages SET is_deleted = TRUE, deleted_at = $2 WHERE id = $1 AND is_deleted = FALSE",
		messageId,
		at,
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n > 0, err
}

func (db *PgGoChatRepository) PurgeDeletedMessages(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM messages WHERE is_deleted = TRUE AND deleted_at < $1",
		before,
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
