package database

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by every backend when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

const DefaultMessageType = "text"

type GoChatRepository interface {
	Ping(ctx context.Context) error
	Close() error
	CreateAccount(ctx context.Context, params CreateAccountParams) (User, error)
	GetAccountById(ctx context.Context, accountId int) (User, error)
	GetAccountByEmail(ctx context.Context, email string) (User, error)
	ListAccounts(ctx context.Context) ([]User, error)
	GetAccountsByIds(ctx context.Context, ids []int) ([]User, error)
	UpdateLastSeen(ctx context.Context, accountId int, at time.Time) error
	// CreateMessage appends msg to the log and sets msg.Id.
	CreateMessage(ctx context.Context, msg *Message) error
	GetMessageByExternalId(ctx context.Context, externalId string) (Message, error)
	// GetMessagesBetween returns the most recent limit non-deleted messages
	// exchanged by the pair, oldest first.
	GetMessagesBetween(ctx context.Context, userId, peerId, limit int) ([]Message, error)
	// ListMessagesForUser returns every non-deleted message the user sent
	// or received.
	ListMessagesForUser(ctx context.Context, userId int) ([]Message, error)
	// MarkMessagesRead flags unread messages from sender to reader as read
	// and reports how many rows changed.
	MarkMessagesRead(ctx context.Context, readerId, senderId int, at time.Time) (int64, error)
	// SoftDeleteMessage reports false if the message was already deleted.
	SoftDeleteMessage(ctx context.Context, messageId int, at time.Time) (bool, error)
	PurgeDeletedMessages(ctx context.Context, before time.Time) (int64, error)
}
