package server

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"slices"

	"github.com/npezzotti/go-messenger/internal/database"
	"github.com/npezzotti/go-messenger/internal/types"
)

const MaxHistoryLimit = 500

// PresenceChecker answers whether a user currently has a registered connection.
type PresenceChecker interface {
	IsOnline(userId int) bool
}

// Aggregator derives conversation views from the message log. Nothing is
// cached; every call reads the log.
type Aggregator struct {
	log          *log.Logger
	db           database.GoChatRepository
	presence     PresenceChecker
	historyLimit int
}

func NewAggregator(logger *log.Logger, db database.GoChatRepository, presence PresenceChecker, historyLimit int) *Aggregator {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &Aggregator{
		log:          logger,
		db:           db,
		presence:     presence,
		historyLimit: historyLimit,
	}
}

func (a *Aggregator) isOnline(userId int) bool {
	return a.presence != nil && a.presence.IsOnline(userId)
}

// compareMessages orders by creation time, then by log sequence.
func compareMessages(x, y database.Message) int {
	if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(x.Id, y.Id)
}

type conversation struct {
	peerId int
	last   database.Message
	unread int
}

// ListConversations returns one summary per peer the user has exchanged
// messages with, most recent first. Peers whose account is gone are left
// out.
func (a *Aggregator) ListConversations(ctx context.Context, userId int) ([]types.ConversationSummary, error) {
	msgs, err := a.db.ListMessagesForUser(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	byPeer := make(map[int]*conversation)
	for _, m := range msgs {
		peerId := m.ReceiverId
		if m.SenderId != userId {
			peerId = m.SenderId
		}

		conv, ok := byPeer[peerId]
		if !ok {
			conv = &conversation{peerId: peerId, last: m}
			byPeer[peerId] = conv
		} else if compareMessages(m, conv.last) > 0 {
			conv.last = m
		}

		if m.ReceiverId == userId && !m.IsRead {
			conv.unread++
		}
	}

	summaries := make([]types.ConversationSummary, 0, len(byPeer))
	if len(byPeer) == 0 {
		return summaries, nil
	}

	peerIds := make([]int, 0, len(byPeer))
	for id := range byPeer {
		peerIds = append(peerIds, id)
	}

	peers, err := a.db.GetAccountsByIds(ctx, peerIds)
	if err != nil {
		return nil, fmt.Errorf("get peers: %w", err)
	}

	convs := make([]*conversation, 0, len(peers))
	profiles := make(map[int]types.User, len(peers))
	for _, p := range peers {
		conv, ok := byPeer[p.Id]
		if !ok {
			continue
		}
		convs = append(convs, conv)
		profiles[p.Id] = a.profile(p)
	}

	slices.SortFunc(convs, func(x, y *conversation) int {
		return compareMessages(y.last, x.last)
	})

	for _, conv := range convs {
		summaries = append(summaries, types.ConversationSummary{
			PeerId:            conv.peerId,
			Peer:              profiles[conv.peerId],
			LastMessage:       conv.last.Content,
			LastMessageType:   conv.last.MessageType,
			LastMessageTime:   conv.last.CreatedAt,
			LastMessageSender: conv.last.SenderId,
			UnreadCount:       conv.unread,
		})
	}

	return summaries, nil
}

func (a *Aggregator) profile(u database.User) types.User {
	return types.User{
		Id:        u.Id,
		Username:  u.Username,
		Avatar:    u.Avatar,
		IsOnline:  a.isOnline(u.Id),
		LastSeen:  u.LastSeen,
		CreatedAt: u.CreatedAt,
	}
}

func (a *Aggregator) requirePeer(ctx context.Context, peerId int) error {
	if _, err := a.db.GetAccountById(ctx, peerId); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get peer: %w", err)
	}
	return nil
}

// MarkRead marks every unread message from peerId to userId as read and
// returns how many changed. Repeating it changes nothing.
func (a *Aggregator) MarkRead(ctx context.Context, userId, peerId int) (int64, error) {
	if err := a.requirePeer(ctx, peerId); err != nil {
		return 0, err
	}

	n, err := a.db.MarkMessagesRead(ctx, userId, peerId, Now())
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}

	return n, nil
}

// History returns up to limit of the most recent messages between the
// pair, oldest first. A non-positive limit selects the default.
func (a *Aggregator) History(ctx context.Context, userId, peerId, limit int) ([]types.Message, error) {
	if limit <= 0 {
		limit = a.historyLimit
	}
	limit = min(limit, MaxHistoryLimit)

	if err := a.requirePeer(ctx, peerId); err != nil {
		return nil, err
	}

	msgs, err := a.db.GetMessagesBetween(ctx, userId, peerId, limit)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}

	history := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, toMessage(m))
	}

	return history, nil
}

// DeleteMessage soft-deletes a message. Only its sender may delete it.
func (a *Aggregator) DeleteMessage(ctx context.Context, userId int, messageId string) error {
	m, err := a.db.GetMessageByExternalId(ctx, messageId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get message: %w", err)
	}

	if m.IsDeleted {
		return ErrNotFound
	}
	if m.SenderId != userId {
		return ErrUnauthorizedMutation
	}

	ok, err := a.db.SoftDeleteMessage(ctx, m.Id, Now())
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if !ok {
		return ErrNotFound
	}

	return nil
}

// ListUsers returns every account except userId with live presence.
func (a *Aggregator) ListUsers(ctx context.Context, userId int) ([]types.User, error) {
	accounts, err := a.db.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	users := make([]types.User, 0, len(accounts))
	for _, u := range accounts {
		if u.Id == userId {
			continue
		}
		users = append(users, a.profile(u))
	}

	return users, nil
}

func toMessage(m database.Message) types.Message {
	return types.Message{
		Id:          m.ExternalId,
		SenderId:    m.SenderId,
		ReceiverId:  m.ReceiverId,
		Message:     m.Content,
		MessageType: m.MessageType,
		IsRead:      m.IsRead,
		ReadAt:      m.ReadAt,
		Timestamp:   m.CreatedAt,
	}
}
