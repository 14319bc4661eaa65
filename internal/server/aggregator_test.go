package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/npezzotti/go-messenger/internal/database"
	"github.com/npezzotti/go-messenger/internal/testutil"
	"github.com/npezzotti/go-messenger/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type presenceSet map[int]bool

func (p presenceSet) IsOnline(userId int) bool { return p[userId] }

func TestListConversations(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	const me = 1

	msgs := []database.Message{
		{Id: 1, SenderId: me, ReceiverId: 2, Content: "to bob", CreatedAt: base},
		{Id: 2, SenderId: 2, ReceiverId: me, Content: "from bob", CreatedAt: base.Add(time.Minute)},
		{Id: 3, SenderId: 3, ReceiverId: me, Content: "carol 1", CreatedAt: base.Add(2 * time.Minute)},
		// same timestamp as id 3: the higher id is later
		{Id: 4, SenderId: 3, ReceiverId: me, Content: "carol 2", CreatedAt: base.Add(2 * time.Minute), IsRead: true},
		{Id: 5, SenderId: 4, ReceiverId: me, Content: "from a deleted account", CreatedAt: base.Add(3 * time.Minute)},
		{Id: 6, SenderId: me, ReceiverId: 3, Content: "reply to carol", CreatedAt: base.Add(30 * time.Second)},
	}

	db := &database.MockGoChatRepository{}
	defer db.AssertExpectations(t)
	db.On("ListMessagesForUser", me).Return(msgs, nil).Twice()
	db.On("GetAccountsByIds", mock.MatchedBy(func(ids []int) bool {
		return assert.ElementsMatch(t, []int{2, 3, 4}, ids)
	})).Return([]database.User{
		{Id: 2, Username: "bob", Avatar: "bob.png"},
		{Id: 3, Username: "carol"},
	}, nil).Twice()

	agg := NewAggregator(testutil.TestLogger(t), db, presenceSet{3: true}, 0)

	summaries, err := agg.ListConversations(context.Background(), me)
	assert.NoError(t, err)
	if !assert.Len(t, summaries, 2, "expected the conversation with a missing account to be omitted") {
		return
	}

	carol := summaries[0]
	assert.Equal(t, 3, carol.PeerId, "expected most recent conversation first")
	assert.Equal(t, "carol 2", carol.LastMessage, "expected id to break the timestamp tie")
	assert.Equal(t, 3, carol.LastMessageSender)
	assert.Equal(t, 1, carol.UnreadCount, "expected only unread incoming messages to count")
	assert.True(t, carol.Peer.IsOnline)

	bob := summaries[1]
	assert.Equal(t, 2, bob.PeerId)
	assert.Equal(t, "from bob", bob.LastMessage)
	assert.Equal(t, base.Add(time.Minute), bob.LastMessageTime)
	assert.Equal(t, 1, bob.UnreadCount)
	assert.Equal(t, "bob.png", bob.Peer.Avatar)
	assert.False(t, bob.Peer.IsOnline)

	again, err := agg.ListConversations(context.Background(), me)
	assert.NoError(t, err)
	assert.Equal(t, summaries, again, "expected listing to be idempotent")
}

func TestListConversations_Empty(t *testing.T) {
	db := &database.MockGoChatRepository{}
	defer db.AssertExpectations(t)
	db.On("ListMessagesForUser", 1).Return([]database.Message{}, nil).Once()

	agg := NewAggregator(testutil.TestLogger(t), db, nil, 0)
	summaries, err := agg.ListConversations(context.Background(), 1)
	assert.NoError(t, err)
	assert.NotNil(t, summaries)
	assert.Empty(t, summaries)
}

func TestListConversations_RepositoryError(t *testing.T) {
	db := &database.MockGoChatRepository{}
	db.On("ListMessagesForUser", 1).Return([]database.Message{}, errors.New("boom")).Once()

	agg := NewAggregator(testutil.TestLogger(t), db, nil, 0)
	_, err := agg.ListConversations(context.Background(), 1)
	assert.Error(t, err)
}

func TestMarkRead(t *testing.T) {
	repo := newSQLiteRepo(t)
	alice := createUser(t, repo, "alice")
	bob := createUser(t, repo, "bob")
	ctx := context.Background()

	for i, content := range []string{"a", "b"} {
		err := repo.CreateMessage(ctx, &database.Message{
			ExternalId: content,
			SenderId:   alice.Id,
			ReceiverId: bob.Id,
			Content:    content,
			CreatedAt:  Now().Add(time.Duration(i) * time.Millisecond),
		})
		assert.NoError(t, err)
	}

	agg := NewAggregator(testutil.TestLogger(t), repo, nil, 0)

	n, err := agg.MarkRead(ctx, bob.Id, alice.Id)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = agg.MarkRead(ctx, bob.Id, alice.Id)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n, "expected repeat mark read to be a no-op")

	summaries, err := agg.ListConversations(ctx, bob.Id)
	assert.NoError(t, err)
	if assert.Len(t, summaries, 1) {
		assert.Equal(t, 0, summaries[0].UnreadCount)
	}

	_, err = agg.MarkRead(ctx, bob.Id, 9999)
	assert.ErrorIs(t, err, ErrNotFound, "expected unknown peer to be not found")
}

func TestHistory(t *testing.T) {
	repo := newSQLiteRepo(t)
	alice := createUser(t, repo, "alice")
	bob := createUser(t, repo, "bob")
	ctx := context.Background()

	base := Now()
	for i := range 5 {
		err := repo.CreateMessage(ctx, &database.Message{
			ExternalId: string(rune('a' + i)),
			SenderId:   alice.Id,
			ReceiverId: bob.Id,
			Content:    string(rune('a' + i)),
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		})
		assert.NoError(t, err)
	}

	agg := NewAggregator(testutil.TestLogger(t), repo, nil, 3)

	history, err := agg.History(ctx, bob.Id, alice.Id, 0)
	assert.NoError(t, err)
	if assert.Len(t, history, 3, "expected default limit to apply") {
		assert.Equal(t, "c", history[0].Message)
		assert.Equal(t, "e", history[2].Message)
	}

	history, err = agg.History(ctx, alice.Id, bob.Id, 10)
	assert.NoError(t, err)
	assert.Len(t, history, 5)

	_, err = agg.History(ctx, alice.Id, 9999, 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHistory_LimitCapped(t *testing.T) {
	db := &database.MockGoChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetAccountById", 2).Return(database.User{Id: 2}, nil).Once()
	db.On("GetMessagesBetween", 1, 2, MaxHistoryLimit).Return([]database.Message{}, nil).Once()

	agg := NewAggregator(testutil.TestLogger(t), db, nil, 0)
	history, err := agg.History(context.Background(), 1, 2, 10000)
	assert.NoError(t, err)
	assert.Empty(t, history)
}

func TestDeleteMessage(t *testing.T) {
	tcases := []struct {
		name    string
		msg     database.Message
		findErr error
		deleted bool
		wantErr error
	}{
		{
			name:    "sender deletes",
			msg:     database.Message{Id: 10, ExternalId: "m1", SenderId: 1},
			deleted: true,
		},
		{
			name:    "not the sender",
			msg:     database.Message{Id: 10, ExternalId: "m1", SenderId: 2},
			wantErr: ErrUnauthorizedMutation,
		},
		{
			name:    "missing",
			findErr: database.ErrNotFound,
			wantErr: ErrNotFound,
		},
		{
			name:    "already deleted",
			msg:     database.Message{Id: 10, ExternalId: "m1", SenderId: 1, IsDeleted: true},
			wantErr: ErrNotFound,
		},
		{
			name:    "lost a concurrent delete",
			msg:     database.Message{Id: 10, ExternalId: "m1", SenderId: 1},
			deleted: false,
			wantErr: ErrNotFound,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockGoChatRepository{}
			defer db.AssertExpectations(t)

			db.On("GetMessageByExternalId", "m1").Return(tc.msg, tc.findErr).Once()
			if tc.findErr == nil && !tc.msg.IsDeleted && tc.msg.SenderId == 1 {
				db.On("SoftDeleteMessage", 10, mock.AnythingOfType("time.Time")).Return(tc.deleted, nil).Once()
			}

			agg := NewAggregator(testutil.TestLogger(t), db, nil, 0)
			err := agg.DeleteMessage(context.Background(), 1, "m1")
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestListUsers(t *testing.T) {
	db := &database.MockGoChatRepository{}
	defer db.AssertExpectations(t)
	db.On("ListAccounts").Return([]database.User{
		{Id: 1, Username: "alice"},
		{Id: 2, Username: "bob"},
		{Id: 3, Username: "carol"},
	}, nil).Once()

	agg := NewAggregator(testutil.TestLogger(t), db, presenceSet{2: true}, 0)
	users, err := agg.ListUsers(context.Background(), 1)
	assert.NoError(t, err)
	if assert.Len(t, users, 2, "expected the requesting user to be excluded") {
		assert.Equal(t, "bob", users[0].Username)
		assert.True(t, users[0].IsOnline)
		assert.False(t, users[1].IsOnline)
	}
}

func TestListUsers_RegistryPresence(t *testing.T) {
	db := &database.MockGoChatRepository{}
	defer db.AssertExpectations(t)
	db.On("ListAccounts").Return([]database.User{
		{Id: 1, Username: "alice"},
		{Id: 2, Username: "bob"},
	}, nil).Once()

	cs := newTestChatServer(t, db)
	cs.registry.Join(newTestClient(t, cs, types.User{Id: 2, Username: "bob"}))

	var presence PresenceChecker = cs.Registry()
	agg := NewAggregator(testutil.TestLogger(t), db, presence, 0)

	users, err := agg.ListUsers(context.Background(), 1)
	assert.NoError(t, err)
	if assert.Len(t, users, 1) {
		assert.True(t, users[0].IsOnline, "expected registry presence to mark bob online")
	}
}
