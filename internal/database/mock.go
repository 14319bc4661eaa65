package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockGoChatRepository struct {
	mock.Mock
}

func (m *MockGoChatRepository) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockGoChatRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockGoChatRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) GetAccountById(ctx context.Context, accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) ListAccounts(ctx context.Context) ([]User, error) {
	args := m.Called()
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockGoChatRepository) GetAccountsByIds(ctx context.Context, ids []int) ([]User, error) {
	args := m.Called(ids)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockGoChatRepository) UpdateLastSeen(ctx context.Context, accountId int, at time.Time) error {
	args := m.Called(accountId, at)
	return args.Error(0)
}
func (m *MockGoChatRepository) CreateMessage(ctx context.Context, msg *Message) error {
	args := m.Called(msg)
	return args.Error(0)
}
func (m *MockGoChatRepository) GetMessageByExternalId(ctx context.Context, externalId string) (Message, error) {
	args := m.Called(externalId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockGoChatRepository) GetMessagesBetween(ctx context.Context, userId, peerId, limit int) ([]Message, error) {
	args := m.Called(userId, peerId, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockGoChatRepository) ListMessagesForUser(ctx context.Context, userId int) ([]Message, error) {
	args := m.Called(userId)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockGoChatRepository) MarkMessagesRead(ctx context.Context, readerId, senderId int, at time.Time) (int64, error) {
	args := m.Called(readerId, senderId, at)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockGoChatRepository) SoftDeleteMessage(ctx context.Context, messageId int, at time.Time) (bool, error) {
	args := m.Called(messageId, at)
	return args.Bool(0), args.Error(1)
}
func (m *MockGoChatRepository) PurgeDeletedMessages(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(before)
	return args.Get(0).(int64), args.Error(1)
}
