package database

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type accountRow struct {
	ID           int    `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"size:64;not null"`
	Email        string `gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Avatar       string `gorm:"not null;default:''"`
	LastSeen     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (accountRow) TableName() string { return "accounts" }

type messageRow struct {
	ID          int    `gorm:"primaryKey;autoIncrement"`
	ExternalID  string `gorm:"size:32;uniqueIndex;not null"`
	SenderID    int    `gorm:"index:idx_messages_sender_receiver,priority:1;not null"`
	ReceiverID  int    `gorm:"index:idx_messages_sender_receiver,priority:2;index:idx_messages_receiver_unread;not null"`
	Content     string `gorm:"not null"`
	MessageType string `gorm:"size:32;not null;default:text"`
	IsRead      bool   `gorm:"index:idx_messages_receiver_unread;not null;default:false"`
	ReadAt      *time.Time
	IsDeleted   bool `gorm:"not null;default:false"`
	DeletedAt   *time.Time
	CreatedAt   time.Time `gorm:"not null"`
}

func (messageRow) TableName() string { return "messages" }

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func (r accountRow) toModel() User {
	return User{
		Id:           r.ID,
		Username:     r.Username,
		EmailAddress: r.Email,
		PasswordHash: r.PasswordHash,
		Avatar:       r.Avatar,
		LastSeen:     utcPtr(r.LastSeen),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

func (r messageRow) toModel() Message {
	return Message{
		Id:          r.ID,
		ExternalId:  r.ExternalID,
		SenderId:    r.SenderID,
		ReceiverId:  r.ReceiverID,
		Content:     r.Content,
		MessageType: r.MessageType,
		IsRead:      r.IsRead,
		ReadAt:      utcPtr(r.ReadAt),
		IsDeleted:   r.IsDeleted,
		DeletedAt:   utcPtr(r.DeletedAt),
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

func gormNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// SQLiteGoChatRepository stores the log in SQLite through gorm. With the
// ":memory:" DSN it is the in-process store used for development and tests.
type SQLiteGoChatRepository struct {
	db *gorm.DB
}

func NewSQLiteGoChatRepository(dsn string) (*SQLiteGoChatRepository, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// every connection to ":memory:" would otherwise see its own database
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&accountRow{}, &messageRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &SQLiteGoChatRepository{db: db}, nil
}

func (repo *SQLiteGoChatRepository) Ping(ctx context.Context) error {
	sqlDB, err := repo.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (repo *SQLiteGoChatRepository) Close() error {
	sqlDB, err := repo.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (repo *SQLiteGoChatRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	row := accountRow{
		Username:     params.Username,
		Email:        params.EmailAddress,
		PasswordHash: params.PasswordHash,
		Avatar:       params.Avatar,
	}
	if err := repo.db.WithContext(ctx).Create(&row).Error; err != nil {
		return User{}, err
	}

	return row.toModel(), nil
}

func (repo *SQLiteGoChatRepository) GetAccountById(ctx context.Context, id int) (User, error) {
	var row accountRow
	if err := repo.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return User{}, gormNotFound(err)
	}

	return row.toModel(), nil
}

func (repo *SQLiteGoChatRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	var row accountRow
	if err := repo.db.WithContext(ctx).Where("email = ?", email).First(&row).Error; err != nil {
		return User{}, gormNotFound(err)
	}

	return row.toModel(), nil
}

func (repo *SQLiteGoChatRepository) ListAccounts(ctx context.Context) ([]User, error) {
	var rows []accountRow
	if err := repo.db.WithContext(ctx).Order("username ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	return accountModels(rows), nil
}

func (repo *SQLiteGoChatRepository) GetAccountsByIds(ctx context.Context, ids []int) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}

	var rows []accountRow
	if err := repo.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}

	return accountModels(rows), nil
}

func (repo *SQLiteGoChatRepository) UpdateLastSeen(ctx context.Context, id int, at time.Time) error {
	res := repo.db.WithContext(ctx).Model(&accountRow{}).Where("id = ?", id).UpdateColumn("last_seen", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (repo *SQLiteGoChatRepository) CreateMessage(ctx context.Context, msg *Message) error {
	if msg.MessageType == "" {
		msg.MessageType = DefaultMessageType
	}

	row := messageRow{
		ExternalID:  msg.ExternalId,
		SenderID:    msg.SenderId,
		ReceiverID:  msg.ReceiverId,
		Content:     msg.Content,
		MessageType: msg.MessageType,
		CreatedAt:   msg.CreatedAt.UTC(),
	}
	if err := repo.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}

	msg.Id = row.ID
	return nil
}

func (repo *SQLiteGoChatRepository) GetMessageByExternalId(ctx context.Context, externalId string) (Message, error) {
	var row messageRow
	if err := repo.db.WithContext(ctx).Where("external_id = ?", externalId).First(&row).Error; err != nil {
		return Message{}, gormNotFound(err)
	}

	return row.toModel(), nil
}

func (repo *SQLiteGoChatRepository) GetMessagesBetween(ctx context.Context, userId, peerId, limit int) ([]Message, error) {
	var rows []messageRow
	err := repo.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		Where("((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))", userId, peerId, peerId, userId).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}

	slices.Reverse(rows)
	return messageModels(rows), nil
}

func (repo *SQLiteGoChatRepository) ListMessagesForUser(ctx context.Context, userId int) ([]Message, error) {
	var rows []messageRow
	err := repo.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		Where("(sender_id = ? OR receiver_id = ?)", userId, userId).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	return messageModels(rows), nil
}

func (repo *SQLiteGoChatRepository) MarkMessagesRead(ctx context.Context, readerId, senderId int, at time.Time) (int64, error) {
	res := repo.db.WithContext(ctx).Model(&messageRow{}).
		Where("receiver_id = ? AND sender_id = ? AND is_read = ? AND is_deleted = ?", readerId, senderId, false, false).
		UpdateColumns(map[string]any{"is_read": true, "read_at": at})

	return res.RowsAffected, res.Error
}

func (repo *SQLiteGoChatRepository) SoftDeleteMessage(ctx context.Context, messageId int, at time.Time) (bool, error) {
	res := repo.db.WithContext(ctx).Model(&messageRow{}).
		Where("id = ? AND is_deleted = ?", messageId, false).
		UpdateColumns(map[string]any{"is_deleted": true, "deleted_at": at})

	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteGoChatRepository) PurgeDeletedMessages(ctx context.Context, before time.Time) (int64, error) {
	res := repo.db.WithContext(ctx).
		Where("is_deleted = ? AND deleted_at < ?", true, before.UTC()).
		Delete(&messageRow{})

	return res.RowsAffected, res.Error
}

func accountModels(rows []accountRow) []User {
	users := make([]User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toModel())
	}
	return users
}

func messageModels(rows []messageRow) []Message {
	messages := make([]Message, 0, len(rows))
	for _, r := range rows {
		messages = append(messages, r.toModel())
	}
	return messages
}
