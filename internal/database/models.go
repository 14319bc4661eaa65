package database

import "time"

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	Avatar       string
	LastSeen     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message is a row of the durable message log. Id is the insertion
// sequence and breaks ties between messages with equal CreatedAt.
type Message struct {
	Id          int
	ExternalId  string
	SenderId    int
	ReceiverId  int
	Content     string
	MessageType string
	IsRead      bool
	ReadAt      *time.Time
	IsDeleted   bool
	DeletedAt   *time.Time
	CreatedAt   time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
	Avatar       string
}
