package types

import (
	"time"
)

type User struct {
	Id           int        `json:"id"`
	Username     string     `json:"username"`
	EmailAddress string     `json:"email,omitempty"`
	Password     string     `json:"-"`
	Avatar       string     `json:"avatar"`
	IsOnline     bool       `json:"isOnline"`
	LastSeen     *time.Time `json:"lastSeen,omitempty"`
	CreatedAt    time.Time  `json:"createdAt,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt,omitempty"`
}

// Message is the public view of a direct message. Id is the
// server-assigned external identifier, never the storage sequence.
type Message struct {
	Id          string     `json:"id"`
	SenderId    int        `json:"senderId"`
	ReceiverId  int        `json:"receiverId"`
	Message     string     `json:"message"`
	MessageType string     `json:"messageType"`
	IsRead      bool       `json:"isRead"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

type ConversationSummary struct {
	PeerId            int       `json:"userId"`
	Peer              User      `json:"user"`
	LastMessage       string    `json:"lastMessage"`
	LastMessageType   string    `json:"lastMessageType"`
	LastMessageTime   time.Time `json:"lastMessageTime"`
	LastMessageSender int       `json:"lastMessageSender"`
	UnreadCount       int       `json:"unreadCount"`
}
