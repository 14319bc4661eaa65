package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/npezzotti/go-messenger/internal/types"
)

const (
	EventJoin           = "join"
	EventSendMessage    = "sendMessage"
	EventTyping         = "typing"
	EventGetOnlineUsers = "getOnlineUsers"

	EventOnlineUsers      = "onlineUsers"
	EventUserOnline       = "userOnline"
	EventUserOffline      = "userOffline"
	EventReceiveMessage   = "receiveMessage"
	EventMessageConfirmed = "messageConfirmed"
	EventUserTyping       = "userTyping"
	EventError            = "error"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is an inbound event. Data is decoded according to Event.
type ClientMessage struct {
	Id     int             `json:"id,omitempty"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
	client *Client         `json:"-"`
}

type Join struct {
	UserId int `json:"userId"`
}

// SendMessage carries an outbound chat message. Sender fields supplied by
// the client are accepted for compatibility and ignored.
type SendMessage struct {
	ReceiverId   int    `json:"receiverId"`
	Message      string `json:"message"`
	MessageType  string `json:"messageType,omitempty"`
	SenderId     int    `json:"senderId,omitempty"`
	SenderName   string `json:"senderName,omitempty"`
	SenderAvatar string `json:"senderAvatar,omitempty"`
}

type Typing struct {
	ReceiverId int  `json:"receiverId"`
	IsTyping   bool `json:"isTyping"`
}

type ServerMessage struct {
	BaseMessage
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"responseCode"`
	Error        string `json:"error,omitempty"`
	MessageId    string `json:"messageId,omitempty"`
}

type Presence struct {
	UserId int `json:"userId"`
}

type ReceiveMessage struct {
	Id           string    `json:"id"`
	Message      string    `json:"message"`
	MessageType  string    `json:"messageType"`
	SenderId     int       `json:"senderId"`
	SenderName   string    `json:"senderName"`
	SenderAvatar string    `json:"senderAvatar"`
	Timestamp    time.Time `json:"timestamp"`
}

type MessageConfirmed struct {
	Id         string    `json:"id"`
	Message    string    `json:"message"`
	ReceiverId int       `json:"receiverId"`
	Timestamp  time.Time `json:"timestamp"`
	Delivered  bool      `json:"delivered"`
}

type UserTyping struct {
	UserId   int  `json:"userId"`
	IsTyping bool `json:"isTyping"`
}

func event(id int, name string, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Event: name,
		Data:  data,
	}
}

func OnlineUsers(id int, userIds []int) *ServerMessage {
	if userIds == nil {
		userIds = []int{}
	}
	return event(id, EventOnlineUsers, userIds)
}

func UserOnline(userId int) *ServerMessage {
	return event(0, EventUserOnline, &Presence{UserId: userId})
}

func UserOffline(userId int) *ServerMessage {
	return event(0, EventUserOffline, &Presence{UserId: userId})
}

func NewReceiveMessage(msg types.Message, sender types.User) *ServerMessage {
	return event(0, EventReceiveMessage, &ReceiveMessage{
		Id:           msg.Id,
		Message:      msg.Message,
		MessageType:  msg.MessageType,
		SenderId:     sender.Id,
		SenderName:   sender.Username,
		SenderAvatar: sender.Avatar,
		Timestamp:    msg.Timestamp,
	})
}

func NewMessageConfirmed(id int, msg types.Message, delivered bool) *ServerMessage {
	return event(id, EventMessageConfirmed, &MessageConfirmed{
		Id:         msg.Id,
		Message:    msg.Message,
		ReceiverId: msg.ReceiverId,
		Timestamp:  msg.Timestamp,
		Delivered:  delivered,
	})
}

func NewUserTyping(userId int, isTyping bool) *ServerMessage {
	return event(0, EventUserTyping, &UserTyping{UserId: userId, IsTyping: isTyping})
}

func errorEvent(id, code int, text string) *ServerMessage {
	return event(id, EventError, &Response{
		ResponseCode: code,
		Error:        text,
	})
}

func ErrUserNotFound(id int) *ServerMessage {
	return errorEvent(id, http.StatusNotFound, "user not found")
}

func ErrForbidden(id int) *ServerMessage {
	return errorEvent(id, http.StatusForbidden, "forbidden")
}

func ErrTooManyRequests(id int) *ServerMessage {
	return errorEvent(id, http.StatusTooManyRequests, "too many requests")
}

func ErrInternalError(id int) *ServerMessage {
	return errorEvent(id, http.StatusInternalServerError, "internal server error")
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return errorEvent(id, http.StatusServiceUnavailable, "service unavailable")
}

// ErrNotPersisted tells a sender that a routed message did not reach the
// durable log. Live delivery, if any, is not retracted.
func ErrNotPersisted(id int, messageId string) *ServerMessage {
	msg := errorEvent(id, http.StatusInternalServerError, "message not persisted")
	msg.Data.(*Response).MessageId = messageId
	return msg
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := errorEvent(0, http.StatusBadRequest, "invalid message format")
	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
