package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/npezzotti/go-messenger/internal/database"
	"github.com/npezzotti/go-messenger/internal/types"
)

type SendRequest struct {
	ReceiverId  int
	Content     string
	MessageType string
}

// DeliveryOutcome reports what happened to a routed message. Delivered is
// true only if the live event was handed to the receiver's connection.
type DeliveryOutcome struct {
	Message   types.Message
	Delivered bool
}

type routeReq struct {
	reqId  int
	sender types.User
	params SendRequest
	origin *Client
	result chan DeliveryOutcome
}

type persistReq struct {
	msg    database.Message
	reqId  int
	origin *Client
}

// newRouteRequest validates a send before anything is routed. Unknown
// receivers and empty bodies are rejected without side effects.
func (cs *ChatServer) newRouteRequest(ctx context.Context, sender types.User, params SendRequest) (*routeReq, error) {
	if strings.TrimSpace(params.Content) == "" {
		return nil, ErrEmptyMessage
	}
	if params.MessageType == "" {
		params.MessageType = database.DefaultMessageType
	}

	if _, err := cs.db.GetAccountById(ctx, params.ReceiverId); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUnknownReceiver
		}
		return nil, fmt.Errorf("get receiver: %w", err)
	}

	return &routeReq{
		sender: sender,
		params: params,
	}, nil
}

// Send routes a message on behalf of sender and waits for the delivery
// outcome. The message is queued for persistence whether or not the
// receiver is online.
func (cs *ChatServer) Send(ctx context.Context, sender types.User, params SendRequest) (DeliveryOutcome, error) {
	req, err := cs.newRouteRequest(ctx, sender, params)
	if err != nil {
		return DeliveryOutcome{}, err
	}
	req.result = make(chan DeliveryOutcome, 1)

	select {
	case <-cs.stopped:
		return DeliveryOutcome{}, ErrServerStopped
	default:
	}

	select {
	case cs.sendChan <- req:
	case <-cs.stopped:
		return DeliveryOutcome{}, ErrServerStopped
	case <-ctx.Done():
		return DeliveryOutcome{}, ctx.Err()
	}

	select {
	case out := <-req.result:
		return out, nil
	case <-cs.finished:
		// queued after the final drain
		select {
		case out := <-req.result:
			return out, nil
		default:
			return DeliveryOutcome{}, ErrServerStopped
		}
	case <-ctx.Done():
		return DeliveryOutcome{}, ctx.Err()
	}
}

func (cs *ChatServer) newMessageId() string {
	id, err := cs.generateId()
	if err != nil {
		cs.log.Printf("generate message id: %v", err)
		return uuid.NewString()
	}
	return id
}

// route runs on the routing loop only.
func (cs *ChatServer) route(req *routeReq) {
	msg := types.Message{
		Id:          cs.newMessageId(),
		SenderId:    req.sender.Id,
		ReceiverId:  req.params.ReceiverId,
		Message:     req.params.Content,
		MessageType: req.params.MessageType,
		Timestamp:   Now(),
	}
	cs.stats.Incr("NumMessagesRouted")

	var delivered bool
	if rc := cs.registry.Lookup(msg.ReceiverId); rc != nil {
		delivered = rc.queueMessage(NewReceiveMessage(msg, req.sender))
	}
	if delivered {
		cs.stats.Incr("NumMessagesDelivered")
	}

	if req.origin != nil {
		req.origin.queueMessage(NewMessageConfirmed(req.reqId, msg, delivered))
	}
	if req.result != nil {
		req.result <- DeliveryOutcome{Message: msg, Delivered: delivered}
	}

	cs.persistChan <- &persistReq{
		msg: database.Message{
			ExternalId:  msg.Id,
			SenderId:    msg.SenderId,
			ReceiverId:  msg.ReceiverId,
			Content:     msg.Message,
			MessageType: msg.MessageType,
			CreatedAt:   msg.Timestamp,
		},
		reqId:  req.reqId,
		origin: req.origin,
	}
}

// persistMessages writes routed messages to the log in routing order.
func (cs *ChatServer) persistMessages() {
	defer close(cs.persistDone)

	for req := range cs.persistChan {
		ctx, cancel := context.WithTimeout(context.Background(), cs.cfg.PersistTimeout)
		err := cs.db.CreateMessage(ctx, &req.msg)
		cancel()

		if err != nil {
			err = fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
			cs.log.Printf("durability gap: message %s from %d to %d: %v",
				req.msg.ExternalId, req.msg.SenderId, req.msg.ReceiverId, err)
			cs.stats.Incr("NumPersistenceFailures")

			if req.origin != nil {
				req.origin.queueMessage(ErrNotPersisted(req.reqId, req.msg.ExternalId))
			}
		}
	}
}
