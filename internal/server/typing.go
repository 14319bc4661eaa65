package server

// SetTyping forwards a typing indicator to the receiver if they are
// online. Nothing is stored or confirmed; offline receivers miss it.
func (cs *ChatServer) SetTyping(senderId, receiverId int, isTyping bool) bool {
	rc := cs.registry.Lookup(receiverId)
	if rc == nil {
		return false
	}

	return rc.queueMessage(NewUserTyping(senderId, isTyping))
}
