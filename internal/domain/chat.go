package domain

import "time"

// ChatSession is the identity negotiated by the chat preflight.
type ChatSession struct {
	ChatterID int    `json:"chatterId"`
	ChatToken string `json:"chatToken"`
}

func (s ChatSession) IsZero() bool {
	return s.ChatToken == ""
}

// Message is one chat line. Inbound socket frames carry exactly one.
type Message struct {
	ID             int       `json:"id"`
	Text           string    `json:"message"`
	SenderID       int       `json:"senderId"`
	ReceiverID     int       `json:"receiverId"`
	ReadBySender   bool      `json:"readBySender,omitempty"`
	ReadByReceiver bool      `json:"readByReceiver,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Chatter is a counterpart listed for an admin.
type Chatter struct {
	ID          int    `json:"id"`
	UserID      int    `json:"userId"`
	TempSession string `json:"tempSession"`
	UnreadCount int    `json:"unreadMessagesCount"`
}
