package inbox

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeMessage      = "message"
	TypeAlert        = "alert"
	TypeSystemUpdate = "system_update"
	TypeNotification = "notification"
)

var validTypes = map[string]bool{
	TypeMessage: true, TypeAlert: true, TypeSystemUpdate: true, TypeNotification: true,
}

// SystemSender is the sender recorded on automated messages.
const SystemSender = "system"

// Message is one inbox entry. Sender and Receiver are staff emails, or
// SystemSender for automated messages.
type Message struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Sender    string    `db:"sender" json:"sender"`
	Receiver  string    `db:"receiver" json:"receiver"`
	Subject   string    `db:"subject" json:"subject"`
	Body      string    `db:"body" json:"body"`
	Type      string    `db:"type" json:"type"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
