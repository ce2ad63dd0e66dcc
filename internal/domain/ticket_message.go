package domain

import "time"

// SenderType indicates who authored a message.
type SenderType string

const (
	SenderTypeCustomer SenderType = "customer"
	SenderTypeAgent    SenderType = "agent"
)

// TicketMessage is one entry of a ticket thread. Messages are append-only and
// ordered by Seq.
type TicketMessage struct {
	ID                string
	Seq               int64
	TicketID          string
	CompanyID         string
	SenderType        SenderType
	SenderID          *string
	ExternalEmail     string
	Body              string
	ExternalMessageID *string
	InReplyTo         *string
	Attachments       []Attachment
	CreatedAt         time.Time
}

// Attachment stores metadata for message attachments. Content is handed to
// the storage collaborator and never persisted here.
type Attachment struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	IsInline    bool   `json:"isInline"`
	ContentID   string `json:"contentId,omitempty"`
	Content     []byte `json:"-"`
}
