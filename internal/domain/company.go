package domain

import "time"

// Company is the tenant boundary.
type Company struct {
	ID                string
	Name              string
	WebhookSecretHash string
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Mailbox is a company inbox connected through Microsoft Graph.
type Mailbox struct {
	ID                    string
	CompanyID             string
	Address               string
	AzureTenantID         string
	ClientID              string
	ClientSecret          string
	ClientState           string
	SubscriptionID        *string
	SubscriptionExpiresAt *time.Time
	Active                bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
