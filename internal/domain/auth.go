package domain

// SubjectType differentiates customer vs agent tokens.
type SubjectType string

const (
	SubjectTypeCustomer SubjectType = "CUSTOMER"
	SubjectTypeAgent    SubjectType = "AGENT"
	// SubjectTypeService identifies integration tokens used by inbound webhooks.
	SubjectTypeService SubjectType = "SERVICE"
)

// Actor is the authenticated caller of an interactive operation. CompanyID
// comes from the verified token and is authoritative.
type Actor struct {
	Type      SubjectType
	ID        string
	CompanyID string
	IsAdmin   bool
}

// IsCustomer reports whether the actor is a customer.
func (a Actor) IsCustomer() bool {
	return a.Type == SubjectTypeCustomer
}

// IsAgent reports whether the actor is a company agent.
func (a Actor) IsAgent() bool {
	return a.Type == SubjectTypeAgent
}
