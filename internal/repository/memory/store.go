// Package memory provides in-process implementations of the repository
// interfaces. Tenant rules match the Postgres repositories: every tenant-owned
// read or write requires a company id and never crosses companies.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
)

// Store holds all records behind one mutex.
type Store struct {
	mu            sync.Mutex
	now           func() time.Time
	seq           int64
	companies     map[string]domain.Company
	mailboxes     map[string]domain.Mailbox
	agents        map[string]domain.Agent
	customers     map[string]domain.Customer
	tickets       map[string]domain.Ticket
	messages      []domain.TicketMessage
	feedback      map[string]domain.TicketFeedback
	notifications []domain.Notification
	history       []domain.TicketHistory
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		now:       time.Now,
		companies: map[string]domain.Company{},
		mailboxes: map[string]domain.Mailbox{},
		agents:    map[string]domain.Agent{},
		customers: map[string]domain.Customer{},
		tickets:   map[string]domain.Ticket{},
		feedback:  map[string]domain.TicketFeedback{},
	}
}

func requireTenant(companyID string) error {
	if strings.TrimSpace(companyID) == "" {
		return repository.ErrMissingTenant
	}
	return nil
}

func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// AddCompany seeds a company.
func (s *Store) AddCompany(c domain.Company) domain.Company {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = newID(c.ID)
	s.companies[c.ID] = c
	return c
}

// AddMailbox seeds a mailbox.
func (s *Store) AddMailbox(m domain.Mailbox) domain.Mailbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = newID(m.ID)
	s.mailboxes[m.ID] = m
	return m
}

// AddAgent seeds an agent.
func (s *Store) AddAgent(a domain.Agent) domain.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = newID(a.ID)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	s.agents[a.ID] = a
	return a
}

// AddCustomer seeds a customer.
func (s *Store) AddCustomer(c domain.Customer) domain.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = newID(c.ID)
	s.customers[c.ID] = c
	return c
}

// AddTicket seeds a ticket.
func (s *Store) AddTicket(t domain.Ticket) domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = newID(t.ID)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	t.UpdatedAt = t.CreatedAt
	t.Messages = nil
	s.tickets[t.ID] = t
	return t
}

// Ticket returns a stored ticket regardless of tenant.
func (s *Store) Ticket(id string) (domain.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	return t, ok
}

// Customer returns a stored customer regardless of tenant.
func (s *Store) Customer(id string) (domain.Customer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	return c, ok
}

// TicketCount returns the number of tickets in a company.
func (s *Store) TicketCount(companyID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tickets {
		if t.CompanyID == companyID {
			n++
		}
	}
	return n
}

// Notifications returns every stored notification.
func (s *Store) Notifications() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Notification(nil), s.notifications...)
}

// History returns every stored history entry.
func (s *Store) History() []domain.TicketHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TicketHistory(nil), s.history...)
}

// Tickets returns the ticket repository view.
func (s *Store) Tickets() repository.TicketRepository { return &ticketRepo{s} }

// Messages returns the message repository view.
func (s *Store) Messages() repository.TicketMessageRepository { return &messageRepo{s} }

// Agents returns the agent repository view.
func (s *Store) Agents() repository.AgentRepository { return &agentRepo{s} }

// Customers returns the customer repository view.
func (s *Store) Customers() repository.CustomerRepository { return &customerRepo{s} }

// Feedback returns the feedback repository view.
func (s *Store) Feedback() repository.FeedbackRepository { return &feedbackRepo{s} }

// NotificationsRepo returns the notification repository view.
func (s *Store) NotificationsRepo() repository.NotificationRepository { return &notificationRepo{s} }

// Companies returns the company repository view.
func (s *Store) Companies() repository.CompanyRepository { return &companyRepo{s} }

// Mailboxes returns the mailbox repository view.
func (s *Store) Mailboxes() repository.MailboxRepository { return &mailboxRepo{s} }

// HistoryRepo returns the history repository view.
func (s *Store) HistoryRepo() repository.TicketHistoryRepository { return &historyRepo{s} }

type ticketRepo struct{ s *Store }

func (r *ticketRepo) Create(_ context.Context, t *domain.Ticket) error {
	if err := requireTenant(t.CompanyID); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t.EmailThreadID != nil {
		for _, existing := range r.s.tickets {
			if existing.CompanyID == t.CompanyID && existing.EmailThreadID != nil && *existing.EmailThreadID == *t.EmailThreadID {
				return repository.ErrDuplicate
			}
		}
	}
	r.insert(t)
	return nil
}

func (r *ticketRepo) insert(t *domain.Ticket) {
	t.ID = newID(t.ID)
	now := r.s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	stored := *t
	stored.Messages = nil
	r.s.tickets[t.ID] = stored
}

func (r *ticketRepo) CreateOrGetByThread(_ context.Context, t *domain.Ticket) (*domain.Ticket, bool, error) {
	if err := requireTenant(t.CompanyID); err != nil {
		return nil, false, err
	}
	if t.EmailThreadID == nil {
		return nil, false, repository.ErrMissingThread
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.tickets {
		if existing.CompanyID == t.CompanyID && existing.EmailThreadID != nil && *existing.EmailThreadID == *t.EmailThreadID {
			found := existing
			return &found, false, nil
		}
	}
	created := *t
	r.insert(&created)
	return &created, true, nil
}

func (r *ticketRepo) get(companyID, id string) (domain.Ticket, error) {
	t, ok := r.s.tickets[id]
	if !ok || t.CompanyID != companyID {
		return domain.Ticket{}, pgx.ErrNoRows
	}
	return t, nil
}

func (r *ticketRepo) GetByID(_ context.Context, companyID, id string) (*domain.Ticket, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, err := r.get(companyID, id)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *ticketRepo) GetByThreadID(_ context.Context, companyID, threadID string) (*domain.Ticket, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tickets {
		if t.CompanyID == companyID && t.EmailThreadID != nil && *t.EmailThreadID == threadID {
			found := t
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *ticketRepo) ReassignIf(_ context.Context, companyID, ticketID string, expected, next *string) (bool, error) {
	if err := requireTenant(companyID); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, err := r.get(companyID, ticketID)
	if err != nil {
		return false, nil
	}
	if !sameRef(t.AgentID, expected) {
		return false, nil
	}
	if next != nil {
		v := *next
		t.AgentID = &v
	} else {
		t.AgentID = nil
	}
	t.UpdatedAt = r.s.now()
	r.s.tickets[t.ID] = t
	return true, nil
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *ticketRepo) UpdateStatus(_ context.Context, companyID, ticketID string, status domain.TicketStatus, closedAt *time.Time) error {
	if err := requireTenant(companyID); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, err := r.get(companyID, ticketID)
	if err != nil {
		return err
	}
	t.Status = status
	t.ClosedAt = closedAt
	t.UpdatedAt = r.s.now()
	r.s.tickets[t.ID] = t
	return nil
}

func (r *ticketRepo) TouchReply(_ context.Context, companyID, ticketID string, sender domain.SenderType, at time.Time) error {
	if err := requireTenant(companyID); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, err := r.get(companyID, ticketID)
	if err != nil {
		return err
	}
	ts := at
	t.LastReplyAt = &ts
	if sender == domain.SenderTypeAgent {
		t.LastAgentReplyAt = &ts
	} else {
		t.LastCustomerReplyAt = &ts
	}
	t.UpdatedAt = r.s.now()
	r.s.tickets[t.ID] = t
	return nil
}

func (r *ticketRepo) ListActiveAssigned(_ context.Context, companyID, afterID string, limit int) ([]domain.Ticket, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.s.tickets {
		if t.CompanyID != companyID || t.AgentID == nil || t.IsClosed() {
			continue
		}
		if afterID != "" && t.ID <= afterID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ticketRepo) ListByAgent(_ context.Context, companyID, agentID string) ([]domain.Ticket, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.s.tickets {
		if t.CompanyID == companyID && t.AssignedTo(agentID) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type messageRepo struct{ s *Store }

func (r *messageRepo) Append(_ context.Context, msg *domain.TicketMessage) (bool, error) {
	if err := requireTenant(msg.CompanyID); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[msg.TicketID]
	if !ok || t.CompanyID != msg.CompanyID {
		return false, nil
	}
	if msg.ExternalMessageID != nil {
		for _, m := range r.s.messages {
			if m.TicketID == msg.TicketID && m.ExternalMessageID != nil && *m.ExternalMessageID == *msg.ExternalMessageID {
				return false, nil
			}
		}
	}
	r.s.seq++
	msg.ID = uuid.NewString()
	msg.Seq = r.s.seq
	msg.CreatedAt = r.s.now()
	r.s.messages = append(r.s.messages, *msg)
	return true, nil
}

func (r *messageRepo) ListByTicket(_ context.Context, companyID, ticketID string) ([]domain.TicketMessage, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.TicketMessage
	for _, m := range r.s.messages {
		if m.CompanyID == companyID && m.TicketID == ticketID {
			out = append(out, m)
		}
	}
	return out, nil
}

type agentRepo struct{ s *Store }

func (r *agentRepo) GetByID(_ context.Context, companyID, id string) (*domain.Agent, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.agents[id]
	if !ok || a.CompanyID != companyID {
		return nil, pgx.ErrNoRows
	}
	return &a, nil
}

func (r *agentRepo) ListByIDs(_ context.Context, companyID string, ids []string) ([]domain.Agent, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := map[string]bool{}
	var out []domain.Agent
	for _, id := range ids {
		a, ok := r.s.agents[id]
		if !ok || a.CompanyID != companyID || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, a)
	}
	return out, nil
}

func (r *agentRepo) ListActiveAgents(_ context.Context, companyID string) ([]domain.Agent, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Agent
	for _, a := range r.s.agents {
		if a.CompanyID == companyID && a.IsAgent && a.IsActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type customerRepo struct{ s *Store }

func (r *customerRepo) GetByID(_ context.Context, companyID, id string) (*domain.Customer, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.customers[id]
	if !ok || c.CompanyID != companyID {
		return nil, pgx.ErrNoRows
	}
	return &c, nil
}

func (r *customerRepo) GetByEmail(_ context.Context, companyID, email string) (*domain.Customer, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := strings.ToLower(strings.TrimSpace(email))
	for _, c := range r.s.customers {
		if c.CompanyID == companyID && strings.ToLower(c.Email) == want {
			found := c
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *customerRepo) AdvanceCursor(_ context.Context, companyID, customerID string, poolSize int) (int, error) {
	if err := requireTenant(companyID); err != nil {
		return 0, err
	}
	if poolSize <= 0 {
		return 0, repository.ErrEmptyPool
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.customers[customerID]
	if !ok || c.CompanyID != companyID {
		return 0, pgx.ErrNoRows
	}
	cursor := c.LastAssignedAgentIndex
	if cursor < domain.NoAssignment {
		cursor = domain.NoAssignment
	}
	c.LastAssignedAgentIndex = (cursor + 1) % poolSize
	r.s.customers[c.ID] = c
	return c.LastAssignedAgentIndex, nil
}

type feedbackRepo struct{ s *Store }

func (r *feedbackRepo) GetByTicket(_ context.Context, companyID, ticketID string) (*domain.TicketFeedback, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	fb, ok := r.s.feedback[ticketID]
	if !ok || fb.CompanyID != companyID {
		return nil, pgx.ErrNoRows
	}
	return &fb, nil
}

func (r *feedbackRepo) Submit(_ context.Context, fb *domain.TicketFeedback, alert *domain.Notification) error {
	if err := requireTenant(fb.CompanyID); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.feedback[fb.TicketID]; exists {
		return repository.ErrDuplicate
	}
	t, ok := r.s.tickets[fb.TicketID]
	if !ok || t.CompanyID != fb.CompanyID {
		return pgx.ErrNoRows
	}
	fb.ID = uuid.NewString()
	fb.CreatedAt = r.s.now()
	r.s.feedback[fb.TicketID] = *fb

	rating := fb.Rating
	t.FeedbackRating = &rating
	if fb.Sentiment != "" {
		sentiment := fb.Sentiment
		t.FeedbackSentiment = &sentiment
	}
	r.s.tickets[t.ID] = t

	if alert != nil {
		alert.ID = uuid.NewString()
		alert.CreatedAt = fb.CreatedAt
		r.s.notifications = append(r.s.notifications, *alert)
	}
	return nil
}

type notificationRepo struct{ s *Store }

func (r *notificationRepo) ListForRecipient(_ context.Context, companyID, recipientID string, limit int) ([]domain.Notification, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Notification
	for i := len(r.s.notifications) - 1; i >= 0; i-- {
		n := r.s.notifications[i]
		if n.CompanyID == companyID && n.RecipientID == recipientID {
			out = append(out, n)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type companyRepo struct{ s *Store }

func (r *companyRepo) GetByID(_ context.Context, id string) (*domain.Company, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.companies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &c, nil
}

func (r *companyRepo) ListActive(_ context.Context) ([]domain.Company, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Company
	for _, c := range r.s.companies {
		if c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type mailboxRepo struct{ s *Store }

func (r *mailboxRepo) GetBySubscriptionID(_ context.Context, subscriptionID string) (*domain.Mailbox, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.mailboxes {
		if m.SubscriptionID != nil && *m.SubscriptionID == subscriptionID {
			found := m
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *mailboxRepo) GetByID(_ context.Context, companyID, id string) (*domain.Mailbox, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.mailboxes[id]
	if !ok || m.CompanyID != companyID || !m.Active {
		return nil, pgx.ErrNoRows
	}
	return &m, nil
}

func (r *mailboxRepo) ListActive(_ context.Context) ([]domain.Mailbox, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Mailbox
	for _, m := range r.s.mailboxes {
		if m.Active {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *mailboxRepo) SaveSubscription(_ context.Context, companyID, mailboxID, subscriptionID string, expiresAt time.Time) error {
	if err := requireTenant(companyID); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.mailboxes[mailboxID]
	if !ok || m.CompanyID != companyID {
		return pgx.ErrNoRows
	}
	sub := subscriptionID
	exp := expiresAt
	m.SubscriptionID = &sub
	m.SubscriptionExpiresAt = &exp
	r.s.mailboxes[m.ID] = m
	return nil
}

// Mailbox returns a stored mailbox.
func (s *Store) Mailbox(id string) (domain.Mailbox, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mailboxes[id]
	return m, ok
}

type historyRepo struct{ s *Store }

func (r *historyRepo) Create(_ context.Context, h *domain.TicketHistory) error {
	if err := requireTenant(h.CompanyID); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h.ID = uuid.NewString()
	h.CreatedAt = r.s.now()
	r.s.history = append(r.s.history, *h)
	return nil
}

func (r *historyRepo) ListByTicket(_ context.Context, companyID, ticketID string) ([]domain.TicketHistory, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.TicketHistory
	for _, h := range r.s.history {
		if h.CompanyID == companyID && h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	return out, nil
}
