package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

type fakeGraph struct {
	mu        sync.Mutex
	messages  map[string]*GraphMessage
	panicOn   string
	read      []string
	created   int
	renewed   int
	renewErr  error
	createErr error
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{messages: map[string]*GraphMessage{}}
}

func (f *fakeGraph) add(id, from, internetID, inReplyTo, body string) {
	m := &GraphMessage{ID: id, Subject: "subject " + id, InternetMessageID: internetID}
	m.From.EmailAddress.Address = from
	m.Body.ContentType = "text"
	m.Body.Content = body
	if inReplyTo != "" {
		m.InternetMessageHeaders = append(m.InternetMessageHeaders, struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		}{Name: "In-Reply-To", Value: inReplyTo})
	}
	f.mu.Lock()
	f.messages[id] = m
	f.mu.Unlock()
}

func (f *fakeGraph) GetMessage(_ context.Context, _ domain.Mailbox, id string) (*GraphMessage, error) {
	if id == f.panicOn {
		panic("graph exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s not found", id)
	}
	return m, nil
}

func (f *fakeGraph) MarkRead(_ context.Context, _ domain.Mailbox, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = append(f.read, id)
	return nil
}

func (f *fakeGraph) CreateSubscription(_ context.Context, mb domain.Mailbox, url string, exp time.Time) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return &Subscription{ID: fmt.Sprintf("sub-%s-%d", mb.ID, f.created), NotificationURL: url, ExpirationDateTime: exp}, nil
}

func (f *fakeGraph) RenewSubscription(_ context.Context, _ domain.Mailbox, id string, exp time.Time) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renewErr != nil {
		return nil, f.renewErr
	}
	f.renewed++
	return &Subscription{ID: id, ExpirationDateTime: exp}, nil
}

func (f *fakeGraph) readIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.read...)
}
