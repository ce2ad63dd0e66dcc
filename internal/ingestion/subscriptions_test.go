package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/internal/repository/memory"
)

func TestSubscriptionManagerEnsure(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore()
	store.AddMailbox(domain.Mailbox{ID: "fresh", CompanyID: "c1", Address: "a@x", Active: true})
	store.AddMailbox(domain.Mailbox{ID: "known", CompanyID: "c1", Address: "b@x", Active: true, SubscriptionID: strPtr("sub-known")})
	graph := newFakeGraph()
	m := NewSubscriptionManager(SubscriptionDependencies{
		MailboxRepo:     store.Mailboxes(),
		Graph:           graph,
		NotificationURL: "https://hooks.test/helpdesk/outlook-process",
		TTL:             72 * time.Hour,
		Now:             func() time.Time { return now },
	})

	stats, err := m.RenewAll(context.Background())
	if err != nil {
		t.Fatalf("renew all: %v", err)
	}
	if stats.Checked != 2 || stats.Created != 1 || stats.Renewed != 1 || stats.Failed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	fresh, _ := store.Mailbox("fresh")
	if fresh.SubscriptionID == nil || fresh.SubscriptionExpiresAt == nil {
		t.Fatalf("subscription not saved: %+v", fresh)
	}
	if want := now.Add(maxMailSubscriptionTTL); !fresh.SubscriptionExpiresAt.Equal(want) {
		t.Fatalf("expiry = %v, want clamped %v", fresh.SubscriptionExpiresAt, want)
	}
}

func TestSubscriptionManagerRecreatesVanished(t *testing.T) {
	store := memory.NewStore()
	mb := store.AddMailbox(domain.Mailbox{ID: "mb", CompanyID: "c1", Address: "a@x", Active: true, SubscriptionID: strPtr("gone")})
	graph := newFakeGraph()
	graph.renewErr = ErrSubscriptionNotFound
	m := NewSubscriptionManager(SubscriptionDependencies{MailboxRepo: store.Mailboxes(), Graph: graph, NotificationURL: "https://hooks.test"})

	sub, created, err := m.Ensure(context.Background(), mb)
	if err != nil || !created || sub.ID == "gone" {
		t.Fatalf("ensure = %+v %v %v", sub, created, err)
	}
	saved, _ := store.Mailbox("mb")
	if *saved.SubscriptionID != sub.ID {
		t.Fatalf("saved %s, want %s", *saved.SubscriptionID, sub.ID)
	}

	graph.renewErr = errors.New("throttled")
	if _, _, err := m.Ensure(context.Background(), saved); err == nil {
		t.Fatalf("expected renew failure to surface")
	}
	if _, _, err := m.EnsureByID(context.Background(), "other-company", "mb"); !IsMailboxNotFound(err) {
		t.Fatalf("cross-tenant lookup should miss, got %v", err)
	}
}

type listCountingMailboxes struct {
	repository.MailboxRepository
	listed int
}

func (r *listCountingMailboxes) ListActive(ctx context.Context) ([]domain.Mailbox, error) {
	r.listed++
	return r.MailboxRepository.ListActive(ctx)
}

func TestEnsureByIDLooksUpWithinCompany(t *testing.T) {
	store := memory.NewStore()
	store.AddMailbox(domain.Mailbox{ID: "mb", CompanyID: "c1", Address: "a@x", Active: true})
	store.AddMailbox(domain.Mailbox{ID: "off", CompanyID: "c1", Address: "b@x", Active: false})
	mailboxes := &listCountingMailboxes{MailboxRepository: store.Mailboxes()}
	m := NewSubscriptionManager(SubscriptionDependencies{MailboxRepo: mailboxes, Graph: newFakeGraph(), NotificationURL: "https://hooks.test"})
	ctx := context.Background()

	sub, created, err := m.EnsureByID(ctx, "c1", "mb")
	if err != nil || !created || sub.ID == "" {
		t.Fatalf("ensure = %+v %v %v", sub, created, err)
	}
	if _, _, err := m.EnsureByID(ctx, "c2", "mb"); !IsMailboxNotFound(err) {
		t.Fatalf("foreign company must miss, got %v", err)
	}
	if _, _, err := m.EnsureByID(ctx, "c1", "off"); !IsMailboxNotFound(err) {
		t.Fatalf("inactive mailbox must miss, got %v", err)
	}
	if _, _, err := m.EnsureByID(ctx, "", "mb"); err == nil || IsMailboxNotFound(err) {
		t.Fatalf("empty company must be refused by the tenant guard, got %v", err)
	}
	if mailboxes.listed != 0 {
		t.Fatalf("lookup scanned every tenant's mailboxes %d times", mailboxes.listed)
	}
}
