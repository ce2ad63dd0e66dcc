package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

func TestAggregateReport(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	closedAt := func(created time.Time, hours int) *time.Time {
		v := created.Add(time.Duration(hours) * time.Hour)
		return &v
	}
	created := now.Add(-72 * time.Hour)
	tickets := []domain.Ticket{
		{Status: domain.TicketStatusClosed, Priority: domain.TicketPriorityHigh, CreatedAt: created, ClosedAt: closedAt(created, 4)},
		{Status: domain.TicketStatusClosed, Priority: domain.TicketPriorityLow, CreatedAt: created, ClosedAt: closedAt(created, 8)},
		{Status: domain.TicketStatusOpen, Priority: domain.TicketPriorityHigh, CreatedAt: now.Add(-25 * time.Hour)},
		{Status: domain.TicketStatusWaiting, Priority: domain.TicketPriorityMedium, CreatedAt: now.Add(-2 * time.Hour)},
	}

	r := aggregateReport(tickets, now, 24*time.Hour)
	if r.TotalAssigned != 4 || r.TotalClosed != 2 {
		t.Fatalf("totals %d/%d", r.TotalAssigned, r.TotalClosed)
	}
	if r.AvgTatHours != 6 {
		t.Fatalf("avg tat %v", r.AvgTatHours)
	}
	if r.SLABreaches != 1 {
		t.Fatalf("breaches %d", r.SLABreaches)
	}
	if r.EfficiencyPct != 50 {
		t.Fatalf("efficiency %d", r.EfficiencyPct)
	}
	if r.StatusStats["closed"] != 2 || r.StatusStats["open"] != 1 || r.StatusStats["waiting"] != 1 {
		t.Fatalf("status stats %v", r.StatusStats)
	}
	if r.PriorityStats["high"] != 2 || r.PriorityStats["low"] != 1 || r.PriorityStats["medium"] != 1 {
		t.Fatalf("priority stats %v", r.PriorityStats)
	}
}

func TestAggregateReportEmpty(t *testing.T) {
	r := aggregateReport(nil, time.Now(), 24*time.Hour)
	if r.EfficiencyPct != 0 || r.AvgTatHours != 0 || r.TotalAssigned != 0 {
		t.Fatalf("unexpected %+v", r)
	}
}

func TestAggregateReportRoundsEfficiency(t *testing.T) {
	now := time.Now()
	tickets := []domain.Ticket{
		{Status: domain.TicketStatusClosed, CreatedAt: now, ClosedAt: &now},
		{Status: domain.TicketStatusOpen, CreatedAt: now},
		{Status: domain.TicketStatusOpen, CreatedAt: now},
	}
	if r := aggregateReport(tickets, now, 24*time.Hour); r.EfficiencyPct != 33 {
		t.Fatalf("expected 33, got %d", r.EfficiencyPct)
	}
}

func TestReportPermissions(t *testing.T) {
	f := newFixture(t)
	f.agent(companyA, "a1")
	f.agent(companyA, "a2")
	f.agent(companyB, "b1")
	f.store.AddTicket(domain.Ticket{CompanyID: companyA, Status: domain.TicketStatusOpen, AgentID: strPtr("a1")})
	svc := NewReportService(ReportDependencies{TicketRepo: f.store.Tickets(), AgentRepo: f.store.Agents()})
	ctx := context.Background()

	own, err := svc.Report(ctx, domain.Actor{Type: domain.SubjectTypeAgent, ID: "a1", CompanyID: companyA}, "")
	if err != nil || own.TotalAssigned != 1 || own.AgentID != "a1" {
		t.Fatalf("own report: %+v %v", own, err)
	}
	_, err = svc.Report(ctx, domain.Actor{Type: domain.SubjectTypeAgent, ID: "a2", CompanyID: companyA}, "a1")
	if statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
	_, err = svc.Report(ctx, domain.Actor{Type: domain.SubjectTypeAgent, ID: "a2", CompanyID: companyA, IsAdmin: true}, "b1")
	if statusOf(err) != http.StatusNotFound {
		t.Fatalf("agents of other companies are invisible, got %v", err)
	}
	_, err = svc.Report(ctx, domain.Actor{Type: domain.SubjectTypeCustomer, ID: "c1", CompanyID: companyA}, "a1")
	if statusOf(err) != http.StatusForbidden {
		t.Fatalf("expected 403 for customers, got %v", err)
	}
}
