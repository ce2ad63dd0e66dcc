package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util/errorutil"
)

// AgentReport aggregates an agent's ticket workload.
type AgentReport struct {
	AgentID       string         `json:"agentId"`
	StatusStats   map[string]int `json:"statusStats"`
	PriorityStats map[string]int `json:"priorityStats"`
	TotalAssigned int            `json:"totalAssigned"`
	TotalClosed   int            `json:"totalClosed"`
	AvgTatHours   float64        `json:"avgTatHours"`
	SLABreaches   int            `json:"slaBreaches"`
	EfficiencyPct int            `json:"efficiencyPct"`
}

// ReportService computes per-agent SLA reports.
type ReportService struct {
	tickets   repository.TicketRepository
	agents    repository.AgentRepository
	threshold time.Duration
	now       func() time.Time
}

// ReportDependencies bundles collaborators.
type ReportDependencies struct {
	TicketRepo   repository.TicketRepository
	AgentRepo    repository.AgentRepository
	SLAThreshold time.Duration
	Now          func() time.Time
}

// NewReportService creates the service.
func NewReportService(deps ReportDependencies) *ReportService {
	s := &ReportService{
		tickets:   deps.TicketRepo,
		agents:    deps.AgentRepo,
		threshold: deps.SLAThreshold,
		now:       deps.Now,
	}
	if s.threshold <= 0 {
		s.threshold = 24 * time.Hour
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Report builds the report for agentID, defaulting to the calling agent.
// Only admins may look at another agent.
func (s *ReportService) Report(ctx context.Context, actor domain.Actor, agentID string) (*AgentReport, error) {
	if !actor.IsAgent() {
		return nil, apperrors.NewForbidden("reports are available to agents only")
	}
	if agentID == "" {
		agentID = actor.ID
	}
	if agentID != actor.ID && !actor.IsAdmin {
		return nil, apperrors.NewForbidden("only admins can view other agents")
	}
	if _, err := s.agents.GetByID(ctx, actor.CompanyID, agentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
		}
		return nil, apperrors.MapError(err)
	}
	tickets, err := s.tickets.ListByAgent(ctx, actor.CompanyID, agentID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	report := aggregateReport(tickets, s.now(), s.threshold)
	report.AgentID = agentID
	return report, nil
}

func aggregateReport(tickets []domain.Ticket, now time.Time, threshold time.Duration) *AgentReport {
	report := &AgentReport{
		StatusStats:   map[string]int{},
		PriorityStats: map[string]int{},
	}
	var tatTotal float64
	var tatCount int
	for i := range tickets {
		t := &tickets[i]
		report.TotalAssigned++
		report.StatusStats[string(t.Status)]++
		if t.Priority != "" {
			report.PriorityStats[string(t.Priority)]++
		}
		if t.IsClosed() {
			report.TotalClosed++
			if t.ClosedAt != nil {
				tatTotal += t.ClosedAt.Sub(t.CreatedAt).Hours()
				tatCount++
			}
			continue
		}
		if now.Sub(t.CreatedAt) > threshold {
			report.SLABreaches++
		}
	}
	if tatCount > 0 {
		report.AvgTatHours = math.Round(tatTotal/float64(tatCount)*100) / 100
	}
	if report.TotalAssigned > 0 {
		report.EfficiencyPct = int(math.Round(float64(report.TotalClosed) / float64(report.TotalAssigned) * 100))
	}
	return report
}
