package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
)

// AvailabilityProvider answers whether an agent can take tickets on a date.
type AvailabilityProvider struct {
	agents repository.AgentRepository
}

// NewAvailabilityProvider creates the provider.
func NewAvailabilityProvider(agents repository.AgentRepository) *AvailabilityProvider {
	return &AvailabilityProvider{agents: agents}
}

// IsAvailable loads the agent within the company. A missing agent is unavailable.
func (p *AvailabilityProvider) IsAvailable(ctx context.Context, companyID, agentID string, date time.Time) (bool, error) {
	agent, err := p.agents.GetByID(ctx, companyID, agentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return agent.AvailableOn(date), nil
}

// FilterAvailable keeps the agents available on date, preserving order.
func FilterAvailable(agents []domain.Agent, date time.Time) []domain.Agent {
	out := make([]domain.Agent, 0, len(agents))
	for i := range agents {
		if agents[i].AvailableOn(date) {
			out = append(out, agents[i])
		}
	}
	return out
}
