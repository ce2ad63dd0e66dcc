package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util/errorutil"
)

const actorKey = "auth_actor"

// AuthMiddleware validates bearer tokens and loads the calling actor.
type AuthMiddleware struct {
	tokens    *TokenManager
	agents    repository.AgentRepository
	customers repository.CustomerRepository
	companies repository.CompanyRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, agents repository.AgentRepository, customers repository.CustomerRepository, companies repository.CompanyRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, agents: agents, customers: customers, companies: companies}
}

// Handle enforces authentication for protected routes. The company comes
// from the verified token; the subject must exist in that company.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	actor := &domain.Actor{Type: claims.Subject, ID: claims.SubjectID, CompanyID: claims.CompanyID}
	ctx := c.UserContext()

	switch claims.Subject {
	case domain.SubjectTypeAgent:
		agent, err := m.agents.GetByID(ctx, claims.CompanyID, claims.SubjectID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewUnauthorized("agent not found")
			}
			return apperrors.MapError(err)
		}
		if !agent.IsActive {
			return apperrors.NewForbidden("agent inactive")
		}
		actor.IsAdmin = agent.IsAdmin
	case domain.SubjectTypeCustomer:
		if _, err := m.customers.GetByID(ctx, claims.CompanyID, claims.SubjectID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewUnauthorized("customer not found")
			}
			return apperrors.MapError(err)
		}
	case domain.SubjectTypeService:
		// integration tokens carry only the company
	default:
		return apperrors.NewUnauthorized("unknown subject")
	}

	c.Locals(actorKey, actor)
	return c.Next()
}

// RequireWebhookSecret checks the company's shared secret passed as the
// "secret" query parameter. It must run after Handle.
func (m *AuthMiddleware) RequireWebhookSecret(c *fiber.Ctx) error {
	actor, ok := ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("missing token")
	}
	company, err := m.companies.GetByID(c.UserContext(), actor.CompanyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewUnauthorized("unknown company")
		}
		return apperrors.MapError(err)
	}
	if !company.Active || !VerifyWebhookSecret(company.WebhookSecretHash, c.Query("secret")) {
		return apperrors.NewUnauthorized("invalid webhook secret")
	}
	return c.Next()
}

// ActorFromContext retrieves the authenticated actor.
func ActorFromContext(c *fiber.Ctx) (*domain.Actor, bool) {
	val := c.Locals(actorKey)
	if val == nil {
		return nil, false
	}
	actor, ok := val.(*domain.Actor)
	return actor, ok
}
