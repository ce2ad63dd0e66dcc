package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const feedbackAudience = "helpdesk-feedback"

// FeedbackClaims binds a feedback link to one ticket and customer.
type FeedbackClaims struct {
	TicketID      string `json:"ticket_id"`
	CompanyID     string `json:"company_id"`
	CustomerEmail string `json:"customer_email"`
	jwt.RegisteredClaims
}

// FeedbackTokenManager signs and verifies feedback tokens. It uses its own
// secret so access tokens can never be redeemed as feedback tokens.
type FeedbackTokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewFeedbackTokenManager builds a manager with the given lifetime.
func NewFeedbackTokenManager(secret string, ttl time.Duration) *FeedbackTokenManager {
	if ttl <= 0 {
		ttl = 14 * 24 * time.Hour
	}
	return &FeedbackTokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the ticket.
func (m *FeedbackTokenManager) Issue(ticketID, companyID, customerEmail string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := &FeedbackClaims{
		TicketID:      ticketID,
		CompanyID:     companyID,
		CustomerEmail: customerEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   ticketID,
			Audience:  jwt.ClaimStrings{feedbackAudience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies signature, audience and expiry.
func (m *FeedbackTokenManager) Parse(tokenStr string) (*FeedbackClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &FeedbackClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwt.WithAudience(feedbackAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*FeedbackClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.TicketID == "" || claims.CompanyID == "" {
		return nil, errors.New("token missing ticket binding")
	}
	return claims, nil
}
