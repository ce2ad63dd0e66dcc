package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util/errorutil"
)

// ErrSubscriptionNotFound is returned when Graph no longer knows a subscription.
var ErrSubscriptionNotFound = errors.New("graph subscription not found")

// GraphAPI is the part of Microsoft Graph the helpdesk uses.
type GraphAPI interface {
	GetMessage(ctx context.Context, mailbox domain.Mailbox, messageID string) (*GraphMessage, error)
	MarkRead(ctx context.Context, mailbox domain.Mailbox, messageID string) error
	CreateSubscription(ctx context.Context, mailbox domain.Mailbox, notificationURL string, expiresAt time.Time) (*Subscription, error)
	RenewSubscription(ctx context.Context, mailbox domain.Mailbox, subscriptionID string, expiresAt time.Time) (*Subscription, error)
}

// GraphMessage is the subset of a Graph message resource we read.
type GraphMessage struct {
	ID                string `json:"id"`
	Subject           string `json:"subject"`
	InternetMessageID string `json:"internetMessageId"`
	ConversationID    string `json:"conversationId"`
	IsRead            bool   `json:"isRead"`
	Body              struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	From struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	InternetMessageHeaders []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"internetMessageHeaders"`
	Attachments []GraphAttachment `json:"attachments"`
}

// GraphAttachment is an attachment entry; only file attachments carry bytes.
type GraphAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
	IsInline     bool   `json:"isInline"`
	ContentID    string `json:"contentId"`
	ContentBytes string `json:"contentBytes"`
}

// Subscription is a Graph change-notification subscription.
type Subscription struct {
	ID                 string    `json:"id,omitempty"`
	Resource           string    `json:"resource,omitempty"`
	ChangeType         string    `json:"changeType,omitempty"`
	NotificationURL    string    `json:"notificationUrl,omitempty"`
	ClientState        string    `json:"clientState,omitempty"`
	ExpirationDateTime time.Time `json:"expirationDateTime"`
}

// GraphClient calls Graph with per-mailbox application tokens.
type GraphClient struct {
	apiBaseURL string
	tokens     *CredentialsProvider
	base       http.RoundTripper
	timeout    time.Duration
}

// NewGraphClient builds a client. base may be nil.
func NewGraphClient(apiBaseURL string, tokens *CredentialsProvider, base http.RoundTripper, timeout time.Duration) *GraphClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GraphClient{
		apiBaseURL: strings.TrimRight(apiBaseURL, "/"),
		tokens:     tokens,
		base:       base,
		timeout:    timeout,
	}
}

func (g *GraphClient) httpClient(mailbox domain.Mailbox) *http.Client {
	return &http.Client{
		Timeout: g.timeout,
		Transport: &oauth2.Transport{
			Source: g.tokens.TokenSource(mailbox),
			Base:   g.base,
		},
	}
}

func mailboxPath(mailbox domain.Mailbox) string {
	return "/users/" + url.PathEscape(mailbox.Address)
}

// GetMessage fetches a message with headers and attachments.
func (g *GraphClient) GetMessage(ctx context.Context, mailbox domain.Mailbox, messageID string) (*GraphMessage, error) {
	query := url.Values{}
	query.Set("$select", "id,subject,body,from,internetMessageId,internetMessageHeaders,conversationId,isRead")
	query.Set("$expand", "attachments")
	endpoint := g.apiBaseURL + mailboxPath(mailbox) + "/messages/" + url.PathEscape(messageID) + "?" + query.Encode()

	var msg GraphMessage
	if err := g.do(ctx, mailbox, http.MethodGet, endpoint, nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead flags the source message as read.
func (g *GraphClient) MarkRead(ctx context.Context, mailbox domain.Mailbox, messageID string) error {
	endpoint := g.apiBaseURL + mailboxPath(mailbox) + "/messages/" + url.PathEscape(messageID)
	return g.do(ctx, mailbox, http.MethodPatch, endpoint, map[string]any{"isRead": true}, nil)
}

// CreateSubscription subscribes to new messages in the mailbox inbox.
func (g *GraphClient) CreateSubscription(ctx context.Context, mailbox domain.Mailbox, notificationURL string, expiresAt time.Time) (*Subscription, error) {
	body := Subscription{
		ChangeType:         "created",
		NotificationURL:    notificationURL,
		Resource:           fmt.Sprintf("users/%s/mailFolders('Inbox')/messages", mailbox.Address),
		ClientState:        mailbox.ClientState,
		ExpirationDateTime: expiresAt.UTC(),
	}
	var sub Subscription
	if err := g.do(ctx, mailbox, http.MethodPost, g.apiBaseURL+"/subscriptions", body, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// RenewSubscription extends an existing subscription.
func (g *GraphClient) RenewSubscription(ctx context.Context, mailbox domain.Mailbox, subscriptionID string, expiresAt time.Time) (*Subscription, error) {
	body := map[string]any{"expirationDateTime": expiresAt.UTC().Format(time.RFC3339)}
	var sub Subscription
	if err := g.do(ctx, mailbox, http.MethodPatch, g.apiBaseURL+"/subscriptions/"+url.PathEscape(subscriptionID), body, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (g *GraphClient) do(ctx context.Context, mailbox domain.Mailbox, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode graph request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build graph request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient(mailbox).Do(req)
	if err != nil {
		return apperrors.NewExternalServiceError("graph", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && strings.Contains(endpoint, "/subscriptions/") {
		return ErrSubscriptionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperrors.NewExternalServiceError("graph",
			fmt.Errorf("%s %s returned %d: %s", method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewExternalServiceError("graph", fmt.Errorf("decode graph response: %w", err))
	}
	return nil
}
