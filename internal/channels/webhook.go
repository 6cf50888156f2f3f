package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/RealZimboGuy/courseflow/internal/domain"
	"github.com/RealZimboGuy/courseflow/pkg/courseflow/core"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderSignature      = "X-Courseflow-Signature"
	HeaderTimestamp      = "X-Courseflow-Timestamp"
)

type WebhookPayload struct {
	Event          string            `json:"event"`
	IdempotencyKey string            `json:"idempotencyKey"`
	OrganizationID string            `json:"organizationId"`
	ActionID       int64             `json:"actionId"`
	ActionTitle    string            `json:"actionTitle"`
	RecipientRole  string            `json:"recipientRole"`
	OwnerType      string            `json:"ownerType"`
	OwnerID        string            `json:"ownerId"`
	Subject        domain.Subject    `json:"subject"`
	RecordID       int64             `json:"recordId"`
	Attempt        int               `json:"attempt"`
	ScheduledFor   *time.Time        `json:"scheduledFor,omitempty"`
	Variables      map[string]string `json:"variables,omitempty"`
}

// WebhookAdapter POSTs a signed JSON payload to the action's destination.
type WebhookAdapter struct {
	client *http.Client
	signer *Signer
	clock  core.Clock
}

func NewWebhookAdapter(client *http.Client, signer *Signer, clock core.Clock) *WebhookAdapter {
	if client == nil {
		client = &http.Client{}
	}
	// a redirect is the target telling us the URL is wrong
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return &WebhookAdapter{client: &c, signer: signer, clock: clock}
}

func (w *WebhookAdapter) Deliver(ctx context.Context, req Request) (string, error) {
	cfg, ok := req.Config.(domain.WebhookConfig)
	if !ok {
		return "", PermanentError(fmt.Errorf("webhook adapter got %T", req.Config))
	}

	payload := WebhookPayload{
		Event:          "flow_action.fired",
		IdempotencyKey: req.IdempotencyKey(),
		OrganizationID: req.Action.OrganizationID,
		ActionID:       req.Action.ID,
		ActionTitle:    req.Action.Title,
		RecipientRole:  string(req.Action.RecipientRole),
		OwnerType:      string(req.Action.OwnerType),
		OwnerID:        req.Action.OwnerID,
		Subject:        req.Record.Subject,
		RecordID:       req.Record.ID,
		Attempt:        req.Record.AttemptCount + 1,
	}
	if req.Record.ScheduledFor.Valid {
		t := req.Record.ScheduledFor.Time.UTC()
		payload.ScheduledFor = &t
	}
	if req.Subject != nil {
		payload.Variables = req.Subject.Variables()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", PermanentError(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL.String(), bytes.NewReader(body))
	if err != nil {
		return "", PermanentError(err)
	}
	ts := w.clock.Now().Unix()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderIdempotencyKey, req.IdempotencyKey())
	httpReq.Header.Set(HeaderTimestamp, fmt.Sprint(ts))
	if w.signer != nil {
		sig, err := w.signer.Sign(req.Action.OrganizationID, ts, body)
		if err != nil {
			return "", PermanentError(err)
		}
		httpReq.Header.Set(HeaderSignature, "sha256="+sig)
	}

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return "", TransientError(err)
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return fmt.Sprintf("webhook:%d", resp.StatusCode), nil
	}
	return "", ClassifyStatus(resp.StatusCode, string(snippet))
}
