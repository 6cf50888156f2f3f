package channels

import (
	"context"
	"fmt"

	"github.com/RealZimboGuy/courseflow/internal/domain"
)

type DocumentRequest struct {
	TemplateID     string                  `json:"templateId"`
	Kind           domain.ChannelType      `json:"kind"`
	RecipientRole  domain.RecipientRole    `json:"recipientRole"`
	Subject        *domain.SubjectSnapshot `json:"subject"`
	Variables      map[string]string       `json:"variables"`
	IdempotencyKey string                  `json:"idempotencyKey"`
}

// DocumentGenerator returns a reference to the generated artifact.
type DocumentGenerator interface {
	Generate(ctx context.Context, req DocumentRequest) (string, error)
}

type DocumentAdapter struct {
	generator DocumentGenerator
}

func NewDocumentAdapter(generator DocumentGenerator) *DocumentAdapter {
	return &DocumentAdapter{generator: generator}
}

func (d *DocumentAdapter) Deliver(ctx context.Context, req Request) (string, error) {
	cfg, ok := req.Config.(domain.DocumentConfig)
	if !ok {
		return "", PermanentError(fmt.Errorf("document adapter got %T", req.Config))
	}
	if req.Subject == nil {
		return "", fmt.Errorf("%w: no subject data for %s", ErrPrecondition, req.Record.Subject)
	}
	if cfg.Certificate && !req.Subject.CompletionDate.Valid {
		return "", fmt.Errorf("%w: certificate requested before completion of %s", ErrPrecondition, req.Record.Subject)
	}
	vars := req.Subject.Variables()
	vars["action_title"] = req.Action.Title
	return d.generator.Generate(ctx, DocumentRequest{
		TemplateID:     cfg.TemplateID,
		Kind:           cfg.Channel(),
		RecipientRole:  req.Action.RecipientRole,
		Subject:        req.Subject,
		Variables:      vars,
		IdempotencyKey: req.IdempotencyKey(),
	})
}
