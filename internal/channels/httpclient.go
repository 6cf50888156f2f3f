package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ServiceClient talks JSON over HTTP to the delivery service, the document
// generator and the service gateway. An empty base URL leaves that
// collaborator unconfigured.
type ServiceClient struct {
	client      *http.Client
	deliveryURL string
	documentURL string
	serviceURL  string
	apiKey      string
}

type ServiceClientOption func(*ServiceClient)

func WithDeliveryURL(u string) ServiceClientOption {
	return func(c *ServiceClient) { c.deliveryURL = strings.TrimRight(u, "/") }
}

func WithDocumentURL(u string) ServiceClientOption {
	return func(c *ServiceClient) { c.documentURL = strings.TrimRight(u, "/") }
}

func WithServiceURL(u string) ServiceClientOption {
	return func(c *ServiceClient) { c.serviceURL = strings.TrimRight(u, "/") }
}

func WithAPIKey(key string) ServiceClientOption {
	return func(c *ServiceClient) { c.apiKey = key }
}

func NewServiceClient(client *http.Client, opts ...ServiceClientOption) *ServiceClient {
	if client == nil {
		client = &http.Client{}
	}
	c := &ServiceClient{client: client}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type referenceResponse struct {
	Reference string `json:"reference"`
}

func (c *ServiceClient) SendMessage(ctx context.Context, msg Message) (string, error) {
	return c.post(ctx, c.deliveryURL, "/messages", msg.IdempotencyKey, msg)
}

func (c *ServiceClient) Generate(ctx context.Context, req DocumentRequest) (string, error) {
	return c.post(ctx, c.documentURL, "/documents", req.IdempotencyKey, req)
}

func (c *ServiceClient) Call(ctx context.Context, req ServiceRequest) (string, error) {
	return c.post(ctx, c.serviceURL, "/"+string(req.Channel), req.IdempotencyKey, req)
}

func (c *ServiceClient) post(ctx context.Context, base, path, idempotencyKey string, body any) (string, error) {
	if base == "" {
		return "", fmt.Errorf("%w: no endpoint for %s", ErrNotConfigured, path)
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", PermanentError(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(b))
	if err != nil {
		return "", PermanentError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderIdempotencyKey, idempotencyKey)
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", TransientError(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", ClassifyStatus(resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var ref referenceResponse
	if len(data) > 0 {
		if err := json.Unmarshal(data, &ref); err != nil {
			return "", PermanentError(fmt.Errorf("decode %s response: %w", path, err))
		}
	}
	return ref.Reference, nil
}
