package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ferris/airbase/internal/models"
)

// Snapshot is the server's current view of one entity: the raw document plus
// the version metadata the conflict detector compares against.
type Snapshot struct {
	ID        string
	Version   int64
	UpdatedAt time.Time
	Data      json.RawMessage
}

// API is the surface of the remote authority the sync engine consumes.
// Implemented by Client; tests substitute a fake.
type API interface {
	Create(ctx context.Context, entityType models.EntityType, parentID string, payload json.RawMessage, idempotencyKey string) (*Snapshot, error)
	Get(ctx context.Context, entityType models.EntityType, parentID, id string) (*Snapshot, error)
	List(ctx context.Context, entityType models.EntityType, parentID string) ([]Snapshot, error)
	Update(ctx context.Context, entityType models.EntityType, parentID, id string, payload json.RawMessage) (*Snapshot, error)
	Delete(ctx context.Context, entityType models.EntityType, parentID, id string) error
	Healthy(ctx context.Context) bool
}

// Client is an HTTP client for the airbase REST API.
type Client struct {
	BaseURL string
	APIKey  string
	Token   string
	HTTP    *http.Client
}

// New creates a client. baseURL includes the /api/v1 prefix.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

var _ API = (*Client)(nil)

// entityPath builds the REST path for an entity. Records are nested under
// their table; tables list under their base but are addressed top-level.
func entityPath(entityType models.EntityType, parentID, id string) (string, error) {
	switch entityType {
	case models.EntityBase:
		if id == "" {
			return "/bases", nil
		}
		return "/bases/" + id, nil
	case models.EntityTable:
		if id == "" {
			return "/tables", nil
		}
		return "/tables/" + id, nil
	case models.EntityRecord:
		if parentID == "" {
			return "", fmt.Errorf("record path requires a table id")
		}
		if id == "" {
			return "/tables/" + parentID + "/records", nil
		}
		return "/tables/" + parentID + "/records/" + id, nil
	default:
		return "", fmt.Errorf("unknown entity type %q", entityType)
	}
}

func listPath(entityType models.EntityType, parentID string) (string, error) {
	switch entityType {
	case models.EntityBase:
		return "/bases", nil
	case models.EntityTable:
		if parentID == "" {
			return "", fmt.Errorf("table listing requires a base id")
		}
		return "/bases/" + parentID + "/tables", nil
	case models.EntityRecord:
		if parentID == "" {
			return "", fmt.Errorf("record listing requires a table id")
		}
		return "/tables/" + parentID + "/records", nil
	default:
		return "", fmt.Errorf("unknown entity type %q", entityType)
	}
}

// Create submits a new entity. The idempotency key makes a resubmission
// after a crash safe: the server returns the original entity for a key it
// has already seen.
func (c *Client) Create(ctx context.Context, entityType models.EntityType, parentID string, payload json.RawMessage, idempotencyKey string) (*Snapshot, error) {
	path, err := entityPath(entityType, parentID, "")
	if err != nil {
		return nil, err
	}
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}
	var doc json.RawMessage
	if err := c.do(ctx, http.MethodPost, path, payload, headers, &doc); err != nil {
		return nil, err
	}
	return parseSnapshot(doc)
}

// Get fetches the server's current snapshot of an entity.
func (c *Client) Get(ctx context.Context, entityType models.EntityType, parentID, id string) (*Snapshot, error) {
	path, err := entityPath(entityType, parentID, id)
	if err != nil {
		return nil, err
	}
	var doc json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &doc); err != nil {
		return nil, err
	}
	return parseSnapshot(doc)
}

// List fetches all entities of a type under a parent.
func (c *Client) List(ctx context.Context, entityType models.EntityType, parentID string) ([]Snapshot, error) {
	path, err := listPath(entityType, parentID)
	if err != nil {
		return nil, err
	}
	var docs []json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &docs); err != nil {
		return nil, err
	}
	snaps := make([]Snapshot, 0, len(docs))
	for _, doc := range docs {
		s, err := parseSnapshot(doc)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *s)
	}
	return snaps, nil
}

// Update patches an entity and returns the server's resulting snapshot.
func (c *Client) Update(ctx context.Context, entityType models.EntityType, parentID, id string, payload json.RawMessage) (*Snapshot, error) {
	path, err := entityPath(entityType, parentID, id)
	if err != nil {
		return nil, err
	}
	var doc json.RawMessage
	if err := c.do(ctx, http.MethodPatch, path, payload, nil, &doc); err != nil {
		return nil, err
	}
	return parseSnapshot(doc)
}

// Delete removes an entity on the server.
func (c *Client) Delete(ctx context.Context, entityType models.EntityType, parentID, id string) error {
	path, err := entityPath(entityType, parentID, id)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// Healthy reports server reachability via the health endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
	return err == nil || !errors.Is(err, ErrUnreachable)
}

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	Token string `json:"token"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// parseSnapshot extracts id/version/updated_at from an entity document while
// keeping the document itself verbatim.
func parseSnapshot(doc json.RawMessage) (*Snapshot, error) {
	var meta struct {
		ID        string `json:"id"`
		Version   int64  `json:"version"`
		UpdatedAt string `json:"updated_at"`
	}
	if err := json.Unmarshal(doc, &meta); err != nil {
		return nil, fmt.Errorf("parse entity document: %w", err)
	}
	if meta.ID == "" {
		return nil, fmt.Errorf("entity document missing id")
	}
	s := &Snapshot{ID: meta.ID, Version: meta.Version, Data: doc}
	if meta.UpdatedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, meta.UpdatedAt); err == nil {
			s.UpdatedAt = t
		} else if t, err := time.Parse(time.RFC3339, meta.UpdatedAt); err == nil {
			s.UpdatedAt = t
		}
	}
	return s, nil
}

// envelope is the server's standard response wrapper.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body json.RawMessage, headers map[string]string, result any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	} else if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		// Connection refused, DNS failure, timeout: all unreachable, all
		// retryable.
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		json.Unmarshal(respBody, apiErr)
		switch {
		case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: %s", ErrValidation, apiErr.Message)
		case resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message)
		case resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrForbidden, apiErr.Message)
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: %v", ErrUnreachable, apiErr)
		default:
			return apiErr
		}
	}

	if result != nil && len(respBody) > 0 {
		var env envelope
		if err := json.Unmarshal(respBody, &env); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		payload := env.Data
		if payload == nil {
			// Some endpoints answer without the envelope.
			payload = respBody
		}
		if err := json.Unmarshal(payload, result); err != nil {
			return fmt.Errorf("unmarshal response data: %w", err)
		}
	}

	return nil
}
