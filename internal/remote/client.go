package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cnavas/warebox/pkg/logger"
)

const defaultTimeout = 15 * time.Second

// ClientConfig holds connection options for the inventory service API.
type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client implements Service against the inventory service REST API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
	log   *zap.Logger
}

// NewClient constructs a Client from config.
func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("remote: base url is required")
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		base:  parsed,
		token: strings.TrimSpace(cfg.Token),
		http:  &http.Client{Timeout: timeout},
		log:   logger.WithModule("remote"),
	}, nil
}

// Ping checks service reachability; it doubles as the connectivity probe.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/v1/ping", nil, nil, "")
	return err
}

// UpdateRequestStatus sets a request's status with operation-specific fields.
func (c *Client) UpdateRequestStatus(ctx context.Context, in UpdateStatusInput) (Record, error) {
	body := map[string]any{"status": in.Status}
	for k, v := range in.Fields {
		body[k] = v
	}

	raw, err := c.do(ctx, http.MethodPost, "/v1/requests/"+url.PathEscape(in.RequestID)+"/status", nil, body, in.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return decodeRecord(raw)
}

// DeliverRequest performs the atomic stock+inventory+status delivery update.
func (c *Client) DeliverRequest(ctx context.Context, in DeliverInput) (Record, error) {
	body := map[string]any{
		"delivered_by":   in.DeliveredBy,
		"quantity":       in.Quantity,
		"condition_code": in.ConditionCode,
		"notes":          in.Notes,
		"delivered_at":   in.DeliveredAt,
	}
	if in.CertificateNumber != "" {
		body["certificate_number"] = in.CertificateNumber
	}
	if in.CertificateExpiry != nil {
		body["certificate_expiry"] = in.CertificateExpiry
	}

	raw, err := c.do(ctx, http.MethodPost, "/v1/requests/"+url.PathEscape(in.RequestID)+"/deliver", nil, body, in.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return decodeRecord(raw)
}

// CreateRecord inserts a new row into a remote table.
func (c *Client) CreateRecord(ctx context.Context, table string, attrs map[string]any) (Record, error) {
	raw, err := c.do(ctx, http.MethodPost, "/v1/tables/"+url.PathEscape(table), nil, attrs, "")
	if err != nil {
		return nil, err
	}
	return decodeRecord(raw)
}

// UpdateRecord patches fields of an existing remote row.
func (c *Client) UpdateRecord(ctx context.Context, table, key string, fields map[string]any) (Record, error) {
	path := "/v1/tables/" + url.PathEscape(table) + "/" + url.PathEscape(key)
	raw, err := c.do(ctx, http.MethodPatch, path, nil, fields, "")
	if err != nil {
		return nil, err
	}
	return decodeRecord(raw)
}

// FetchRequestsByStatus pulls requests in the given statuses, bounded by
// since/limit, newest first.
func (c *Client) FetchRequestsByStatus(ctx context.Context, q RequestQuery) ([]Record, error) {
	query := url.Values{}
	if len(q.Statuses) > 0 {
		query.Set("status", strings.Join(q.Statuses, ","))
	}
	if q.Since != nil {
		query.Set("since", q.Since.UTC().Format(time.RFC3339))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}

	raw, err := c.do(ctx, http.MethodGet, "/v1/requests", query, nil, "")
	if err != nil {
		return nil, err
	}
	return decodeRecords(raw)
}

// FetchReferenceTable pulls a full reference table (items, locations, users, ...).
func (c *Client) FetchReferenceTable(ctx context.Context, name string) ([]Record, error) {
	raw, err := c.do(ctx, http.MethodGet, "/v1/tables/"+url.PathEscape(name), nil, nil, "")
	if err != nil {
		return nil, err
	}
	return decodeRecords(raw)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, idempotencyKey string) (json.RawMessage, error) {
	target := *c.base
	target.Path = strings.TrimRight(target.Path, "/") + path
	if query != nil {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("remote: marshal body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Network failures and client-side timeouts stay untagged: transient.
		return nil, fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("remote: read response: %w", err)
	}

	var env envelope
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &env); err != nil && resp.StatusCode < 400 {
			return nil, fmt.Errorf("remote: decode response: %w", err)
		}
	}

	if resp.StatusCode >= 400 {
		remoteErr := &Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if env.Error != nil {
			remoteErr.Code = env.Error.Code
			remoteErr.Message = env.Error.Message
		}
		c.log.Debug("remote call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Bool("permanent", remoteErr.Permanent()),
		)
		return nil, remoteErr
	}

	return env.Data, nil
}

func decodeRecord(raw json.RawMessage) (Record, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("remote: decode record: %w", err)
	}
	return rec, nil
}

func decodeRecords(raw json.RawMessage) ([]Record, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var recs []Record
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("remote: decode records: %w", err)
	}
	return recs, nil
}
