// Package incidentapi talks to the CityAlert backend's incident and
// department endpoints.
package incidentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cityalert/internal/failure"
	"cityalert/internal/incident"
	"cityalert/internal/logger"
)

type Client struct {
	http    *http.Client
	baseURL string
}

type Option func(*Client)

// WithHTTPClient replaces the default client (timeout 30s).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// New returns a client for baseURL, e.g. "https://host/api".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// CreateRequest is the submission payload. ImageURL is omitted when nil.
type CreateRequest struct {
	Description              string  `json:"description"`
	Location                 string  `json:"location"`
	DepartmentClassification string  `json:"department_classification"`
	ImageURL                 *string `json:"image_url,omitempty"`
}

type StatusUpdate struct {
	Status         incident.Status `json:"status"`
	DepartmentName string          `json:"department_name,omitempty"`
	DepartmentKey  string          `json:"department_key,omitempty"`
}

type Credential struct {
	Name string `json:"department_name"`
	Key  string `json:"department_key"`
}

// Department is what a successful login returns.
type Department struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Warning string `json:"warning"`
}

func (b errorBody) text() string {
	switch {
	case b.Error != "":
		return b.Error
	case b.Message != "":
		return b.Message
	default:
		return b.Warning
	}
}

func (c *Client) CreateIncident(ctx context.Context, req CreateRequest) (*incident.Incident, error) {
	const op = "incidentapi.create"
	sc := logger.StartSpan(ctx, op)
	defer sc.End()
	ctx = sc.Context()

	status, body, err := c.do(ctx, op, http.MethodPost, "/incidents", req)
	if err != nil {
		sc.RecordError(err)
		return nil, err
	}

	switch {
	case status == http.StatusConflict:
		var dup struct {
			errorBody
			Existing *incident.Incident `json:"existing_incident"`
		}
		if err := json.Unmarshal(body, &dup); err != nil {
			return nil, failure.Protocol(op, status, fmt.Errorf("decode conflict body: %w", err))
		}
		derr := &DuplicateError{Message: dup.text(), Existing: dup.Existing}
		slog.InfoContext(ctx, "duplicate incident rejected", "message", derr.Message)
		return nil, derr
	case status < 200 || status >= 300:
		rerr := remoteError(op, status, body)
		sc.RecordError(rerr)
		return nil, rerr
	}

	var created incident.Incident
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, failure.Protocol(op, status, fmt.Errorf("decode incident: %w", err))
	}
	slog.InfoContext(logger.WithLogFields(ctx, logger.LogFields{IncidentID: logger.Ptr(created.ID)}), "incident created")
	return &created, nil
}

func (c *Client) ListIncidents(ctx context.Context) ([]incident.Incident, error) {
	return c.list(ctx, "incidentapi.list", "/incidents")
}

// ListDepartmentIncidents lists incidents whose classification contains
// name. An empty status means all statuses.
func (c *Client) ListDepartmentIncidents(ctx context.Context, name string, status incident.Status) ([]incident.Incident, error) {
	path := "/departments/" + url.PathEscape(strings.ToUpper(strings.TrimSpace(name))) + "/incidents"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	return c.list(ctx, "incidentapi.list_department", path)
}

func (c *Client) UpdateStatus(ctx context.Context, id int64, update StatusUpdate) (*incident.Incident, error) {
	const op = "incidentapi.update_status"
	if _, ok := incident.ParseStatus(string(update.Status)); !ok {
		return nil, failure.Validation(op, fmt.Sprintf("unknown status %q", update.Status))
	}
	sc := logger.StartSpan(ctx, op)
	defer sc.End()
	ctx = sc.Context()

	status, body, err := c.do(ctx, op, http.MethodPut, "/incidents/"+strconv.FormatInt(id, 10), update)
	if err != nil {
		sc.RecordError(err)
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, remoteError(op, status, body)
	}
	var updated incident.Incident
	if err := json.Unmarshal(body, &updated); err != nil {
		return nil, failure.Protocol(op, status, fmt.Errorf("decode incident: %w", err))
	}
	return &updated, nil
}

func (c *Client) DeleteIncident(ctx context.Context, id int64, cred Credential) error {
	const op = "incidentapi.delete"
	sc := logger.StartSpan(ctx, op)
	defer sc.End()
	ctx = sc.Context()

	status, body, err := c.do(ctx, op, http.MethodDelete, "/incidents/"+strconv.FormatInt(id, 10), cred)
	if err != nil {
		sc.RecordError(err)
		return err
	}
	if status < 200 || status >= 300 {
		return remoteError(op, status, body)
	}
	// the body is a {message} acknowledgement; it must still be JSON
	if !json.Valid(body) {
		return failure.Protocol(op, status, fmt.Errorf("non-JSON response: %s", logger.Truncate(string(body), 100)))
	}
	return nil
}

// Login exchanges a department key for the department identity. The
// returned name is upper-cased to match classification tokens.
func (c *Client) Login(ctx context.Context, key string) (*Department, error) {
	const op = "incidentapi.login"
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, failure.Validation(op, "login key is required")
	}
	sc := logger.StartSpan(ctx, op)
	defer sc.End()
	ctx = sc.Context()

	status, body, err := c.do(ctx, op, http.MethodPost, "/departments/login", map[string]string{"login_key": key})
	if err != nil {
		sc.RecordError(err)
		return nil, err
	}
	if status == http.StatusUnauthorized {
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		msg := eb.text()
		if msg == "" {
			msg = "Login failed. Please check your key."
		}
		return nil, &LoginError{Message: msg}
	}
	if status < 200 || status >= 300 {
		return nil, remoteError(op, status, body)
	}
	var dept Department
	if err := json.Unmarshal(body, &dept); err != nil {
		return nil, failure.Protocol(op, status, fmt.Errorf("decode department: %w", err))
	}
	dept.Name = strings.ToUpper(strings.TrimSpace(dept.Name))
	return &dept, nil
}

func (c *Client) list(ctx context.Context, op, path string) ([]incident.Incident, error) {
	sc := logger.StartSpan(ctx, op)
	defer sc.End()
	ctx = sc.Context()

	status, body, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		sc.RecordError(err)
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, remoteError(op, status, body)
	}
	var out []incident.Incident
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, failure.Protocol(op, status, fmt.Errorf("decode incidents: %w", err))
	}
	return out, nil
}

// do sends one JSON request and returns the raw body. Only transport
// problems are errors here; status handling belongs to the caller.
func (c *Client) do(ctx context.Context, op, method, path string, payload any) (int, []byte, error) {
	var rdr io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		slog.WarnContext(ctx, "incident api unreachable", "op", op, "error", err)
		return 0, nil, failure.Network(op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, failure.Network(op, fmt.Errorf("read body: %w", err))
	}
	slog.DebugContext(ctx, "incident api call", "op", op, "method", method, "path", path,
		"status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
	return resp.StatusCode, body, nil
}

// remoteError maps a non-2xx answer: a JSON body is a remote failure, any
// other body is a protocol failure.
func remoteError(op string, status int, body []byte) error {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return failure.Protocol(op, status, fmt.Errorf("non-JSON response: %s", logger.Truncate(string(body), 100)))
	}
	msg := eb.text()
	if msg == "" {
		msg = http.StatusText(status)
	}
	return failure.Remote(op, status, msg)
}
