package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNotLoggedIn is returned by calls that need a session before Login.
var ErrNotLoggedIn = errors.New("client: not logged in")

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an *APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// Block is a ledger block as returned by the service.
type Block struct {
	Index        uint64         `json:"index"`
	Timestamp    time.Time      `json:"timestamp"`
	ActionType   string         `json:"action_type"`
	ReportID     string         `json:"report_id"`
	Actor        string         `json:"actor"`
	Data         map[string]any `json:"data"`
	DataHash     string         `json:"data_hash"`
	PreviousHash string         `json:"previous_hash"`
	SLADeadline  *time.Time     `json:"sla_deadline"`
}

// Report is a report timeline with its derived status.
type Report struct {
	ReportID    string     `json:"report_id"`
	Status      string     `json:"status"`
	SLADeadline *time.Time `json:"sla_deadline,omitempty"`
	SLAOverdue  bool       `json:"sla_overdue"`
	Timeline    []Block    `json:"timeline"`
}

// Registration is the payload of Register.
type Registration struct {
	UserID     string `json:"user_id"`
	Password   string `json:"password"`
	Role       string `json:"role,omitempty"`
	DeviceHash string `json:"device_hash,omitempty"`
}

// Session is the result of a successful Login.
type Session struct {
	Token  string `json:"token"`
	Role   string `json:"role"`
	UserID string `json:"user_id"`
}

// ReportSubmission is the payload of SubmitReport.
type ReportSubmission struct {
	StudentID    string
	Description  string
	Witness      string
	Date         string
	EvidenceName string
	Evidence     io.Reader
}

// LedgerOverview is the chain summary returned by LedgerOverview.
type LedgerOverview struct {
	Entries int    `json:"entries"`
	Root    string `json:"root"`
}

// Verification is the result of VerifyLedger.
type Verification struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Client talks to one incident service instance.
type Client struct {
	base       string
	httpClient *http.Client

	mu    sync.Mutex
	token string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithToken attaches a previously obtained session token.
func WithToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// New creates a Client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	c := &Client{
		base:       strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(baseURL string, opts ...Option) *Client {
	c, err := New(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Token returns the current session token, if any.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Register creates or replaces an account.
func (c *Client) Register(ctx context.Context, r Registration) (string, error) {
	var resp struct {
		Role string `json:"role"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/register", false, r, &resp); err != nil {
		return "", err
	}
	return resp.Role, nil
}

// Login authenticates and stores the session token on c.
func (c *Client) Login(ctx context.Context, userID, password, deviceHash string) (*Session, error) {
	body := map[string]string{"user_id": userID, "password": password, "device_hash": deviceHash}
	var s Session
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/login", false, body, &s); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.token = s.Token
	c.mu.Unlock()
	return &s, nil
}

// SubmitReport uploads a report with its evidence and returns the report id.
func (c *Client) SubmitReport(ctx context.Context, s ReportSubmission) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := map[string]string{
		"student_id":  s.StudentID,
		"description": s.Description,
		"witness":     s.Witness,
		"date":        s.Date,
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return "", fmt.Errorf("write form field: %w", err)
		}
	}
	if s.Evidence != nil {
		part, err := w.CreateFormFile("evidence", s.EvidenceName)
		if err != nil {
			return "", fmt.Errorf("create form file: %w", err)
		}
		if _, err := io.Copy(part, s.Evidence); err != nil {
			return "", fmt.Errorf("copy evidence: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/reports", true, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp struct {
		ReportID string `json:"report_id"`
	}
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	return resp.ReportID, nil
}

// Reports lists the reports visible under role's view.
func (c *Client) Reports(ctx context.Context, role string) ([]Report, error) {
	var resp struct {
		Reports []Report `json:"reports"`
	}
	path := "/api/v1/reports?role=" + url.QueryEscape(role)
	if err := c.doJSON(ctx, http.MethodGet, path, true, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Reports, nil
}

// Timeline returns a single report.
func (c *Client) Timeline(ctx context.Context, reportID string) (*Report, error) {
	var r Report
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/reports/"+url.PathEscape(reportID), true, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateReport appends a status update and returns the recorded block.
func (c *Client) UpdateReport(ctx context.Context, reportID, actionType, remarks string) (*Block, error) {
	body := map[string]string{"action_type": actionType, "remarks": remarks}
	var resp struct {
		Block Block `json:"block"`
	}
	path := "/api/v1/reports/" + url.PathEscape(reportID) + "/updates"
	if err := c.doJSON(ctx, http.MethodPost, path, true, body, &resp); err != nil {
		return nil, err
	}
	return &resp.Block, nil
}

// LedgerOverview returns the chain length and tail hash.
func (c *Client) LedgerOverview(ctx context.Context) (*LedgerOverview, error) {
	var o LedgerOverview
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/ledger", false, nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// VerifyLedger asks the service to re-verify the whole chain.
func (c *Client) VerifyLedger(ctx context.Context) (*Verification, error) {
	var v Verification
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/ledger/verify", false, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// LedgerEntry returns the block at index.
func (c *Client) LedgerEntry(ctx context.Context, index int) (*Block, error) {
	var b Block
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/ledger/entries/"+strconv.Itoa(index), false, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, auth bool, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := c.newRequest(ctx, method, path, auth, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, auth bool, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if auth {
		token := c.Token()
		if token == "" {
			return nil, ErrNotLoggedIn
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do executes req and decodes a JSON response into out. Non-2xx responses
// become *APIError carrying the service's error message.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
