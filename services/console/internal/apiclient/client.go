package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"pumpconsole/pkg/domain"
)

const defaultTimeout = 15 * time.Second

// Config configures the backend client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Metrics    *Metrics
}

// Client calls the pump inventory backend over HTTP. It carries the bearer
// credential of the current operator session.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *Metrics

	mu             sync.RWMutex
	token          string
	beforeRequest  func(context.Context)
	onUnauthorized func(context.Context)
}

// NewClient constructs a backend client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		metrics:    cfg.Metrics,
	}
}

// SetToken arms the bearer credential attached to authenticated requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

// ClearToken drops the bearer credential.
func (c *Client) ClearToken() {
	c.SetToken("")
}

// Token returns the armed bearer credential.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetHooks installs callbacks run around authenticated requests. before runs
// ahead of every authenticated request; onUnauthorized runs after a 401.
func (c *Client) SetHooks(before, onUnauthorized func(context.Context)) {
	c.mu.Lock()
	c.beforeRequest = before
	c.onUnauthorized = onUnauthorized
	c.mu.Unlock()
}

// Metrics returns the collectors the client reports to, possibly nil.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

type request struct {
	method      string
	route       string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	header      http.Header
	public      bool
}

// send performs r and returns the response when the backend answered below
// 400. The caller owns the body.
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	c.mu.RLock()
	before, onUnauthorized := c.beforeRequest, c.onUnauthorized
	c.mu.RUnlock()
	if !r.public && before != nil {
		before(ctx)
	}

	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, r.body)
	if err != nil {
		return nil, err
	}
	for k, vals := range r.header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if !r.public {
		addAuthHeader(req, c.Token())
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.observe(r.method, r.route, 0, started)
		slog.Warn("backend request failed", "method", r.method, "route", r.route, "err", err)
		return nil, networkError(err)
	}
	c.metrics.observe(r.method, r.route, resp.StatusCode, started)
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		apiErr := decodeError(resp.StatusCode, resp.Status, raw)
		slog.Debug("backend error response", "method", r.method, "route", r.route, "status", resp.StatusCode, "err", apiErr.Message)
		if apiErr.Kind == KindAuth && !r.public && onUnauthorized != nil {
			onUnauthorized(ctx)
		}
		return nil, apiErr
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", r.route, err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, route, path string, query url.Values, payload, out any) error {
	r, err := jsonRequest(method, route, path, query, payload)
	if err != nil {
		return err
	}
	return c.do(ctx, r, out)
}

func (c *Client) doPublicJSON(ctx context.Context, method, route, path string, payload, out any) error {
	r, err := jsonRequest(method, route, path, nil, payload)
	if err != nil {
		return err
	}
	r.public = true
	return c.do(ctx, r, out)
}

func (c *Client) doMultipart(ctx context.Context, method, route, path string, form *Form, header http.Header, out any) error {
	body, contentType, err := form.encode()
	if err != nil {
		return fmt.Errorf("encode %s form: %w", route, err)
	}
	return c.do(ctx, request{
		method:      method,
		route:       route,
		path:        path,
		body:        body,
		contentType: contentType,
		header:      header,
	}, out)
}

func jsonRequest(method, route, path string, query url.Values, payload any) (request, error) {
	r := request{method: method, route: route, path: path, query: query}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return r, err
		}
		r.body = bytes.NewReader(data)
		r.contentType = "application/json"
	}
	return r, nil
}

func addAuthHeader(req *http.Request, token string) {
	if strings.TrimSpace(token) == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

func listQuery(p domain.ListParams) url.Values {
	p = p.Normalize()
	q := url.Values{}
	q.Set("page", strconv.Itoa(p.Page))
	q.Set("limit", strconv.Itoa(p.Limit))
	q.Set("sort_by", p.SortBy)
	q.Set("sort_order", p.SortOrder)
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	return q
}

// FormFile is a raw file attached to a multipart request.
type FormFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

type formField struct {
	name  string
	value string
}

type formFile struct {
	field string
	file  FormFile
}

// Form collects multipart fields and files in insertion order.
type Form struct {
	fields []formField
	files  []formFile
}

// NewForm returns an empty multipart form.
func NewForm() *Form {
	return &Form{}
}

// Set appends a field.
func (f *Form) Set(name, value string) *Form {
	f.fields = append(f.fields, formField{name: name, value: value})
	return f
}

// SetIfNotEmpty appends a field only when value is non-blank.
func (f *Form) SetIfNotEmpty(name, value string) *Form {
	if strings.TrimSpace(value) == "" {
		return f
	}
	return f.Set(name, value)
}

// AddFile appends a file part under field.
func (f *Form) AddFile(field string, file FormFile) *Form {
	f.files = append(f.files, formFile{field: field, file: file})
	return f
}

// Value returns the first value of the named field.
func (f *Form) Value(name string) (string, bool) {
	for _, fld := range f.fields {
		if fld.name == name {
			return fld.value, true
		}
	}
	return "", false
}

func (f *Form) encode() (io.Reader, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, fld := range f.fields {
		if err := writer.WriteField(fld.name, fld.value); err != nil {
			return nil, "", err
		}
	}
	for _, ff := range f.files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(ff.field), escapeQuotes(ff.file.Filename)))
		contentType := ff.file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)
		part, err := writer.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(ff.file.Data); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
