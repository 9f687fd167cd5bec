package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

const (
	defaultTimeout = 5 * time.Second
	requestIDKey   = "X-Request-ID"
	jsonContent    = "application/json"
)

var (
	ErrTransport           = errors.New("transport failure")
	ErrContentTypeMismatch = errors.New("content type mismatch")
	ErrStatusCodeMismatch  = errors.New("status code mismatch")
	ErrNotFound            = errors.New("resource not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
)

// Config configures the http transport.
type Config struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Request is a transport independent description of a single http call.
type Request struct {
	Method    string
	URL       string
	Query     url.Values
	Header    http.Header
	Body      []byte
	Multipart bool
}

// NewRequest creates request with empty header.
func NewRequest(method, rawURL string, body []byte) *Request {
	return &Request{Method: method, URL: rawURL, Header: http.Header{}, Body: body}
}

// Clone returns a deep copy of the request so it may be modified and dispatched again.
func (r *Request) Clone() *Request {
	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = http.Header{}
	}
	if r.Query != nil {
		c.Query = make(url.Values, len(r.Query))
		for k, v := range r.Query {
			c.Query[k] = append([]string(nil), v...)
		}
	}
	c.Body = append([]byte(nil), r.Body...)
	return &c
}

// FullURL returns URL with the encoded query appended.
func (r *Request) FullURL() string {
	if len(r.Query) == 0 {
		return r.URL
	}
	sep := "?"
	if strings.Contains(r.URL, "?") {
		sep = "&"
	}
	return r.URL + sep + r.Query.Encode()
}

// Response is a fully read http response.
type Response struct {
	StatusCode  int
	Header      http.Header
	ContentType string
	Body        []byte
}

// Decode unmarshals JSON body in to v. Empty bodies are ignored.
func (r *Response) Decode(v any) error {
	if v == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if !strings.HasPrefix(r.ContentType, jsonContent) {
		return errors.Join(
			ErrContentTypeMismatch,
			fmt.Errorf("expected content type %s but got %q", jsonContent, r.ContentType))
	}
	return json.Unmarshal(r.Body, v)
}

// Doer dispatches a request.
// Non 2xx responses are returned together with *StatusError.
type Doer interface {
	Do(ctx context.Context, r *Request) (*Response, error)
}

// DoerFunc adapts a function to the Doer interface.
type DoerFunc func(ctx context.Context, r *Request) (*Response, error)

func (f DoerFunc) Do(ctx context.Context, r *Request) (*Response, error) {
	return f(ctx, r)
}

// Client is a fasthttp backed Doer.
type Client struct {
	client  *fasthttp.Client
	timeout time.Duration
}

// New creates a new Client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		client: &fasthttp.Client{
			Name:                "rampart",
			MaxIdleConnDuration: time.Minute,
		},
		timeout: timeout,
	}
}

// Do performs the request with the deadline being the earlier of the configured timeout and the context deadline.
// Cancelling ctx abandons a request in flight.
func (c *Client) Do(ctx context.Context, r *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	req.SetRequestURI(r.FullURL())
	req.Header.SetMethod(r.Method)
	for k, vs := range r.Header {
		for i, v := range vs {
			if i == 0 {
				req.Header.Set(k, v)
				continue
			}
			req.Header.Add(k, v)
		}
	}
	if len(req.Header.Peek(requestIDKey)) == 0 {
		req.Header.Set(requestIDKey, uuid.NewString())
	}
	if len(r.Body) > 0 {
		req.SetBody(r.Body)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	type result struct {
		out *Response
		err error
	}
	done := make(chan result, 1)
	go func() {
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseResponse(resp)
		defer fasthttp.ReleaseRequest(req)
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			done <- result{err: err}
			return
		}
		done <- result{out: readResponse(resp)}
	}()

	var res result
	select {
	case <-ctx.Done():
		return nil, errors.Join(ErrTransport, fmt.Errorf("%s %s: %w", r.Method, r.URL, ctx.Err()))
	case res = <-done:
	}
	if res.err != nil {
		return nil, errors.Join(ErrTransport, fmt.Errorf("%s %s: %w", r.Method, r.URL, res.err))
	}

	out := res.out
	if out.StatusCode < fasthttp.StatusOK || out.StatusCode >= fasthttp.StatusMultipleChoices {
		return out, NewStatusError(r, out)
	}
	return out, nil
}

func readResponse(resp *fasthttp.Response) *Response {
	out := &Response{
		StatusCode:  resp.StatusCode(),
		Header:      http.Header{},
		ContentType: string(resp.Header.ContentType()),
		Body:        append([]byte(nil), resp.Body()...),
	}
	resp.Header.VisitAll(func(key, value []byte) {
		out.Header.Add(string(key), string(value))
	})
	return out
}
