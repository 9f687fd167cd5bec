package resource

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
	"strings"

	"github.com/bartossh/Rampart/httpclient"
)

const idField = "_id"

var (
	ErrEncodeFailed = errors.New("payload encoding failed")
	ErrDecodeFailed = errors.New("response decoding failed")
)

// Identifier constrains identifiers of the collection elements.
type Identifier interface {
	~string | ~int | ~int64 | ~uint64
}

// Client performs the common REST operations on the collection {base}/api/{name}.
// Every call is dispatched exactly once, there is no retry and no caching.
type Client[T any, ID Identifier] struct {
	doer     httpclient.Doer
	endpoint string
}

// New creates Client for the named collection.
func New[T any, ID Identifier](doer httpclient.Doer, baseURL, name string) *Client[T, ID] {
	return &Client[T, ID]{
		doer:     doer,
		endpoint: fmt.Sprintf("%s/api/%s", strings.TrimRight(baseURL, "/"), name),
	}
}

// Endpoint returns the collection URL.
func (c *Client[T, ID]) Endpoint() string {
	return c.endpoint
}

// List returns a page of the collection. Pagination query is added only when pagination is given.
func (c *Client[T, ID]) List(ctx context.Context, pagination *PageMeta) (Page[T], error) {
	q := url.Values{}
	if pagination != nil {
		pagination.apply(q)
	}
	var p Page[T]
	err := c.Send(ctx, http.MethodGet, "", q, nil, &p)
	return p, err
}

// GetByID returns single element.
func (c *Client[T, ID]) GetByID(ctx context.Context, id ID) (T, error) {
	var v T
	err := c.Send(ctx, http.MethodGet, idPath(id), nil, nil, &v)
	return v, err
}

// GetByName returns page of elements filtered by name.
func (c *Client[T, ID]) GetByName(ctx context.Context, name string, pagination *PageMeta) (Page[T], error) {
	q := url.Values{"name": {name}}
	if pagination != nil {
		pagination.apply(q)
	}
	var p Page[T]
	err := c.Send(ctx, http.MethodGet, "", q, nil, &p)
	return p, err
}

// Save creates the element. The _id field is never sent.
func (c *Client[T, ID]) Save(ctx context.Context, data T) (T, error) {
	var v T
	body, err := stripID(data)
	if err != nil {
		return v, err
	}
	err = c.Send(ctx, http.MethodPost, "", nil, body, &v)
	return v, err
}

// Update replaces the element.
func (c *Client[T, ID]) Update(ctx context.Context, id ID, data T) (T, error) {
	var v T
	err := c.Send(ctx, http.MethodPut, idPath(id), nil, data, &v)
	return v, err
}

// Patch partially updates the element with the fields present in partial.
func (c *Client[T, ID]) Patch(ctx context.Context, id ID, partial any) (T, error) {
	var v T
	err := c.Send(ctx, http.MethodPatch, idPath(id), nil, partial, &v)
	return v, err
}

// RemoveByID deletes the element.
func (c *Client[T, ID]) RemoveByID(ctx context.Context, id ID) error {
	return c.Send(ctx, http.MethodDelete, idPath(id), nil, nil, nil)
}

// Send dispatches a request to the endpoint extended with path.
// body is JSON encoded unless it already is a []byte, out receives the decoded response when not nil.
func (c *Client[T, ID]) Send(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var raw []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		raw = b
	case json.RawMessage:
		raw = b
	default:
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return errors.Join(ErrEncodeFailed, err)
		}
	}
	req := httpclient.NewRequest(method, c.endpoint+path, raw)
	if len(query) > 0 {
		req.Query = query
	}
	return c.do(ctx, req, out)
}

// SendMultipart posts a multipart form with a single file field.
func (c *Client[T, ID]) SendMultipart(ctx context.Context, path, field, fileName string, r io.Reader, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, fileName)
	if err != nil {
		return errors.Join(ErrEncodeFailed, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return errors.Join(ErrEncodeFailed, err)
	}
	if err := w.Close(); err != nil {
		return errors.Join(ErrEncodeFailed, err)
	}
	req := httpclient.NewRequest(http.MethodPost, c.endpoint+path, buf.Bytes())
	req.Multipart = true
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(ctx, req, out)
}

// Download streams the raw response body of a GET in to w.
func (c *Client[T, ID]) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	resp, err := c.doer.Do(ctx, httpclient.NewRequest(http.MethodGet, c.endpoint+path, nil))
	if err != nil {
		return 0, err
	}
	n, err := w.Write(resp.Body)
	return int64(n), err
}

func (c *Client[T, ID]) do(ctx context.Context, req *httpclient.Request, out any) error {
	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := resp.Decode(out); err != nil {
		return errors.Join(ErrDecodeFailed, err)
	}
	return nil
}

func idPath[ID Identifier](id ID) string {
	return "/" + url.PathEscape(fmt.Sprint(id))
}

func stripID(data any) (json.RawMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Join(ErrEncodeFailed, err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		// not an object, nothing to strip
		return raw, nil
	}
	delete(m, idField)
	out, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Join(ErrEncodeFailed, err)
	}
	return out, nil
}
