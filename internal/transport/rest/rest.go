// Package rest provides the restful_http transport. Reads are GET requests
// carrying the relation payload as JSON in the query parameter, writes are
// form encoded POST (new records) or PUT (persisted records) requests and
// deletes are DELETE requests on the member url.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/perry-go/perry/internal/adapter"
	"github.com/perry-go/perry/internal/orm/ormerr"
)

// TypeName is the adapter type the transport registers under
const TypeName = "restful_http"

// ExtraHTTPClient is the adapter Extra key holding an *http.Client to use
const ExtraHTTPClient = "http_client"

// nilKeyMessage is the base error of writes that could not build a member url
const nilKeyMessage = "(restful_http) request not sent because primary key value was nil"

var nonWord = regexp.MustCompile(`\W`)

func init() {
	adapter.Register(TypeName, New)
}

// Transport talks to a REST service
type Transport struct {
	config adapter.Config
	client *http.Client
}

// New creates a transport from the folded adapter configuration
func New(cfg adapter.Config) (adapter.Transport, error) {
	if cfg.Host == "" {
		return nil, ormerr.NewConfigurationError(TypeName, "host is required")
	}
	if cfg.Service == "" {
		return nil, ormerr.NewConfigurationError(TypeName, "service is required")
	}

	client := &http.Client{Timeout: cfg.Timeout}
	if v, ok := cfg.Extra[ExtraHTTPClient]; ok {
		c, ok := v.(*http.Client)
		if !ok {
			return nil, fmt.Errorf("%s must be an *http.Client, got %T", ExtraHTTPClient, v)
		}
		client = c
	}
	return &Transport{config: cfg, client: client}, nil
}

// Read implements adapter.Transport
func (t *Transport) Read(ctx context.Context, req *adapter.Request) ([]adapter.Row, error) {
	if req.Relation == nil {
		return nil, fmt.Errorf("rest transport: read request without a relation")
	}
	payload, err := req.Relation.ToHash(ctx)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(payload.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	u, err := t.collectionURL()
	if err != nil {
		return nil, err
	}
	q := valuesOf(t.config.DefaultOptions)
	q.Set("query", string(encoded))
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u.Redacted(), err)
	}
	if !successful(resp.StatusCode) {
		return nil, fmt.Errorf("%w: GET %s returned %d", ormerr.ErrTransport, u.Redacted(), resp.StatusCode)
	}
	return decodeRows(body)
}

// Write implements adapter.Transport
func (t *Transport) Write(ctx context.Context, req *adapter.Request) (*adapter.Response, error) {
	rec := req.Record
	if rec == nil {
		return nil, fmt.Errorf("rest transport: write request without a record")
	}

	method := http.MethodPut
	if rec.IsNew() {
		method = http.MethodPost
	}
	u, ok, err := t.recordURL(rec.IsNew(), rec.Get(t.primaryKey(rec.PrimaryKey())))
	if err != nil {
		return nil, err
	}
	if !ok {
		return keyError(), nil
	}

	form := t.formValues(rec.Attributes())
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return t.do(httpReq)
}

// Delete implements adapter.Transport. DELETE has no body, so default
// options travel on the query string.
func (t *Transport) Delete(ctx context.Context, req *adapter.Request) (*adapter.Response, error) {
	rec := req.Record
	if rec == nil {
		return nil, fmt.Errorf("rest transport: delete request without a record")
	}

	u, ok, err := t.recordURL(false, rec.Get(t.primaryKey(rec.PrimaryKey())))
	if err != nil {
		return nil, err
	}
	if !ok {
		return keyError(), nil
	}
	u.RawQuery = valuesOf(t.config.DefaultOptions).Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return t.do(httpReq)
}

func (t *Transport) do(httpReq *http.Request) (*adapter.Response, error) {
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", httpReq.Method, httpReq.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", httpReq.Method, httpReq.URL.Redacted(), err)
	}

	return &adapter.Response{
		Success: successful(resp.StatusCode),
		Status:  resp.StatusCode,
		Meta:    headers(resp.Header),
		Raw:     body,
		Format:  nonWord.ReplaceAllString(t.config.Format, ""),
	}, nil
}

func (t *Transport) primaryKey(fallback string) string {
	if t.config.PrimaryKey != "" {
		return t.config.PrimaryKey
	}
	return fallback
}

// collectionURL is <host>/<service><format>
func (t *Transport) collectionURL() (*url.URL, error) {
	return t.parse(strings.TrimSuffix(t.config.Host, "/") + "/" + t.config.Service + t.config.Format)
}

// recordURL is the collection url for new records and
// <host>/<service>/<id><format> otherwise. It reports false when a member
// url is needed but the key is nil.
func (t *Transport) recordURL(isNew bool, id interface{}) (*url.URL, bool, error) {
	if isNew {
		u, err := t.collectionURL()
		return u, true, err
	}
	if id == nil {
		return nil, false, nil
	}
	u, err := t.parse(strings.TrimSuffix(t.config.Host, "/") + "/" + t.config.Service + "/" +
		url.PathEscape(fmt.Sprint(id)) + t.config.Format)
	return u, true, err
}

func (t *Transport) parse(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, ormerr.NewConfigurationError(TypeName, fmt.Sprintf("invalid url %q: %v", raw, err))
	}
	return u, nil
}

// formValues encodes the record's attributes. With a post body wrapper the
// default options are sent alongside wrapper[field] entries.
func (t *Transport) formValues(attrs map[string]interface{}) url.Values {
	wrapper := t.config.PostBodyWrapper
	if wrapper == "" {
		return valuesOf(attrs)
	}

	form := valuesOf(t.config.DefaultOptions)
	for field, value := range attrs {
		form.Set(wrapper+"["+field+"]", formString(value))
	}
	return form
}

func valuesOf(m map[string]interface{}) url.Values {
	v := url.Values{}
	for key, value := range m {
		v.Set(key, formString(value))
	}
	return v
}

func formString(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func keyError() *adapter.Response {
	return adapter.NewParsedResponse(false, map[string]interface{}{"base": nilKeyMessage})
}

func successful(status int) bool {
	return status >= 200 && status < 400
}

// headers flattens single valued headers to strings
func headers(h http.Header) map[string]interface{} {
	out := make(map[string]interface{}, len(h))
	for k, values := range h {
		if len(values) == 1 {
			out[strings.ToLower(k)] = values[0]
		} else {
			out[strings.ToLower(k)] = append([]string(nil), values...)
		}
	}
	return out
}

// decodeRows accepts a JSON array of objects or an object wrapping one,
// e.g. {"people": [...]}
func decodeRows(body []byte) ([]adapter.Row, error) {
	var rows []adapter.Row
	if err := json.Unmarshal(body, &rows); err == nil {
		return rows, nil
	}

	var wrapped map[string][]adapter.Row
	if err := json.Unmarshal(body, &wrapped); err != nil || len(wrapped) != 1 {
		return nil, fmt.Errorf("%w: response is not a list of records", ormerr.ErrTransport)
	}
	for _, inner := range wrapped {
		return inner, nil
	}
	return nil, nil
}
