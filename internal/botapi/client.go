// Package botapi is a client for the HTTP API the PleasantBot process exposes.
package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultPort is the port the bot API listens on, on the dashboard's own host.
const DefaultPort = 8080

const (
	defaultTimeout   = 10 * time.Second
	maxErrorBodySize = 4 << 10
)

// Endpoint names, also used as metric labels.
const (
	EndpointGetCommands   = "getcoms"
	EndpointAddCommand    = "addcom"
	EndpointDeleteCommand = "delcom"
	EndpointGetQuotes     = "getquotes"
	EndpointBanHistory    = "getbanhistory"
	EndpointStats         = "getstats"
	EndpointCheckAuth     = "checkauth"
	EndpointAddOAuth      = "addoauth"
)

var ErrEmptyName = errors.New("command name is required")

// StatusError is returned when the bot answers with a non-2xx status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Observer is notified after every request. err is nil on success.
type Observer interface {
	ObserveRequest(endpoint string, d time.Duration, err error)
}

// Client talks to a single bot API base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	observer   Observer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithObserver attaches a request observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// New creates a client for baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the base URL the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HostName strips any port and IPv6 brackets from a Host header value and
// lowercases the rest. An empty host is localhost.
func HostName(host string) string {
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	hostname = strings.ToLower(strings.Trim(hostname, "[]"))
	if hostname == "" {
		hostname = "localhost"
	}
	return hostname
}

// BaseURLForHost builds the bot API URL for a page served from host.
// Any port on host is dropped: the bot always listens on DefaultPort.
func BaseURLForHost(host string) string {
	return "http://" + net.JoinHostPort(HostName(host), strconv.Itoa(DefaultPort))
}

// Commands fetches every custom command keyed by name.
func (c *Client) Commands(ctx context.Context) (map[string]Command, error) {
	var raw map[string]Command
	if err := c.do(ctx, http.MethodGet, EndpointGetCommands, nil, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]Command, len(raw))
	for name, com := range raw {
		com.Name = name
		out[name] = com
	}
	return out, nil
}

// AddCommand creates or replaces a command.
func (c *Client) AddCommand(ctx context.Context, com Command) error {
	if strings.TrimSpace(com.Name) == "" {
		return ErrEmptyName
	}
	perm := com.Perm
	if perm == "" {
		perm = PermAll
	}
	perm, err := ParsePermission(string(perm))
	if err != nil {
		return err
	}
	body := AddCommandRequest{CommandName: com.Name, Response: com.Response, Perm: perm}
	return c.do(ctx, http.MethodPost, EndpointAddCommand, body, nil)
}

// DeleteCommands removes the named commands.
func (c *Client) DeleteCommands(ctx context.Context, names []string) error {
	if names == nil {
		names = []string{}
	}
	return c.do(ctx, http.MethodPost, EndpointDeleteCommand, names, nil)
}

// Quotes fetches every quote keyed by id.
func (c *Client) Quotes(ctx context.Context) (map[int]Quote, error) {
	var raw map[string]Quote
	if err := c.do(ctx, http.MethodGet, EndpointGetQuotes, nil, &raw); err != nil {
		return nil, err
	}
	out := make(map[int]Quote, len(raw))
	for key, q := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%s: quote id %q: %w", EndpointGetQuotes, key, err)
		}
		q.ID = id
		out[id] = q
	}
	return out, nil
}

// BanHistory fetches the ban log, newest first as the bot orders it.
func (c *Client) BanHistory(ctx context.Context) ([]BanRecord, error) {
	var bans []BanRecord
	if err := c.do(ctx, http.MethodGet, EndpointBanHistory, nil, &bans); err != nil {
		return nil, err
	}
	if bans == nil {
		bans = []BanRecord{}
	}
	return bans, nil
}

// Stats fetches the aggregate counters.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := c.do(ctx, http.MethodGet, EndpointStats, nil, &s)
	return s, err
}

// CheckAuth reports whether the bot holds a usable OAuth token.
func (c *Client) CheckAuth(ctx context.Context) (bool, error) {
	var ok bool
	err := c.do(ctx, http.MethodGet, EndpointCheckAuth, nil, &ok)
	return ok, err
}

// AddOAuth hands a freshly issued access token to the bot.
func (c *Client) AddOAuth(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, EndpointAddOAuth, token, nil)
}

// Ping succeeds when the bot API answers /checkauth.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.CheckAuth(ctx)
	return err
}

// SortedNames returns command names in ascending order.
func SortedNames(coms map[string]Command) []string {
	names := make([]string, 0, len(coms))
	for name := range coms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out interface{}) (err error) {
	start := time.Now()
	if c.observer != nil {
		defer func() { c.observer.ObserveRequest(endpoint, time.Since(start), err) }()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encoding body: %w", endpoint, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+endpoint, body)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", endpoint, err)
	}
	return nil
}
