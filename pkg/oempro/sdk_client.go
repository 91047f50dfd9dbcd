package oempro

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-resty/resty/v2"
)

// ResponseFormat is the serialization the API is asked to reply with.
type ResponseFormat string

const (
	ResponseFormatJSON ResponseFormat = "JSON"
	ResponseFormatXML  ResponseFormat = "XML"
)

const (
	// DefaultUserAgent is sent unless overridden with WithUserAgent or SetUserAgent.
	DefaultUserAgent = "Mozilla/5.0 (Windows; U; Windows NT 5.1; pt-BR; rv:1.9.0.7) Gecko/2009021910 Firefox/3.0.10Cookie"

	defaultTimeout             = 10 * time.Second
	defaultSubscriberIPAddress = "127.0.0.1"

	acceptLanguage  = "pt-br,pt;q=0.8,en-us;q=0.5,en;q=0.3"
	formContentType = "application/x-www-form-urlencoded; charset=UTF-8"
	sessionCookie   = "PHPSESSID"
)

// RequestObserver is notified once per command round trip.
type RequestObserver interface {
	ObserveRequest(command string, duration time.Duration, err error)
}

// Session is the authenticated session established by Login.
type Session struct {
	ID     string
	UserID int
}

// Client is the Oempro API client.
type Client struct {
	httpClient          *resty.Client
	baseHTTPClient      *http.Client
	timeout             time.Duration
	logger              logr.Logger
	observer            RequestObserver
	subscriberIPAddress string
	stripSlashes        bool

	mu             sync.RWMutex
	apiURL         string
	userAgent      string
	responseFormat ResponseFormat
	session        Session
	authenticated  bool
}

// ClientOption defines a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. The client is copied; its cookie
// jar is never used and WithTimeout takes precedence over its Timeout.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.baseHTTPClient = client
	}
}

// WithTimeout sets the timeout applied to every request.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithResponseFormat sets the response format. Invalid values are reported by NewSDK.
func WithResponseFormat(format ResponseFormat) ClientOption {
	return func(c *Client) {
		c.responseFormat = format
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger logr.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRequestObserver registers an observer for every command round trip.
func WithRequestObserver(observer RequestObserver) ClientOption {
	return func(c *Client) {
		c.observer = observer
	}
}

// WithSubscriberIPAddress sets the IP address reported to Subscriber.Subscribe
// when a SubscribeRequest does not carry one.
func WithSubscriberIPAddress(ip string) ClientOption {
	return func(c *Client) {
		c.subscriberIPAddress = ip
	}
}

// WithStripSlashes removes one level of backslash escaping from every
// parameter before it is sent. Only needed for byte compatibility with
// callers that feed pre-escaped input.
func WithStripSlashes() ClientOption {
	return func(c *Client) {
		c.stripSlashes = true
	}
}

// NewSDK creates a new Oempro API client.
func NewSDK(apiURL string, opts ...ClientOption) (*Client, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("%w: api url is required", ErrInvalidArgument)
	}

	c := &Client{
		logger:              logr.Discard(),
		subscriberIPAddress: defaultSubscriberIPAddress,
		apiURL:              apiURL,
		userAgent:           DefaultUserAgent,
		responseFormat:      ResponseFormatJSON,
	}

	for _, opt := range opts {
		opt(c)
	}
	c.httpClient = newRestyClient(c.baseHTTPClient, c.timeout)

	if err := validateResponseFormat(c.responseFormat); err != nil {
		return nil, err
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}

	return c, nil
}

// newRestyClient builds the transport once every option has been applied, so
// option order does not matter. The session travels only in the explicit
// PHPSESSID header, hence the jar is always dropped.
func newRestyClient(base *http.Client, timeout time.Duration) *resty.Client {
	var rc *resty.Client
	if base != nil {
		hc := *base
		rc = resty.NewWithClient(&hc)
		if timeout == 0 {
			timeout = hc.Timeout
		}
	} else {
		rc = resty.New()
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return rc.SetTimeout(timeout).SetCookieJar(nil)
}

func validateResponseFormat(format ResponseFormat) error {
	if format != ResponseFormatJSON && format != ResponseFormatXML {
		return fmt.Errorf("%w: response format must be %s or %s, got %q",
			ErrInvalidArgument, ResponseFormatJSON, ResponseFormatXML, format)
	}
	return nil
}

// SetAPIURL sets the Oempro API URL used for all requests.
func (c *Client) SetAPIURL(apiURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiURL = apiURL
}

// SetUserAgent sets the User-Agent header sent with every request.
func (c *Client) SetUserAgent(userAgent string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userAgent = userAgent
}

// SetResponseFormat sets the preferred response format, which must be JSON or XML.
// The client is left untouched when the format is rejected.
//
// XML is accepted as a setting but replies cannot be decoded from it, so every
// command fails with ErrUnsupportedResponseFormat while it is selected.
func (c *Client) SetResponseFormat(format ResponseFormat) error {
	if err := validateResponseFormat(format); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseFormat = format
	return nil
}

// ResponseFormat returns the configured response format.
func (c *Client) ResponseFormat() ResponseFormat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.responseFormat
}

// Session returns the current session and whether the client is logged in.
func (c *Client) Session() (Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session, c.authenticated
}

func (c *Client) setSession(s Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	c.authenticated = true
}

func (c *Client) checkLogin() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.authenticated {
		return ErrUnauthenticated
	}
	return nil
}

// call issues an authenticated command and maps an unsuccessful reply to *Error.
func (c *Client) call(ctx context.Context, command string, params url.Values, out response) error {
	if err := c.checkLogin(); err != nil {
		return err
	}
	return c.do(ctx, command, params, out)
}

func (c *Client) do(ctx context.Context, command string, params url.Values, out response) (err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveRequest(command, time.Since(start), err)
		}
	}()

	if err := c.sendRequest(ctx, command, params, out); err != nil {
		return err
	}
	if !out.succeeded() {
		return newError(command, out.codes())
	}
	return nil
}

type requestSettings struct {
	apiURL         string
	userAgent      string
	responseFormat ResponseFormat
	sessionID      string
	authenticated  bool
}

func (c *Client) settings() requestSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return requestSettings{
		apiURL:         c.apiURL,
		userAgent:      c.userAgent,
		responseFormat: c.responseFormat,
		sessionID:      c.session.ID,
		authenticated:  c.authenticated,
	}
}

func (c *Client) sendRequest(ctx context.Context, command string, params url.Values, out any) error {
	s := c.settings()
	if s.apiURL == "" {
		return ErrMissingAPIURL
	}
	if s.responseFormat != ResponseFormatJSON {
		return fmt.Errorf("%w: %s replies cannot be decoded", ErrUnsupportedResponseFormat, s.responseFormat)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("Command", command)
	params.Set("ResponseFormat", string(s.responseFormat))
	if s.authenticated {
		params.Set("SessionID", s.sessionID)
	}
	if c.stripSlashes {
		params = stripSlashesValues(params)
	}

	log := c.logger.WithValues("command", command)
	start := time.Now()

	log.V(1).Info("Sending request", "url", s.apiURL)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("User-Agent", s.userAgent).
		SetHeader("Accept-Language", acceptLanguage).
		SetHeader("Cookie", fmt.Sprintf("%s=%s", sessionCookie, s.sessionID)).
		SetHeader("Content-Type", formContentType).
		SetBody(params.Encode()).
		Post(s.apiURL)
	if err != nil {
		return &TransportError{Command: command, Err: fmt.Errorf("failed to execute request: %w", err)}
	}

	if resp.IsError() {
		return &TransportError{
			Command:    command,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("unexpected response: %s", string(resp.Body())),
		}
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &TransportError{
			Command:    command,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("failed to decode response: %w", err),
		}
	}

	log.V(1).Info("Received response", "status", resp.StatusCode(), "duration", time.Since(start))
	return nil
}
