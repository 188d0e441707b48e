package cloud

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client constants.
const (
	// DefaultBaseURL is the production API root.
	DefaultBaseURL = "https://api.switch-bot.com"

	// apiVersion is the path segment prepended to every endpoint.
	apiVersion = "/v1.1"

	// defaultRequestTimeout bounds one HTTP round trip when Options.Timeout is zero.
	defaultRequestTimeout = 10 * time.Second

	// maxResponseSize caps the body read from the API (1MB).
	maxResponseSize = 1 << 20

	opStatus  = "status"
	opCommand = "command"
	opDevices = "devices"
)

// Credentials are the account token and signing secret.
type Credentials struct {
	Token  string
	Secret string
}

// Options configures a Client.
type Options struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	Credentials Credentials

	// Timeout bounds a single request. Default: 10s.
	Timeout time.Duration

	// HTTPClient overrides the transport (tests, proxies).
	HTTPClient *http.Client
}

// Client issues signed requests to the vendor cloud API.
//
// It holds no per-device state and never retries: retry and backoff
// policy belongs to the caller (the device coordinator).
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client

	creds   Credentials
	credsMu sync.RWMutex

	// Injected for deterministic signing in tests.
	now      func() time.Time
	newNonce func() string
}

// New creates a Client.
//
// Parameters:
//   - opts: Endpoint, credentials and transport options
//
// Returns:
//   - *Client: Ready to use; no request is made until the first call
//   - error: ErrInvalidArgument if credentials are missing or BaseURL is malformed
func New(opts Options) (*Client, error) {
	if opts.Credentials.Token == "" || opts.Credentials.Secret == "" {
		return nil, fmt.Errorf("%w: token and secret are required", ErrInvalidArgument)
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("%w: base url: %w", ErrInvalidArgument, err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		creds:      opts.Credentials,
		now:        time.Now,
		newNonce:   func() string { return uuid.NewString() },
	}, nil
}

// SetCredentials replaces the token and secret after re-authentication.
// Requests already in flight keep the credentials they were signed with.
func (c *Client) SetCredentials(creds Credentials) error {
	if creds.Token == "" || creds.Secret == "" {
		return fmt.Errorf("%w: token and secret are required", ErrInvalidArgument)
	}
	c.credsMu.Lock()
	c.creds = creds
	c.credsMu.Unlock()
	return nil
}

func (c *Client) credentials() Credentials {
	c.credsMu.RLock()
	defer c.credsMu.RUnlock()
	return c.creds
}

// FetchStatus reads the current status of one device.
//
// Parameters:
//   - ctx: Context for cancellation; the request timeout also applies
//   - deviceID: Cloud device identifier
//
// Returns:
//   - *Status: Freshly decoded snapshot, owned by the caller
//   - error: Wraps ErrNetwork, ErrAuth, ErrRateLimited, ErrDeviceOffline,
//     ErrDeviceNotFound or ErrVendor
func (c *Client) FetchStatus(ctx context.Context, deviceID string) (*Status, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device id is required", ErrInvalidArgument)
	}

	body, err := c.do(ctx, opStatus, deviceID, http.MethodGet, "/devices/"+url.PathEscape(deviceID)+"/status", nil)
	if err != nil {
		return nil, err
	}

	status, err := DecodeStatus(body)
	if err != nil {
		return nil, &APIError{Op: opStatus, DeviceID: deviceID, VendorCode: StatusSuccess, Message: err.Error(), kind: ErrNetwork}
	}
	if status.DeviceID == "" {
		status.DeviceID = deviceID
	}
	return status, nil
}

// SendCommand executes one command on a device.
//
// Parameters:
//   - ctx: Context for cancellation
//   - deviceID: Cloud device identifier
//   - cmd: Command built with TurnOn, TurnOff, SetBrightness, SetColorTemperature
//
// Returns:
//   - error: nil once the vendor accepted the command; otherwise wraps
//     ErrCommandRejected, ErrNetwork, ErrAuth or ErrRateLimited
func (c *Client) SendCommand(ctx context.Context, deviceID string, cmd Command) error {
	if deviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidArgument)
	}
	if cmd.Name == "" {
		return fmt.Errorf("%w: command name is required", ErrInvalidArgument)
	}

	_, err := c.do(ctx, opCommand, deviceID, http.MethodPost, "/devices/"+url.PathEscape(deviceID)+"/commands", cmd.withDefaults())
	return err
}

// ListDevices returns every physical device and infrared remote on the account.
func (c *Client) ListDevices(ctx context.Context) (*DeviceList, error) {
	body, err := c.do(ctx, opDevices, "", http.MethodGet, "/devices", nil)
	if err != nil {
		return nil, err
	}

	var list DeviceList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, &APIError{Op: opDevices, VendorCode: StatusSuccess, Message: "decoding device list: " + err.Error(), kind: ErrNetwork}
	}
	return &list, nil
}

// envelope is the wrapper around every API response body.
type envelope struct {
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Body       json.RawMessage `json:"body"`
}

// do performs one signed request and unwraps the envelope.
func (c *Client) do(ctx context.Context, op, deviceID, method, path string, payload any) (json.RawMessage, error) {
	fail := func(httpStatus, vendorCode int, msg string, kind error) error {
		return &APIError{Op: op, DeviceID: deviceID, HTTPStatus: httpStatus, VendorCode: vendorCode, Message: msg, kind: kind}
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding request: %w", ErrInvalidArgument, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiVersion+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrInvalidArgument, err)
	}
	c.signRequest(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Cancellation is the caller's decision, not a network failure
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fail(0, 0, err.Error(), ErrNetwork)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fail(resp.StatusCode, 0, "reading response: "+err.Error(), ErrNetwork)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fail(resp.StatusCode, 0, strings.TrimSpace(string(data)), classifyHTTP(resp.StatusCode))
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fail(resp.StatusCode, 0, "decoding envelope: "+err.Error(), ErrNetwork)
	}
	if env.StatusCode != StatusSuccess {
		return nil, fail(resp.StatusCode, env.StatusCode, env.Message, classifyVendor(op, env.StatusCode))
	}

	return env.Body, nil
}

// signRequest sets the authentication headers.
//
// sign = base64(HMAC-SHA256(secret, token + t + nonce)), t in milliseconds.
func (c *Client) signRequest(req *http.Request) {
	creds := c.credentials()
	t := strconv.FormatInt(c.now().UnixMilli(), 10)
	nonce := c.newNonce()

	req.Header.Set("Authorization", creds.Token)
	req.Header.Set("t", t)
	req.Header.Set("nonce", nonce)
	req.Header.Set("sign", Sign(creds.Secret, creds.Token, t, nonce))
}

// Sign computes the request signature for the given header values.
func Sign(secret, token, t, nonce string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(token + t + nonce))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ErrorCode returns a short machine-readable code for err, for acks and
// HTTP error bodies.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return "auth_failed"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrCommandRejected):
		return "command_rejected"
	case errors.Is(err, ErrDeviceOffline):
		return "device_offline"
	case errors.Is(err, ErrDeviceNotFound):
		return "device_not_found"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrNetwork):
		return "network_error"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
