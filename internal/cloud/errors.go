package cloud

import (
	"errors"
	"fmt"
)

// Sentinel errors for cloud API operations.
//
// Every error returned by Client wraps exactly one of these, so callers
// classify failures with errors.Is:
//
//	if errors.Is(err, cloud.ErrRateLimited) {
//	    // widen the polling interval
//	}
var (
	// ErrNetwork is a transient transport failure: connection errors, timeouts,
	// 5xx responses, malformed envelopes and vendor internal errors.
	ErrNetwork = errors.New("cloud: network error")

	// ErrAuth means the token/secret pair was refused. It stays fatal until
	// credentials are replaced.
	ErrAuth = errors.New("cloud: authentication failed")

	// ErrRateLimited means the account exceeded its request quota.
	ErrRateLimited = errors.New("cloud: rate limited")

	// ErrCommandRejected is a vendor-reported refusal of a command.
	// Commands are never retried automatically.
	ErrCommandRejected = errors.New("cloud: command rejected")

	// ErrDeviceOffline means the device or its hub is unreachable from the cloud.
	ErrDeviceOffline = errors.New("cloud: device offline")

	// ErrDeviceNotFound means the account has no device with the requested ID.
	ErrDeviceNotFound = errors.New("cloud: device not found")

	// ErrVendor is any other non-success vendor status on a read.
	ErrVendor = errors.New("cloud: vendor error")

	// ErrInvalidArgument is returned for requests rejected before any network call.
	ErrInvalidArgument = errors.New("cloud: invalid argument")
)

// Vendor status codes carried in the response envelope.
const (
	StatusSuccess         = 100
	StatusDeviceTypeError = 151
	StatusDeviceNotFound  = 152
	StatusNotSupported    = 160
	StatusDeviceOffline   = 161
	StatusHubOffline      = 171
	StatusDeviceInternal  = 190
	statusUnknownEnvelope = 0
)

// APIError describes a failed request in detail. It unwraps to one of the
// sentinel errors above.
type APIError struct {
	// Op is the operation that failed ("status", "command", "devices").
	Op string

	// DeviceID is empty for account-level operations.
	DeviceID string

	// HTTPStatus is the HTTP response code, or 0 if no response was received.
	HTTPStatus int

	// VendorCode is the envelope statusCode, or 0 if the envelope was not read.
	VendorCode int

	// Message is the vendor message or transport error text.
	Message string

	kind error
}

// Error implements error.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.kind, e.Op)
	if e.DeviceID != "" {
		msg += " " + e.DeviceID
	}
	if e.HTTPStatus != 0 {
		msg += fmt.Sprintf(" (http %d)", e.HTTPStatus)
	}
	if e.VendorCode != statusUnknownEnvelope {
		msg += fmt.Sprintf(" (vendor %d)", e.VendorCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Unwrap returns the sentinel classifying this error.
func (e *APIError) Unwrap() error {
	return e.kind
}

// IsTransient reports whether err is worth retrying later with backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrDeviceOffline)
}

// classifyHTTP maps a non-200 HTTP status to a sentinel.
func classifyHTTP(status int) error {
	switch {
	case status == 401 || status == 403:
		return ErrAuth
	case status == 429:
		return ErrRateLimited
	default:
		return ErrNetwork
	}
}

// classifyVendor maps a non-success envelope status for the given operation.
func classifyVendor(op string, code int) error {
	if op == opCommand {
		return ErrCommandRejected
	}
	switch code {
	case StatusDeviceOffline, StatusHubOffline:
		return ErrDeviceOffline
	case StatusDeviceNotFound:
		return ErrDeviceNotFound
	case StatusDeviceInternal:
		return ErrNetwork
	default:
		return ErrVendor
	}
}
