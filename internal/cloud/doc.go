// Package cloud is the client for the vendor's device cloud API (v1.1).
//
// The client signs every request with the account token and secret, unwraps
// the {statusCode, message, body} response envelope and classifies failures
// into a small set of sentinel errors:
//
//	status, err := client.FetchStatus(ctx, "6055F92FCFD2")
//	switch {
//	case errors.Is(err, cloud.ErrAuth):
//	    // credentials must be replaced
//	case cloud.IsTransient(err):
//	    // poll again later with backoff
//	}
//
// Status snapshots are decoded once, at fetch time, into the typed Status
// struct. Nothing downstream touches raw JSON.
//
// The client performs no retries and keeps no per-device state; scheduling,
// backoff and caching are owned by package coordinator.
package cloud
