// Package api is the REST transport for a Firebase-style realtime database.
// Each database location is addressed as "<base>/<path>.json" and written
// with PUT, PATCH and POST, read with GET, and observed as a server-sent
// event stream.
//
// # Retry Behavior
//
// Requests are retried with exponential backoff and jitter, up to 3 times by
// default, for these HTTP status codes:
//
//   - 408 Request Timeout
//   - 429 Too Many Requests
//   - 500 Internal Server Error
//   - 502 Bad Gateway
//   - 503 Service Unavailable
//   - 504 Gateway Timeout
//
// POST creates a new child on every call and is retried only on 429 and
// 503, never after a transport failure.
//
// # Error Handling
//
//   - [ErrUnauthorized]: 401 or 403, usually a rules violation.
//   - [ErrNotFound]: the location holds no value.
//   - [ErrRateLimited]: 429.
//
// Use errors.Is to check for them. Transport failures are [NetworkError].
//
// # Thread Safety
//
// The [Client] type is safe for concurrent use.
package api
