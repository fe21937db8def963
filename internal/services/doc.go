// Package services defines the [Source] interface for a remote media server API and implements it for Tautulli.
//
// # Source Interface
//
// The sync engine only depends on [Source], so tests can substitute an in-memory fake or an
// httptest server speaking the same protocol.
//
// # Tautulli Implementation
//
// [TautulliService] calls the v2 API: GET {base}/api/v2?apikey=...&cmd=...
//
// Every request sends Cache-Control: no-cache and Pragma: no-cache, and library listings
// pass refresh=true on their first page so the server rebuilds its cached listing.
// Requests are paced by a token bucket ([rate.Limiter]) sized from requests_per_second.
//
// # Pagination
//
// [TautulliService.FetchCollection] streams pages to a visitor. A page shorter than the
// requested size, an empty page, or reaching the reported total ends the fetch.
// The max_pages guard returns [ErrPageLimit] instead of looping forever on a server that
// ignores start offsets.
//
// # Error Handling
//
// Failures are classified once, at the HTTP boundary:
//   - [RetryableFetchError] : timeouts, connection errors, 5xx, 429
//   - [FatalFetchError] with [FatalAuth] : 401, 403, or an api key rejection in the envelope
//   - [FatalFetchError] with [FatalShape] : the body is not the expected JSON shape
//   - [FatalFetchError] with [FatalRemote] : the envelope reported result "error"
//   - [FatalFetchError] with [FatalExhausted] : retries ran out
//
// Retryable errors are retried with exponential backoff (cenkalti/backoff). Each request
// has its own retry cap, and all requests of one collection fetch draw from a shared sleep budget.
//
// # API Mappings
//
// Numeric fields arrive as numbers, numeric strings, "" or null; they decode through
// flexInt and flexString before conversion to [models.MediaItem], [models.User] and
// [models.PlayHistory]. Records are not validated here.
package services
