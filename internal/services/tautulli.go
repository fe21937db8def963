// Tautulli API v2 [Source] implementation
//
// Every call is a GET against {base}/api/v2 with the apikey and cmd query parameters.
// Responses are wrapped in {"response": {"result", "message", "data"}}.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/tautsync/internal/models"
	"github.com/desertthunder/tautsync/internal/shared"
)

const (
	defaultPageSize        = 100
	defaultMaxPages        = 1000
	defaultMaxRetries      = 5
	defaultRetryBudget     = 2 * time.Minute
	defaultInitialInterval = 500 * time.Millisecond
	maxRetryInterval       = 30 * time.Second
	maxBodyBytes           = 64 << 20
)

// TautulliOpts configures a [TautulliService]. Zero values take defaults.
type TautulliOpts struct {
	BaseURL           string
	APIKey            string
	HTTPClient        *http.Client
	PageSize          int
	MaxPages          int
	RequestsPerSecond float64       // <= 0 disables rate limiting
	MaxRetries        int           // < 0 disables retries
	RetryBudget       time.Duration // total backoff sleep allowed per collection fetch
	InitialInterval   time.Duration // first backoff wait
	Logger            *log.Logger
}

// TautulliService implements [Source] against a Tautulli server.
type TautulliService struct {
	baseURL         string
	apiKey          string
	httpClient      *http.Client
	limiter         *rate.Limiter
	pageSize        int
	maxPages        int
	maxRetries      int
	retryBudget     time.Duration
	initialInterval time.Duration
	logger          *log.Logger
}

// NewTautulliService creates a new Tautulli client.
func NewTautulliService(opts TautulliOpts) (*TautulliService, error) {
	if opts.BaseURL == "" || opts.APIKey == "" {
		return nil, fmt.Errorf("%w: tautulli url and api key are required", shared.ErrMissingCredentials)
	}

	u, err := url.Parse(opts.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: tautulli url %q", shared.ErrInvalidConfig, opts.BaseURL)
	}
	base := strings.TrimSuffix(strings.TrimRight(opts.BaseURL, "/"), "/api/v2")

	s := &TautulliService{
		baseURL:         base,
		apiKey:          opts.APIKey,
		httpClient:      opts.HTTPClient,
		limiter:         rate.NewLimiter(rate.Inf, 1),
		pageSize:        opts.PageSize,
		maxPages:        opts.MaxPages,
		maxRetries:      opts.MaxRetries,
		retryBudget:     opts.RetryBudget,
		initialInterval: opts.InitialInterval,
		logger:          opts.Logger,
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	if s.pageSize <= 0 {
		s.pageSize = defaultPageSize
	}
	if s.maxPages <= 0 {
		s.maxPages = defaultMaxPages
	}
	if s.maxRetries == 0 {
		s.maxRetries = defaultMaxRetries
	}
	if s.retryBudget <= 0 {
		s.retryBudget = defaultRetryBudget
	}
	if s.initialInterval <= 0 {
		s.initialInterval = defaultInitialInterval
	}
	if s.logger == nil {
		s.logger = shared.NewLogger(io.Discard)
	}
	return s, nil
}

// NewTautulliServiceFromConfig builds a client from the [tautulli] config section.
func NewTautulliServiceFromConfig(cfg shared.TautulliConfig, logger *log.Logger) (*TautulliService, error) {
	return NewTautulliService(TautulliOpts{
		BaseURL:           cfg.URL,
		APIKey:            cfg.APIKey,
		HTTPClient:        &http.Client{Timeout: cfg.Timeout.Duration},
		PageSize:          cfg.PageSize,
		MaxPages:          cfg.MaxPages,
		RequestsPerSecond: cfg.RequestsPerSecond,
		MaxRetries:        cfg.MaxRetries,
		RetryBudget:       cfg.RetryBudget.Duration,
		Logger:            logger,
	})
}

// Name returns the service name.
func (s *TautulliService) Name() string {
	return "Tautulli"
}

// PageSize is the default number of records requested per page.
func (s *TautulliService) PageSize() int {
	return s.pageSize
}

// Libraries retrieves all library sections.
//
// Calls cmd=get_libraries.
func (s *TautulliService) Libraries(ctx context.Context) ([]Library, error) {
	const op = "get_libraries"
	raw, err := s.call(ctx, op, nil, s.newBackOff(newRetryBudget(s.retryBudget)))
	if err != nil {
		return nil, err
	}

	var wire []libraryWire
	if err := decodeData(op, raw, &wire); err != nil {
		return nil, err
	}

	libraries := make([]Library, 0, len(wire))
	for _, w := range wire {
		libraries = append(libraries, Library{
			SectionID: w.SectionID.String(),
			Name:      w.SectionName.String(),
			Type:      strings.ToLower(w.SectionType.String()),
			Count:     int(w.Count),
		})
	}
	return libraries, nil
}

// Users retrieves the user directory.
//
// Calls cmd=get_users.
func (s *TautulliService) Users(ctx context.Context) ([]models.User, error) {
	const op = "get_users"
	raw, err := s.call(ctx, op, nil, s.newBackOff(newRetryBudget(s.retryBudget)))
	if err != nil {
		return nil, err
	}

	var wire []userWire
	if err := decodeData(op, raw, &wire); err != nil {
		return nil, err
	}

	users := make([]models.User, 0, len(wire))
	for _, w := range wire {
		users = append(users, w.user())
	}
	return users, nil
}

// FetchChildren retrieves the direct children of parentKey.
//
// Calls cmd=get_children_metadata. Children always report parentKey as their parent, and
// inherit the expected child type when the payload omits one. Servers that ignore the
// start offset return the whole listing at once; repeated keys are dropped.
func (s *TautulliService) FetchChildren(ctx context.Context, parentKey string, parentType models.MediaType) ([]models.MediaItem, error) {
	items, err := s.CollectMedia(ctx, CollectionRequest{
		Kind:       CollectionChildren,
		ParentKey:  parentKey,
		ParentType: parentType,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(items))
	children := items[:0]
	for _, item := range items {
		if _, ok := seen[item.RatingKey]; ok && item.RatingKey != "" {
			continue
		}
		seen[item.RatingKey] = struct{}{}
		children = append(children, item)
	}
	return children, nil
}

// Raw performs a single command and returns its data payload undecoded.
func (s *TautulliService) Raw(ctx context.Context, cmd string, params url.Values) (json.RawMessage, error) {
	return s.call(ctx, cmd, params, s.newBackOff(newRetryBudget(s.retryBudget)))
}

// call runs one command with retries. Retryable failures that outlast bo become
// [FatalFetchError] with kind [FatalExhausted].
func (s *TautulliService) call(ctx context.Context, cmd string, params url.Values, bo backoff.BackOff) (json.RawMessage, error) {
	var (
		data     json.RawMessage
		attempts int
	)

	operation := func() error {
		attempts++
		if err := s.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		raw, err := s.do(ctx, cmd, params)
		if err != nil {
			var re *RetryableFetchError
			if errors.As(err, &re) && ctx.Err() == nil {
				return err
			}
			return backoff.Permanent(err)
		}
		data = raw
		return nil
	}

	notify := func(err error, wait time.Duration) {
		s.logger.Warn("retrying request", "cmd", cmd, "attempt", attempts, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		var re *RetryableFetchError
		if errors.As(err, &re) {
			return nil, &FatalFetchError{
				Op:         cmd,
				Kind:       FatalExhausted,
				StatusCode: re.StatusCode,
				Err:        fmt.Errorf("gave up after %d attempts: %w", attempts, err),
			}
		}
		return nil, err
	}
	return data, nil
}

// do performs a single HTTP round trip and classifies the outcome.
func (s *TautulliService) do(ctx context.Context, cmd string, params url.Values) (json.RawMessage, error) {
	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("apikey", s.apiKey)
	query.Set("cmd", cmd)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/v2?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &RetryableFetchError{Op: cmd, Err: s.redact(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &RetryableFetchError{Op: cmd, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	switch status := resp.StatusCode; {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, &FatalFetchError{Op: cmd, Kind: FatalAuth, StatusCode: status, Err: errors.New(http.StatusText(status))}
	case status == http.StatusTooManyRequests || status >= 500:
		return nil, &RetryableFetchError{Op: cmd, StatusCode: status, Err: errors.New(http.StatusText(status))}
	case status < 200 || status >= 300:
		return nil, &FatalFetchError{Op: cmd, Kind: FatalRemote, StatusCode: status, Err: errors.New(http.StatusText(status))}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, shapeError(cmd, fmt.Errorf("failed to decode envelope: %w", err))
	}
	if env.Response == nil {
		return nil, shapeError(cmd, errors.New("missing response envelope"))
	}

	if !strings.EqualFold(env.Response.Result, "success") {
		msg := "result " + env.Response.Result
		if env.Response.Message != nil && *env.Response.Message != "" {
			msg = *env.Response.Message
		}
		kind := FatalRemote
		if isAuthMessage(msg) {
			kind = FatalAuth
		}
		return nil, &FatalFetchError{Op: cmd, Kind: kind, Err: errors.New(msg)}
	}
	return env.Response.Data, nil
}

// redact strips the api key from transport errors, which embed the request URL.
func (s *TautulliService) redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = strings.ReplaceAll(ue.URL, url.QueryEscape(s.apiKey), "REDACTED")
	}
	return err
}

func isAuthMessage(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "apikey") || strings.Contains(m, "api key") || strings.Contains(m, "unauthorized")
}
