package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/desertthunder/ytlink/internal/shared"
)

// APIError is a non-2xx response from a Google API.
//
// It matches [shared.ErrAPIRequest] and, depending on the status,
// [shared.ErrTokenExpired] (401) or [shared.ErrNotFound] (404) with [errors.Is].
type APIError struct {
	Status  int
	Message string
	Reason  string
	Body    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("google API error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("google API error: status %d", e.Status)
}

func (e *APIError) Unwrap() []error {
	errs := []error{shared.ErrAPIRequest}
	switch e.Status {
	case http.StatusUnauthorized:
		errs = append(errs, shared.ErrTokenExpired)
	case http.StatusNotFound:
		errs = append(errs, shared.ErrNotFound)
	}
	return errs
}

// oauthErrorBody is the error envelope of the OAuth revoke and userinfo endpoints.
// error is either a code string or a {message, errors} object.
type oauthErrorBody struct {
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// newAPIError reads resp.Body of a failed OAuth endpoint call.
func newAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode, Body: string(body)}

	var parsed oauthErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return apiErr
	}
	apiErr.Message = parsed.ErrorDescription

	var code string
	var detail struct {
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	}
	switch {
	case json.Unmarshal(parsed.Error, &code) == nil:
		apiErr.Reason = code
	case json.Unmarshal(parsed.Error, &detail) == nil:
		if apiErr.Message == "" {
			apiErr.Message = detail.Message
		}
		if len(detail.Errors) > 0 {
			apiErr.Reason = detail.Errors[0].Reason
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = apiErr.Reason
	}
	return apiErr
}

// googleError maps errors returned by the generated clients onto the shared sentinels.
// A [googleapi.Error] becomes an [APIError], timeouts become [shared.ErrTimeout].
func googleError(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		apiErr := &APIError{Status: gerr.Code, Message: gerr.Message, Body: gerr.Body}
		if len(gerr.Errors) > 0 {
			apiErr.Reason = gerr.Errors[0].Reason
		}
		return apiErr
	}
	if isTimeout(err) {
		return fmt.Errorf("%w: %v", shared.ErrTimeout, err)
	}
	return fmt.Errorf("request failed: %w", err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// limitedTransport waits on a shared limiter before every round trip.
type limitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return t.base.RoundTrip(req)
}

// googleClient is what every generated client call needs besides the caller's token.
type googleClient struct {
	endpoint  string
	transport http.RoundTripper
	limiter   *rate.Limiter
	timeout   time.Duration
}

// youtube builds a YouTube Data API service that authenticates with accessToken.
func (g googleClient) youtube(ctx context.Context, accessToken string) (*youtube.Service, error) {
	if accessToken == "" {
		return nil, shared.ErrNotAuthenticated
	}

	base := g.transport
	if base == nil {
		base = http.DefaultTransport
	}
	if g.limiter != nil {
		base = &limitedTransport{base: base, limiter: g.limiter}
	}
	client := &http.Client{
		Timeout: g.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   base,
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return svc, nil
}
