package shared

import "errors"

var (
	// Configuration errors
	ErrMissingConfig      = errors.New("configuration not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrMissingCredentials = errors.New("missing credentials")

	// Authentication errors
	ErrAuthFailed       = errors.New("authentication failed")
	ErrAuthDenied       = errors.New("authorization denied")
	ErrInvalidState     = errors.New("invalid oauth state")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrTokenExpired     = errors.New("access token expired")
	ErrRefreshFailed    = errors.New("token refresh failed")
	ErrNoRefreshToken   = errors.New("no refresh token available")
	ErrTimeout          = errors.New("operation timed out")

	// API and service errors
	ErrAPIRequest         = errors.New("API request failed")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrNoChannel          = errors.New("no YouTube channel found for this account")
	ErrVideoNotFound      = errors.New("video not found")
	ErrUploadFailed       = errors.New("upload failed")

	// Persistence errors
	ErrNotFound      = errors.New("not found")
	ErrAlreadySaved  = errors.New("video already saved")
	ErrAlreadyExists = errors.New("already exists")

	// Input validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingArgument = errors.New("missing required argument")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedFile = errors.New("unsupported file type")
)
