// Package services implements the clients for the Google APIs used by ytlink.
//
// # OAuth
//
// [GoogleAuth] wraps [oauth2.Config] for the authorization code flow. Consent URLs ask for offline access
// with a forced consent prompt so Google always returns a refresh token. [GoogleAuth.Refresh] keeps the
// previous refresh token when Google does not rotate it, and tokens without expires_in get [DefaultTokenLifetime].
//
// # YouTube Data API
//
// [YouTubeService] reads channels, search, videos and videoCategories through the generated
// google.golang.org/api/youtube/v3 client. The access token is passed per call so a single service is
// shared by every linked account. Its [rate.Limiter] sits in the HTTP transport handed to the client,
// so every request waits on the same budget.
//
// # Uploads
//
// [Uploader] uses the same generated client for media uploads, which handles chunking and resumption,
// and polls processing status with videos.list. Uploads skip the limiter.
//
// # Errors
//
// Non-2xx responses, whether a [googleapi.Error] from the generated client or a failed OAuth endpoint
// call, become an [APIError] that matches, with [errors.Is]:
//   - [shared.ErrAPIRequest] : always
//   - [shared.ErrTokenExpired] : 401, the caller should refresh or re-link
//   - [shared.ErrNotFound] : 404
//
// Timeouts map to [shared.ErrTimeout].
package services
