// Package server provides HTTP routing, middleware, sessions and the command-line OAuth callback.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [BasicRouter] registers "METHOD /path/{id}/" patterns on [http.ServeMux] and accepts per-route middleware
// such as [RequireLogin].
//
// # Sessions
//
// [SessionManager] keeps logins in the sessions table behind an HttpOnly, SameSite=Lax cookie. It also issues the
// OAuth state cookie checked on the Google callback. The [Sessions] middleware puts the user in the request
// context; read it back with [CurrentUser].
//
// # OAuth Callback Handler
//
// [OAuthHandler] serves the callback for `ytlink login`: a temporary server on the configured port receives the
// code, links the account and reports a single result through a channel. Repeated callbacks are rejected.
//
// # Lifecycle
//
// [Server] runs until its context is cancelled and then shuts down gracefully within [ShutdownTimeout].
package server
