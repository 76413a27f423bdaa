package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/desertthunder/ytlink/internal/shared"
)

// LinkFunc completes a login from an authorization code and returns the linked channel's title.
type LinkFunc func(ctx context.Context, code string) (string, error)

// OAuthResult contains the result of an OAuth authorization flow.
type OAuthResult struct {
	Channel string
	err     error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler serves the Google callback for a command-line login.
//
// It validates state, hands the code to a [LinkFunc] and reports one result through [OAuthHandler.Result].
type OAuthHandler struct {
	link        LinkFunc
	state       string
	resultChan  chan OAuthResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewOAuthHandler creates a new OAuth handler for the given state token.
// The state token should be cryptographically random for CSRF protection.
func NewOAuthHandler(link LinkFunc, state string) *OAuthHandler {
	return &OAuthHandler{
		link:       link,
		state:      state,
		resultChan: make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{shared.CallbackPath}
}

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{if .Err}}Authorization Failed{{else}}Authorization Successful{{end}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { margin: 0 0 1rem 0; }
        .ok { color: #cc0000; }
        .err { color: #555; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
    {{if .Err}}
        <h1 class="err">✗ Authorization Failed</h1>
        <p>{{.Err}}</p>
    {{else}}
        <h1 class="ok">✓ {{.Channel}} linked</h1>
        <p>You can close this window and return to the terminal.</p>
    {{end}}
    </div>
</body>
</html>
`))

func (h *OAuthHandler) render(w http.ResponseWriter, status int, channel string, err error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	data := struct {
		Channel string
		Err     error
	}{channel, err}
	_ = callbackPage.Execute(w, data)
}

// ServeHTTP handles the OAuth callback request.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	q := r.URL.Query()
	if q.Get("state") != h.state {
		err := fmt.Errorf("%w: state parameter does not match", shared.ErrInvalidState)
		h.Send(OAuthResult{err: err})
		h.render(w, http.StatusBadRequest, "", err)
		return
	}

	code := q.Get("code")
	if code == "" {
		err := fmt.Errorf("%w: %s %s", shared.ErrAuthDenied, q.Get("error"), q.Get("error_description"))
		h.Send(OAuthResult{err: err})
		h.render(w, http.StatusBadRequest, "", err)
		return
	}

	channel, err := h.link(r.Context(), code)
	if err != nil {
		h.Send(OAuthResult{err: err})
		h.render(w, http.StatusInternalServerError, "", err)
		return
	}

	h.Send(OAuthResult{Channel: channel})
	h.render(w, http.StatusOK, channel, nil)
}

// Send sends the OAuth result through the channel (only once).
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving OAuth flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}
