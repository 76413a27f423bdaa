package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"

	"github.com/desertthunder/ytlink/internal/shared"
)

func newTestYouTube(t *testing.T, handler http.HandlerFunc, opts ...YouTubeOption) *YouTubeService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	opts = append([]YouTubeOption{WithEndpoint(server.URL), WithRateLimit(0, 0)}, opts...)
	return NewYouTubeService(opts...)
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestYouTubeService(t *testing.T) {
	ctx := context.Background()

	t.Run("NewYouTubeService", func(t *testing.T) {
		t.Run("uses the client library endpoint", func(t *testing.T) {
			if svc := NewYouTubeService(); svc.client.endpoint != "" {
				t.Errorf("expected no endpoint override, got %s", svc.client.endpoint)
			}
		})

		t.Run("adds trailing slash", func(t *testing.T) {
			if svc := NewYouTubeService(WithEndpoint("http://localhost:9000")); svc.client.endpoint != "http://localhost:9000/" {
				t.Errorf("unexpected endpoint %s", svc.client.endpoint)
			}
		})

		t.Run("from config", func(t *testing.T) {
			cfg := shared.YouTubeConfig{APIEndpoint: "http://example.test/yt/", RequestsPerSecond: 2, Burst: 3}
			svc := NewYouTubeServiceFromConfig(cfg)
			if svc.client.endpoint != "http://example.test/yt/" {
				t.Errorf("unexpected endpoint %s", svc.client.endpoint)
			}
			if svc.client.limiter.Burst() != 3 {
				t.Errorf("expected burst 3, got %d", svc.client.limiter.Burst())
			}
		})
	})

	t.Run("MyChannel", func(t *testing.T) {
		t.Run("sends token and parses channel", func(t *testing.T) {
			svc := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/youtube/v3/channels" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer tok" {
					t.Errorf("unexpected Authorization header %q", got)
				}
				if r.URL.Query().Get("mine") != "true" {
					t.Error("expected mine=true")
				}
				if got := r.URL.Query().Get("part"); got != "snippet,statistics,brandingSettings" {
					t.Errorf("unexpected parts %q", got)
				}
				writeJSON(t, w, map[string]any{"items": []any{map[string]any{
					"id": "UC123",
					"snippet": map[string]any{
						"title":      "Canal",
						"customUrl":  "@canal",
						"thumbnails": map[string]any{"default": map[string]any{"url": "d.jpg"}, "high": map[string]any{"url": "h.jpg"}},
					},
					"statistics":       map[string]any{"subscriberCount": "1500", "videoCount": "12", "viewCount": "90000"},
					"brandingSettings": map[string]any{"channel": map[string]any{"description": "branded"}},
				}}})
			})

			ch, err := svc.MyChannel(ctx, "tok")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if ch.ID != "UC123" || ch.Snippet.Title != "Canal" {
				t.Errorf("unexpected channel %+v", ch)
			}
			if ch.Subscribers() != 1500 || ch.Videos() != 12 || ch.Views() != 90000 {
				t.Errorf("unexpected statistics %d/%d/%d", ch.Subscribers(), ch.Videos(), ch.Views())
			}
			if ch.URL() != "https://www.youtube.com/@canal" {
				t.Errorf("unexpected URL %s", ch.URL())
			}
			if ch.Description() != "branded" {
				t.Errorf("expected branding description fallback, got %q", ch.Description())
			}
			if ch.Snippet.Thumbnails.Avatar() != "h.jpg" {
				t.Errorf("expected high avatar, got %s", ch.Snippet.Thumbnails.Avatar())
			}
		})

		t.Run("no channel", func(t *testing.T) {
			svc := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, map[string]any{"items": []any{}})
			})
			if _, err := svc.MyChannel(ctx, "tok"); !errors.Is(err, shared.ErrNoChannel) {
				t.Fatalf("expected ErrNoChannel, got %v", err)
			}
		})

		t.Run("missing token", func(t *testing.T) {
			svc := NewYouTubeService(WithEndpoint("http://127.0.0.1:1/"))
			if _, err := svc.MyChannel(ctx, ""); !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Fatalf("expected ErrNotAuthenticated, got %v", err)
			}
		})

		t.Run("expired token", func(t *testing.T) {
			svc := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":{"code":401,"message":"Invalid Credentials","errors":[{"reason":"authError"}]}}`))
			})

			_, err := svc.MyChannel(ctx, "tok")
			if !errors.Is(err, shared.ErrTokenExpired) || !errors.Is(err, shared.ErrAPIRequest) {
				t.Fatalf("expected ErrTokenExpired and ErrAPIRequest, got %v", err)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatal("expected *APIError")
			}
			if apiErr.Message != "Invalid Credentials" || apiErr.Reason != "authError" {
				t.Errorf("unexpected parsed error %+v", apiErr)
			}
		})
	})

	t.Run("Channel", func(t *testing.T) {
		svc := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("id") != "UCx" || r.URL.Query().Has("mine") {
				t.Errorf("expected id=UCx, got %s", r.URL.RawQuery)
			}
			writeJSON(t, w, map[string]any{"items": []any{map[string]any{"id": "UCx"}}})
		})

		ch, err := svc.Channel(ctx, "tok", "UCx")
		if err != nil {
			t.Fatal(err)
		}
		if ch.URL() != "https://www.youtube.com/channel/UCx" {
			t.Errorf("unexpected URL %s", ch.URL())
		}
	})

	t.Run("Search", func(t *testing.T) {
		t.Run("builds query", func(t *testing.T) {
			svc := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/youtube/v3/search" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				q := r.URL.Query()
				checks := map[string]string{
					"part":           "snippet",
					"q":              "golang",
					"maxResults":     "50",
					"order":          "date",
					"type":           "video",
					"videoDuration":  "short",
					"safeSearch":     "moderate",
					"publishedAfter": "2024-01-02T00:00:00Z",
				}
				for k, want := range checks {
					if got := q.Get(k); got != want {
						t.Errorf("param %s: expected %q, got %q", k, want, got)
					}
				}
				writeJSON(t, w, map[string]any{
					"nextPageToken": "NEXT",
					"pageInfo":      map[string]any{"totalResults": 1, "resultsPerPage": 1},
					"items": []any{map[string]any{
						"id": map[string]any{"kind": "youtube#video", "videoId": "abc"},
						"snippet": map[string]any{
							"title":       "Go talk",
							"publishedAt": "2024-03-01T10:00:00Z",
							"thumbnails":  map[string]any{"medium": map[string]any{"url": "m.jpg"}},
						},
					}},
				})
			})

			result, err := svc.Search(ctx, "tok", SearchParams{
				Query:          "  golang ",
				MaxResults:     500,
				Order:          "date",
				Duration:       "short",
				PublishedAfter: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			})
			if err != nil {
				t.Fatal(err)
			}
			if len(result.Items) != 1 || result.NextPageToken != "NEXT" {
				t.Fatalf("unexpected result %+v", result)
			}
			item := result.Items[0]
			if item.WatchURL() != "https://www.youtube.com/watch?v=abc" {
				t.Errorf("unexpected watch URL %s", item.WatchURL())
			}
			if item.Thumbnail() != "m.jpg" {
				t.Errorf("unexpected thumbnail %s", item.Thumbnail())
			}
			if item.Published().Year() != 2024 {
				t.Errorf("unexpected published time %v", item.Published())
			}
		})

		t.Run("rejects empty query", func(t *testing.T) {
			svc := NewYouTubeService()
			if _, err := svc.Search(ctx, "tok", SearchParams{Query: "   "}); !errors.Is(err, shared.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	})

	t.Run("ChannelVideos", func(t *testing.T) {
		svc := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("channelId") != "UC1" || q.Get("order") != "date" || q.Get("maxResults") != "5" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			if q.Has("q") {
				t.Error("expected no q parameter")
			}
			writeJSON(t, w, map[string]any{"items": []any{map[string]any{"id": map[string]any{"videoId": "v1"}}}})
		})

		items, err := svc.ChannelVideos(ctx, "tok", "UC1", 5)
		if err != nil {
			t.Fatal(err)
		}
		if len(items) != 1 || items[0].ID.VideoID != "v1" {
			t.Errorf("unexpected items %+v", items)
		}
	})

	t.Run("Videos", func(t *testing.T) {
		t.Run("parses details", func(t *testing.T) {
			svc := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/youtube/v3/videos" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if r.URL.Query().Get("id") != "a,b" {
					t.Errorf("unexpected ids %s", r.URL.Query().Get("id"))
				}
				writeJSON(t, w, map[string]any{"items": []any{map[string]any{
					"id":             "a",
					"snippet":        map[string]any{"title": "A", "tags": []string{"x", "y"}, "categoryId": "10"},
					"statistics":     map[string]any{"viewCount": "10", "likeCount": "2", "commentCount": "1"},
					"contentDetails": map[string]any{"duration": "PT1H2M3S"},
				}}})
			})

			videos, err := svc.Videos(ctx, "tok", "a", "b")
			if err != nil {
				t.Fatal(err)
			}
			if len(videos) != 1 {
				t.Fatalf("expected 1 video, got %d", len(videos))
			}
			v := videos[0]
			if v.Views() != 10 || v.Likes() != 2 || v.Comments() != 1 {
				t.Errorf("unexpected statistics %+v", v.Statistics)
			}
			if v.Duration() != "01:02:03" {
				t.Errorf("expected 01:02:03, got %s", v.Duration())
			}
		})

		t.Run("no ids", func(t *testing.T) {
			videos, err := NewYouTubeService().Videos(ctx, "tok")
			if err != nil || videos != nil {
				t.Errorf("expected nil, nil; got %v, %v", videos, err)
			}
		})

		t.Run("too many ids", func(t *testing.T) {
			ids := strings.Split(strings.Repeat("x,", 51), ",")[:51]
			if _, err := NewYouTubeService().Videos(ctx, "tok", ids...); !errors.Is(err, shared.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	})

	t.Run("Video", func(t *testing.T) {
		t.Run("not found", func(t *testing.T) {
			svc := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, map[string]any{"items": []any{}})
			})
			if _, err := svc.Video(ctx, "tok", "gone"); !errors.Is(err, shared.ErrVideoNotFound) {
				t.Fatalf("expected ErrVideoNotFound, got %v", err)
			}
		})

		t.Run("api 404", func(t *testing.T) {
			svc := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", http.StatusNotFound)
			})
			if _, err := svc.Video(ctx, "tok", "gone"); !errors.Is(err, shared.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	})

	t.Run("VideoCategories", func(t *testing.T) {
		svc := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/youtube/v3/videoCategories" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if r.URL.Query().Get("regionCode") != "MX" || r.URL.Query().Get("hl") != "es" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			writeJSON(t, w, map[string]any{"items": []any{
				map[string]any{"id": "22", "snippet": map[string]any{"title": "Gente y blogs", "assignable": true}},
				map[string]any{"id": "18", "snippet": map[string]any{"title": "Short Movies", "assignable": false}},
			}})
		})

		categories, err := svc.VideoCategories(ctx, "tok", "MX", "es")
		if err != nil {
			t.Fatal(err)
		}
		if len(categories) != 1 || categories[0].ID != "22" {
			t.Errorf("expected only assignable categories, got %+v", categories)
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		svc := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}, WithTimeout(20*time.Millisecond))

		if _, err := svc.MyChannel(ctx, "tok"); !errors.Is(err, shared.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
	})
}

func TestSearchParams(t *testing.T) {
	t.Run("Normalize defaults", func(t *testing.T) {
		p := SearchParams{Query: "x", Order: "bogus", Duration: "any"}.Normalize()
		if p.MaxResults != DefaultSearchResults {
			t.Errorf("expected %d results, got %d", DefaultSearchResults, p.MaxResults)
		}
		if p.Order != "relevance" || p.Type != "video" || p.Duration != "" {
			t.Errorf("unexpected normalized params %+v", p)
		}
	})

	t.Run("Normalize keeps valid values", func(t *testing.T) {
		p := SearchParams{Query: "x", MaxResults: 25, Order: "viewCount", Duration: "long"}.Normalize()
		if p.MaxResults != 25 || p.Order != "viewCount" || p.Duration != "long" {
			t.Errorf("unexpected normalized params %+v", p)
		}
	})
}

func TestThumbnails(t *testing.T) {
	thumbs := Thumbnails{
		Default: &Thumbnail{URL: "d"},
		Medium:  &Thumbnail{URL: "m"},
		Maxres:  &Thumbnail{URL: "x"},
	}
	if thumbs.Best() != "x" {
		t.Errorf("expected maxres, got %s", thumbs.Best())
	}
	if thumbs.Avatar() != "m" {
		t.Errorf("expected medium, got %s", thumbs.Avatar())
	}
	if (Thumbnails{}).Best() != "" {
		t.Error("expected empty URL")
	}
}

func TestDefaultCategories(t *testing.T) {
	categories := DefaultCategories()
	if len(categories) == 0 || categories[0].ID != "22" {
		t.Errorf("expected People & Blogs first, got %+v", categories)
	}
}

func TestLimitedTransport(t *testing.T) {
	calls := 0
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
	})

	t.Run("waits on the limiter", func(t *testing.T) {
		svc := newTestYouTube(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{"items": []any{map[string]any{"id": "UC1"}}})
		}, WithRateLimit(1, 1))

		if _, err := svc.MyChannel(context.Background(), "tok"); err != nil {
			t.Fatalf("expected first call within burst, got %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		if _, err := svc.MyChannel(ctx, "tok"); err == nil || !strings.Contains(err.Error(), "rate limiter") {
			t.Fatalf("expected rate limiter error, got %v", err)
		}
	})

	t.Run("passes through when allowed", func(t *testing.T) {
		rt := &limitedTransport{base: base, limiter: rate.NewLimiter(rate.Inf, 0)}
		req := httptest.NewRequest(http.MethodGet, "http://example.test/", nil)
		if _, err := rt.RoundTrip(req); err != nil {
			t.Fatal(err)
		}
		if calls != 1 {
			t.Errorf("expected base transport to be called once, got %d", calls)
		}
	})
}

func TestGoogleError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		is    []error
		check func(*testing.T, error)
	}{
		{
			name: "unauthorized",
			err:  &googleapi.Error{Code: 401, Message: "Invalid Credentials", Errors: []googleapi.ErrorItem{{Reason: "authError"}}},
			is:   []error{shared.ErrAPIRequest, shared.ErrTokenExpired},
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.Reason != "authError" || apiErr.Status != 401 {
					t.Errorf("unexpected mapping %+v", apiErr)
				}
			},
		},
		{
			name: "wrapped not found",
			err:  fmt.Errorf("call: %w", &googleapi.Error{Code: 404}),
			is:   []error{shared.ErrAPIRequest, shared.ErrNotFound},
		},
		{
			name: "quota",
			err:  &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}}},
			is:   []error{shared.ErrAPIRequest},
			check: func(t *testing.T, err error) {
				if errors.Is(err, shared.ErrTokenExpired) {
					t.Error("403 must not look like an expired token")
				}
			},
		},
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			is:   []error{shared.ErrTimeout},
		},
		{
			name: "transport",
			err:  errors.New("connection refused"),
			check: func(t *testing.T, err error) {
				if errors.Is(err, shared.ErrAPIRequest) || !strings.Contains(err.Error(), "connection refused") {
					t.Errorf("unexpected mapping %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := googleError(tt.err)
			for _, target := range tt.is {
				if !errors.Is(got, target) {
					t.Errorf("expected %v to match %v", got, target)
				}
			}
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}

	if googleError(nil) != nil {
		t.Error("expected nil for nil")
	}
}
