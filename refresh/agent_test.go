package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goAuthClient/tokenstore"
	"github.com/MrEthical07/goAuthClient/transport"
)

type refreshServer struct {
	hits    atomic.Int32
	handler func(w http.ResponseWriter, r *http.Request)
}

func newRefreshServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *refreshServer) {
	t.Helper()
	rs := &refreshServer{handler: handler}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.hits.Add(1)
		rs.handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, rs
}

func seededStore(t *testing.T, access, refresh string) *tokenstore.Store {
	t.Helper()
	store := tokenstore.NewStore(nil, nil)
	if err := store.SetTokens(context.Background(), access, refresh); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

func newTestAgent(srv *httptest.Server, store *tokenstore.Store, singleFlight bool) *Agent {
	return NewAgent(Config{
		Endpoint:     srv.URL + "/api/token/refresh/",
		HTTPClient:   &http.Client{Timeout: 5 * time.Second},
		Tokens:       store,
		SingleFlight: singleFlight,
	})
}

func writeAccess(w http.ResponseWriter, access string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"access": access})
}

func TestRefreshSuccessKeepsRefreshToken(t *testing.T) {
	var gotBody map[string]string
	var gotAuth, gotPath string
	srv, rs := newRefreshServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeAccess(w, "A2")
	})
	store := seededStore(t, "A1", "R1")

	token, err := newTestAgent(srv, store, false).Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if token != "A2" {
		t.Fatalf("expected A2, got %q", token)
	}
	if rs.hits.Load() != 1 || gotPath != "/api/token/refresh/" {
		t.Fatalf("expected one call to refresh endpoint, got %d to %q", rs.hits.Load(), gotPath)
	}
	if gotBody["refresh"] != "R1" {
		t.Fatalf("expected refresh R1 submitted, got %v", gotBody)
	}
	if gotAuth != "" {
		t.Fatalf("refresh exchange must not carry a bearer, got %q", gotAuth)
	}

	ctx := context.Background()
	if access, _ := store.AccessToken(ctx); access != "A2" {
		t.Fatalf("expected stored access A2, got %q", access)
	}
	if refresh, _ := store.RefreshToken(ctx); refresh != "R1" {
		t.Fatalf("expected refresh token preserved, got %q", refresh)
	}
}

func TestRefreshWithoutRefreshTokenClearsAndFails(t *testing.T) {
	srv, rs := newRefreshServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeAccess(w, "A2")
	})
	store := seededStore(t, "A1", "")

	_, err := newTestAgent(srv, store, false).Refresh(context.Background())
	if !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
	if rs.hits.Load() != 0 {
		t.Fatal("no network call expected without a refresh token")
	}
	if store.HasAccessToken(context.Background()) {
		t.Fatal("expected store cleared")
	}
}

func TestRefreshFailuresClearStore(t *testing.T) {
	cases := []struct {
		name    string
		handler func(w http.ResponseWriter, r *http.Request)
		check   func(t *testing.T, err error)
	}{
		{
			name: "rejected refresh token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"detail":"Token is blacklisted","code":"token_not_valid"}`))
			},
			check: func(t *testing.T, err error) {
				var se *transport.StatusError
				if !errors.As(err, &se) || !errors.Is(err, transport.ErrUnauthorized) {
					t.Fatalf("expected 401 status error, got %v", err)
				}
				if se.Message != "Token is blacklisted" {
					t.Fatalf("unexpected message %q", se.Message)
				}
			},
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			check: func(t *testing.T, err error) {
				var se *transport.StatusError
				if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
					t.Fatalf("expected 502 status error, got %v", err)
				}
			},
		},
		{
			name: "missing access",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"refresh":"R9"}`))
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrMalformedRefreshResponse) {
					t.Fatalf("expected malformed response, got %v", err)
				}
			},
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrMalformedRefreshResponse) {
					t.Fatalf("expected malformed response, got %v", err)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newRefreshServer(t, tc.handler)
			store := seededStore(t, "A1", "R1")

			_, err := newTestAgent(srv, store, false).Refresh(context.Background())
			tc.check(t, err)

			ctx := context.Background()
			if store.HasAccessToken(ctx) || store.HasRefreshToken(ctx) {
				t.Fatal("expected both tokens cleared")
			}
		})
	}
}

func TestRefreshNetworkFailure(t *testing.T) {
	srv, _ := newRefreshServer(t, func(w http.ResponseWriter, r *http.Request) {})
	store := seededStore(t, "A1", "R1")
	agent := newTestAgent(srv, store, false)
	srv.Close()

	_, err := agent.Refresh(context.Background())
	if !errors.Is(err, transport.ErrNetworkFailure) {
		t.Fatalf("expected network failure, got %v", err)
	}
	if store.HasRefreshToken(context.Background()) {
		t.Fatal("expected store cleared")
	}
}

func TestRefreshWithoutSingleFlightRunsOneExchangePerCaller(t *testing.T) {
	const n = 6
	var barrier sync.WaitGroup
	barrier.Add(n)
	srv, rs := newRefreshServer(t, func(w http.ResponseWriter, r *http.Request) {
		barrier.Done()
		barrier.Wait()
		writeAccess(w, "A2")
	})
	agent := newTestAgent(srv, seededStore(t, "A1", "R1"), false)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := agent.Refresh(context.Background()); err != nil {
				t.Errorf("refresh: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := rs.hits.Load(); got != n {
		t.Fatalf("expected %d concurrent exchanges, got %d", n, got)
	}
}

func TestRefreshSingleFlightSharesOneExchange(t *testing.T) {
	const n = 6
	release := make(chan struct{})
	srv, rs := newRefreshServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		writeAccess(w, "A2")
	})
	agent := newTestAgent(srv, seededStore(t, "A1", "R1"), true)

	results := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := agent.Refresh(context.Background())
			if err != nil {
				t.Errorf("refresh: %v", err)
				return
			}
			results <- token
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for rs.hits.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	if got := rs.hits.Load(); got != 1 {
		t.Fatalf("expected one shared exchange, got %d", got)
	}
	for token := range results {
		if token != "A2" {
			t.Fatalf("expected every caller to receive A2, got %q", token)
		}
	}
	if agent.Exchanges() != 1 {
		t.Fatalf("expected one recorded exchange, got %d", agent.Exchanges())
	}
}

func TestRefreshSingleFlightHonoursCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	srv, _ := newRefreshServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		writeAccess(w, "A2")
	})
	defer close(release)
	store := seededStore(t, "A1", "R1")
	agent := newTestAgent(srv, store, true)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := agent.Refresh(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if !store.HasRefreshToken(context.Background()) {
		t.Fatal("an abandoned wait must not clear the store")
	}
}

func TestRefreshCallerTimeoutKeepsTokens(t *testing.T) {
	srv, _ := newRefreshServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	store := seededStore(t, "A1", "R1")
	agent := newTestAgent(srv, store, false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := agent.Refresh(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if errors.Is(err, transport.ErrNetworkFailure) {
		t.Fatalf("a caller timeout is not a network failure: %v", err)
	}
	bg := context.Background()
	if got, _ := store.AccessToken(bg); got != "A1" {
		t.Fatalf("expected access token kept, got %q", got)
	}
	if got, _ := store.RefreshToken(bg); got != "R1" {
		t.Fatalf("expected refresh token kept, got %q", got)
	}
}
