package rest

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/TheusHen/parley/parley/seeker"
	"github.com/TheusHen/parley/parley/transport"
	"github.com/TheusHen/parley/parley/transport/memory"
	"github.com/TheusHen/parley/parley/transport/transporttest"
)

func newServer(t *testing.T, log zerolog.Logger) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHandler(memory.New(), log))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientSuite(t *testing.T) {
	srv := newServer(t, zerolog.Nop())
	transporttest.Run(t, New(srv.URL, srv.Client()))
}

func TestHealth(t *testing.T) {
	srv := newServer(t, zerolog.Nop())
	if err := New(srv.URL+"/", nil).Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}

func TestRequestIDAndAccessLog(t *testing.T) {
	var buf bytes.Buffer
	srv := newServer(t, zerolog.New(&buf))

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	id := resp.Header.Get(headerRequestID)
	if id == "" {
		t.Fatalf("missing %s header", headerRequestID)
	}
	if !strings.Contains(buf.String(), id) || !strings.Contains(buf.String(), `"status":200`) {
		t.Fatalf("access log does not mention request: %s", buf.String())
	}
}

func TestHandlerRejects(t *testing.T) {
	srv := newServer(t, zerolog.Nop())
	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"bad json", http.MethodPost, pathMessages, "{", http.StatusBadRequest},
		{"bad seeker", http.MethodPost, pathMessages, `{"seeker":"00","ciphertext":"AA=="}`, http.StatusBadRequest},
		{"missing ciphertext", http.MethodPost, pathMessages, `{"seeker":"20` + strings.Repeat("00", seeker.Size-1) + `"}`, http.StatusRequestEntityTooLarge},
		{"bad since", http.MethodGet, pathAnnouncements + "?since=x", "", http.StatusBadRequest},
		{"bad limit", http.MethodGet, pathAnnouncements + "?limit=x", "", http.StatusBadRequest},
		{"wrong method", http.MethodDelete, pathMessages, "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest(tc.method, srv.URL+tc.path, strings.NewReader(tc.body))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestClientValidatesLocally(t *testing.T) {
	c := New("http://127.0.0.1:1", nil)
	ctx := context.Background()
	if _, err := c.SendAnnouncement(ctx, make([]byte, transport.MaxAnnouncementSize+1)); !errors.Is(err, transport.ErrTooLarge) {
		t.Fatalf("oversized announcement: %v", err)
	}
	if err := c.SendMessage(ctx, transport.Message{}); !errors.Is(err, seeker.ErrInvalidStructure) {
		t.Fatalf("invalid seeker: %v", err)
	}
	if _, err := c.FetchMessages(ctx, make([]seeker.Seeker, transport.MaxFetchMessages+1)); !errors.Is(err, transport.ErrTooManySeekers) {
		t.Fatalf("too many seekers: %v", err)
	}
}

func TestRelayErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusServiceUnavailable, "down")
	}))
	defer srv.Close()
	_, err := New(srv.URL, nil).FetchAnnouncements(context.Background(), 0, 0)
	if !errors.Is(err, ErrRelay) || !strings.Contains(err.Error(), "down") {
		t.Fatalf("err = %v", err)
	}
}
