package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/TheusHen/parley/parley/seeker"
	"github.com/TheusHen/parley/parley/transport"
)

var ErrRelay = errors.New("rest: relay error")

// Client talks to a relay serving NewHandler.
type Client struct {
	Base string
	HTTP *http.Client
}

// New returns a client for the relay at base, e.g. "http://localhost:8080".
// A nil httpClient selects http.DefaultClient.
func New(base string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{Base: strings.TrimRight(base, "/"), HTTP: httpClient}
}

func (c *Client) SendAnnouncement(ctx context.Context, data []byte) (uint64, error) {
	if err := transport.CheckAnnouncement(data); err != nil {
		return 0, err
	}
	var out announceResponse
	if err := c.post(ctx, pathAnnouncements, announceRequest{Data: data}, &out); err != nil {
		return 0, err
	}
	return out.Counter, nil
}

func (c *Client) FetchAnnouncements(ctx context.Context, since uint64, limit int) ([]transport.Announcement, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatUint(since, 10))
	q.Set("limit", strconv.Itoa(transport.ClampLimit(limit)))
	var out announcementsResponse
	if err := c.getJSON(ctx, pathAnnouncements+"?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Announcements, nil
}

func (c *Client) SendMessage(ctx context.Context, msg transport.Message) error {
	if err := transport.CheckMessage(msg); err != nil {
		return err
	}
	return c.post(ctx, pathMessages, msg, nil)
}

func (c *Client) FetchMessages(ctx context.Context, seekers []seeker.Seeker) ([]transport.Message, error) {
	if len(seekers) > transport.MaxFetchMessages {
		return nil, transport.ErrTooManySeekers
	}
	if len(seekers) == 0 {
		return nil, nil
	}
	var out fetchResponse
	if err := c.post(ctx, pathFetchMessages, fetchRequest{Seekers: seekers}, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Health checks that the relay is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.getJSON(ctx, pathHealth, nil)
}

func (c *Client) post(ctx context.Context, path string, in any, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if resp.StatusCode == http.StatusRequestEntityTooLarge {
			return fmt.Errorf("%w: %s", transport.ErrTooLarge, e.Error)
		}
		return fmt.Errorf("%w: %s %s: %s: %s", ErrRelay, req.Method, req.URL.Path, resp.Status, e.Error)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

var _ transport.Transport = (*Client)(nil)
