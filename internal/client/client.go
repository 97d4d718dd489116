// Package client provides an HTTP client for the clipvault server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/clipvault/internal/notify"
	"github.com/raphaelgruber/clipvault/internal/server"
)

// ErrNotFound is returned when the server has no such video.
var ErrNotFound = errors.New("video not found")

// Video is the server's public view of a video.
type Video = server.VideoResponse

// Stats is the server's runtime statistics.
type Stats = server.StatsResponse

// Client talks to the clipvault HTTP API.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
}

// New creates a client.
// If baseURL is empty, uses CLIPVAULT_SERVER_URL or defaults to localhost:8484.
// Timeout can be configured via CLIPVAULT_CLIENT_TIMEOUT (default 10m for large uploads).
func New(baseURL, userID string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("CLIPVAULT_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8484"
	}

	timeout := 10 * time.Minute
	if t := os.Getenv("CLIPVAULT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userID:     userID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// apiError is the error body returned by the server.
type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server error: %s - %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(data))
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, result any) error {
	if payload == nil {
		return c.do(ctx, method, path, nil, "", result)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, method, path, bytes.NewReader(body), "application/json", result)
}

// Upload sends a local video file. The server answers as soon as the record exists.
func (c *Client) Upload(ctx context.Context, filePath, title string) (*Video, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeMultipart(mw, f, filepath.Base(filePath), title)
		pw.CloseWithError(err)
	}()

	var v Video
	if err := c.do(ctx, http.MethodPost, "/api/videos", pr, mw.FormDataContentType(), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func writeMultipart(mw *multipart.Writer, src io.Reader, name, title string) error {
	if title != "" {
		if err := mw.WriteField("title", title); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("video", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return mw.Close()
}

// GetVideo fetches one video.
func (c *Client) GetVideo(ctx context.Context, id string) (*Video, error) {
	var v Video
	if err := c.doJSON(ctx, http.MethodGet, "/api/videos/"+url.PathEscape(id), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVideos lists videos, optionally restricted to one owner.
func (c *Client) ListVideos(ctx context.Context, owner string) ([]Video, error) {
	path := "/api/videos"
	if owner != "" {
		path += "?owner=" + url.QueryEscape(owner)
	}
	var videos []Video
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &videos); err != nil {
		return nil, err
	}
	return videos, nil
}

// Reject marks a video as rejected.
func (c *Client) Reject(ctx context.Context, id, reason string) (*Video, error) {
	var v Video
	payload := map[string]string{"reason": reason}
	if err := c.doJSON(ctx, http.MethodPost, "/api/videos/"+url.PathEscape(id)+"/reject", payload, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Reprocess schedules a fresh run for a finished video.
func (c *Client) Reprocess(ctx context.Context, id string) (*Video, error) {
	var v Video
	if err := c.doJSON(ctx, http.MethodPost, "/api/videos/"+url.PathEscape(id)+"/reprocess", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// DeleteVideo removes a video and its stored file.
func (c *Client) DeleteVideo(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/videos/"+url.PathEscape(id), nil, nil)
}

// GetStats returns server runtime statistics.
func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats
	if err := c.doJSON(ctx, http.MethodGet, "/stats", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Watch streams push events for the client's user until ctx ends, onEvent
// returns an error, or the connection drops. Events for every video of the
// user are delivered; filter by VideoID in onEvent.
func (c *Client) Watch(ctx context.Context, onEvent func(notify.Event) error) error {
	return c.stream(ctx, nil, onEvent)
}

// ErrStopWatch can be returned from a Watch callback to end the stream cleanly.
var ErrStopWatch = errors.New("stop watching")

// WatchVideo follows one video until it reaches a terminal state. onEvent
// sees every event for the video. It returns the final video state.
func (c *Client) WatchVideo(ctx context.Context, id string, onEvent func(notify.Event)) (*Video, error) {
	// The run may finish before the socket is up, so check once connected.
	connected := func() error {
		v, err := c.GetVideo(ctx, id)
		if err != nil {
			return err
		}
		if v.ProcessingStatus.Terminal() {
			return ErrStopWatch
		}
		return nil
	}

	err := c.stream(ctx, connected, func(ev notify.Event) error {
		if ev.Data.VideoID != id {
			return nil
		}
		if onEvent != nil {
			onEvent(ev)
		}
		if ev.Name == notify.EventCompleted || ev.Name == notify.EventFailed {
			return ErrStopWatch
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrStopWatch) {
		return nil, err
	}
	return c.GetVideo(ctx, id)
}

func (c *Client) stream(ctx context.Context, onConnected func() error, onEvent func(notify.Event) error) error {
	if c.userID == "" {
		return errors.New("watch requires a user id")
	}

	wsEndpoint := strings.Replace(c.baseURL, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)
	u, err := url.Parse(wsEndpoint + "/ws")
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	u.RawQuery = url.Values{"user_id": {c.userID}}.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}

	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	if onConnected != nil {
		if err := onConnected(); err != nil {
			return err
		}
	}

	for {
		var ev notify.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read event: %w", err)
		}
		if err := onEvent(ev); err != nil {
			return err
		}
	}
}
