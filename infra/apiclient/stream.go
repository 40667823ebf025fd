package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/CrestNiraj12/rantfeed/domain"
	"github.com/CrestNiraj12/rantfeed/infra/httpapi"
)

// WatchTimeline calls fn with every timeline snapshot the server pushes
// until ctx is done, fn returns an error, or the stream ends.
func (c *Client) WatchTimeline(ctx context.Context, limit int, fn func([]domain.Post) error) error {
	path := "/api/stream/posts"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	return watch(ctx, c, path, fn)
}

// WatchPost calls fn with every snapshot of one post. The stream ends with
// domain.ErrNotFound once the post is deleted.
func (c *Client) WatchPost(ctx context.Context, postID string, fn func(domain.Post) error) error {
	return watch(ctx, c, "/api/stream/posts/"+url.PathEscape(postID), fn)
}

func watch[T any](ctx context.Context, c *Client, path string, fn func(T) error) error {
	wsURL, err := streamURL(c.baseURL, path)
	if err != nil {
		return err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w: stream %s: status %d", domain.ErrUnavailable, path, resp.StatusCode)
		}
		return fmt.Errorf("%w: stream %s: %v", domain.ErrUnavailable, path, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var frame struct {
			Type  string          `json:"type"`
			Data  json.RawMessage `json:"data"`
			Error string          `json:"error"`
			Code  string          `json:"code"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("%w: stream %s: %v", domain.ErrUnavailable, path, err)
		}

		switch frame.Type {
		case httpapi.FrameSnapshot:
			var val T
			if len(frame.Data) > 0 {
				if err := json.Unmarshal(frame.Data, &val); err != nil {
					return fmt.Errorf("decoding snapshot of %s: %w", path, err)
				}
			}
			if err := fn(val); err != nil {
				return err
			}
		case httpapi.FrameError:
			if sentinel, ok := codeErrors[frame.Code]; ok {
				return fmt.Errorf("%w: stream %s: %s", sentinel, path, frame.Error)
			}
			return fmt.Errorf("stream %s: %s", path, frame.Error)
		}
	}
}

func streamURL(base, path string) (string, error) {
	u, err := url.Parse(base + path)
	if err != nil {
		return "", fmt.Errorf("invalid stream url: %w", err)
	}
	switch {
	case strings.EqualFold(u.Scheme, "https"):
		u.Scheme = "wss"
	case strings.EqualFold(u.Scheme, "http"):
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("invalid stream url scheme %q", u.Scheme)
	}
	return u.String(), nil
}
