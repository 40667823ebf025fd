// Package apiclient talks to a running rantfeed server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/CrestNiraj12/rantfeed/domain"
	"github.com/CrestNiraj12/rantfeed/infra/auth"
	"github.com/CrestNiraj12/rantfeed/infra/httpapi"
)

// Client is a thin HTTP wrapper for the rantfeed API.
// It handles base URL construction and bearer token injection.
type Client struct {
	baseURL       string
	tokenProvider auth.TokenProvider
	http          *http.Client
}

// NewClient creates an API client. tp may be nil for read-only use.
func NewClient(baseURL string, tp auth.TokenProvider) *Client {
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		tokenProvider: tp,
		http:          &http.Client{Timeout: 30 * time.Second},
	}
}

// Image is an image attached by CreatePost.
type Image struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// ToggleLike flips the caller's like on postID.
func (c *Client) ToggleLike(ctx context.Context, postID string) (domain.LikeState, error) {
	var state domain.LikeState
	err := c.do(ctx, http.MethodPost, "/api/posts/"+url.PathEscape(postID)+"/like", nil, "", true, &state)
	return state, err
}

// ToggleFavorite flips postID in the caller's favorites.
func (c *Client) ToggleFavorite(ctx context.Context, postID string) (domain.FavoriteState, error) {
	var state domain.FavoriteState
	err := c.do(ctx, http.MethodPost, "/api/posts/"+url.PathEscape(postID)+"/favorite", nil, "", true, &state)
	return state, err
}

// CreatePost publishes a post. img may be nil.
func (c *Client) CreatePost(ctx context.Context, text, alt string, img *Image) (domain.Post, error) {
	var (
		body        bytes.Buffer
		contentType string
	)
	if img == nil {
		if err := json.NewEncoder(&body).Encode(httpapi.CreatePostRequest{Text: text, ImageAlt: alt}); err != nil {
			return domain.Post{}, fmt.Errorf("encoding post: %w", err)
		}
		contentType = "application/json"
	} else {
		w := multipart.NewWriter(&body)
		_ = w.WriteField("text", text)
		_ = w.WriteField("imageAlt", alt)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, img.Name))
		h.Set("Content-Type", img.ContentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return domain.Post{}, fmt.Errorf("creating image part: %w", err)
		}
		if _, err := io.Copy(part, img.Body); err != nil {
			return domain.Post{}, fmt.Errorf("reading image: %w", err)
		}
		if err := w.Close(); err != nil {
			return domain.Post{}, fmt.Errorf("finishing upload: %w", err)
		}
		contentType = w.FormDataContentType()
	}

	var post domain.Post
	err := c.do(ctx, http.MethodPost, "/api/posts", &body, contentType, true, &post)
	return post, err
}

// DeletePost removes one of the caller's posts.
func (c *Client) DeletePost(ctx context.Context, postID string) error {
	return c.do(ctx, http.MethodDelete, "/api/posts/"+url.PathEscape(postID), nil, "", true, nil)
}

// Post fetches a single post.
func (c *Client) Post(ctx context.Context, postID string) (domain.Post, error) {
	var post domain.Post
	err := c.do(ctx, http.MethodGet, "/api/posts/"+url.PathEscape(postID), nil, "", false, &post)
	return post, err
}

// Timeline fetches the newest posts. limit <= 0 uses the server default.
func (c *Client) Timeline(ctx context.Context, limit int) ([]domain.Post, error) {
	path := "/api/posts"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var posts []domain.Post
	err := c.do(ctx, http.MethodGet, path, nil, "", false, &posts)
	return posts, err
}

// Me returns the caller's profile, creating it on first use.
func (c *Client) Me(ctx context.Context) (domain.UserProfile, error) {
	var profile domain.UserProfile
	err := c.do(ctx, http.MethodGet, "/api/me", nil, "", true, &profile)
	return profile, err
}

// Favorites returns the caller's favorite posts, newest first.
func (c *Client) Favorites(ctx context.Context) ([]domain.Post, error) {
	var posts []domain.Post
	err := c.do(ctx, http.MethodGet, "/api/me/favorites", nil, "", true, &posts)
	return posts, err
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, authed bool, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if authed {
		if c.tokenProvider == nil {
			return fmt.Errorf("auth: %w: no token provider", domain.ErrUnauthorized)
		}
		token, err := c.tokenProvider.AccessToken()
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: request to %s: %v", domain.ErrUnavailable, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(method, path, resp.StatusCode, data)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("decoding response of %s %s: %w", method, path, err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decoding response of %s %s: %w", method, path, err)
	}
	return nil
}

var codeErrors = map[string]error{
	httpapi.CodeInvalidArgument: domain.ErrInvalidArgument,
	httpapi.CodeUnauthenticated: domain.ErrUnauthorized,
	httpapi.CodeForbidden:       domain.ErrUnauthorized,
	httpapi.CodeNotFound:        domain.ErrNotFound,
	httpapi.CodeAlreadyExists:   domain.ErrAlreadyExists,
	httpapi.CodeConflict:        domain.ErrConflict,
	httpapi.CodeEmptyPost:       domain.ErrEmptyPost,
	httpapi.CodePostTooLong:     domain.ErrPostTooLong,
	httpapi.CodeInvalidImage:    domain.ErrInvalidImage,
	httpapi.CodeImageTooLarge:   domain.ErrImageTooLarge,
	httpapi.CodeUnavailable:     domain.ErrUnavailable,
}

// statusErrors covers responses without a recognizable envelope, such as
// those of a proxy in front of the server.
var statusErrors = map[int]error{
	http.StatusUnauthorized:          domain.ErrUnauthorized,
	http.StatusForbidden:             domain.ErrUnauthorized,
	http.StatusNotFound:              domain.ErrNotFound,
	http.StatusConflict:              domain.ErrConflict,
	http.StatusRequestEntityTooLarge: domain.ErrImageTooLarge,
	http.StatusBadGateway:            domain.ErrUnavailable,
	http.StatusServiceUnavailable:    domain.ErrUnavailable,
	http.StatusGatewayTimeout:        domain.ErrUnavailable,
}

func apiError(method, path string, status int, body []byte) error {
	var resp httpapi.APIResponse
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &resp) == nil && resp.Error != "" {
		msg = resp.Error
	}
	sentinel, ok := codeErrors[resp.Code]
	if !ok {
		sentinel, ok = statusErrors[status]
	}
	if !ok {
		return fmt.Errorf("API %s %s returned %d: %s", method, path, status, msg)
	}
	return fmt.Errorf("%w: API %s %s returned %d: %s", sentinel, method, path, status, msg)
}
