// Package api is the typed client for the knowme REST surface: articles,
// likes, MVPs, topics and the gateway auth routes. One HTTP request per
// operation, no retries; the caller decides what a failure means.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zakzackr/knowme/middleware"
)

// Article is one blog post as served by the articles API.
type Article struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Username  string    `json:"username"`
	LikeCount int       `json:"likeCount"`
	MVPCount  int       `json:"mvpCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// Topic is the discussion theme shown in the header.
type Topic struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// AuthUser is the user payload returned by the auth routes.
type AuthUser struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	Role      string `json:"role"`
}

// AuthResult is the body of a successful login/signup call.
type AuthResult struct {
	Message string   `json:"message"`
	User    AuthUser `json:"user"`
}

// Client issues requests against one base URL. Construct one with the
// server-side base URL for in-cluster calls and one with the public base
// URL for anything a browser-facing embedding performs.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a REST client for the given base URL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// ListArticles fetches the article list.
func (c *Client) ListArticles(ctx context.Context) ([]Article, error) {
	var out struct {
		Articles []Article `json:"articles"`
	}
	if err := c.do(ctx, http.MethodGet, "/articles", nil, &out, "記事一覧の取得に失敗しました。"); err != nil {
		return nil, err
	}
	return out.Articles, nil
}

// GetArticle fetches one article by id.
func (c *Client) GetArticle(ctx context.Context, id int64) (*Article, error) {
	var out Article
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/articles/%d", id), nil, &out, "記事の取得に失敗しました。"); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateArticle posts a new article.
func (c *Client) CreateArticle(ctx context.Context, title, body string) (*Article, error) {
	in := map[string]string{"title": title, "body": body}
	var out Article
	if err := c.do(ctx, http.MethodPost, "/articles", in, &out, "記事の投稿に失敗しました。"); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddLike adds one like to the article.
func (c *Client) AddLike(ctx context.Context, articleID int64) (*Article, error) {
	var out Article
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/articles/%d/likes", articleID), nil, &out, "いいねに失敗しました。"); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddMVP adds one MVP to the article. A user over the MVP cap gets an error
// matching ErrLimitExceeded whose message is the server's, verbatim.
func (c *Client) AddMVP(ctx context.Context, articleID int64) (*Article, error) {
	var out Article
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/articles/%d/mvps", articleID), nil, &out, "MVPに失敗しました。"); err != nil {
		return nil, err
	}
	return &out, nil
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, email, password, username string) (*AuthResult, error) {
	in := map[string]string{"email": email, "password": password, "username": username}
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/signup", in, &out, "新規ユーザー登録に失敗しました。"); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login signs in with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	in := map[string]string{"email": email, "password": password}
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", in, &out, "ログインに失敗しました。"); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout signs the current session out.
func (c *Client) Logout(ctx context.Context) error {
	var out struct {
		Message string `json:"message"`
	}
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, &out, "ログアウトに失敗しました。")
}

// CreateTopic sets the current discussion theme (admin operation).
func (c *Client) CreateTopic(ctx context.Context, title, description string) (*Topic, error) {
	in := map[string]string{"title": title, "description": description}
	var out Topic
	if err := c.do(ctx, http.MethodPost, "/topics", in, &out, "トークテーマの作成に失敗しました。"); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTopic fetches the current discussion theme.
func (c *Client) GetTopic(ctx context.Context) (*Topic, error) {
	var out Topic
	if err := c.do(ctx, http.MethodGet, "/topics", nil, &out, "トークテーマの取得に失敗しました。"); err != nil {
		return nil, err
	}
	return &out, nil
}

// do issues one request and decodes the response. A non-2xx status becomes
// an *Error carrying the server's {code, message}, with fallbackMsg filling
// in when the server body has no message.
func (c *Client) do(ctx context.Context, method, path string, in, out any, fallbackMsg string) error {
	ctx, span := middleware.StartSpan(ctx, "api.request", trace.WithAttributes(
		attribute.String("layer", "api"),
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	))
	defer span.End()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return &Error{Status: 0, Code: CodeInternal, Message: fallbackMsg}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return &Error{Status: resp.StatusCode, Code: CodeInternal, Message: fallbackMsg}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		if apiErr.Code == "" {
			apiErr.Code = CodeInternal
		}
		if apiErr.Message == "" {
			apiErr.Message = fallbackMsg
		}
		span.SetAttributes(attribute.String("api.error_code", apiErr.Code))
		return apiErr
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("api: decode response: %w", err)
		}
	}
	return nil
}
