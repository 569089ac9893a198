// Package reddit is the platform adapter: an OAuth2 script-app client for
// the endpoints the bot needs.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"karmabot/internal/domain"
	logx "karmabot/pkg/logx"
)

const (
	DefaultAuthURL = "https://www.reddit.com"
	DefaultAPIURL  = "https://oauth.reddit.com"

	// Tokens are refreshed this long before they expire.
	tokenRefreshMargin = time.Minute
	maxErrorBody       = 512
)

// Config holds credentials and transport settings.
type Config struct {
	AuthURL      string
	APIURL       string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string

	RatePerSec float64 // 0 disables limiting
	Burst      int
	Timeout    time.Duration

	HTTPClient *http.Client // optional; Timeout is ignored when set
}

// Client talks to the platform API. It is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
	now     func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func New(cfg Config, log logx.Logger) *Client {
	cfg.AuthURL = strings.TrimRight(firstNonEmpty(cfg.AuthURL, DefaultAuthURL), "/")
	cfg.APIURL = strings.TrimRight(firstNonEmpty(cfg.APIURL, DefaultAPIURL), "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = "karmabot/1.0"
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), max(cfg.Burst, 1))
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, http: hc, limiter: lim, log: log, now: time.Now}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	Error       string `json:"error"`
}

// Authenticate performs the password grant and caches the access token.
// Refused credentials are an AuthenticationError; transport and server
// failures are RemoteErrors.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	const op = "access_token"
	form := url.Values{
		"grant_type": {"password"},
		"username":   {c.cfg.Username},
		"password":   {c.cfg.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL+"/api/v1/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return &domain.RemoteError{Op: op, Err: err}
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tr tokenResponse
	if err := c.do(req, op, &tr); err != nil {
		var re *domain.RemoteError
		if errors.As(err, &re) && rejectsCredentials(re.StatusCode) {
			return &domain.AuthenticationError{Op: op, StatusCode: re.StatusCode, Err: re.Err}
		}
		return err
	}
	// Bad credentials come back as 200 with an error field.
	if tr.Error != "" || tr.AccessToken == "" {
		return &domain.AuthenticationError{Op: op, Err: errors.New(firstNonEmpty(tr.Error, "empty access token"))}
	}

	c.token = tr.AccessToken
	ttl := time.Duration(tr.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	c.expires = c.now().Add(ttl)
	c.log.Info("authenticated", logx.String("username", c.cfg.Username), logx.Duration("token_ttl", ttl))
	return nil
}

func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || !c.now().Add(tokenRefreshMargin).Before(c.expires) {
		if err := c.authenticateLocked(ctx); err != nil {
			return "", err
		}
	}
	return c.token, nil
}

// invalidate drops tok if it is still the cached token, forcing the next
// bearer call to authenticate again.
func (c *Client) invalidate(tok string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == tok {
		c.token = ""
	}
}

// call sends an authenticated API request and decodes the response into
// out. A 401 drops the cached token and the request is retried once with a
// fresh session. API-level rejections, 401 and 403 included, are
// RemoteErrors; only a failed token exchange is an AuthenticationError.
func (c *Client) call(ctx context.Context, method, path, op string, query, form url.Values, out any) error {
	u := c.cfg.APIURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	for attempt := 0; ; attempt++ {
		tok, err := c.bearer(ctx)
		if err != nil {
			return err
		}
		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, u, body)
		if err != nil {
			return &domain.RemoteError{Op: op, Err: err}
		}
		req.Header.Set("Authorization", "bearer "+tok)
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		err = c.do(req, op, out)
		var re *domain.RemoteError
		if attempt == 0 && errors.As(err, &re) && re.StatusCode == http.StatusUnauthorized {
			c.log.Warn("token rejected, authenticating again", logx.String("op", op))
			c.invalidate(tok)
			continue
		}
		return err
	}
}

// do sends req through the rate limiter and decodes a 2xx JSON body into out.
func (c *Client) do(req *http.Request, op string, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return &domain.RemoteError{Op: op, Err: err}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		cause := errors.New(strings.TrimSpace(string(snippet)))
		return &domain.RemoteError{Op: op, StatusCode: resp.StatusCode, Err: cause}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.RemoteError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

// rejectsCredentials reports whether a token endpoint status means the
// credentials themselves were refused.
func rejectsCredentials(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
