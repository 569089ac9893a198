package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"karmabot/internal/domain"
	logx "karmabot/pkg/logx"
)

type fakeAPI struct {
	t          *testing.T
	tokenCalls atomic.Int32
	tokenBody  string
	status     map[string]int // path -> forced status
	lastForm   atomic.Value   // map[string]string
	lastQuery  atomic.Value   // string
	searchHits atomic.Int32
	rejectAPI  atomic.Int32 // API calls still to answer with 401
	maxTokens  int32        // token grants before invalid_grant; 0 is unlimited
}

func newFakeAPI(t *testing.T, configure ...func(*fakeAPI)) (*fakeAPI, *httptest.Server) {
	f := &fakeAPI{t: t, status: map[string]int{}, tokenBody: `{"access_token":"tok","token_type":"bearer","expires_in":3600}`}
	for _, fn := range configure {
		fn(f)
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	if code, ok := f.status[r.URL.Path]; ok {
		http.Error(w, "forced", code)
		return
	}
	if r.URL.Path == "/api/v1/access_token" {
		n := f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "cid" || pass != "csecret" {
			http.Error(w, "bad client", http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "password" || r.PostForm.Get("username") != "alice" {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if f.maxTokens > 0 && n > f.maxTokens {
			fmt.Fprint(w, `{"error":"invalid_grant"}`)
			return
		}
		fmt.Fprint(w, f.tokenBody)
		return
	}
	if f.rejectAPI.Load() > 0 {
		f.rejectAPI.Add(-1)
		http.Error(w, "expired", http.StatusUnauthorized)
		return
	}

	if r.Header.Get("Authorization") != "bearer tok" {
		http.Error(w, "no token", http.StatusUnauthorized)
		return
	}
	if r.Header.Get("User-Agent") != "test-agent" {
		http.Error(w, "no ua", http.StatusTooManyRequests)
		return
	}
	f.lastQuery.Store(r.URL.RawQuery)

	switch r.URL.Path {
	case "/r/pics/new":
		fmt.Fprint(w, `{"kind":"Listing","data":{"children":[
			{"kind":"t3","data":{"id":"a1","title":"cat","url":"https://i.example/cat.jpg","subreddit":"pics","created_utc":1700000000.5,"is_self":false}},
			{"kind":"t3","data":{"id":"a2","title":"question","url":"https://www.reddit.com/r/pics/comments/a2/","subreddit":"pics","created_utc":1700000100,"is_self":true}}
		]}}`)
	case "/r/funny/search":
		children := ""
		if f.searchHits.Load() > 0 {
			children = `{"kind":"t3","data":{"id":"d1"}}`
		}
		fmt.Fprintf(w, `{"data":{"children":[%s]}}`, children)
	case "/api/submit":
		f.storeForm(r)
		if r.PostForm.Get("title") == "bad" {
			fmt.Fprint(w, `{"json":{"errors":[["SUBREDDIT_NOTALLOWED","not allowed","sr"]]}}`)
			return
		}
		fmt.Fprint(w, `{"json":{"errors":[],"data":{"id":"new1","name":"t3_new1","url":"https://reddit.example/new1"}}}`)
	case "/api/comment":
		f.storeForm(r)
		fmt.Fprint(w, `{"json":{"errors":[],"data":{"things":[{"kind":"t1","data":{"id":"c9","name":"t1_c9"}}]}}}`)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAPI) storeForm(r *http.Request) {
	if err := r.ParseForm(); err != nil {
		f.t.Errorf("parse form: %v", err)
	}
	m := map[string]string{}
	for k := range r.PostForm {
		m[k] = r.PostForm.Get(k)
	}
	f.lastForm.Store(m)
}

func (f *fakeAPI) form() map[string]string {
	m, _ := f.lastForm.Load().(map[string]string)
	return m
}

func newTestClient(srv *httptest.Server) *Client {
	return New(Config{
		AuthURL:      srv.URL,
		APIURL:       srv.URL,
		ClientID:     "cid",
		ClientSecret: "csecret",
		Username:     "alice",
		Password:     "pw",
		UserAgent:    "test-agent",
		Timeout:      5 * time.Second,
	}, logx.Nop())
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()
	f, srv := newFakeAPI(t)
	c := newTestClient(srv)
	if err := c.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	// Cached token is reused.
	if _, err := c.FetchRecent(context.Background(), "pics", 5); err != nil {
		t.Fatalf("FetchRecent: %v", err)
	}
	if got := f.tokenCalls.Load(); got != 1 {
		t.Fatalf("token calls = %d, want 1", got)
	}
}

func TestAuthenticateFailures(t *testing.T) {
	t.Parallel()

	t.Run("invalid grant", func(t *testing.T) {
		t.Parallel()
		_, srv := newFakeAPI(t, func(f *fakeAPI) { f.tokenBody = `{"error":"invalid_grant"}` })
		err := newTestClient(srv).Authenticate(context.Background())
		if !errors.Is(err, domain.ErrAuthentication) {
			t.Fatalf("err = %v, want ErrAuthentication", err)
		}
	})
	t.Run("bad client", func(t *testing.T) {
		t.Parallel()
		_, srv := newFakeAPI(t)
		c := newTestClient(srv)
		c.cfg.ClientSecret = "wrong"
		err := c.Authenticate(context.Background())
		var ae *domain.AuthenticationError
		if !errors.As(err, &ae) || ae.StatusCode != http.StatusUnauthorized {
			t.Fatalf("err = %v, want 401 AuthenticationError", err)
		}
	})
}

func TestTokenRefreshedBeforeExpiry(t *testing.T) {
	t.Parallel()
	f, srv := newFakeAPI(t)
	c := newTestClient(srv)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if _, err := c.FetchRecent(context.Background(), "pics", 1); err != nil {
		t.Fatal(err)
	}
	now = now.Add(59*time.Minute + 30*time.Second)
	if _, err := c.FetchRecent(context.Background(), "pics", 1); err != nil {
		t.Fatal(err)
	}
	if got := f.tokenCalls.Load(); got != 2 {
		t.Fatalf("token calls = %d, want 2", got)
	}
}

func TestFetchRecent(t *testing.T) {
	t.Parallel()
	f, srv := newFakeAPI(t)
	posts, err := newTestClient(srv).FetchRecent(context.Background(), "pics", 20)
	if err != nil {
		t.Fatalf("FetchRecent: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("posts = %+v", posts)
	}
	if posts[0].ID != "a1" || posts[0].URL != "https://i.example/cat.jpg" || posts[0].Community != "pics" {
		t.Fatalf("post 0 = %+v", posts[0])
	}
	if want := time.Unix(1700000000, 5e8).UTC(); !posts[0].CreatedAt.Equal(want) {
		t.Fatalf("CreatedAt = %v, want %v", posts[0].CreatedAt, want)
	}
	if posts[1].URL != "" {
		t.Fatalf("self post should have no url: %+v", posts[1])
	}
	if q, _ := f.lastQuery.Load().(string); q != "limit=20&raw_json=1" {
		t.Fatalf("query = %q", q)
	}
}

func TestFindByURL(t *testing.T) {
	t.Parallel()
	f, srv := newFakeAPI(t)
	c := newTestClient(srv)

	found, err := c.FindByURL(context.Background(), "funny", "https://i.example/cat.jpg")
	if err != nil || found {
		t.Fatalf("FindByURL = %v, %v; want false", found, err)
	}
	if q, _ := f.lastQuery.Load().(string); q != "limit=1&q=url%3Ahttps%3A%2F%2Fi.example%2Fcat.jpg&restrict_sr=1" {
		t.Fatalf("query = %q", q)
	}

	f.searchHits.Store(1)
	found, err = c.FindByURL(context.Background(), "funny", "https://i.example/cat.jpg")
	if err != nil || !found {
		t.Fatalf("FindByURL = %v, %v; want true", found, err)
	}
}

func TestSubmitPost(t *testing.T) {
	t.Parallel()
	f, srv := newFakeAPI(t)
	c := newTestClient(srv)

	id, err := c.SubmitPost(context.Background(), "funny", "Wow: cat", "https://i.example/cat.jpg")
	if err != nil || id != "new1" {
		t.Fatalf("SubmitPost = %q, %v", id, err)
	}
	want := map[string]string{"api_type": "json", "kind": "link", "sr": "funny", "title": "Wow: cat", "url": "https://i.example/cat.jpg"}
	got, _ := json.Marshal(f.form())
	exp, _ := json.Marshal(want)
	if string(got) != string(exp) {
		t.Fatalf("form = %s, want %s", got, exp)
	}

	_, err = c.SubmitPost(context.Background(), "funny", "bad", "https://i.example/cat.jpg")
	var re *domain.RemoteError
	if !errors.As(err, &re) || domain.IsFatal(err) {
		t.Fatalf("err = %v, want non-fatal RemoteError", err)
	}
}

func TestReplyTo(t *testing.T) {
	t.Parallel()
	f, srv := newFakeAPI(t)
	id, err := newTestClient(srv).ReplyTo(context.Background(), "a1", "nice")
	if err != nil || id != "c9" {
		t.Fatalf("ReplyTo = %q, %v", id, err)
	}
	if f.form()["thing_id"] != "t3_a1" || f.form()["text"] != "nice" {
		t.Fatalf("form = %v", f.form())
	}
}

func TestStatusClassification(t *testing.T) {
	t.Parallel()
	for _, status := range []int{
		http.StatusInternalServerError,
		http.StatusTooManyRequests,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusUnauthorized,
	} {
		_, srv := newFakeAPI(t, func(f *fakeAPI) { f.status["/r/pics/new"] = status })
		_, err := newTestClient(srv).FetchRecent(context.Background(), "pics", 1)
		if domain.IsFatal(err) {
			t.Fatalf("status %d: IsFatal = true (%v)", status, err)
		}
		var re *domain.RemoteError
		if !errors.As(err, &re) || re.StatusCode != status {
			t.Fatalf("status %d: err = %v, want RemoteError", status, err)
		}
	}
}

func TestUnauthorizedAuthenticatesAgainOnce(t *testing.T) {
	t.Parallel()

	t.Run("fresh token succeeds", func(t *testing.T) {
		t.Parallel()
		f, srv := newFakeAPI(t)
		c := newTestClient(srv)
		if err := c.Authenticate(context.Background()); err != nil {
			t.Fatal(err)
		}
		f.rejectAPI.Store(1)
		if _, err := c.FetchRecent(context.Background(), "pics", 1); err != nil {
			t.Fatalf("FetchRecent: %v", err)
		}
		if got := f.tokenCalls.Load(); got != 2 {
			t.Fatalf("token calls = %d, want 2", got)
		}
	})
	t.Run("still rejected", func(t *testing.T) {
		t.Parallel()
		f, srv := newFakeAPI(t, func(f *fakeAPI) { f.status["/api/comment"] = http.StatusUnauthorized })
		_, err := newTestClient(srv).ReplyTo(context.Background(), "a1", "nice")
		var re *domain.RemoteError
		if !errors.As(err, &re) || re.StatusCode != http.StatusUnauthorized || domain.IsFatal(err) {
			t.Fatalf("err = %v, want non-fatal 401 RemoteError", err)
		}
		if got := f.tokenCalls.Load(); got != 2 {
			t.Fatalf("token calls = %d, want 2", got)
		}
	})
	t.Run("session lost", func(t *testing.T) {
		t.Parallel()
		f, srv := newFakeAPI(t, func(f *fakeAPI) { f.maxTokens = 1 })
		c := newTestClient(srv)
		if err := c.Authenticate(context.Background()); err != nil {
			t.Fatal(err)
		}
		f.rejectAPI.Store(1)
		_, err := c.FetchRecent(context.Background(), "pics", 1)
		if !domain.IsFatal(err) {
			t.Fatalf("err = %v, want fatal AuthenticationError", err)
		}
	})
}
