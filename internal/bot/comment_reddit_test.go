package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"karmabot/internal/domain"
	"karmabot/internal/platform/reddit"
	logx "karmabot/pkg/logx"
)

// forbiddingAPI serves one post per community and answers 403 for the
// communities in forbidden.
type forbiddingAPI struct {
	forbidden map[string]bool

	mu   sync.Mutex
	hits []string
}

func (f *forbiddingAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits = append(f.hits, r.URL.Path)
	f.mu.Unlock()

	if r.URL.Path == "/api/v1/access_token" {
		fmt.Fprint(w, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`)
		return
	}
	if r.URL.Path == "/api/comment" {
		fmt.Fprint(w, `{"json":{"errors":[],"data":{"things":[{"kind":"t1","data":{"id":"c1"}}]}}}`)
		return
	}
	if !strings.HasPrefix(r.URL.Path, "/r/") || !strings.HasSuffix(r.URL.Path, "/new") {
		http.NotFound(w, r)
		return
	}
	community := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/r/"), "/new")
	if f.forbidden[community] {
		http.Error(w, `{"reason":"private","message":"Forbidden","error":403}`, http.StatusForbidden)
		return
	}
	fmt.Fprintf(w, `{"data":{"children":[{"kind":"t3","data":{"id":"%s1","title":"post in %s","subreddit":"%s","created_utc":1700000000}}]}}`,
		community, community, community)
}

func (f *forbiddingAPI) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.hits...)
}

func TestCommentCycleSurvivesForbiddenCommunity(t *testing.T) {
	t.Parallel()
	api := &forbiddingAPI{forbidden: map[string]bool{"b": true}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	client := reddit.New(reddit.Config{
		AuthURL:      srv.URL,
		APIURL:       srv.URL,
		ClientID:     "cid",
		ClientSecret: "secret",
		Username:     "alice",
		Password:     "pw",
		Timeout:      5 * time.Second,
	}, logx.Nop())

	d := NewDispatcher(DispatcherConfig{CommentCommunities: []string{"a", "b", "c"}}, DispatcherDeps{
		Platform:  client,
		Generator: fakeGenerator{},
		Gate:      fakeGate{allow: true},
		Clock:     fixedClock{t: testNow},
		Random:    &scriptedRandom{vals: []int{1}}, // comment
	})

	o, err := d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v (a forbidden community must not stop the loop)", err)
	}
	if o.Kind != domain.ActionComment || o.Status != domain.StatusDispatched {
		t.Fatalf("outcome = %+v, want dispatched comment", o)
	}
	if len(o.Children) != 3 {
		t.Fatalf("children = %+v, want 3", o.Children)
	}
	want := []domain.Status{domain.StatusDispatched, domain.StatusFailed, domain.StatusDispatched}
	for i, c := range o.Children {
		if c.Status != want[i] {
			t.Fatalf("child %d (%s) status = %s, want %s", i, c.Community, c.Status, want[i])
		}
	}
	var re *domain.RemoteError
	if !errors.As(o.Children[1].Err, &re) || re.StatusCode != http.StatusForbidden {
		t.Fatalf("child b err = %v, want 403 RemoteError", o.Children[1].Err)
	}

	wantPaths := []string{"/api/v1/access_token", "/r/a/new", "/api/comment", "/r/b/new", "/r/c/new", "/api/comment"}
	got := api.paths()
	if fmt.Sprint(got) != fmt.Sprint(wantPaths) {
		t.Fatalf("requests = %v, want %v", got, wantPaths)
	}
}
