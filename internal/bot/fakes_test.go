package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"karmabot/internal/domain"
	"karmabot/internal/pacing"
)

type submission struct {
	community, title, url string
}

type reply struct {
	postID, text string
}

type fakePlatform struct {
	mu sync.Mutex

	posts     map[string][]domain.Post
	fetchErr  map[string]error
	exists    bool
	findErr   error
	submitErr error
	replyErr  error

	fetches     []string
	finds       []string
	submissions []submission
	replies     []reply
}

func (p *fakePlatform) FetchRecent(_ context.Context, community string, limit int) ([]domain.Post, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetches = append(p.fetches, community)
	if err := p.fetchErr[community]; err != nil {
		return nil, err
	}
	posts := p.posts[community]
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (p *fakePlatform) FindByURL(_ context.Context, community, url string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finds = append(p.finds, community+" "+url)
	return p.exists, p.findErr
}

func (p *fakePlatform) SubmitPost(_ context.Context, community, title, url string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitErr != nil {
		return "", p.submitErr
	}
	p.submissions = append(p.submissions, submission{community, title, url})
	return "new1", nil
}

func (p *fakePlatform) ReplyTo(_ context.Context, postID, text string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.replyErr != nil {
		return "", p.replyErr
	}
	p.replies = append(p.replies, reply{postID, text})
	return "c_" + postID, nil
}

type fakeGenerator struct {
	text string
	err  error
}

func (g fakeGenerator) GenerateReply(_ context.Context, seed, community string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	if g.text != "" {
		return g.text, nil
	}
	return community + ":" + seed, nil
}

type fakeGate struct{ allow bool }

func (g fakeGate) TryConsume(time.Time) bool { return g.allow }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// scriptedRandom returns vals in order (mod n), then zeros.
type scriptedRandom struct {
	vals []int
	i    int
}

func (r *scriptedRandom) Intn(n int) int {
	if r.i >= len(r.vals) {
		return 0
	}
	v := r.vals[r.i] % n
	r.i++
	return v
}

type fakeCycler struct {
	mu      sync.Mutex
	calls   int
	results []cycleResult
	onCall  func(call int)
}

type cycleResult struct {
	o     domain.Outcome
	err   error
	panic any
}

func (c *fakeCycler) RunCycle(context.Context) (domain.Outcome, error) {
	c.mu.Lock()
	c.calls++
	call := c.calls
	var res cycleResult
	if call <= len(c.results) {
		res = c.results[call-1]
	} else {
		res = cycleResult{o: domain.Dispatched(domain.ActionRepost)}
	}
	hook := c.onCall
	c.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if res.panic != nil {
		panic(res.panic)
	}
	return res.o, res.err
}

func (c *fakeCycler) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fixedPacer struct{ d time.Duration }

func (p fixedPacer) Next(time.Time) pacing.Delay {
	return pacing.Delay{Duration: p.d, Regime: pacing.RegimeActive, MinSeconds: 1, MaxSeconds: 2}
}

type recordingRecorder struct {
	mu       sync.Mutex
	outcomes []domain.Outcome
	delays   []pacing.Delay
}

func (r *recordingRecorder) RecordOutcome(_ context.Context, o domain.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recordingRecorder) ObserveDelay(d pacing.Delay) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
}

var errTransient = &domain.RemoteError{Op: "fetch", StatusCode: 503, Err: errors.New("unavailable")}
