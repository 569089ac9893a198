package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"karmabot/internal/domain"
	logx "karmabot/pkg/logx"
)

const (
	defaultFetchLimit   = 20
	defaultMinRepostAge = 14 * 24 * time.Hour
)

// DispatcherConfig lists the communities the dispatcher works on.
type DispatcherConfig struct {
	RepostCommunities  []string
	CommentCommunities []string

	FetchLimit     int           // candidates fetched per repost (default 20)
	MinRepostAge   time.Duration // minimum candidate age (default 14 days)
	TitleModifiers []string      // default DefaultTitleModifiers
	FallbackReply  string        // default FallbackReply

	// DryRun logs reposts and replies instead of sending them.
	DryRun bool
}

// DispatcherDeps are the collaborators of a Dispatcher.
type DispatcherDeps struct {
	Platform  Platform
	Generator ReplyGenerator
	Gate      Gate
	Clock     Clock
	Random    Random
	Logger    logx.Logger
}

// Dispatcher runs one cycle at a time: quota gate, action choice, action.
// It is not safe for concurrent use.
type Dispatcher struct {
	cfg  DispatcherConfig
	plat Platform
	gen  ReplyGenerator
	gate Gate
	clk  Clock
	rng  Random
	log  logx.Logger
}

func NewDispatcher(cfg DispatcherConfig, deps DispatcherDeps) *Dispatcher {
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = defaultFetchLimit
	}
	if cfg.MinRepostAge <= 0 {
		cfg.MinRepostAge = defaultMinRepostAge
	}
	if len(cfg.TitleModifiers) == 0 {
		cfg.TitleModifiers = DefaultTitleModifiers
	}
	if strings.TrimSpace(cfg.FallbackReply) == "" {
		cfg.FallbackReply = FallbackReply
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Logger.IsZero() {
		deps.Logger = logx.Nop()
	}
	return &Dispatcher{
		cfg:  cfg,
		plat: deps.Platform,
		gen:  deps.Generator,
		gate: deps.Gate,
		clk:  deps.Clock,
		rng:  deps.Random,
		log:  deps.Logger,
	}
}

// RunCycle performs one cycle. Transient failures and policy skips are
// reported in the Outcome; the error is non-nil only for fatal conditions.
func (d *Dispatcher) RunCycle(ctx context.Context) (domain.Outcome, error) {
	now := d.clk.Now()
	if !d.gate.TryConsume(now) {
		d.log.Info("daily action limit reached, waiting until tomorrow")
		o := domain.Skipped("", domain.SkipQuotaExhausted)
		o.At = now
		return o, nil
	}

	kind := domain.ActionKinds[d.rng.Intn(len(domain.ActionKinds))]
	d.log.Info("performing action", logx.String("kind", string(kind)))

	var (
		o   domain.Outcome
		err error
	)
	switch kind {
	case domain.ActionRepost:
		o, err = d.Repost(ctx, now)
	default:
		o, err = d.Comment(ctx, now)
	}
	o.At = now
	return o, err
}

// Repost copies an old post from a random repost community into another one.
func (d *Dispatcher) Repost(ctx context.Context, now time.Time) (domain.Outcome, error) {
	const kind = domain.ActionRepost
	communities := d.cfg.RepostCommunities
	if len(communities) == 0 {
		d.log.Warn("no repost communities configured")
		return domain.Skipped(kind, domain.SkipNotConfigured), nil
	}

	source := communities[d.rng.Intn(len(communities))]
	log := d.log.With(logx.String("kind", string(kind)), logx.String("community", source))
	log.Info("fetching posts", logx.Int("limit", d.cfg.FetchLimit))

	posts, err := d.plat.FetchRecent(ctx, source, d.cfg.FetchLimit)
	if err != nil {
		log.Error("fetching posts failed", logx.Err(err))
		return d.failed(kind, source, err)
	}
	if len(posts) == 0 {
		log.Warn("no posts found")
		return withCommunity(domain.Skipped(kind, domain.SkipNoContent), source), nil
	}

	post := posts[d.rng.Intn(len(posts))]
	log = log.With(logx.String("post_id", post.ID))
	if age := post.Age(now); age < d.cfg.MinRepostAge {
		log.Info("post is too recent, skipping", logx.Int("age_days", int(age/(24*time.Hour))))
		o := withCommunity(domain.Skipped(kind, domain.SkipTooRecent), source)
		o.PostID = post.ID
		return o, nil
	}
	if strings.TrimSpace(post.URL) == "" {
		log.Info("post has no url, skipping")
		o := withCommunity(domain.Skipped(kind, domain.SkipNoContent), source)
		o.PostID = post.ID
		o.Detail = "candidate has no url"
		return o, nil
	}

	targets := make([]string, 0, len(communities))
	for _, c := range communities {
		if c != source {
			targets = append(targets, c)
		}
	}
	if len(targets) == 0 {
		log.Warn("no distinct target community configured")
		o := withCommunity(domain.Skipped(kind, domain.SkipNoTarget), source)
		o.PostID = post.ID
		return o, nil
	}
	target := targets[d.rng.Intn(len(targets))]
	log = log.With(logx.String("target", target))

	log.Info("checking if the post url already exists", logx.String("url", post.URL))
	exists, err := d.plat.FindByURL(ctx, target, post.URL)
	if err != nil {
		log.Error("duplicate check failed", logx.Err(err))
		o, ferr := d.failed(kind, source, err)
		o.Target, o.PostID = target, post.ID
		return o, ferr
	}
	if exists {
		log.Info("post url already exists in target, skipping repost")
		o := withCommunity(domain.Skipped(kind, domain.SkipDuplicate), source)
		o.Target, o.PostID = target, post.ID
		return o, nil
	}

	title := d.cfg.TitleModifiers[d.rng.Intn(len(d.cfg.TitleModifiers))] + post.Title
	o := withCommunity(domain.Dispatched(kind), source)
	o.Target, o.PostID, o.Detail = target, post.ID, title

	if d.cfg.DryRun {
		log.Info("repost simulated", logx.String("title", title))
		return o, nil
	}
	id, err := d.plat.SubmitPost(ctx, target, title, post.URL)
	if err != nil {
		log.Error("repost failed", logx.Err(err))
		f, ferr := d.failed(kind, source, err)
		f.Target, f.PostID, f.Detail = target, post.ID, title
		return f, ferr
	}
	o.ResultID = id
	log.Info("reposted", logx.String("title", title), logx.String("new_post_id", id))
	return o, nil
}

// Comment replies to the newest post of every comment community. A failure
// in one community does not stop the others; only a lost session does.
func (d *Dispatcher) Comment(ctx context.Context, now time.Time) (domain.Outcome, error) {
	const kind = domain.ActionComment
	communities := d.cfg.CommentCommunities
	if len(communities) == 0 {
		d.log.Warn("no comment communities configured")
		return domain.Skipped(kind, domain.SkipNotConfigured), nil
	}

	parent := domain.Outcome{Kind: kind}
	var fatal error
	for _, community := range communities {
		if ctx.Err() != nil {
			break
		}
		child, err := d.commentOn(ctx, community)
		child.At = now
		parent.Children = append(parent.Children, child)
		if err != nil {
			fatal = err
			break
		}
	}

	parent.Status, parent.Reason = domain.StatusSkipped, domain.SkipNoContent
	for _, c := range parent.Children {
		switch c.Status {
		case domain.StatusDispatched:
			parent.Status, parent.Reason, parent.Err = domain.StatusDispatched, "", nil
		case domain.StatusFailed:
			if parent.Status != domain.StatusDispatched {
				parent.Status, parent.Reason = domain.StatusFailed, ""
				parent.Err = errors.Join(parent.Err, c.Err)
			}
		}
	}
	return parent, fatal
}

func (d *Dispatcher) commentOn(ctx context.Context, community string) (domain.Outcome, error) {
	const kind = domain.ActionComment
	log := d.log.With(logx.String("kind", string(kind)), logx.String("community", community))
	log.Info("fetching most recent post")

	posts, err := d.plat.FetchRecent(ctx, community, 1)
	if err != nil {
		log.Error("interacting with post failed", logx.Err(err))
		return d.failed(kind, community, err)
	}
	if len(posts) == 0 {
		log.Warn("no posts found")
		return withCommunity(domain.Skipped(kind, domain.SkipNoContent), community), nil
	}

	post := posts[0]
	log = log.With(logx.String("post_id", post.ID))
	log.Info("selected post for interaction", logx.String("title", clip(post.Title, 50)))

	text := d.replyText(ctx, log, post.Title, community)
	o := withCommunity(domain.Dispatched(kind), community)
	o.PostID, o.Detail = post.ID, text

	if d.cfg.DryRun {
		log.Info("reply simulated", logx.String("text", text))
		return o, nil
	}
	id, err := d.plat.ReplyTo(ctx, post.ID, text)
	if err != nil {
		log.Error("interacting with post failed", logx.Err(err))
		f, ferr := d.failed(kind, community, err)
		f.PostID, f.Detail = post.ID, text
		return f, ferr
	}
	o.ResultID = id
	log.Info("commented", logx.String("reply_id", id), logx.String("text", text))
	return o, nil
}

func (d *Dispatcher) replyText(ctx context.Context, log logx.Logger, seed, community string) string {
	if d.gen == nil {
		return d.cfg.FallbackReply
	}
	text, err := d.gen.GenerateReply(ctx, seed, community)
	if err != nil {
		log.Warn("reply generation failed, using fallback", logx.Err(err))
		return d.cfg.FallbackReply
	}
	if strings.TrimSpace(text) == "" {
		log.Warn("reply generation returned empty text, using fallback")
		return d.cfg.FallbackReply
	}
	return text
}

// failed builds a failed outcome and surfaces err only when it is fatal.
func (d *Dispatcher) failed(kind domain.ActionKind, community string, err error) (domain.Outcome, error) {
	o := withCommunity(domain.Failed(kind, err), community)
	if domain.IsFatal(err) {
		return o, err
	}
	return o, nil
}

func withCommunity(o domain.Outcome, community string) domain.Outcome {
	o.Community = community
	return o
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
