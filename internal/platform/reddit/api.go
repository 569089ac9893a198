package reddit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"karmabot/internal/domain"
)

type listing struct {
	Data struct {
		Children []struct {
			Kind string `json:"kind"`
			Data link   `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type link struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Subreddit  string  `json:"subreddit"`
	CreatedUTC float64 `json:"created_utc"`
	IsSelf     bool    `json:"is_self"`
}

func (l link) post() domain.Post {
	sec, frac := math.Modf(l.CreatedUTC)
	p := domain.Post{
		ID:        l.ID,
		Title:     l.Title,
		URL:       l.URL,
		Community: l.Subreddit,
		CreatedAt: time.Unix(int64(sec), int64(frac*1e9)).UTC(),
	}
	if l.IsSelf {
		p.URL = ""
	}
	return p
}

// jsonErrors is the api_type=json envelope error list: [[code, message, field], ...].
type jsonErrors [][]any

func (e jsonErrors) err() error {
	if len(e) == 0 {
		return nil
	}
	parts := make([]string, 0, len(e))
	for _, item := range e {
		strs := make([]string, 0, len(item))
		for _, v := range item {
			if v != nil {
				strs = append(strs, fmt.Sprint(v))
			}
		}
		parts = append(parts, strings.Join(strs, ": "))
	}
	return errors.New(strings.Join(parts, "; "))
}

// FetchRecent returns up to limit of the newest posts in community.
func (c *Client) FetchRecent(ctx context.Context, community string, limit int) ([]domain.Post, error) {
	path := "/r/" + url.PathEscape(community) + "/new"
	q := url.Values{"limit": {strconv.Itoa(limit)}, "raw_json": {"1"}}
	var l listing
	if err := c.call(ctx, http.MethodGet, path, "fetch "+community, q, nil, &l); err != nil {
		return nil, err
	}

	posts := make([]domain.Post, 0, len(l.Data.Children))
	for _, ch := range l.Data.Children {
		p := ch.Data.post()
		if p.Community == "" {
			p.Community = community
		}
		posts = append(posts, p)
	}
	if len(posts) > limit && limit > 0 {
		posts = posts[:limit]
	}
	return posts, nil
}

// FindByURL reports whether community already has a post linking to u.
func (c *Client) FindByURL(ctx context.Context, community, u string) (bool, error) {
	path := "/r/" + url.PathEscape(community) + "/search"
	q := url.Values{
		"q":           {"url:" + u},
		"restrict_sr": {"1"},
		"limit":       {"1"},
	}
	var l listing
	if err := c.call(ctx, http.MethodGet, path, "search "+community, q, nil, &l); err != nil {
		return false, err
	}
	return len(l.Data.Children) > 0, nil
}

// SubmitPost creates a link post and returns its id.
func (c *Client) SubmitPost(ctx context.Context, community, title, u string) (string, error) {
	const op = "submit"
	form := url.Values{
		"api_type": {"json"},
		"kind":     {"link"},
		"sr":       {community},
		"title":    {title},
		"url":      {u},
	}
	var resp struct {
		JSON struct {
			Errors jsonErrors `json:"errors"`
			Data   struct {
				ID   string `json:"id"`
				Name string `json:"name"`
				URL  string `json:"url"`
			} `json:"data"`
		} `json:"json"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/submit", op, nil, form, &resp); err != nil {
		return "", err
	}
	if err := resp.JSON.Errors.err(); err != nil {
		return "", &domain.RemoteError{Op: op, StatusCode: http.StatusOK, Err: err}
	}
	return firstNonEmpty(resp.JSON.Data.ID, strings.TrimPrefix(resp.JSON.Data.Name, "t3_")), nil
}

// ReplyTo comments on a post and returns the new comment id.
func (c *Client) ReplyTo(ctx context.Context, postID, text string) (string, error) {
	const op = "comment"
	thing := postID
	if !strings.HasPrefix(thing, "t3_") {
		thing = "t3_" + thing
	}
	form := url.Values{
		"api_type": {"json"},
		"thing_id": {thing},
		"text":     {text},
	}
	var resp struct {
		JSON struct {
			Errors jsonErrors `json:"errors"`
			Data   struct {
				Things []struct {
					Data struct {
						ID   string `json:"id"`
						Name string `json:"name"`
					} `json:"data"`
				} `json:"things"`
			} `json:"data"`
		} `json:"json"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/comment", op, nil, form, &resp); err != nil {
		return "", err
	}
	if err := resp.JSON.Errors.err(); err != nil {
		return "", &domain.RemoteError{Op: op, StatusCode: http.StatusOK, Err: err}
	}
	if len(resp.JSON.Data.Things) == 0 {
		return "", &domain.RemoteError{Op: op, StatusCode: http.StatusOK, Err: errors.New("no comment in response")}
	}
	d := resp.JSON.Data.Things[0].Data
	return firstNonEmpty(d.ID, strings.TrimPrefix(d.Name, "t1_")), nil
}
