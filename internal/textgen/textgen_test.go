package textgen

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"

	logx "karmabot/pkg/logx"
)

func TestEcho(t *testing.T) {
	t.Parallel()
	cases := []struct{ seed, want string }{
		{"", ","},
		{"short", ",short"},
		{strings.Repeat("x", 60), "," + strings.Repeat("x", 50)},
		{strings.Repeat("é", 55), "," + strings.Repeat("é", 50)},
	}
	for _, tc := range cases {
		got, err := Echo{}.GenerateReply(context.Background(), tc.seed, "golang")
		if err != nil || got != tc.want {
			t.Errorf("Echo(%q) = %q, %v; want %q", tc.seed, got, err, tc.want)
		}
	}
}

func TestNewSelectsDriver(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "echo", "ECHO"} {
		g, err := New(context.Background(), Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("New(%q): %v", driver, err)
		}
		if _, ok := g.(Echo); !ok {
			t.Fatalf("New(%q) = %T, want Echo", driver, g)
		}
	}
	if _, err := New(context.Background(), Config{Driver: "gemini"}, logx.Nop()); err == nil {
		t.Fatal("gemini without api key should fail")
	}
	if _, err := New(context.Background(), Config{Driver: "gpt"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver should fail")
	}
}

func TestFirstText(t *testing.T) {
	t.Parallel()
	if got := firstText(nil); got != "" {
		t.Fatalf("nil response = %q", got)
	}
	res := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: nil},
		{Content: &genai.Content{Parts: []*genai.Part{{Text: "  Nice "}, {Text: "post! "}}}},
	}}
	if got := firstText(res); got != "Nice post!" {
		t.Fatalf("firstText = %q", got)
	}
}

func TestRetryableWithNextModel(t *testing.T) {
	t.Parallel()
	if !retryableWithNextModel(errors.New("Error 429, RESOURCE_EXHAUSTED")) {
		t.Fatal("429 should move to the next model")
	}
	if retryableWithNextModel(errors.New("Error 400, INVALID_ARGUMENT")) {
		t.Fatal("400 should not move to the next model")
	}
}
