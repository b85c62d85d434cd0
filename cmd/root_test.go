package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/augument/impulsecommunicator/internal/auth"
)

const invokerRule = `[{"bot_name":"AutoModerator","reply_on":"comment","reply_to":"invoker","answers":["hi there"]}]`

// fakeRedditAPI serves the token, identity, listing and reply endpoints
// for a single subreddit holding one comment.
type fakeRedditAPI struct {
	srv     *httptest.Server
	mu      sync.Mutex
	replies []url.Values
	once    sync.Once
	replied chan struct{}
}

func newFakeRedditAPI(t *testing.T) *fakeRedditAPI {
	t.Helper()
	f := &fakeRedditAPI{replied: make(chan struct{})}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/api/v1/me", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"impulsebot"}`)
	})
	mux.HandleFunc("/r/test/comments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"kind":"Listing","data":{"children":[{"kind":"t1","data":{
			"id":"c1","name":"t1_c1","author":"AutoModerator","body":"Beep Boop",
			"parent_id":"t1_p1","link_id":"t3_l1"}}]}}`)
	})
	mux.HandleFunc("/api/comment", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing reply form: %v", err)
		}
		f.mu.Lock()
		f.replies = append(f.replies, r.PostForm)
		f.mu.Unlock()
		fmt.Fprint(w, `{"json":{"errors":[]}}`)
		f.once.Do(func() { close(f.replied) })
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRedditAPI) postedReplies() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.replies...)
}

// startBot runs the root command in the background against api and
// returns the log buffer and the command's result.
func startBot(t *testing.T, ctx context.Context, api *fakeRedditAPI, extra ...string) (*bytes.Buffer, <-chan error) {
	t.Helper()
	authFile, runFile := writeSettings(t, t.TempDir(), invokerRule)

	loginOptions = auth.Options{
		TokenURL:   api.srv.URL + "/api/v1/access_token",
		APIBaseURL: api.srv.URL,
		HTTPClient: api.srv.Client(),
	}
	t.Cleanup(func() {
		loginOptions = auth.Options{}
		noNotify, skipExisting, metricsAddr = false, false, ""
		rootCmd.SetArgs(nil)
		rootCmd.SetContext(context.Background())
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--auth", authFile, "--run", runFile, "--env-file", ""}, extra...))

	done := make(chan error, 1)
	go func() { done <- rootCmd.ExecuteContext(ctx) }()
	return &out, done
}

func waitReplied(t *testing.T, api *fakeRedditAPI, done <-chan error, out *bytes.Buffer) {
	t.Helper()
	select {
	case <-api.replied:
	case err := <-done:
		t.Fatalf("bot exited before replying: %v\n%s", err, out.String())
	case <-time.After(10 * time.Second):
		t.Fatal("no reply posted")
	}
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("bot did not stop")
		return nil
	}
}

func TestRootExitsCleanlyOnSIGTERM(t *testing.T) {
	api := newFakeRedditAPI(t)
	out, done := startBot(t, context.Background(), api)
	waitReplied(t, api, done, out)

	select {
	case err := <-done:
		t.Fatalf("bot exited before the signal: %v\n%s", err, out.String())
	default:
	}
	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("sending SIGTERM: %v", err)
	}

	if err := waitDone(t, done); err != nil {
		t.Fatalf("expected a clean exit on SIGTERM, got %v\n%s", err, out.String())
	}
	logs := out.String()
	for _, want := range []string{"msg=started", "user=impulsebot", "subreddit=test", "msg=REPLY", "msg=terminated"} {
		if !strings.Contains(logs, want) {
			t.Errorf("log output missing %q:\n%s", want, logs)
		}
	}

	replies := api.postedReplies()
	if len(replies) != 1 || replies[0].Get("thing_id") != "t1_p1" || replies[0].Get("text") != "hi there" {
		t.Errorf("unexpected replies: %v", replies)
	}
}

func TestRootNoNotifyStillReplies(t *testing.T) {
	api := newFakeRedditAPI(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out, done := startBot(t, ctx, api, "-n")
	waitReplied(t, api, done, out)
	cancel()

	if err := waitDone(t, done); err != nil {
		t.Fatalf("expected a clean exit on cancellation, got %v\n%s", err, out.String())
	}
	logs := out.String()
	if strings.Contains(logs, "REPLY") {
		t.Errorf("REPLY line logged despite -n:\n%s", logs)
	}
	if !strings.Contains(logs, "msg=terminated") {
		t.Errorf("missing terminated line:\n%s", logs)
	}
	if replies := api.postedReplies(); len(replies) != 1 {
		t.Errorf("expected one reply with notifications off, got %d", len(replies))
	}
}

func TestRootReportsConfigErrors(t *testing.T) {
	api := newFakeRedditAPI(t)
	dir := t.TempDir()
	out, done := startBot(t, context.Background(), api, "--run", dir+"/missing.conf")

	err := waitDone(t, done)
	if err == nil {
		t.Fatalf("expected an error for a missing run file\n%s", out.String())
	}
	if !strings.Contains(err.Error(), "missing.conf") {
		t.Errorf("error should name the file: %v", err)
	}
}
