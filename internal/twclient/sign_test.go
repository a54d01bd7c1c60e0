package twclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestOAuth1SigningAddsHeader(t *testing.T) {
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("[]"))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	if _, err := c.FetchPage(context.Background(), "/statuses/mentions_timeline.json", url.Values{"count": {"200"}}); err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(auth, "OAuth ") {
		t.Fatalf("missing OAuth header, got %q", auth)
	}
	for _, want := range []string{`oauth_consumer_key="ck"`, `oauth_token="at"`, `oauth_signature_method="HMAC-SHA1"`, "oauth_signature="} {
		if !strings.Contains(auth, want) {
			t.Fatalf("header missing %s: %q", want, auth)
		}
	}
}

func TestOAuth1SignatureIsDeterministic(t *testing.T) {
	sign := func() string {
		c := New(Credentials{ConsumerKey: "ck", ConsumerSecret: "cs", AccessToken: "at", AccessSecret: "as"})
		c.nowFn = func() time.Time { return time.Unix(1700000000, 0) }
		c.nonceFn = func() string { return "fixednonce" }
		req, _ := http.NewRequest(http.MethodGet, "https://api.twitter.com/1.1/statuses/user_timeline.json?count=200", nil)
		c.oauth1Sign(req, url.Values{"count": {"200"}})
		return req.Header.Get("Authorization")
	}
	if sign() != sign() {
		t.Fatal("same inputs must produce the same signature")
	}
}
