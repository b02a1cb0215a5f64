package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func redirectTo(target string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target+r.URL.RequestURI(), http.StatusTemporaryRedirect)
	})
}

func TestResolve(t *testing.T) {
	edge := httptest.NewServer(redirectTo("http://x:9000"))
	defer edge.Close()

	loc, err := NewClient(2).Resolve(context.Background(), http.MethodGet, edge.URL+"/svc/op?q=1")
	if err != nil {
		t.Fatal(err)
	}
	if loc.String() != "http://x:9000/svc/op?q=1" {
		t.Fatalf("unexpected location %s", loc)
	}
}

func TestResolveNotRedirected(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewClient(2).Resolve(context.Background(), http.MethodGet, srv.URL+"/x")
	if !errors.Is(err, ErrNotRedirected) {
		t.Fatalf("expect ErrNotRedirected, got %v", err)
	}
}

func TestDoFollowsAndReplaysBody(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write([]byte(r.Method + " " + r.URL.Path + " " + string(body) + " " + r.Header.Get("X-User")))
	}))
	defer backend.Close()
	edge := httptest.NewServer(redirectTo(backend.URL))
	defer edge.Close()

	resp, err := NewClient(2).Do(context.Background(), http.MethodPost, edge.URL+"/data/read",
		[]byte("payload"), http.Header{"X-User": {"alice"}})
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	got, _ := io.ReadAll(resp.Body)
	if string(got) != "POST /data/read payload alice" {
		t.Fatalf("unexpected response %q", got)
	}
}

func TestDoGivesUpOnLoops(t *testing.T) {
	var loop *httptest.Server
	loop = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, loop.URL+r.URL.Path, http.StatusTemporaryRedirect)
	}))
	defer loop.Close()

	_, err := NewClient(1, WithMaxHops(2)).Do(context.Background(), http.MethodGet, loop.URL+"/x", nil, nil)
	if !errors.Is(err, ErrTooManyHops) {
		t.Fatalf("expect ErrTooManyHops, got %v", err)
	}
	if !strings.Contains(err.Error(), "/x") {
		t.Fatalf("error should name the last location: %v", err)
	}
}
