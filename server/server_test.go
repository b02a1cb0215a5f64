package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mini-redirect/cache"
	"mini-redirect/heart"
	"mini-redirect/store"
)

func TestServerAdvertisesWhileServing(t *testing.T) {
	ctx := context.Background()
	svc := cache.New(store.NewMemory())
	scope := heart.NewStethoscope(svc, "Arith", zerolog.Nop())

	hb, err := heart.New(
		heart.WithCacheService(svc),
		heart.WithServiceType("Arith"),
		heart.WithInstanceName("127.0.0.1:0"),
		heart.WithHeartRate(time.Second),
	)
	if err != nil {
		t.Fatal(err)
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	svr := NewServer("", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("3"))
	}), zerolog.Nop())
	svr.Advertise(hb)

	done := make(chan error, 1)
	go func() { done <- svr.ServeListener(ctx, l) }()

	// Wait for the first beat
	deadline := time.Now().Add(2 * time.Second)
	for !hb.IsBeating() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	live, _ := scope.Auscultate(ctx)
	if len(live) != 1 || live[0] != "127.0.0.1:0" {
		t.Fatalf("expect instance advertised, got %v", live)
	}

	resp, err := http.Get("http://" + l.Addr().String() + "/add")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "3" {
		t.Fatalf("expect 3, got %q", body)
	}

	if err := svr.Shutdown(time.Second); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatalf("expect orderly stop, got %v", err)
	}
	if live, _ := scope.Auscultate(ctx); len(live) != 0 {
		t.Fatalf("expect instance withdrawn on shutdown, got %v", live)
	}
}

func TestServerWaitsForInFlight(t *testing.T) {
	started := make(chan struct{})
	svr := NewServer("", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("done"))
	}), zerolog.Nop())

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go svr.ServeListener(context.Background(), l)

	got := make(chan string, 1)
	go func() {
		resp, err := http.Get("http://" + l.Addr().String() + "/slow")
		if err != nil {
			got <- err.Error()
			return
		}
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		got <- string(b)
	}()

	<-started
	if err := svr.Shutdown(time.Second); err != nil {
		t.Fatal(err)
	}
	if body := <-got; body != "done" {
		t.Fatalf("in-flight request cut short: %q", body)
	}
}
