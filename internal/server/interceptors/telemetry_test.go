package interceptors

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"session-control-plane/internal/security"
	"session-control-plane/internal/telemetry/domain"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []*domain.Event
	done   chan struct{}
}

func (c *captureEmitter) Emit(ctx context.Context, e *domain.Event) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	c.done <- struct{}{}
	return nil
}

func TestTelemetryUnary_EmitsEvent(t *testing.T) {
	em := &captureEmitter{done: make(chan struct{}, 1)}
	interceptor := TelemetryUnary(em, nil)
	ctx := WithClaims(context.Background(), &security.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice@example.com"}, CredentialID: "c1", Kind: "ACCESS",
	})
	wantErr := errors.New("boom")
	_, err := interceptor(ctx, "req", &grpc.UnaryServerInfo{FullMethod: "/svc/M"}, func(context.Context, interface{}) (interface{}, error) {
		return nil, wantErr
	})
	if err != wantErr {
		t.Fatalf("err = %v, want handler error", err)
	}
	select {
	case <-em.done:
	case <-time.After(2 * time.Second):
		t.Fatal("no event emitted")
	}
	ev := em.events[0]
	if ev.Type != EventRPC || ev.Subject != "alice@example.com" || ev.CredentialID != "c1" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Attributes["full_method"] != "/svc/M" || ev.Attributes["status_code"] != "Unknown" {
		t.Errorf("attributes = %v", ev.Attributes)
	}
}

func TestTelemetryUnary_SkipAndNil(t *testing.T) {
	em := &captureEmitter{done: make(chan struct{}, 1)}
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	if _, err := TelemetryUnary(em, map[string]bool{info.FullMethod: true})(context.Background(), nil, info, okHandler); err != nil {
		t.Fatal(err)
	}
	if _, err := TelemetryUnary(nil, nil)(context.Background(), nil, info, okHandler); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	em.mu.Lock()
	defer em.mu.Unlock()
	if len(em.events) != 0 {
		t.Errorf("skipped method emitted %d events", len(em.events))
	}
}

func TestClientIP(t *testing.T) {
	md := func(kv ...string) context.Context {
		return metadata.NewIncomingContext(context.Background(), metadata.Pairs(kv...))
	}
	testCases := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"x-forwarded-for", md("x-forwarded-for", "192.168.1.1"), "192.168.1.1"},
		{"x-forwarded-for chain", md("x-forwarded-for", "192.168.1.1, 10.0.0.1"), "192.168.1.1"},
		{"x-real-ip", md("x-real-ip", "192.168.1.2"), "192.168.1.2"},
		{"forwarded wins", md("x-forwarded-for", "192.168.1.1", "x-real-ip", "192.168.1.2"), "192.168.1.1"},
		{"whitespace", md("x-forwarded-for", "  192.168.1.1  "), "192.168.1.1"},
		{"peer", peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("192.168.1.3"), Port: 12345}}), "192.168.1.3"},
		{"unknown", context.Background(), "unknown"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClientIP(tc.ctx); got != tc.want {
				t.Errorf("ClientIP = %q, want %q", got, tc.want)
			}
		})
	}
}
