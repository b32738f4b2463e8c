package server

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	healthhandler "session-control-plane/internal/health/handler"
	"session-control-plane/internal/security"
)

type rejectAll struct{}

func (rejectAll) Verify(context.Context, string) (*security.Claims, error) {
	return nil, security.ErrInvalidToken
}

func TestPublicMethodSet(t *testing.T) {
	set := PublicMethodSet([]string{"/app.v1.Auth/Login"})
	for _, m := range []string{healthpb.Health_Check_FullMethodName, healthpb.Health_Watch_FullMethodName, "/app.v1.Auth/Login"} {
		if !set[m] {
			t.Errorf("%s should be public", m)
		}
	}
	if set["/app.v1.Users/Delete"] {
		t.Error("unlisted method should not be public")
	}
}

func TestNewServer_RegistersHealth(t *testing.T) {
	s := NewServer(Deps{Verifier: rejectAll{}, Health: healthhandler.NewChecker(nil)})
	defer s.Stop()
	if _, ok := s.GetServiceInfo()[healthpb.Health_ServiceDesc.ServiceName]; !ok {
		t.Error("health service not registered")
	}

	bare := NewServer(Deps{Verifier: rejectAll{}})
	defer bare.Stop()
	if len(bare.GetServiceInfo()) != 0 {
		t.Errorf("services = %v, want none without Health", bare.GetServiceInfo())
	}
}

func TestNewServer_HealthCheckWithoutToken(t *testing.T) {
	checker := healthhandler.NewChecker(nil)
	checker.Refresh(context.Background())
	s := NewServer(Deps{Verifier: rejectAll{}, Health: checker})

	lis := bufconn.Listen(1 << 20)
	go func() {
		if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Errorf("serve: %v", err)
		}
	}()
	defer s.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}
}
