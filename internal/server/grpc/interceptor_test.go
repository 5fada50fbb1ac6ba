package grpc

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dmitrijs2005/eventhub/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type entry struct {
	msg  string
	args []any
}

type recLogger struct {
	mu      sync.Mutex
	entries []entry
}

func (r *recLogger) add(msg string, args []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{msg, args})
}

func (r *recLogger) Debug(_ context.Context, msg string, args ...any) { r.add(msg, args) }
func (r *recLogger) Info(_ context.Context, msg string, args ...any)  { r.add(msg, args) }
func (r *recLogger) Warn(_ context.Context, msg string, args ...any)  { r.add(msg, args) }
func (r *recLogger) Error(_ context.Context, msg string, args ...any) { r.add(msg, args) }
func (r *recLogger) With(...any) logging.Logger                      { return r }

func (r *recLogger) find(msg string) (entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return entry{}, false
}

func TestLoggingInterceptor(t *testing.T) {
	log := &recLogger{}
	s := NewGRPCServer("", log, nil, 0)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDKey, "req-42"))
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	resp, err := s.loggingInterceptor(ctx, nil, info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	})

	assert.Nil(t, resp)
	assert.Equal(t, codes.NotFound, status.Code(err))

	e, ok := log.find("grpc call")
	require.True(t, ok)
	assert.Contains(t, e.args, "/grpc.health.v1.Health/Check")
	assert.Contains(t, e.args, "NotFound")
	assert.Contains(t, e.args, "req-42")
}

func TestRecoveryInterceptor(t *testing.T) {
	log := &recLogger{}
	s := NewGRPCServer("", log, nil, 0)
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Service/Boom"}

	_, err := s.recoveryInterceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})

	assert.Equal(t, codes.Internal, status.Code(err))
	_, ok := log.find("panic in grpc handler")
	assert.True(t, ok)
}

func TestRecoveryInterceptor_PassesThrough(t *testing.T) {
	s := NewGRPCServer("", logging.Nop{}, nil, 0)
	want := errors.New("plain")

	resp, err := s.recoveryInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{}, func(context.Context, any) (any, error) {
		return "ok", want
	})

	assert.Equal(t, "ok", resp)
	assert.ErrorIs(t, err, want)
}
