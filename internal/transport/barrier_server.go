package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	apperrors "github.com/latticeforge/stencilmesh/pkg/errors"
	"google.golang.org/grpc"
)

// BarrierServer is the standalone rendezvous coordinator the rpc transport
// points every rank's Barrier call at. It counts BarrierSync calls for the
// current generation and releases all of them together once `participants`
// have checked in, then advances to the next generation so a second
// barrier call can't be satisfied by the first generation's stragglers.
type BarrierServer struct {
	participants int

	mu      sync.Mutex
	gen     int
	arrived int
	release chan struct{}

	server   *grpc.Server
	listener net.Listener
}

var _ meshServer = (*BarrierServer)(nil)

// NewBarrierServer starts listening on listenAddr and returns a running
// coordinator for a mesh of `participants` ranks.
func NewBarrierServer(listenAddr string, participants int) (*BarrierServer, error) {
	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeCommError, fmt.Sprintf("listen on %s", listenAddr), err)
	}
	b := &BarrierServer{
		participants: participants,
		release:      make(chan struct{}),
		listener:     lis,
	}
	b.server = grpc.NewServer()
	b.server.RegisterService(&meshServiceDesc, b)
	go func() { _ = b.server.Serve(lis) }()
	return b, nil
}

func (b *BarrierServer) Exchange(ctx context.Context, in *wireEnvelope) (*wireEnvelope, error) {
	return nil, apperrors.Wrap(apperrors.CodeUsageError, "barrier coordinator does not carry halo traffic", nil)
}

func (b *BarrierServer) BarrierSync(ctx context.Context, in *wireEnvelope) (*wireEnvelope, error) {
	b.mu.Lock()
	myGen := b.gen
	b.arrived++
	wait := b.release
	if b.arrived == b.participants {
		b.arrived = 0
		b.gen++
		close(b.release)
		b.release = make(chan struct{})
	}
	b.mu.Unlock()

	select {
	case <-wait:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &wireEnvelope{Gen: myGen}, nil
}

func (b *BarrierServer) Close() error {
	b.server.GracefulStop()
	return nil
}
