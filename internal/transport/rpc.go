package transport

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"net"
	"sync"

	apperrors "github.com/latticeforge/stencilmesh/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

// gobCodec replaces grpc's default proto codec with gob, so a halo message
// ships as a plain Go struct without a .proto/protoc step. Every RPC call
// in this package marshals a wireEnvelope through it.
type gobCodec struct{}

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) Name() string { return "gob" }

func init() {
	encoding.RegisterCodec(gobCodec{})
}

// wireEnvelope is the gob payload exchanged on the wire, a flat mirror of
// Message plus the generation counter used by the barrier coordinator.
type wireEnvelope struct {
	From      int
	To        int
	Tag       int
	Iteration int
	Payload   []float64
	Gen       int
}

// meshServiceDesc is a hand-rolled grpc.ServiceDesc for the two unary RPCs
// this transport needs: Exchange, which a peer calls to hand over one halo
// message, and BarrierSync, which every rank calls against the barrier
// coordinator to rendezvous before the first iteration. Writing it by hand instead
// of generating it from a .proto file keeps protoc out of the build while
// still running real grpc client/server machinery end to end.
var meshServiceDesc = grpc.ServiceDesc{
	ServiceName: "stencilmesh.Mesh",
	HandlerType: (*meshServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Exchange", Handler: exchangeHandler},
		{MethodName: "BarrierSync", Handler: barrierSyncHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stencilmesh/mesh.proto",
}

type meshServer interface {
	Exchange(ctx context.Context, in *wireEnvelope) (*wireEnvelope, error)
	BarrierSync(ctx context.Context, in *wireEnvelope) (*wireEnvelope, error)
}

func exchangeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wireEnvelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(meshServer).Exchange(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/stencilmesh.Mesh/Exchange"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(meshServer).Exchange(ctx, req.(*wireEnvelope))
	}
	return interceptor(ctx, in, info, handler)
}

func barrierSyncHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wireEnvelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(meshServer).BarrierSync(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/stencilmesh.Mesh/BarrierSync"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(meshServer).BarrierSync(ctx, req.(*wireEnvelope))
	}
	return interceptor(ctx, in, info, handler)
}

// rpcRequest adapts a pending receive (fulfilled by the server handler) or
// a completed send into the Request interface.
type rpcRequest struct {
	done   chan struct{}
	once   sync.Once
	result Message
	err    error
}

func newRPCRequest() *rpcRequest { return &rpcRequest{done: make(chan struct{})} }

func (r *rpcRequest) complete(msg Message, err error) {
	r.once.Do(func() {
		r.result = msg
		r.err = err
		close(r.done)
	})
}

func (r *rpcRequest) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return apperrors.Wrap(apperrors.CodeCommError, "wait canceled", ctx.Err())
	}
}

func (r *rpcRequest) Test() (bool, error) {
	select {
	case <-r.done:
		return true, r.err
	default:
		return false, nil
	}
}

func (r *rpcRequest) Result() Message { return r.result }

// RPC is a Layer implementation where each rank runs a grpc server that
// receives Exchange calls from its neighbors, and dials its neighbors as
// grpc clients to send. Address resolution (rank -> host:port) comes from
// RunConfig.PeerAddrs; BarrierAddr names a separate coordinator process
// (see BarrierServer) every rank calls to rendezvous.
type RPC struct {
	rank        int
	addrs       []string // addrs[r] is rank r's listen address
	barrierAddr string

	server   *grpc.Server
	listener net.Listener

	mu      sync.Mutex
	clients map[int]*grpc.ClientConn

	inboxMu sync.Mutex
	pending map[inboxKey][]chan Message
	waiting map[inboxKey][]chan Message
}

var _ meshServer = (*RPC)(nil)

// NewRPC starts a grpc server on listenAddr for `rank` and returns a Layer
// ready to dial its peers. addrs must be indexed by rank and barrierAddr
// names the BarrierServer coordinator's address.
func NewRPC(rank int, listenAddr string, addrs []string, barrierAddr string) (*RPC, error) {
	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeCommError, fmt.Sprintf("listen on %s", listenAddr), err)
	}
	t := &RPC{
		rank:        rank,
		addrs:       addrs,
		barrierAddr: barrierAddr,
		listener:    lis,
		clients:     make(map[int]*grpc.ClientConn),
		pending:     make(map[inboxKey][]chan Message),
		waiting:     make(map[inboxKey][]chan Message),
	}
	t.server = grpc.NewServer()
	t.server.RegisterService(&meshServiceDesc, t)
	go func() { _ = t.server.Serve(lis) }()
	return t, nil
}

// Exchange is the server-side handler invoked by a peer's ISend; it
// delivers the envelope into this rank's inbox for a matching IRecv.
func (t *RPC) Exchange(ctx context.Context, in *wireEnvelope) (*wireEnvelope, error) {
	msg := Message{From: in.From, To: in.To, Tag: in.Tag, Iteration: in.Iteration, Payload: in.Payload}
	t.deliver(inboxKey{from: msg.From, tag: msg.Tag}, msg)
	return &wireEnvelope{}, nil
}

// BarrierSync is unused on a mesh rank's own server; barrier rendezvous is
// handled entirely by BarrierServer. It exists so RPC satisfies meshServer,
// the same ServiceDesc being registered on both rank servers and the
// standalone coordinator.
func (t *RPC) BarrierSync(ctx context.Context, in *wireEnvelope) (*wireEnvelope, error) {
	return &wireEnvelope{}, nil
}

func (t *RPC) deliver(key inboxKey, msg Message) {
	t.inboxMu.Lock()
	defer t.inboxMu.Unlock()
	if waiters := t.waiting[key]; len(waiters) > 0 {
		ch := waiters[0]
		t.waiting[key] = waiters[1:]
		ch <- msg
		return
	}
	ch := make(chan Message, 1)
	ch <- msg
	t.pending[key] = append(t.pending[key], ch)
}

func (t *RPC) Rank() int { return t.rank }

func (t *RPC) clientFor(addr string) (*grpc.ClientConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if conn, ok := t.clients[addrKey(addr)]; ok {
		return conn, nil
	}
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(gobCodec{}.Name())),
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeCommError, fmt.Sprintf("dial %s", addr), err)
	}
	t.clients[addrKey(addr)] = conn
	return conn, nil
}

// addrKey maps an address string to the pseudo-rank key used for client
// connection caching; negative so it never collides with a real rank id
// (the coordinator address is cached under this scheme too).
func addrKey(addr string) int { return -int(hashAddr(addr)) - 1 }

func hashAddr(addr string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(addr); i++ {
		h ^= uint32(addr[i])
		h *= 16777619
	}
	return h
}

func (t *RPC) ISend(ctx context.Context, msg Message) (Request, error) {
	msg.From = t.rank
	req := newRPCRequest()
	if msg.To < 0 || msg.To >= len(t.addrs) {
		err := apperrors.Wrap(apperrors.CodeUsageError, fmt.Sprintf("send target rank %d out of range", msg.To), nil)
		req.complete(Message{}, err)
		return req, err
	}
	conn, err := t.clientFor(t.addrs[msg.To])
	if err != nil {
		req.complete(Message{}, err)
		return req, err
	}
	env := &wireEnvelope{From: msg.From, To: msg.To, Tag: msg.Tag, Iteration: msg.Iteration, Payload: msg.Payload}
	go func() {
		out := new(wireEnvelope)
		callErr := conn.Invoke(ctx, "/stencilmesh.Mesh/Exchange", env, out)
		if callErr != nil {
			req.complete(Message{}, apperrors.Wrap(apperrors.CodeCommError, "exchange rpc failed", callErr))
			return
		}
		req.complete(msg, nil)
	}()
	return req, nil
}

func (t *RPC) IRecv(ctx context.Context, from, tag int) (Request, error) {
	req := newRPCRequest()
	key := inboxKey{from: from, tag: tag}

	t.inboxMu.Lock()
	if q := t.pending[key]; len(q) > 0 {
		ch := q[0]
		t.pending[key] = q[1:]
		t.inboxMu.Unlock()
		msg := <-ch
		req.complete(msg, nil)
		return req, nil
	}
	ch := make(chan Message, 1)
	t.waiting[key] = append(t.waiting[key], ch)
	t.inboxMu.Unlock()

	go func() {
		select {
		case msg := <-ch:
			req.complete(msg, nil)
		case <-ctx.Done():
			req.complete(Message{}, apperrors.Wrap(apperrors.CodeCommError, "recv canceled", ctx.Err()))
		}
	}()
	return req, nil
}

// Barrier calls the standalone BarrierServer coordinator rather than
// peers directly: an all-to-all barrier over the same point-to-point
// connections used for halo exchange would interleave with in-flight
// sends, so it goes through a dedicated rendezvous service instead.
func (t *RPC) Barrier(ctx context.Context) error {
	conn, err := t.clientFor(t.barrierAddr)
	if err != nil {
		return err
	}
	out := new(wireEnvelope)
	if err := conn.Invoke(ctx, "/stencilmesh.Mesh/BarrierSync", &wireEnvelope{From: t.rank}, out); err != nil {
		return apperrors.Wrap(apperrors.CodeCommError, "barrier rpc failed", err)
	}
	return nil
}

func (t *RPC) Close() error {
	t.mu.Lock()
	for _, conn := range t.clients {
		_ = conn.Close()
	}
	t.mu.Unlock()
	if t.server != nil {
		t.server.GracefulStop()
	}
	return nil
}
