// Package transport provides the non-blocking point-to-point messaging and
// collective barrier a rank needs to run the halo exchange, behind one
// interface with two implementations: an in-process channel transport for
// single-binary multi-rank runs and tests, and a grpc transport for ranks
// running as separate processes.
package transport

import (
	"context"
)

// Message is one halo strip (or, for Design C, one diagonal corner) sent
// between two ranks for a given iteration.
type Message struct {
	From      int
	To        int
	Tag       int // direction, encoded as an int so transports stay payload-agnostic
	Iteration int
	Payload   []float64
}

// Request represents an outstanding non-blocking send or receive. It is the
// handle a request set holds until Wait or Test reports completion, the
// same role MPI_Request plays for MPI_Isend/MPI_Irecv.
type Request interface {
	// Wait blocks until the operation completes and returns its error, if
	// any. For a receive, the delivered Message is available via Result
	// after Wait returns.
	Wait(ctx context.Context) error

	// Test reports whether the operation has completed without blocking.
	Test() (done bool, err error)

	// Result returns the received message. Only meaningful for receive
	// requests, and only valid after Wait or a Test that returned true.
	Result() Message
}

// Layer is the messaging substrate a halo exchanger runs on. Every method
// is safe to call from the rank's own goroutine only; a Layer is not
// shared between ranks in the local transport and is one grpc client/server
// pair in the rpc transport.
type Layer interface {
	// ISend posts a non-blocking send and returns immediately with a
	// Request to wait on.
	ISend(ctx context.Context, msg Message) (Request, error)

	// IRecv posts a non-blocking receive for a message from `from` tagged
	// `tag`, returning immediately with a Request to wait on.
	IRecv(ctx context.Context, from, tag int) (Request, error)

	// Barrier blocks until every rank in the run has called Barrier for
	// this generation, giving the driver a synchronization point between
	// setup and the first iteration.
	Barrier(ctx context.Context) error

	// Rank returns this transport endpoint's rank id.
	Rank() int

	// Close releases the transport's resources. Sends and receives posted
	// before Close are not guaranteed to complete.
	Close() error
}
