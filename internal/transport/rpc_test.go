package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func TestRPC_SendRecvRoundTrip(t *testing.T) {
	addrA := freeAddr(t)
	addrB := freeAddr(t)
	barrierAddr := freeAddr(t)
	addrs := []string{addrA, addrB}

	a, err := NewRPC(0, addrA, addrs, barrierAddr)
	require.NoError(t, err)
	defer a.Close()

	b, err := NewRPC(1, addrB, addrs, barrierAddr)
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	recvReq, err := b.IRecv(ctx, 0, 5)
	require.NoError(t, err)

	sendReq, err := a.ISend(ctx, Message{To: 1, Tag: 5, Iteration: 9, Payload: []float64{3.14, 2.71}})
	require.NoError(t, err)
	require.NoError(t, sendReq.Wait(ctx))

	require.NoError(t, recvReq.Wait(ctx))
	got := recvReq.Result()
	assert.Equal(t, 0, got.From)
	assert.Equal(t, 9, got.Iteration)
	assert.Equal(t, []float64{3.14, 2.71}, got.Payload)
}

func TestRPC_BarrierReleasesAllParticipants(t *testing.T) {
	barrierAddr := freeAddr(t)
	coordinator, err := NewBarrierServer(barrierAddr, 3)
	require.NoError(t, err)
	defer coordinator.Close()

	var ranks []*RPC
	addrs := make([]string, 3)
	for r := 0; r < 3; r++ {
		addrs[r] = freeAddr(t)
	}
	for r := 0; r < 3; r++ {
		rt, err := NewRPC(r, addrs[r], addrs, barrierAddr)
		require.NoError(t, err)
		defer rt.Close()
		ranks = append(ranks, rt)
	}

	done := make(chan int, 3)
	for _, rt := range ranks {
		go func(t *RPC) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			err := t.Barrier(ctx)
			if err == nil {
				done <- t.Rank()
			}
		}(rt)
	}

	released := map[int]bool{}
	for i := 0; i < 3; i++ {
		select {
		case r := <-done:
			released[r] = true
		case <-time.After(2 * time.Second):
			t.Fatal("barrier did not release all participants")
		}
	}
	assert.Len(t, released, 3)
}
