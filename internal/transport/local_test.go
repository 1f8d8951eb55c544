package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_SendRecvRoundTrip(t *testing.T) {
	fabric := NewFabric(2)
	a := NewLocal(fabric, 0)
	b := NewLocal(fabric, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	recvReq, err := b.IRecv(ctx, 0, 7)
	require.NoError(t, err)

	sendReq, err := a.ISend(ctx, Message{To: 1, Tag: 7, Iteration: 3, Payload: []float64{1, 2, 3}})
	require.NoError(t, err)
	require.NoError(t, sendReq.Wait(ctx))

	require.NoError(t, recvReq.Wait(ctx))
	got := recvReq.Result()
	assert.Equal(t, 0, got.From)
	assert.Equal(t, 3, got.Iteration)
	assert.Equal(t, []float64{1, 2, 3}, got.Payload)
}

func TestLocal_RecvPostedBeforeSend(t *testing.T) {
	fabric := NewFabric(2)
	a := NewLocal(fabric, 0)
	b := NewLocal(fabric, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	recvReq, err := b.IRecv(ctx, 0, 1)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = a.ISend(ctx, Message{To: 1, Tag: 1, Payload: []float64{42}})
	require.NoError(t, err)

	require.NoError(t, recvReq.Wait(ctx))
	assert.Equal(t, []float64{42}, recvReq.Result().Payload)
}

func TestLocal_DistinctTagsDoNotCrossDeliver(t *testing.T) {
	fabric := NewFabric(2)
	a := NewLocal(fabric, 0)
	b := NewLocal(fabric, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := a.ISend(ctx, Message{To: 1, Tag: 1, Payload: []float64{1}})
	require.NoError(t, err)
	_, err = a.ISend(ctx, Message{To: 1, Tag: 2, Payload: []float64{2}})
	require.NoError(t, err)

	r2, err := b.IRecv(ctx, 0, 2)
	require.NoError(t, err)
	require.NoError(t, r2.Wait(ctx))
	assert.Equal(t, []float64{2}, r2.Result().Payload)

	r1, err := b.IRecv(ctx, 0, 1)
	require.NoError(t, err)
	require.NoError(t, r1.Wait(ctx))
	assert.Equal(t, []float64{1}, r1.Result().Payload)
}

func TestLocal_BarrierReleasesAllRanksTogether(t *testing.T) {
	fabric := NewFabric(4)
	var wg sync.WaitGroup
	released := make([]bool, 4)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			l := NewLocal(fabric, rank)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = l.Barrier(ctx)
			released[rank] = true
		}(r)
	}
	wg.Wait()
	for r := 0; r < 4; r++ {
		assert.True(t, released[r])
	}
}

func TestLocal_RecvCanceledByContext(t *testing.T) {
	fabric := NewFabric(2)
	b := NewLocal(fabric, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	req, err := b.IRecv(ctx, 0, 99)
	require.NoError(t, err)
	err = req.Wait(ctx)
	assert.Error(t, err)
}
