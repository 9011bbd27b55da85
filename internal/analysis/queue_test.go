package analysis

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/newsinsight/docservice/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *mr.Miniredis) {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	return NewQueue(client, ""), m
}

func TestQueue_FIFO(t *testing.T) {
	q, m := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Job{DocumentID: 1, FileURL: "u1"}))
	require.NoError(t, q.Enqueue(ctx, Job{DocumentID: 2, FileURL: "u2"}))
	require.True(t, m.Exists(DefaultQueueKey))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	j1, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, int64(1), j1.DocumentID)
	require.False(t, j1.EnqueuedAt.IsZero())

	j2, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, "u2", j2.FileURL)
}

func TestQueue_DequeueEmpty(t *testing.T) {
	q, _ := newTestQueue(t)
	j, err := q.Dequeue(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, j)
}

func TestQueue_DequeueCorruptPayload(t *testing.T) {
	q, m := newTestQueue(t)
	_, err := m.Lpush(DefaultQueueKey, "not-json")
	require.NoError(t, err)
	_, err = q.Dequeue(context.Background(), time.Second)
	require.ErrorContains(t, err, "decode job")
}

func TestQueue_DepthGauge(t *testing.T) {
	q, m := newTestQueue(t)
	gauge := metrics.NewQueueDepthGauge(q.DepthFunc(time.Second))
	require.Equal(t, float64(0), testutil.ToFloat64(gauge))

	require.NoError(t, q.Enqueue(context.Background(), Job{DocumentID: 1, FileURL: "u1"}))
	require.NoError(t, q.Enqueue(context.Background(), Job{DocumentID: 2, FileURL: "u2"}))
	require.Equal(t, float64(2), testutil.ToFloat64(gauge))

	m.Close()
	require.Equal(t, float64(-1), testutil.ToFloat64(gauge))
}
