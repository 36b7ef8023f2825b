package chrono

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFixedImpl(t *testing.T) {
	start := time.Date(2025, 4, 18, 21, 0, 0, 0, time.UTC)
	clock := NewFixedImpl(start)
	require.Equal(t, start, clock.Now())

	clock.Advance(5 * time.Minute)
	require.Equal(t, start.Add(5*time.Minute), clock.Now())
	require.Equal(t, time.UTC, clock.Location())
}

func TestStandardImpl(t *testing.T) {
	clock, err := NewStandardImpl()
	require.NoError(t, err)
	require.Equal(t, "Asia/Tokyo", clock.Location().String())
	require.Equal(t, "Asia/Tokyo", clock.Now().Location().String())
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))
	require.NoError(t, Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	require.ErrorIs(t, Sleep(ctx, 0), context.Canceled)
}
