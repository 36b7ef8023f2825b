package metadata

import (
	"context"
	"testing"
	"time"

	"maimai-scraper/internal/components/chrono"
	"maimai-scraper/internal/components/telemetry"
	"maimai-scraper/internal/db"

	"github.com/stretchr/testify/require"
)

func TestManager(t *testing.T) {
	ctx := context.Background()
	rec := &telemetry.RecordingAPI{}
	s, err := db.Open(ctx, ":memory:", rec)
	require.NoError(t, err)
	defer s.Close()

	clock := chrono.NewFixedImpl(time.Date(2025, 4, 18, 21, 0, 0, 0, time.UTC))

	m, err := NewManager(ctx, s, clock, rec)
	require.NoError(t, err)
	require.Equal(t, "1", m.PlayDataVersion())
	require.Equal(t, ScraperVersion, *m.Version().ScraperVersion)
	require.Nil(t, m.Version().LastScrapedAt)
	require.True(t, m.Fresh())

	m.Touch(ctx)
	require.Equal(t, clock.Now().Unix(), *m.Version().LastScrapedAt)

	// a restart keeps the last scrape time
	m, err = NewManager(ctx, s, clock, rec)
	require.NoError(t, err)
	require.Equal(t, clock.Now().Unix(), *m.Version().LastScrapedAt)
	require.False(t, m.Fresh())

	require.Len(t, s.Select(ctx, db.MetadataTable, nil, 0), 1)
	require.Empty(t, rec.Reports("broken"))
}
