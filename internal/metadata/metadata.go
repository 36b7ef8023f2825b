package metadata

import (
	"context"
	"fmt"
	"strconv"

	"maimai-scraper/internal/components/assert"
	"maimai-scraper/internal/components/chrono"
	"maimai-scraper/internal/components/telemetry"
	"maimai-scraper/internal/db"
	"maimai-scraper/internal/store"
)

const (
	// ScraperVersion is the version of this program.
	ScraperVersion = "1.0.0"
	// PlayDataVersion changes whenever the portal's pages change in a way
	// that changes what is extracted from them. Every play row is stamped
	// with the version it was scraped with.
	PlayDataVersion = 1
	// DatabaseVersion changes when the layout of the stored data changes.
	DatabaseVersion = 1
)

const report_manager_touch = "manager.touch"

// Manager keeps the single metadata row up to date.
type Manager struct {
	store   *store.Store
	time    chrono.TimeAPI
	tel     telemetry.API
	version db.Metadata
	fresh   bool
}

// NewManager writes the current versions into the metadata row and caches
// what was stored.
func NewManager(ctx context.Context, s *store.Store, time chrono.TimeAPI, tel telemetry.API) (*Manager, error) {
	assert.NotNil(s)
	assert.NotNil(time)
	assert.NotNil(tel)

	fresh := !s.Exists(ctx, db.MetadataTable, store.Int(db.MetadataID))
	stored, err := s.Upsert(ctx, db.MetadataTable, db.Metadata{
		ID:              db.Ptr(db.MetadataID),
		ScraperVersion:  db.Ptr(ScraperVersion),
		DatabaseVersion: db.Ptr(strconv.Itoa(DatabaseVersion)),
		PlayDataVersion: db.Ptr(strconv.Itoa(PlayDataVersion)),
	}.ToRecord())
	if err != nil {
		return nil, fmt.Errorf("initialize metadata: %w", err)
	}

	return &Manager{
		store:   s,
		time:    time,
		tel:     tel,
		version: db.MetadataFromRecord(stored),
		fresh:   fresh,
	}, nil
}

// Fresh returns true if the database had no metadata row before this
// manager wrote one, ex. on the first run.
func (m *Manager) Fresh() bool {
	return m.fresh
}

func (m *Manager) Version() db.Metadata {
	return m.version
}

// PlayDataVersion returns the version new play rows should be stamped with.
func (m *Manager) PlayDataVersion() string {
	if m.version.PlayDataVersion == nil {
		return strconv.Itoa(PlayDataVersion)
	}
	return *m.version.PlayDataVersion
}

// Touch records the current time as the time of the last completed scrape.
func (m *Manager) Touch(ctx context.Context) {
	now := m.time.Now().Unix()
	stored, err := m.store.Upsert(ctx, db.MetadataTable, db.Metadata{
		ID:            db.Ptr(db.MetadataID),
		LastScrapedAt: db.Ptr(now),
	}.ToRecord())
	if err != nil {
		m.tel.ReportBroken(report_manager_touch, err)
		return
	}
	m.version = db.MetadataFromRecord(stored)
}
