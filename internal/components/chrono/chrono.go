package chrono

import (
	"context"
	"sync"
	"time"
)

// TimeAPI is the source of wall-clock time for everything that stamps or
// schedules. The portal reports play times in Japan time, so that is the
// location of the standard implementation.
//
// note: fault injection point
type TimeAPI interface {
	Now() time.Time
	Location() *time.Location
}

type StandardImpl struct {
	location *time.Location
}

func NewStandardImpl() (StandardImpl, error) {
	location, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		return StandardImpl{}, err
	}
	return StandardImpl{location: location}, nil
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

// FixedImpl is a TimeAPI whose clock only moves when told to.
type FixedImpl struct {
	mutex sync.Mutex
	now   time.Time
}

func NewFixedImpl(now time.Time) *FixedImpl {
	return &FixedImpl{now: now}
}

func (f *FixedImpl) Now() time.Time {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.now
}

func (f *FixedImpl) Location() *time.Location {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.now.Location()
}

func (f *FixedImpl) Advance(d time.Duration) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.now = f.now.Add(d)
}

// Sleep waits for d or until ctx is done, whichever is first. It returns
// the context's error if it was cut short.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
