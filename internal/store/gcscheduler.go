package store

import (
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/tracehive/datastore/internal/storelog"
)

// GCScheduler runs periodic GC passes against a Store on the interval
// configured in storeconfig.Config.GC.Interval. It wraps gocron rather
// than a bare time.Ticker so the same scheduler can host other
// periodic maintenance jobs (checkpoint rotation, stats flushing) if
// this store ever grows them.
type GCScheduler struct {
	scheduler gocron.Scheduler
	job       gocron.Job
}

// StartGCScheduler registers and starts a recurring job that calls
// st.GC(st.DefaultGCOptions()) every interval. Passing interval <= 0
// disables the job: a scheduler is still returned so callers can
// Stop() unconditionally.
func StartGCScheduler(st *Store, interval time.Duration) (*GCScheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	gs := &GCScheduler{scheduler: s}
	if interval <= 0 {
		s.Start()
		return gs, nil
	}

	job, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			result := st.GC(st.DefaultGCOptions())
			storelog.Debugf("scheduled gc: dropped %d rows, freed %d bytes", len(result.DroppedRowIDs), result.BytesFreed)
		}),
	)
	if err != nil {
		return nil, err
	}
	gs.job = job

	s.Start()
	return gs, nil
}

// Stop shuts the scheduler down, waiting for any in-flight GC pass to
// finish.
func (gs *GCScheduler) Stop() error {
	return gs.scheduler.Shutdown()
}
