package reference

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Store caches a Reference snapshot in memory with a TTL, refreshing it
// out-of-band so readers never block on a reload (spec §4.1, §5: "readers
// take a snapshot pointer under a brief lock, then read outside the
// lock"). Swaps are atomic: a job always sees one consistent snapshot.
type Store struct {
	repo *Repository
	ttl  time.Duration
	log  zerolog.Logger

	current atomic.Pointer[Reference]
	mu      sync.Mutex // serializes concurrent Refresh() calls

	cronSched *cron.Cron
}

// NewStore creates a Store that reads from repo. Call Refresh once before
// serving any jobs so Snapshot never returns nil.
func NewStore(repo *Repository, ttl time.Duration, log zerolog.Logger) *Store {
	return &Store{
		repo: repo,
		ttl:  ttl,
		log:  log.With().Str("component", "reference_store").Logger(),
	}
}

// Snapshot returns the current immutable Reference. It never blocks on a
// refresh: it simply returns whatever was last loaded.
func (s *Store) Snapshot() *Reference {
	return s.current.Load()
}

// Refresh reloads the reference tables and, if the result validates,
// atomically swaps it in as the current snapshot. On validation failure
// the previous snapshot (if any) is left in place and the
// ReferenceIncomplete error is returned to the caller.
func (s *Store) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, err := s.repo.LoadAll()
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load reference tables")
		return err
	}
	if err := ref.Validate(); err != nil {
		s.log.Error().Err(err).Msg("reference snapshot failed validation")
		return err
	}
	s.current.Store(ref)
	s.log.Info().Msg("reference snapshot refreshed")
	return nil
}

// StartBackgroundRefresh schedules Refresh to run every ttl using a cron
// job, matching the reference system's use of robfig/cron for periodic
// background work. Errors are logged, not propagated, since a stale
// snapshot is preferable to crashing a long-running worker process.
func (s *Store) StartBackgroundRefresh() error {
	s.cronSched = cron.New(cron.WithSeconds())
	spec := everySpec(s.ttl)
	_, err := s.cronSched.AddFunc(spec, func() {
		if err := s.Refresh(); err != nil {
			s.log.Warn().Err(err).Msg("background reference refresh failed, keeping stale snapshot")
		}
	})
	if err != nil {
		return err
	}
	s.cronSched.Start()
	return nil
}

// StopBackgroundRefresh stops the cron scheduler, if running.
func (s *Store) StopBackgroundRefresh() {
	if s.cronSched != nil {
		ctx := s.cronSched.Stop()
		<-ctx.Done()
	}
}

// everySpec converts a duration into a "@every" cron spec string.
func everySpec(d time.Duration) string {
	if d <= 0 {
		d = time.Minute
	}
	return "@every " + d.String()
}
