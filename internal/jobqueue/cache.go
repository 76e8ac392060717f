package jobqueue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/WCLondon/habitat-allocator/internal/domain"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Cache is the fingerprint -> result store of spec §4.5, backed by a
// SQLite table (ProfileCache) so completed results survive past a single
// worker's lifetime and are swept for TTL expiry the same way the
// reference store schedules its own periodic refresh.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	log zerolog.Logger

	cronSched *cron.Cron
}

// NewCache migrates the job_cache schema into db and wraps it as a Cache
// with the given default TTL.
func NewCache(db *sql.DB, ttl time.Duration, log zerolog.Logger) (*Cache, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate job cache schema: %w", err)
	}
	return &Cache{
		db:  db,
		ttl: ttl,
		log: log.With().Str("component", "job_cache").Logger(),
	}, nil
}

// Get returns the cached report for fingerprint, if present and not
// expired.
func (c *Cache) Get(fingerprint string) (*domain.AllocationReport, bool) {
	var resultJSON string
	var expiresAt int64
	row := c.db.QueryRow(`SELECT result_json, expires_at FROM job_cache WHERE fingerprint = ?`, fingerprint)
	if err := row.Scan(&resultJSON, &expiresAt); err != nil {
		return nil, false
	}
	if time.Now().Unix() > expiresAt {
		return nil, false
	}
	var report domain.AllocationReport
	if err := json.Unmarshal([]byte(resultJSON), &report); err != nil {
		c.log.Warn().Err(err).Str("fingerprint", fingerprint).Msg("discarding corrupt cache row")
		return nil, false
	}
	return &report, true
}

// Put stores report under fingerprint with the cache's default TTL.
func (c *Cache) Put(fingerprint string, report *domain.AllocationReport) error {
	encoded, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode cached report: %w", err)
	}
	now := time.Now()
	_, err = c.db.Exec(
		`INSERT INTO job_cache (fingerprint, result_json, cached_at, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET result_json = excluded.result_json, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		fingerprint, string(encoded), now.Unix(), now.Add(c.ttl).Unix(),
	)
	return err
}

// Ping reports whether the underlying database connection is reachable,
// for the health endpoint's "connected"/"degraded" status.
func (c *Cache) Ping() error {
	return c.db.Ping()
}

// Sweep deletes expired rows. Called periodically by the background
// sweeper, and callable directly from tests.
func (c *Cache) Sweep() error {
	_, err := c.db.Exec(`DELETE FROM job_cache WHERE expires_at < ?`, time.Now().Unix())
	return err
}

// StartBackgroundSweep schedules Sweep to run every interval using
// robfig/cron, the same periodic-task mechanism the reference store uses
// for its own TTL-driven refresh.
func (c *Cache) StartBackgroundSweep(interval time.Duration) error {
	c.cronSched = cron.New(cron.WithSeconds())
	spec := "@every " + interval.String()
	_, err := c.cronSched.AddFunc(spec, func() {
		if err := c.Sweep(); err != nil {
			c.log.Warn().Err(err).Msg("job cache sweep failed")
		}
	})
	if err != nil {
		return err
	}
	c.cronSched.Start()
	return nil
}

// StopBackgroundSweep stops the cron scheduler, if running.
func (c *Cache) StopBackgroundSweep() {
	if c.cronSched != nil {
		ctx := c.cronSched.Stop()
		<-ctx.Done()
	}
}
