package jobqueue

const schema = `
CREATE TABLE IF NOT EXISTS job_cache (
	fingerprint TEXT PRIMARY KEY,
	result_json TEXT NOT NULL,
	cached_at   INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_job_cache_expires_at ON job_cache(expires_at);
`
