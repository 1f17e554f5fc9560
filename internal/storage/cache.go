package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Timestamps are stored as RFC3339 UTC strings; with a fixed format their
// lexicographic order matches chronological order, so expiry comparisons can
// run in SQL.

// GetCacheEntry returns the entry for a fingerprint, expired or not.
// Logical expiry is the caller's concern.
func (s *Store) GetCacheEntry(fingerprint string) (CacheEntry, error) {
	var e CacheEntry
	var createdAt, expiresAt, lastAccessed string
	err := s.db.QueryRow(`
		SELECT fingerprint, query_text, answer_text, created_at, expires_at, access_count, last_accessed_at
		FROM answer_cache WHERE fingerprint = ?`, fingerprint,
	).Scan(&e.Fingerprint, &e.QueryText, &e.AnswerText, &createdAt, &expiresAt, &e.AccessCount, &lastAccessed)
	if err == sql.ErrNoRows {
		return CacheEntry{}, ErrNotFound
	}
	if err != nil {
		return CacheEntry{}, err
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return CacheEntry{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if e.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt); err != nil {
		return CacheEntry{}, fmt.Errorf("parsing expires_at: %w", err)
	}
	if e.LastAccessed, err = time.Parse(time.RFC3339, lastAccessed); err != nil {
		return CacheEntry{}, fmt.Errorf("parsing last_accessed_at: %w", err)
	}
	return e, nil
}

// PutCacheEntry writes an entry, unconditionally replacing any existing row
// for the same fingerprint (last write wins).
func (s *Store) PutCacheEntry(e CacheEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO answer_cache (fingerprint, query_text, answer_text, created_at, expires_at, access_count, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			query_text = excluded.query_text,
			answer_text = excluded.answer_text,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			access_count = excluded.access_count,
			last_accessed_at = excluded.last_accessed_at`,
		e.Fingerprint, e.QueryText, e.AnswerText,
		e.CreatedAt.UTC().Format(time.RFC3339), e.ExpiresAt.UTC().Format(time.RFC3339),
		e.AccessCount, e.LastAccessed.UTC().Format(time.RFC3339),
	)
	return err
}

// TouchCacheEntry atomically bumps access_count and last_accessed_at.
func (s *Store) TouchCacheEntry(fingerprint string, now time.Time) error {
	res, err := s.db.Exec(`
		UPDATE answer_cache SET access_count = access_count + 1, last_accessed_at = ?
		WHERE fingerprint = ?`,
		now.UTC().Format(time.RFC3339), fingerprint,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCacheEntry removes a single entry. Returns the number removed (0 or 1).
func (s *Store) DeleteCacheEntry(fingerprint string) (int, error) {
	res, err := s.db.Exec(`DELETE FROM answer_cache WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteCacheMatching removes entries whose fingerprint or query text starts
// with the given prefix. Returns the number removed.
func (s *Store) DeleteCacheMatching(prefix string) (int, error) {
	pattern := escapeLike(prefix) + "%"
	res, err := s.db.Exec(`
		DELETE FROM answer_cache
		WHERE fingerprint LIKE ? ESCAPE '\' OR query_text LIKE ? ESCAPE '\'`,
		pattern, pattern,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ClearCache removes every entry. Returns the number removed.
func (s *Store) ClearCache() (int, error) {
	res, err := s.db.Exec(`DELETE FROM answer_cache`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteExpiredCache physically removes logically-expired rows.
func (s *Store) DeleteExpiredCache(now time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM answer_cache WHERE expires_at < ?`, now.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CacheStats summarizes the answer_cache table in one scan.
func (s *Store) CacheStats() (CacheTableStats, error) {
	var stats CacheTableStats
	var oldest, newest sql.NullString
	var total, maxCount sql.NullInt64
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(access_count), 0), COALESCE(MAX(access_count), 0),
			MIN(created_at), MAX(created_at)
		FROM answer_cache`,
	).Scan(&stats.EntryCount, &total, &maxCount, &oldest, &newest)
	if err != nil {
		return CacheTableStats{}, err
	}
	stats.TotalAccesses = total.Int64
	stats.MaxAccessCount = maxCount.Int64
	if oldest.Valid {
		if stats.OldestCreated, err = time.Parse(time.RFC3339, oldest.String); err != nil {
			return CacheTableStats{}, fmt.Errorf("parsing oldest created_at: %w", err)
		}
	}
	if newest.Valid {
		if stats.NewestCreated, err = time.Parse(time.RFC3339, newest.String); err != nil {
			return CacheTableStats{}, fmt.Errorf("parsing newest created_at: %w", err)
		}
	}
	return stats, nil
}
