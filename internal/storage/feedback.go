package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// SaveFeedback inserts a feedback record.
func (s *Store) SaveFeedback(e FeedbackEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO feedback (id, fingerprint, query_text, answer_text, vote, comment, submitted_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Fingerprint, e.QueryText, e.AnswerText, e.Vote, e.Comment,
		e.SubmittedAt.UTC().Format(time.RFC3339), e.ExpiresAt.UTC().Format(time.RFC3339),
	)
	return err
}

// FeedbackFor returns all feedback for a fingerprint, most recent first.
func (s *Store) FeedbackFor(fingerprint string) ([]FeedbackEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, fingerprint, query_text, answer_text, vote, comment, submitted_at, expires_at
		FROM feedback WHERE fingerprint = ? ORDER BY submitted_at DESC`, fingerprint,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeedback(rows)
}

// RecentFeedback returns the most recent feedback entries across all queries.
func (s *Store) RecentFeedback(limit int) ([]FeedbackEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, fingerprint, query_text, answer_text, vote, comment, submitted_at, expires_at
		FROM feedback ORDER BY submitted_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeedback(rows)
}

// FeedbackCounts returns positive/negative totals. An empty fingerprint
// counts across all entries.
func (s *Store) FeedbackCounts(fingerprint string) (positive, negative int, err error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN vote = 'positive' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN vote = 'negative' THEN 1 ELSE 0 END), 0)
		FROM feedback`
	var args []any
	if fingerprint != "" {
		query += ` WHERE fingerprint = ?`
		args = append(args, fingerprint)
	}
	if err := s.db.QueryRow(query, args...).Scan(&positive, &negative); err != nil {
		return 0, 0, err
	}
	return positive, negative, nil
}

// DeleteExpiredFeedback removes feedback past its own expiry.
func (s *Store) DeleteExpiredFeedback(now time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM feedback WHERE expires_at < ?`, now.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanFeedback(rows *sql.Rows) ([]FeedbackEntry, error) {
	var results []FeedbackEntry
	for rows.Next() {
		var e FeedbackEntry
		var submittedAt, expiresAt string
		if err := rows.Scan(&e.ID, &e.Fingerprint, &e.QueryText, &e.AnswerText, &e.Vote, &e.Comment, &submittedAt, &expiresAt); err != nil {
			return nil, err
		}
		var err error
		if e.SubmittedAt, err = time.Parse(time.RFC3339, submittedAt); err != nil {
			return nil, fmt.Errorf("parsing submitted_at: %w", err)
		}
		if e.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt); err != nil {
			return nil, fmt.Errorf("parsing expires_at: %w", err)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}
