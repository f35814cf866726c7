package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UsageCounter returns the account's counter, creating a zeroed row on first
// use.
func (s *SQLiteStore) UsageCounter(accountID int64) (*UsageCounter, error) {
	var c UsageCounter
	err := s.db.QueryRow(`
        SELECT account_id, messages_used, tokens_used, last_reset
        FROM usage_counters WHERE account_id = ?`, accountID).
		Scan(&c.AccountID, &c.MessagesUsed, &c.TokensUsed, &c.LastReset)
	if err == sql.ErrNoRows {
		c = UsageCounter{AccountID: accountID, LastReset: time.Now()}
		_, err = s.db.Exec(`
            INSERT INTO usage_counters (account_id, messages_used, tokens_used, last_reset)
            VALUES (?, 0, 0, ?)`, accountID, c.LastReset)
		if err != nil {
			return nil, fmt.Errorf("failed to create usage counter: %w", err)
		}
		return &c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query usage counter: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) SaveUsageCounter(c *UsageCounter) error {
	res, err := s.db.Exec(`
        UPDATE usage_counters SET messages_used = ?, tokens_used = ?, last_reset = ?
        WHERE account_id = ?`, c.MessagesUsed, c.TokensUsed, c.LastReset, c.AccountID)
	if err != nil {
		return fmt.Errorf("failed to update usage counter: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}
