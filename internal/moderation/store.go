// Package moderation owns the ban, operator and mute lists plus the login
// audit trail. Lists are cached in memory for the hot path and persisted to
// sqlite on every mutation so a restart never forgets a ban.
package moderation

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const initSQL = `
CREATE TABLE IF NOT EXISTS ban (
	uuid   TEXT PRIMARY KEY,
	reason TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS op (
	name TEXT PRIMARY KEY,
	uuid TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS mute (
	uuid TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS login_audit (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL,
	name TEXT NOT NULL,
	at   TEXT NOT NULL,
	addr TEXT NOT NULL
);`

// Store is the persistent moderation list set.
type Store struct {
	mu    sync.RWMutex
	db    *sql.DB
	bans  map[string]string
	ops   map[string]string
	mutes map[string]struct{}
}

// Open opens (creating if needed) the moderation database and loads the
// lists into memory.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open moderation db: %w", err)
	}
	if _, err := db.Exec(initSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init moderation schema: %w", err)
	}
	s := &Store{
		db:    db,
		bans:  make(map[string]string),
		ops:   make(map[string]string),
		mutes: make(map[string]struct{}),
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT uuid, reason FROM ban;`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var uuid, reason string
		if err := rows.Scan(&uuid, &reason); err != nil {
			rows.Close()
			return err
		}
		s.bans[uuid] = reason
	}
	if err := rows.Close(); err != nil {
		return err
	}

	rows, err = s.db.Query(`SELECT name, uuid FROM op;`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var name, uuid string
		if err := rows.Scan(&name, &uuid); err != nil {
			rows.Close()
			return err
		}
		s.ops[strings.ToLower(name)] = uuid
	}
	if err := rows.Close(); err != nil {
		return err
	}

	rows, err = s.db.Query(`SELECT uuid FROM mute;`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var uuid string
		if err := rows.Scan(&uuid); err != nil {
			return err
		}
		s.mutes[uuid] = struct{}{}
	}
	return rows.Err()
}

// BanReason reports whether the identity token is banned and why.
func (s *Store) BanReason(uuid string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reason, banned := s.bans[uuid]
	return reason, banned
}

// SetBan adds or updates a ban entry.
func (s *Store) SetBan(uuid, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`INSERT INTO ban (uuid, reason) VALUES (?, ?)
		ON CONFLICT(uuid) DO UPDATE SET reason = excluded.reason;`, uuid, reason); err != nil {
		return err
	}
	s.bans[uuid] = reason
	return nil
}

// RemoveBan lifts a ban. Removing an absent entry is a no-op.
func (s *Store) RemoveBan(uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM ban WHERE uuid = ?;`, uuid); err != nil {
		return err
	}
	delete(s.bans, uuid)
	return nil
}

// IsMuted reports whether the identity token is muted.
func (s *Store) IsMuted(uuid string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, muted := s.mutes[uuid]
	return muted
}

// SetMute mutes or unmutes an identity token. Returns whether the list
// actually changed.
func (s *Store) SetMute(uuid string, muted bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if muted {
		if _, exists := s.mutes[uuid]; exists {
			return false, nil
		}
		if _, err := s.db.Exec(`INSERT INTO mute (uuid) VALUES (?);`, uuid); err != nil {
			return false, err
		}
		s.mutes[uuid] = struct{}{}
		return true, nil
	}
	if _, exists := s.mutes[uuid]; !exists {
		return false, nil
	}
	if _, err := s.db.Exec(`DELETE FROM mute WHERE uuid = ?;`, uuid); err != nil {
		return false, err
	}
	delete(s.mutes, uuid)
	return true, nil
}

// IsOp reports operator privilege. Both the display name and the identity
// token must match the stored entry.
func (s *Store) IsOp(name, uuid string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.ops[strings.ToLower(name)]
	return ok && stored == uuid
}

// SetOp grants operator privilege to the name/token pair.
func (s *Store) SetOp(name, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`INSERT INTO op (name, uuid) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET uuid = excluded.uuid;`, name, uuid); err != nil {
		return err
	}
	s.ops[strings.ToLower(name)] = uuid
	return nil
}

// RemoveOp revokes operator privilege. Returns whether an entry existed.
func (s *Store) RemoveOp(name string) (bool, error) {
	key := strings.ToLower(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.ops[key]; !exists {
		return false, nil
	}
	if _, err := s.db.Exec(`DELETE FROM op WHERE name = ? COLLATE NOCASE;`, name); err != nil {
		return false, err
	}
	delete(s.ops, key)
	return true, nil
}

// RecordLogin appends one row to the append-only login audit trail.
func (s *Store) RecordLogin(uuid, name, addr string, at time.Time) error {
	_, err := s.db.Exec(`INSERT INTO login_audit (uuid, name, at, addr) VALUES (?, ?, ?, ?);`,
		uuid, name, at.UTC().Format(time.RFC3339), addr)
	return err
}
