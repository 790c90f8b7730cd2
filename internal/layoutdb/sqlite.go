// Package layoutdb persists zone and stage layout to sqlite so a render host
// restart brings the room back exactly as it was.
package layoutdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"beatcraft.ai/internal/spatial"
)

// Store implements spatial.LayoutStore. Writes are serialized through a
// single goroutine; the registry treats store errors as non-fatal, so a
// failed write is logged and the in-memory layout stays authoritative.
type Store struct {
	db  *sql.DB
	log *log.Logger

	ch     chan writeReq
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool
}

type writeKind int

const (
	writeSaveZone writeKind = iota + 1
	writeDeleteZone
	writeSaveStage
	writeDeleteStage
)

type writeReq struct {
	kind  writeKind
	name  string
	zone  spatial.ZoneRecord
	stage spatial.StageRecord
}

func Open(path string, logger *log.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:  db,
		log: logger,
		ch:  make(chan writeReq, 256),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS zones (
			name TEXT PRIMARY KEY COLLATE NOCASE,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS stages (
			name TEXT PRIMARY KEY COLLATE NOCASE,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the whole persisted layout. Called once at startup before any
// writes are enqueued.
func (s *Store) Load() ([]spatial.ZoneRecord, []spatial.StageRecord, error) {
	zones, err := loadZones(s.db)
	if err != nil {
		return nil, nil, err
	}
	stages, err := loadStages(s.db)
	if err != nil {
		return nil, nil, err
	}
	return zones, stages, nil
}

func loadZones(db *sql.DB) ([]spatial.ZoneRecord, error) {
	rows, err := db.Query(`SELECT json FROM zones ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []spatial.ZoneRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec spatial.ZoneRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("zone row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func loadStages(db *sql.DB) ([]spatial.StageRecord, error) {
	rows, err := db.Query(`SELECT json FROM stages ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []spatial.StageRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec spatial.StageRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("stage row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) SaveZone(rec spatial.ZoneRecord) error {
	return s.enqueue(writeReq{kind: writeSaveZone, zone: rec})
}

func (s *Store) DeleteZone(name string) error {
	return s.enqueue(writeReq{kind: writeDeleteZone, name: name})
}

func (s *Store) SaveStage(rec spatial.StageRecord) error {
	return s.enqueue(writeReq{kind: writeSaveStage, stage: rec})
}

func (s *Store) DeleteStage(name string) error {
	return s.enqueue(writeReq{kind: writeDeleteStage, name: name})
}

func (s *Store) enqueue(r writeReq) error {
	if s == nil || s.closed.Load() {
		return fmt.Errorf("layout store closed")
	}
	s.ch <- r
	return nil
}

// Close drains pending writes, then closes the database.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *Store) loop() {
	for r := range s.ch {
		if err := s.apply(r); err != nil {
			s.log.Printf("[layoutdb] write: %v", err)
		}
	}
}

func (s *Store) apply(r writeReq) error {
	now := time.Now().UTC().Format(time.RFC3339)
	switch r.kind {
	case writeSaveZone:
		b, err := json.Marshal(r.zone)
		if err != nil {
			return err
		}
		_, err = s.db.Exec(`INSERT OR REPLACE INTO zones(name,json,updated_at) VALUES(?,?,?)`, r.zone.Name, string(b), now)
		return err
	case writeDeleteZone:
		_, err := s.db.Exec(`DELETE FROM zones WHERE name = ?`, r.name)
		return err
	case writeSaveStage:
		b, err := json.Marshal(r.stage)
		if err != nil {
			return err
		}
		_, err = s.db.Exec(`INSERT OR REPLACE INTO stages(name,json,updated_at) VALUES(?,?,?)`, r.stage.Name, string(b), now)
		return err
	case writeDeleteStage:
		_, err := s.db.Exec(`DELETE FROM stages WHERE name = ?`, r.name)
		return err
	default:
		return fmt.Errorf("unknown write kind %d", r.kind)
	}
}
