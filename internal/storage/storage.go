package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"imagededup/internal/match"
	"imagededup/internal/models"
)

// ErrNoScan is returned when no scan has been saved yet
var ErrNoScan = errors.New("no scan recorded")

// Storage persists scans, decisions, tags and keep-all exclusions
type Storage struct {
	db     *sql.DB
	dbPath string
}

// NewStorage creates a new Storage
func NewStorage(dbPath string) (*Storage, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	s := &Storage{db: db, dbPath: dbPath}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file location
func (s *Storage) Path() string {
	return s.dbPath
}

// Current schema version
const schemaVersion = 3

// migrations defines all schema migrations
// Each migration should be idempotent (safe to run multiple times)
var migrations = []struct {
	version     int
	description string
	up          string
	table       string // column migrations are skipped when table.column exists
	column      string
}{
	{
		version:     1,
		description: "Initial schema",
		up:          "", // Handled by base schema creation
	},
	{
		version:     2,
		description: "Add aborted flag to scans",
		up: `
			ALTER TABLE scans ADD COLUMN aborted INTEGER DEFAULT 0;
		`,
		table:  "scans",
		column: "aborted",
	},
	{
		version:     3,
		description: "Add member hash values",
		up: `
			ALTER TABLE group_members ADD COLUMN hash_value TEXT NOT NULL DEFAULT '';
		`,
		table:  "group_members",
		column: "hash_value",
	},
}

// init creates the database schema
func (s *Storage) init() error {
	// Create schema_version table first
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	// Create base schema
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		algorithm TEXT NOT NULL,
		threshold REAL NOT NULL,
		total_items INTEGER NOT NULL,
		items_hashed INTEGER NOT NULL,
		errors TEXT NOT NULL DEFAULT '[]',
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scans_started_at ON scans(started_at);

	CREATE TABLE IF NOT EXISTS duplicate_groups (
		scan_id TEXT NOT NULL,
		group_id INTEGER NOT NULL,
		hash_type TEXT NOT NULL,
		pivot TEXT NOT NULL,
		PRIMARY KEY (scan_id, group_id)
	);

	CREATE TABLE IF NOT EXISTS group_members (
		scan_id TEXT NOT NULL,
		group_id INTEGER NOT NULL,
		item_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		similarity REAL NOT NULL,
		PRIMARY KEY (scan_id, group_id, item_id)
	);

	CREATE INDEX IF NOT EXISTS idx_group_members_item ON group_members(item_id);

	CREATE TABLE IF NOT EXISTS decisions (
		scan_id TEXT NOT NULL,
		group_id INTEGER NOT NULL,
		keep_item TEXT NOT NULL,
		remove_items TEXT NOT NULL,
		reason TEXT NOT NULL,
		PRIMARY KEY (scan_id, group_id)
	);

	CREATE TABLE IF NOT EXISTS tags (
		item_id TEXT NOT NULL,
		label TEXT NOT NULL,
		tagged_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (item_id, label)
	);

	CREATE TABLE IF NOT EXISTS exclusions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		items TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err = s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Run migrations
	if err := s.migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// migrate runs pending schema migrations
func (s *Storage) migrate() error {
	currentVersion := s.getSchemaVersion()

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if m.up == "" {
			s.setSchemaVersion(m.version)
			continue
		}

		// Check if migration is needed (column might already exist)
		if m.column != "" && s.columnExists(m.table, m.column) {
			s.setSchemaVersion(m.version)
			continue
		}

		if _, err := s.db.Exec(m.up); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
		}

		s.setSchemaVersion(m.version)
	}

	return nil
}

// getSchemaVersion returns the current schema version
func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

// setSchemaVersion records a migration as applied
func (s *Storage) setSchemaVersion(version int) {
	s.db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version)
}

// columnExists checks if a column exists in a table
func (s *Storage) columnExists(table, column string) bool {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?
	`, table, column).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Fixed-width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(timeLayout, v)
	return t
}

// SaveScan stores a scan result with its groups
func (s *Storage) SaveScan(res *models.ScanResult, source string) error {
	errs, err := json.Marshal(res.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode scan errors: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	aborted := 0
	if res.Aborted {
		aborted = 1
	}
	_, err = tx.Exec(`
		INSERT OR REPLACE INTO scans (id, source, algorithm, threshold, total_items, items_hashed, errors, aborted, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, res.ScanID, source, string(res.Algorithm), res.Threshold, res.TotalItems, res.ItemsHashed,
		string(errs), aborted, formatTime(res.StartedAt), formatTime(res.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to insert scan %s: %w", res.ScanID, err)
	}

	groupStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO duplicate_groups (scan_id, group_id, hash_type, pivot) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer groupStmt.Close()

	memberStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO group_members (scan_id, group_id, item_id, position, similarity, hash_value) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer memberStmt.Close()

	for _, g := range res.Groups {
		if _, err := groupStmt.Exec(res.ScanID, g.ID, string(g.HashType), g.Pivot); err != nil {
			return fmt.Errorf("failed to insert group %d: %w", g.ID, err)
		}
		for pos, item := range g.Items {
			if _, err := memberStmt.Exec(res.ScanID, g.ID, item, pos, g.SimilarityScores[item], g.Hashes[item]); err != nil {
				return fmt.Errorf("failed to insert member %s: %w", item, err)
			}
		}
	}

	return tx.Commit()
}

// LatestScan returns the most recently started scan
func (s *Storage) LatestScan() (*models.ScanResult, error) {
	var id string
	err := s.db.QueryRow(`SELECT id FROM scans ORDER BY started_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoScan
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	return s.Scan(id)
}

// ScanSource returns the folder a scan was run against
func (s *Storage) ScanSource(id string) (string, error) {
	var source string
	err := s.db.QueryRow(`SELECT source FROM scans WHERE id = ?`, id).Scan(&source)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNoScan, id)
	}
	return source, err
}

// Scan loads a stored scan. Groups left with fewer than two members after
// DeleteItem are omitted; a group that lost its pivot is re-pivoted on the
// smallest remaining member.
func (s *Storage) Scan(id string) (*models.ScanResult, error) {
	res := &models.ScanResult{ScanID: id}

	var (
		algo, errs, started, completed string
		aborted                        int
	)
	err := s.db.QueryRow(`
		SELECT algorithm, threshold, total_items, items_hashed, errors, aborted, started_at, completed_at
		FROM scans WHERE id = ?
	`, id).Scan(&algo, &res.Threshold, &res.TotalItems, &res.ItemsHashed, &errs, &aborted, &started, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNoScan, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load scan %s: %w", id, err)
	}

	res.Algorithm = models.Algorithm(algo)
	res.Aborted = aborted == 1
	res.StartedAt = parseTime(started)
	res.CompletedAt = parseTime(completed)
	if err := json.Unmarshal([]byte(errs), &res.Errors); err != nil {
		return nil, fmt.Errorf("failed to decode scan errors: %w", err)
	}

	groups, err := s.groups(id)
	if err != nil {
		return nil, err
	}
	res.Groups = groups
	return res, nil
}

func (s *Storage) groups(scanID string) ([]*models.DuplicateGroup, error) {
	rows, err := s.db.Query(`
		SELECT g.group_id, g.hash_type, g.pivot, m.item_id, m.similarity, m.hash_value
		FROM duplicate_groups g
		JOIN group_members m ON m.scan_id = g.scan_id AND m.group_id = g.group_id
		WHERE g.scan_id = ?
		ORDER BY g.group_id, m.position
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var (
		groups []*models.DuplicateGroup
		cur    *models.DuplicateGroup
	)
	for rows.Next() {
		var (
			groupID         int
			hashType, pivot string
			item, value     string
			similarity      float64
		)
		if err := rows.Scan(&groupID, &hashType, &pivot, &item, &similarity, &value); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if cur == nil || cur.ID != groupID {
			cur = &models.DuplicateGroup{
				ID:               groupID,
				HashType:         models.Algorithm(hashType),
				Pivot:            pivot,
				SimilarityScores: make(map[string]float64),
				Hashes:           make(map[string]string),
			}
			groups = append(groups, cur)
		}
		cur.Items = append(cur.Items, item)
		cur.SimilarityScores[item] = similarity
		if value != "" {
			cur.Hashes[item] = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	kept := make([]*models.DuplicateGroup, 0, len(groups))
	for _, g := range groups {
		if len(g.Items) < 2 {
			continue
		}
		if !g.Contains(g.Pivot) {
			match.Repivot(g)
		}
		kept = append(kept, g)
	}
	return kept, nil
}

// SaveDecisions replaces the stored plan for a scan. decisions[i] belongs
// to groups[i].
func (s *Storage) SaveDecisions(scanID string, groups []*models.DuplicateGroup, decisions []models.DedupDecision) error {
	if len(groups) != len(decisions) {
		return fmt.Errorf("got %d decisions for %d groups", len(decisions), len(groups))
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM decisions WHERE scan_id = ?`, scanID); err != nil {
		return fmt.Errorf("failed to clear decisions: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO decisions (scan_id, group_id, keep_item, remove_items, reason) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, d := range decisions {
		remove, err := json.Marshal(nonNil(d.RemoveItems))
		if err != nil {
			return fmt.Errorf("failed to encode decision: %w", err)
		}
		if _, err := stmt.Exec(scanID, groups[i].ID, d.KeepItem, string(remove), d.Reason); err != nil {
			return fmt.Errorf("failed to insert decision for group %d: %w", groups[i].ID, err)
		}
	}

	return tx.Commit()
}

// SaveDecision stores or replaces the decision for one group
func (s *Storage) SaveDecision(scanID string, groupID int, d models.DedupDecision) error {
	remove, err := json.Marshal(nonNil(d.RemoveItems))
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO decisions (scan_id, group_id, keep_item, remove_items, reason) VALUES (?, ?, ?, ?, ?)
	`, scanID, groupID, d.KeepItem, string(remove), d.Reason)
	return err
}

// Decisions returns the stored plan for a scan keyed by group ID
func (s *Storage) Decisions(scanID string) (map[int]models.DedupDecision, error) {
	rows, err := s.db.Query(`
		SELECT group_id, keep_item, remove_items, reason FROM decisions WHERE scan_id = ? ORDER BY group_id
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	out := make(map[int]models.DedupDecision)
	for rows.Next() {
		var (
			groupID int
			remove  string
			d       models.DedupDecision
		)
		if err := rows.Scan(&groupID, &d.KeepItem, &remove, &d.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(remove), &d.RemoveItems); err != nil {
			return nil, fmt.Errorf("failed to decode decision: %w", err)
		}
		out[groupID] = d
	}
	return out, rows.Err()
}

// TagItem attaches a label to an item
func (s *Storage) TagItem(id, label string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO tags (item_id, label) VALUES (?, ?)`, id, label)
	if err != nil {
		return fmt.Errorf("failed to tag %s: %w", id, err)
	}
	return nil
}

// Tags returns the labels attached to an item
func (s *Storage) Tags(id string) ([]string, error) {
	rows, err := s.db.Query(`SELECT label FROM tags WHERE item_id = ? ORDER BY label`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

// TaggedItems returns every item carrying label
func (s *Storage) TaggedItems(label string) ([]string, error) {
	rows, err := s.db.Query(`SELECT item_id FROM tags WHERE label = ? ORDER BY item_id`, label)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddExclusion records a group a reviewer marked as "keep all" so later
// scans can leave it out
func (s *Storage) AddExclusion(items []string) error {
	if len(items) < 2 {
		return fmt.Errorf("exclusion needs at least two items, got %d", len(items))
	}
	sorted := make([]string, len(items))
	copy(sorted, items)
	sort.Strings(sorted)

	data, err := json.Marshal(sorted)
	if err != nil {
		return fmt.Errorf("failed to encode exclusion: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO exclusions (items) VALUES (?)`, string(data))
	return err
}

// Exclusions returns every stored keep-all set
func (s *Storage) Exclusions() ([][]string, error) {
	rows, err := s.db.Query(`SELECT items FROM exclusions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query exclusions: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var items []string
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, fmt.Errorf("failed to decode exclusion: %w", err)
		}
		out = append(out, items)
	}
	return out, rows.Err()
}

// DeleteItem forgets an item that left the source: its group memberships,
// its place in saved plans and its tags
func (s *Storage) DeleteItem(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM group_members WHERE item_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM tags WHERE item_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete tags of %s: %w", id, err)
	}
	if err := pruneDecisions(tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

// pruneDecisions removes id from the remove list of every saved decision
func pruneDecisions(tx *sql.Tx, id string) error {
	quoted, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", id, err)
	}

	type decisionKey struct {
		scanID  string
		groupID int
	}
	rows, err := tx.Query(`
		SELECT scan_id, group_id, remove_items FROM decisions WHERE instr(remove_items, ?) > 0
	`, string(quoted))
	if err != nil {
		return fmt.Errorf("failed to query decisions: %w", err)
	}
	updates := make(map[decisionKey][]string)
	for rows.Next() {
		var (
			key    decisionKey
			remove string
			items  []string
		)
		if err := rows.Scan(&key.scanID, &key.groupID, &remove); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(remove), &items); err != nil {
			rows.Close()
			return fmt.Errorf("failed to decode decision: %w", err)
		}
		kept := make([]string, 0, len(items))
		for _, item := range items {
			if item != id {
				kept = append(kept, item)
			}
		}
		if len(kept) != len(items) {
			updates[key] = kept
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for key, items := range updates {
		data, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("failed to encode decision: %w", err)
		}
		_, err = tx.Exec(`UPDATE decisions SET remove_items = ? WHERE scan_id = ? AND group_id = ?`,
			string(data), key.scanID, key.groupID)
		if err != nil {
			return fmt.Errorf("failed to update decision: %w", err)
		}
	}
	return nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
