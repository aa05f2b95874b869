package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cardpilot/cardpilot/internal/model"
)

// Verify at compile time that Store implements all interfaces.
var (
	_ CardReader     = (*Store)(nil)
	_ CardWriter     = (*Store)(nil)
	_ DeckStore      = (*Store)(nil)
	_ RejectionStore = (*Store)(nil)
	_ ReviewLogStore = (*Store)(nil)
)

// Store provides data access to the SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and initialises the schema.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema version: %w", err)
		}
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	// migrations is an ordered list of migration functions.
	// Index 0 = migration from v0 to v1, etc.
	migrations := []func() error{
		s.migrateV1, // v0 → v1: initial schema
	}

	for i := version; i < len(migrations); i++ {
		if err := migrations[i](); err != nil {
			return fmt.Errorf("migration v%d→v%d: %w", i, i+1, err)
		}
		if _, err := s.db.Exec(`UPDATE schema_version SET version = ?`, i+1); err != nil {
			return fmt.Errorf("update schema version to %d: %w", i+1, err)
		}
	}

	return nil
}

// migrateV1 creates the initial schema (v0 → v1).
func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS decks (
		id                TEXT PRIMARY KEY,
		name              TEXT NOT NULL,
		description       TEXT NOT NULL DEFAULT '',
		suggestion_target INTEGER NOT NULL DEFAULT 0,
		created_at        TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cards (
		id                  TEXT PRIMARY KEY,
		deck_id             TEXT NOT NULL REFERENCES decks(id),
		front               TEXT NOT NULL,
		back                TEXT NOT NULL DEFAULT '',
		item_type           TEXT NOT NULL,
		artwork_prompt      TEXT NOT NULL DEFAULT '',
		artwork             BLOB,
		ease_factor         REAL NOT NULL,
		interval_days       INTEGER NOT NULL DEFAULT 0,
		repetitions         INTEGER NOT NULL DEFAULT 0,
		due                 TEXT,
		review_count        INTEGER NOT NULL DEFAULT 0,
		last_reviewed       TEXT,
		state               TEXT NOT NULL,
		archived_at         TEXT,
		suggestion_context  TEXT NOT NULL DEFAULT '',
		suggestion_category TEXT NOT NULL DEFAULT '',
		failure_count       INTEGER NOT NULL DEFAULT 0,
		last_failure_at     TEXT,
		created_at          TEXT NOT NULL,
		updated_at          TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cards_deck_state ON cards(deck_id, state);
	CREATE INDEX IF NOT EXISTS idx_cards_state ON cards(state, created_at);

	CREATE TABLE IF NOT EXISTS rejections (
		id          TEXT PRIMARY KEY,
		deck_id     TEXT NOT NULL REFERENCES decks(id),
		front       TEXT NOT NULL,
		item_type   TEXT NOT NULL,
		rejected_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rejections_deck ON rejections(deck_id, front, item_type);

	CREATE TABLE IF NOT EXISTS review_logs (
		id          TEXT PRIMARY KEY,
		card_id     TEXT NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
		grade       INTEGER NOT NULL,
		elapsed_ms  INTEGER NOT NULL DEFAULT 0,
		reviewed_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_review_logs_card ON review_logs(card_id, reviewed_at ASC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ---------------------------------------------------------------------------
// Time helpers. Timestamps persist as RFC3339 UTC text so range comparisons
// stay lexicographic.
// ---------------------------------------------------------------------------

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func fmtTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ---------------------------------------------------------------------------
// Cards
// ---------------------------------------------------------------------------

const cardColumns = `id, deck_id, front, back, item_type, artwork_prompt, artwork,
	ease_factor, interval_days, repetitions, due, review_count, last_reviewed,
	state, archived_at, suggestion_context, suggestion_category,
	failure_count, last_failure_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCard(row rowScanner) (*model.Card, error) {
	var (
		c                                   model.Card
		state                               string
		due, lastReviewed, archivedAt       sql.NullString
		lastFailureAt, createdAt, updatedAt sql.NullString
	)
	err := row.Scan(
		&c.ID, &c.DeckID, &c.Front, &c.Back, &c.ItemType, &c.ArtworkPrompt, &c.Artwork,
		&c.EaseFactor, &c.IntervalDays, &c.Repetitions, &due, &c.ReviewCount, &lastReviewed,
		&state, &archivedAt, &c.SuggestionContext, &c.SuggestionCategory,
		&c.FailureCount, &lastFailureAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.State = model.LifecycleState(state)

	if c.Due, err = parseTimePtr(due); err != nil {
		return nil, fmt.Errorf("parse due: %w", err)
	}
	if c.LastReviewed, err = parseTimePtr(lastReviewed); err != nil {
		return nil, fmt.Errorf("parse last_reviewed: %w", err)
	}
	if c.ArchivedAt, err = parseTimePtr(archivedAt); err != nil {
		return nil, fmt.Errorf("parse archived_at: %w", err)
	}
	if c.LastFailureAt, err = parseTimePtr(lastFailureAt); err != nil {
		return nil, fmt.Errorf("parse last_failure_at: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt.String); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt.String); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &c, nil
}

// CreateCard inserts a new card.
func (s *Store) CreateCard(ctx context.Context, c model.Card) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cards (`+cardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.DeckID, c.Front, c.Back, c.ItemType, c.ArtworkPrompt, c.Artwork,
		c.EaseFactor, c.IntervalDays, c.Repetitions, fmtTimePtr(c.Due), c.ReviewCount, fmtTimePtr(c.LastReviewed),
		string(c.State), fmtTimePtr(c.ArchivedAt), c.SuggestionContext, c.SuggestionCategory,
		c.FailureCount, fmtTimePtr(c.LastFailureAt), fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt),
	)
	return err
}

// UpdateCard rewrites the full card row.
func (s *Store) UpdateCard(ctx context.Context, c model.Card) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cards SET
			deck_id = ?, front = ?, back = ?, item_type = ?, artwork_prompt = ?, artwork = ?,
			ease_factor = ?, interval_days = ?, repetitions = ?, due = ?, review_count = ?, last_reviewed = ?,
			state = ?, archived_at = ?, suggestion_context = ?, suggestion_category = ?,
			failure_count = ?, last_failure_at = ?, updated_at = ?
		WHERE id = ?`,
		c.DeckID, c.Front, c.Back, c.ItemType, c.ArtworkPrompt, c.Artwork,
		c.EaseFactor, c.IntervalDays, c.Repetitions, fmtTimePtr(c.Due), c.ReviewCount, fmtTimePtr(c.LastReviewed),
		string(c.State), fmtTimePtr(c.ArchivedAt), c.SuggestionContext, c.SuggestionCategory,
		c.FailureCount, fmtTimePtr(c.LastFailureAt), fmtTime(c.UpdatedAt),
		c.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteCard removes a card. Review logs cascade.
func (s *Store) DeleteCard(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id)
	return err
}

// GetCard returns a single card by id.
func (s *Store) GetCard(ctx context.Context, id string) (*model.Card, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	return scanCard(row)
}

// ListCards returns cards matching the filter, ordered by creation time.
func (s *Store) ListCards(ctx context.Context, f model.CardFilter) ([]model.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards`
	var conditions []string
	var args []interface{}

	if f.DeckID != "" {
		conditions = append(conditions, "deck_id = ?")
		args = append(args, f.DeckID)
	}
	if len(f.States) > 0 {
		placeholders := make([]string, len(f.States))
		for i, st := range f.States {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		conditions = append(conditions, "state IN ("+strings.Join(placeholders, ",")+")")
	}
	if f.MissingArtwork {
		conditions = append(conditions, "(artwork IS NULL OR length(artwork) = 0)")
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []model.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

// CountSuggestions returns the number of pending plus visible suggestions
// for the deck.
func (s *Store) CountSuggestions(ctx context.Context, deckID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cards WHERE deck_id = ? AND state IN (?, ?)`,
		deckID, string(model.StateSuggestionPending), string(model.StateSuggestionVisible),
	).Scan(&n)
	return n, err
}

// DeckCounts returns the due/new/visible-suggestion counts for a deck.
// "New" active cards have never been studied (no due timestamp); "due" cards
// have a due timestamp at or before now.
func (s *Store) DeckCounts(ctx context.Context, deckID string, now time.Time) (model.DeckCounts, error) {
	var counts model.DeckCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN state = ? AND due IS NOT NULL AND due <= ? THEN 1 END),
			COUNT(CASE WHEN state = ? AND due IS NULL THEN 1 END),
			COUNT(CASE WHEN state = ? THEN 1 END)
		FROM cards WHERE deck_id = ?`,
		string(model.StateActive), fmtTime(now),
		string(model.StateActive),
		string(model.StateSuggestionVisible),
		deckID,
	).Scan(&counts.Due, &counts.New, &counts.Suggestions)
	return counts, err
}

// ---------------------------------------------------------------------------
// Decks
// ---------------------------------------------------------------------------

// CreateDeck inserts a new deck.
func (s *Store) CreateDeck(ctx context.Context, d model.Deck) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decks (id, name, description, suggestion_target, created_at) VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.Description, d.SuggestionTarget, fmtTime(d.CreatedAt),
	)
	return err
}

func scanDeck(row rowScanner) (*model.Deck, error) {
	var d model.Deck
	var createdAt string
	if err := row.Scan(&d.ID, &d.Name, &d.Description, &d.SuggestionTarget, &createdAt); err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	d.CreatedAt = t
	return &d, nil
}

// GetDeck returns a deck by id.
func (s *Store) GetDeck(ctx context.Context, id string) (*model.Deck, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, suggestion_target, created_at FROM decks WHERE id = ?`, id)
	return scanDeck(row)
}

// ListDecks returns all decks ordered by creation time.
func (s *Store) ListDecks(ctx context.Context) ([]model.Deck, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, suggestion_target, created_at FROM decks ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decks []model.Deck
	for rows.Next() {
		d, err := scanDeck(rows)
		if err != nil {
			return nil, err
		}
		decks = append(decks, *d)
	}
	return decks, rows.Err()
}

// SetDeckSuggestionTarget updates the deck's suggestion target.
func (s *Store) SetDeckSuggestionTarget(ctx context.Context, id string, target int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE decks SET suggestion_target = ? WHERE id = ?`, target, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---------------------------------------------------------------------------
// Rejection records
// ---------------------------------------------------------------------------

// CreateRejection inserts a rejection record.
func (s *Store) CreateRejection(ctx context.Context, r model.RejectionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rejections (id, deck_id, front, item_type, rejected_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.DeckID, r.Front, r.ItemType, fmtTime(r.RejectedAt),
	)
	return err
}

// ListRejectionsByDeck returns the deck's full rejection history.
func (s *Store) ListRejectionsByDeck(ctx context.Context, deckID string) ([]model.RejectionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, deck_id, front, item_type, rejected_at FROM rejections WHERE deck_id = ? ORDER BY rejected_at ASC`, deckID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.RejectionRecord
	for rows.Next() {
		var r model.RejectionRecord
		var rejectedAt string
		if err := rows.Scan(&r.ID, &r.DeckID, &r.Front, &r.ItemType, &rejectedAt); err != nil {
			return nil, err
		}
		t, err := parseTime(rejectedAt)
		if err != nil {
			return nil, fmt.Errorf("parse rejected_at: %w", err)
		}
		r.RejectedAt = t
		records = append(records, r)
	}
	return records, rows.Err()
}

// ---------------------------------------------------------------------------
// Review logs
// ---------------------------------------------------------------------------

// CreateReviewLog inserts a review history entry.
func (s *Store) CreateReviewLog(ctx context.Context, l model.ReviewLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO review_logs (id, card_id, grade, elapsed_ms, reviewed_at) VALUES (?, ?, ?, ?, ?)`,
		l.ID, l.CardID, int(l.Grade), l.ElapsedMs, fmtTime(l.ReviewedAt),
	)
	return err
}

// ListReviewLogsByCard returns a card's review history, oldest first.
func (s *Store) ListReviewLogsByCard(ctx context.Context, cardID string) ([]model.ReviewLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, card_id, grade, elapsed_ms, reviewed_at FROM review_logs WHERE card_id = ? ORDER BY reviewed_at ASC, id ASC`, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []model.ReviewLog
	for rows.Next() {
		var l model.ReviewLog
		var grade int
		var reviewedAt string
		if err := rows.Scan(&l.ID, &l.CardID, &grade, &l.ElapsedMs, &reviewedAt); err != nil {
			return nil, err
		}
		l.Grade = model.Grade(grade)
		t, err := parseTime(reviewedAt)
		if err != nil {
			return nil, fmt.Errorf("parse reviewed_at: %w", err)
		}
		l.ReviewedAt = t
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
