// Package storage is the durable archive: customers, the promotion catalog
// and saved call interactions, plus the daily markdown interaction journal.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const InteractionPhoneCall = "PHONE_CALL"

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var ErrNotFound = errors.New("not found")

type Customer struct {
	ID            int64    `json:"id" yaml:"id"`
	FirstName     string   `json:"first_name" yaml:"first_name"`
	LastName      string   `json:"last_name" yaml:"last_name"`
	PreferredName string   `json:"preferred_name,omitempty" yaml:"preferred_name"`
	PhoneNumber   string   `json:"phone_number,omitempty" yaml:"phone_number"`
	TotalAssets   *float64 `json:"total_assets,omitempty" yaml:"total_assets"`
	CallReason    string   `json:"call_reason,omitempty" yaml:"call_reason"`
	ContactCenter string   `json:"contact_center,omitempty" yaml:"contact_center"`
}

// Profile renders the customer the way the summarizer prompts expect it.
func (c Customer) Profile() string {
	assets := "N/A"
	if c.TotalAssets != nil {
		assets = strconv.FormatFloat(*c.TotalAssets, 'f', 2, 64)
	}
	return fmt.Sprintf("Name: %s %s, Assets: %s", c.FirstName, c.LastName, assets)
}

type Promotion struct {
	ID          int64  `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Conditions  string `json:"conditions,omitempty" yaml:"conditions"`
}

type Interaction struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	Kind       string    `json:"type"`
	Summary    string    `json:"summary"`
	CreatedAt  time.Time `json:"date"`
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "callscribe.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS customers (
			id INTEGER PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			preferred_name TEXT NOT NULL DEFAULT '',
			phone_number TEXT NOT NULL DEFAULT '',
			total_assets REAL,
			call_reason TEXT NOT NULL DEFAULT '',
			contact_center TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		return fmt.Errorf("create customers table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS promotions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL,
			conditions TEXT NOT NULL DEFAULT ''
		);
	`); err != nil {
		return fmt.Errorf("create promotions table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS interactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			customer_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			FOREIGN KEY(customer_id) REFERENCES customers(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create interactions table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_interactions_customer ON interactions(customer_id, created_at)"); err != nil {
		return fmt.Errorf("create interactions index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var (
		c      Customer
		assets sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, preferred_name, phone_number, total_assets, call_reason, contact_center
		FROM customers WHERE id = ?`, id,
	).Scan(&c.ID, &c.FirstName, &c.LastName, &c.PreferredName, &c.PhoneNumber, &assets, &c.CallReason, &c.ContactCenter)
	if errors.Is(err, sql.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	if err != nil {
		return Customer{}, fmt.Errorf("get customer %d: %w", id, err)
	}
	if assets.Valid {
		v := assets.Float64
		c.TotalAssets = &v
	}
	return c, nil
}

func (s *SQLiteStore) UpsertCustomer(ctx context.Context, c Customer) error {
	if c.ID <= 0 {
		return errors.New("customer id is required")
	}

	var assets any
	if c.TotalAssets != nil {
		assets = *c.TotalAssets
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers(id, first_name, last_name, preferred_name, phone_number, total_assets, call_reason, contact_center)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			preferred_name = excluded.preferred_name,
			phone_number = excluded.phone_number,
			total_assets = excluded.total_assets,
			call_reason = excluded.call_reason,
			contact_center = excluded.contact_center`,
		c.ID, c.FirstName, c.LastName, c.PreferredName, c.PhoneNumber, assets, c.CallReason, c.ContactCenter,
	)
	if err != nil {
		return fmt.Errorf("upsert customer %d: %w", c.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListPromotions(ctx context.Context) ([]Promotion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, conditions FROM promotions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list promotions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	promos := make([]Promotion, 0)
	for rows.Next() {
		var p Promotion
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Conditions); err != nil {
			return nil, fmt.Errorf("scan promotion: %w", err)
		}
		promos = append(promos, p)
	}
	return promos, rows.Err()
}

// SavePromotion inserts p, or replaces the promotion with the same id when
// p.ID is set. It returns the promotion id.
func (s *SQLiteStore) SavePromotion(ctx context.Context, p Promotion) (int64, error) {
	if strings.TrimSpace(p.Description) == "" {
		return 0, errors.New("promotion description is required")
	}

	if p.ID > 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO promotions(id, name, description, conditions) VALUES(?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				conditions = excluded.conditions`,
			p.ID, p.Name, p.Description, p.Conditions,
		)
		if err != nil {
			return 0, fmt.Errorf("save promotion %d: %w", p.ID, err)
		}
		return p.ID, nil
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO promotions(name, description, conditions) VALUES(?, ?, ?)`,
		p.Name, p.Description, p.Conditions,
	)
	if err != nil {
		return 0, fmt.Errorf("create promotion: %w", err)
	}
	return res.LastInsertId()
}

// RecordInteraction archives a saved summary and returns the interaction id.
func (s *SQLiteStore) RecordInteraction(ctx context.Context, customerID int64, kind, summary string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions(customer_id, type, summary, created_at) VALUES(?, ?, ?, ?)`,
		customerID, kind, summary, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("record interaction for customer %d: %w", customerID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("interaction id: %w", err)
	}
	return id, nil
}

// InteractionsForCustomer returns the customer's interactions, newest first.
func (s *SQLiteStore) InteractionsForCustomer(ctx context.Context, customerID int64, limit int) ([]Interaction, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, type, summary, created_at
		FROM interactions
		WHERE customer_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list interactions for customer %d: %w", customerID, err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Interaction, 0)
	for rows.Next() {
		var (
			it      Interaction
			created string
		)
		if err := rows.Scan(&it.ID, &it.CustomerID, &it.Kind, &it.Summary, &created); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		it.CreatedAt, err = time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("parse interaction time: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Reset deletes every customer, promotion and interaction.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"interactions", "promotions", "customers"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name IN ('interactions', 'promotions')"); err != nil {
		return fmt.Errorf("reset sequences: %w", err)
	}
	return tx.Commit()
}
