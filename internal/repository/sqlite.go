package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const maxBusyTimeoutMs = 5000

type sqliteStore struct {
	db   *sql.DB
	file string
}

// NewSqliteStore opens (or creates) the ledger database at path.
func NewSqliteStore(path string) (Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", filepath.Clean(absPath)))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// a single connection serialises writers the same way the ledger does
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", maxBusyTimeoutMs)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &sqliteStore{db: db, file: absPath}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	zap.L().With(zap.String("file", absPath)).Debug("Store: Opened sqlite store")

	return s, nil
}

func (s *sqliteStore) ensureSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS listings (
			collection TEXT NOT NULL,
			asset_id INTEGER NOT NULL,
			seller TEXT NOT NULL,
			price TEXT NOT NULL,
			PRIMARY KEY (collection, asset_id)
		)`,
		`CREATE TABLE IF NOT EXISTS proceeds (
			owner TEXT PRIMARY KEY,
			balance TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			sequence INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			collection TEXT,
			asset_id INTEGER,
			seller TEXT,
			buyer TEXT,
			price TEXT,
			time INTEGER NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	return nil
}

func (s *sqliteStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	return &sqliteTx{ctx: ctx, tx: tx}, nil
}

func (s *sqliteStore) GetListing(ctx context.Context, collection string, assetId uint64) (*entity.Listing, error) {
	return getListing(s.db.QueryRowContext(ctx,
		`SELECT collection, asset_id, seller, price FROM listings WHERE collection = ? AND asset_id = ?`,
		collection, int64(assetId),
	))
}

func (s *sqliteStore) GetListings(ctx context.Context) ([]entity.Listing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT collection, asset_id, seller, price FROM listings ORDER BY collection, asset_id`)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	listings := make([]entity.Listing, 0)
	for rows.Next() {
		listing, err := getListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *listing)
	}

	return listings, rows.Err()
}

func (s *sqliteStore) GetProceeds(ctx context.Context, owner string) (*big.Int, error) {
	return getProceeds(s.db.QueryRowContext(ctx, `SELECT balance FROM proceeds WHERE owner = ?`, owner))
}

func (s *sqliteStore) GetEvents(ctx context.Context, fromSequence uint64, limit int) ([]entity.Event, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence, type, collection, asset_id, seller, buyer, price, time
		FROM events WHERE sequence >= ? ORDER BY sequence LIMIT ?`,
		int64(fromSequence), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]entity.Event, 0)
	for rows.Next() {
		var (
			e                                entity.Event
			sequence, assetId, unixNano      int64
			eventType                        string
			collection, seller, buyer, price sql.NullString
		)
		if err := rows.Scan(&sequence, &eventType, &collection, &assetId, &seller, &buyer, &price, &unixNano); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		e.Sequence = uint64(sequence)
		e.Type = entity.EventType(eventType)
		e.Collection = collection.String
		e.AssetId = uint64(assetId)
		e.Seller = seller.String
		e.Buyer = buyer.String
		e.Time = time.Unix(0, unixNano).UTC()
		if price.Valid && price.String != "" {
			e.Price, err = parseAmount(price.String)
			if err != nil {
				return nil, err
			}
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

type sqliteTx struct {
	ctx       context.Context
	tx        *sql.Tx
	events    []*entity.Event
	committed bool
}

func (t *sqliteTx) GetListing(collection string, assetId uint64) (*entity.Listing, error) {
	return getListing(t.tx.QueryRowContext(t.ctx,
		`SELECT collection, asset_id, seller, price FROM listings WHERE collection = ? AND asset_id = ?`,
		collection, int64(assetId),
	))
}

func (t *sqliteTx) SaveListing(listing entity.Listing) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO listings (collection, asset_id, seller, price) VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, asset_id) DO UPDATE SET seller = excluded.seller, price = excluded.price`,
		listing.Collection, int64(listing.AssetId), listing.Seller, listing.Price.String(),
	)
	if err != nil {
		return fmt.Errorf("save listing: %w", err)
	}
	return nil
}

func (t *sqliteTx) DeleteListing(collection string, assetId uint64) error {
	_, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM listings WHERE collection = ? AND asset_id = ?`,
		collection, int64(assetId),
	)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	return nil
}

func (t *sqliteTx) GetProceeds(owner string) (*big.Int, error) {
	return getProceeds(t.tx.QueryRowContext(t.ctx, `SELECT balance FROM proceeds WHERE owner = ?`, owner))
}

func (t *sqliteTx) SaveProceeds(owner string, balance *big.Int) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO proceeds (owner, balance) VALUES (?, ?)
		ON CONFLICT (owner) DO UPDATE SET balance = excluded.balance`,
		owner, balance.String(),
	)
	if err != nil {
		return fmt.Errorf("save proceeds: %w", err)
	}
	return nil
}

func (t *sqliteTx) AppendEvent(e *entity.Event) error {
	var price sql.NullString
	if e.Price != nil {
		price = sql.NullString{String: e.Price.String(), Valid: true}
	}

	result, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO events (type, collection, asset_id, seller, buyer, price, time) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(e.Type), e.Collection, int64(e.AssetId), e.Seller, e.Buyer, price, e.Time.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	sequence, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	e.Sequence = uint64(sequence)
	t.events = append(t.events, e)

	return nil
}

func (t *sqliteTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return ErrTxClosed
		}
		for _, e := range t.events {
			e.Sequence = 0
		}
		return fmt.Errorf("commit: %w", err)
	}
	t.committed = true
	return nil
}

func (t *sqliteTx) Rollback() error {
	if t.committed {
		return nil
	}

	err := t.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}

	for _, e := range t.events {
		e.Sequence = 0
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func getListing(row scanner) (*entity.Listing, error) {
	var (
		listing entity.Listing
		assetId int64
		price   string
	)

	if err := row.Scan(&listing.Collection, &assetId, &listing.Seller, &price); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("scan listing: %w", err)
	}

	listing.AssetId = uint64(assetId)

	var err error
	if listing.Price, err = parseAmount(price); err != nil {
		return nil, err
	}

	return &listing, nil
}

func getProceeds(row scanner) (*big.Int, error) {
	var balance string
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("scan proceeds: %w", err)
	}

	return parseAmount(balance)
}

func parseAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt amount %q", value)
	}
	return amount, nil
}
