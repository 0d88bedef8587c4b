package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/ichiragkumar/auction/internal/models"
)

// Postgres is the PostgreSQL-backed system of record.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool and verifies connectivity.
func NewPostgres(connStr string) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Postgres{db: db}, nil
}

// InitSchema creates the necessary database tables.
func (p *Postgres) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS auctions (
		id VARCHAR(255) PRIMARY KEY,
		product_name VARCHAR(255) NOT NULL,
		reserve_price DECIMAL(12, 2) NOT NULL,
		created_by VARCHAR(255) NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ NOT NULL,
		status VARCHAR(50) NOT NULL DEFAULT 'pending',
		subscriber_ids TEXT[] NOT NULL DEFAULT '{}',
		extension_count INT NOT NULL DEFAULT 0,
		last_extended_at TIMESTAMPTZ,
		winner_id VARCHAR(255),
		winning_amount DECIMAL(12, 2),
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS bids (
		id VARCHAR(255) PRIMARY KEY,
		auction_id VARCHAR(255) NOT NULL,
		bidder_id VARCHAR(255) NOT NULL,
		amount DECIMAL(12, 2) NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		is_valid BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (auction_id) REFERENCES auctions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS leaderboard_entries (
		auction_id VARCHAR(255) NOT NULL,
		bidder_id VARCHAR(255) NOT NULL,
		highest_bid DECIMAL(12, 2) NOT NULL,
		rank INT NOT NULL DEFAULT 0,
		last_bid_time TIMESTAMPTZ NOT NULL,
		total_bids INT NOT NULL DEFAULT 1,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (auction_id, bidder_id)
	);

	CREATE TABLE IF NOT EXISTS bid_events (
		event_id VARCHAR(255) PRIMARY KEY,
		auction_id VARCHAR(255) NOT NULL,
		bid_id VARCHAR(255) NOT NULL,
		bidder_id VARCHAR(255) NOT NULL,
		amount DECIMAL(12, 2) NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		archived_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_auctions_status_end_time ON auctions(status, end_time);
	CREATE INDEX IF NOT EXISTS idx_bids_auction_amount ON bids(auction_id, amount DESC);
	CREATE INDEX IF NOT EXISTS idx_bids_auction_timestamp ON bids(auction_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_leaderboard_auction_rank ON leaderboard_entries(auction_id, rank);
	`

	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const auctionColumns = `id, product_name, reserve_price, created_by, start_time, end_time,
	status, subscriber_ids, extension_count, last_extended_at, winner_id, winning_amount,
	created_at, updated_at`

// CreateAuction inserts a new auction record.
func (p *Postgres) CreateAuction(ctx context.Context, a *models.Auction) error {
	query := `
		INSERT INTO auctions (` + auctionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := p.db.ExecContext(ctx, query,
		a.ID, a.ProductName, a.ReservePrice, a.CreatedBy, a.StartTime, a.EndTime,
		string(a.Status), pq.Array(a.SubscriberIDs), a.ExtensionCount,
		nullTime(a.LastExtendedAt), nullString(a.WinnerID), nullDecimal(a.WinningAmount),
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert auction: %w", err)
	}
	return nil
}

// GetAuction fetches one auction by id.
func (p *Postgres) GetAuction(ctx context.Context, id string) (*models.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`
	a, err := scanAuction(p.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrAuctionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	return a, nil
}

// UpdateAuction persists the auction's mutable fields.
func (p *Postgres) UpdateAuction(ctx context.Context, a *models.Auction) error {
	query := `
		UPDATE auctions
		SET end_time = $1,
		    status = $2,
		    subscriber_ids = $3,
		    extension_count = $4,
		    last_extended_at = $5,
		    winner_id = $6,
		    winning_amount = $7,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $8
	`

	result, err := p.db.ExecContext(ctx, query,
		a.EndTime, string(a.Status), pq.Array(a.SubscriberIDs), a.ExtensionCount,
		nullTime(a.LastExtendedAt), nullString(a.WinnerID), nullDecimal(a.WinningAmount),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update auction: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrAuctionNotFound
	}
	return nil
}

// ListAuctions returns auctions in the given statuses, newest first.
func (p *Postgres) ListAuctions(ctx context.Context, statuses []models.AuctionStatus, limit, offset int) ([]*models.Auction, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE status = ANY($1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	return p.queryAuctions(ctx, query, pq.Array(statusStrings(statuses)), limit, offset)
}

// FindDueAuctions returns non-terminal auctions whose deadline has passed.
func (p *Postgres) FindDueAuctions(ctx context.Context, now time.Time) ([]*models.Auction, error) {
	query := `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE status = ANY($1) AND end_time <= $2
		ORDER BY end_time
	`
	return p.queryAuctions(ctx, query, pq.Array(activeStatuses()), now)
}

// FindEndingSoon returns non-terminal auctions ending inside [from, to].
func (p *Postgres) FindEndingSoon(ctx context.Context, from, to time.Time) ([]*models.Auction, error) {
	query := `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE status = ANY($1) AND end_time >= $2 AND end_time <= $3
		ORDER BY end_time
	`
	return p.queryAuctions(ctx, query, pq.Array(activeStatuses()), from, to)
}

// AppendBid writes one bid to the append-only log.
func (p *Postgres) AppendBid(ctx context.Context, bid *models.Bid) error {
	query := `
		INSERT INTO bids (id, auction_id, bidder_id, amount, timestamp, is_valid)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := p.db.ExecContext(ctx, query,
		bid.ID, bid.AuctionID, bid.BidderID, bid.Amount, bid.Timestamp, bid.IsValid)
	if err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return nil
}

// GetBids returns the bid log ordered by amount descending.
func (p *Postgres) GetBids(ctx context.Context, auctionID string) ([]*models.Bid, error) {
	query := `
		SELECT id, auction_id, bidder_id, amount, timestamp, is_valid
		FROM bids
		WHERE auction_id = $1
		ORDER BY amount DESC, timestamp
	`

	rows, err := p.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	var bids []*models.Bid
	for rows.Next() {
		bid := &models.Bid{}
		if err := rows.Scan(&bid.ID, &bid.AuctionID, &bid.BidderID, &bid.Amount, &bid.Timestamp, &bid.IsValid); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, bid)
	}
	return bids, rows.Err()
}

// GetWinningBid returns the highest bid, earliest timestamp breaking ties.
func (p *Postgres) GetWinningBid(ctx context.Context, auctionID string) (*models.Bid, error) {
	query := `
		SELECT id, auction_id, bidder_id, amount, timestamp, is_valid
		FROM bids
		WHERE auction_id = $1
		ORDER BY amount DESC, timestamp
		LIMIT 1
	`

	bid := &models.Bid{}
	err := p.db.QueryRowContext(ctx, query, auctionID).
		Scan(&bid.ID, &bid.AuctionID, &bid.BidderID, &bid.Amount, &bid.Timestamp, &bid.IsValid)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get winning bid: %w", err)
	}
	return bid, nil
}

// GetEntry returns the leaderboard entry for one bidder, nil when absent.
func (p *Postgres) GetEntry(ctx context.Context, auctionID, bidderID string) (*models.LeaderboardEntry, error) {
	query := `
		SELECT auction_id, bidder_id, highest_bid, rank, last_bid_time, total_bids
		FROM leaderboard_entries
		WHERE auction_id = $1 AND bidder_id = $2
	`

	entry := &models.LeaderboardEntry{}
	err := p.db.QueryRowContext(ctx, query, auctionID, bidderID).
		Scan(&entry.AuctionID, &entry.BidderID, &entry.HighestBid, &entry.Rank, &entry.LastBidTime, &entry.TotalBids)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard entry: %w", err)
	}
	return entry, nil
}

// UpsertEntry creates or replaces the entry keyed by (auction, bidder).
func (p *Postgres) UpsertEntry(ctx context.Context, entry *models.LeaderboardEntry) error {
	query := `
		INSERT INTO leaderboard_entries (auction_id, bidder_id, highest_bid, rank, last_bid_time, total_bids)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (auction_id, bidder_id) DO UPDATE
		SET highest_bid = EXCLUDED.highest_bid,
		    rank = EXCLUDED.rank,
		    last_bid_time = EXCLUDED.last_bid_time,
		    total_bids = EXCLUDED.total_bids,
		    updated_at = CURRENT_TIMESTAMP
	`
	_, err := p.db.ExecContext(ctx, query,
		entry.AuctionID, entry.BidderID, entry.HighestBid, entry.Rank, entry.LastBidTime, entry.TotalBids)
	if err != nil {
		return fmt.Errorf("failed to upsert leaderboard entry: %w", err)
	}
	return nil
}

// GetEntries returns the auction's leaderboard ordered by rank.
func (p *Postgres) GetEntries(ctx context.Context, auctionID string) ([]*models.LeaderboardEntry, error) {
	query := `
		SELECT auction_id, bidder_id, highest_bid, rank, last_bid_time, total_bids
		FROM leaderboard_entries
		WHERE auction_id = $1
		ORDER BY rank
	`

	rows, err := p.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.LeaderboardEntry
	for rows.Next() {
		entry := &models.LeaderboardEntry{}
		if err := rows.Scan(&entry.AuctionID, &entry.BidderID, &entry.HighestBid, &entry.Rank, &entry.LastBidTime, &entry.TotalBids); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// InsertBidEvent records an archived bid event, idempotent on event id.
func (p *Postgres) InsertBidEvent(ctx context.Context, event *models.BidEvent) error {
	query := `
		INSERT INTO bid_events (event_id, auction_id, bid_id, bidder_id, amount, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err := p.db.ExecContext(ctx, query,
		event.EventID, event.AuctionID, event.BidID, event.BidderID, event.Amount, event.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert bid event: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) queryAuctions(ctx context.Context, query string, args ...any) ([]*models.Auction, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query auctions: %w", err)
	}
	defer rows.Close()

	var auctions []*models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (*models.Auction, error) {
	a := &models.Auction{}
	var (
		status         string
		subscribers    pq.StringArray
		lastExtendedAt sql.NullTime
		winnerID       sql.NullString
		winningAmount  decimal.NullDecimal
	)

	err := row.Scan(
		&a.ID, &a.ProductName, &a.ReservePrice, &a.CreatedBy, &a.StartTime, &a.EndTime,
		&status, &subscribers, &a.ExtensionCount, &lastExtendedAt, &winnerID, &winningAmount,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = models.AuctionStatus(status)
	a.SubscriberIDs = []string(subscribers)
	if lastExtendedAt.Valid {
		t := lastExtendedAt.Time
		a.LastExtendedAt = &t
	}
	if winnerID.Valid {
		id := winnerID.String
		a.WinnerID = &id
	}
	if winningAmount.Valid {
		amt := winningAmount.Decimal
		a.WinningAmount = &amt
	}
	return a, nil
}

func activeStatuses() []string {
	return []string{string(models.AuctionStatusActive), string(models.AuctionStatusExtended)}
}

func statusStrings(statuses []models.AuctionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
