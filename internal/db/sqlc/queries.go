package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const createUser = `
INSERT INTO users (id, username, email, password_hash, full_name, is_active)
VALUES ($1, $2, $3, $4, $5, true)
RETURNING id, username, email, password_hash, full_name, is_active, created_at, updated_at
`

type CreateUserParams struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	FullName     *string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser, arg.ID, arg.Username, arg.Email, arg.PasswordHash, arg.FullName)
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

const getUserByID = `
SELECT id, username, email, password_hash, full_name, is_active, created_at, updated_at
FROM users
WHERE id = $1
`

func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByID, id)
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

const getUserByUsername = `
SELECT id, username, email, password_hash, full_name, is_active, created_at, updated_at
FROM users
WHERE username = $1
`

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByUsername, username)
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

const createAuction = `
INSERT INTO auctions (id, item_id, start_time, end_time, starting_bid, current_highest_bid, status)
VALUES ($1, $2, $3, $4, $5, $5, 'ACTIVE')
RETURNING id, item_id, start_time, end_time, starting_bid, current_highest_bid, winner_id, status, created_at, updated_at
`

type CreateAuctionParams struct {
	ID          uuid.UUID
	ItemID      string
	StartTime   time.Time
	EndTime     time.Time
	StartingBid decimal.Decimal
}

func (q *Queries) CreateAuction(ctx context.Context, arg CreateAuctionParams) (Auction, error) {
	row := q.db.QueryRow(ctx, createAuction, arg.ID, arg.ItemID, arg.StartTime, arg.EndTime, arg.StartingBid)
	return scanAuction(row)
}

const getAuctionByID = `
SELECT id, item_id, start_time, end_time, starting_bid, current_highest_bid, winner_id, status, created_at, updated_at
FROM auctions
WHERE id = $1
`

func (q *Queries) GetAuctionByID(ctx context.Context, id uuid.UUID) (Auction, error) {
	return scanAuction(q.db.QueryRow(ctx, getAuctionByID, id))
}

const getAuctionByIDForUpdate = `
SELECT id, item_id, start_time, end_time, starting_bid, current_highest_bid, winner_id, status, created_at, updated_at
FROM auctions
WHERE id = $1
FOR UPDATE
`

// GetAuctionByIDForUpdate locks the auction row for the remainder of the
// enclosing transaction. Every state transition on an auction goes through
// this lock, so bids on one auction serialize without blocking other auctions.
func (q *Queries) GetAuctionByIDForUpdate(ctx context.Context, id uuid.UUID) (Auction, error) {
	return scanAuction(q.db.QueryRow(ctx, getAuctionByIDForUpdate, id))
}

const listAuctions = `
SELECT id, item_id, start_time, end_time, starting_bid, current_highest_bid, winner_id, status, created_at, updated_at
FROM auctions
ORDER BY end_time ASC
LIMIT $1
`

func (q *Queries) ListAuctions(ctx context.Context, limit int32) ([]Auction, error) {
	rows, err := q.db.Query(ctx, listAuctions, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auctions []Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

const listExpiredAuctions = `
SELECT id
FROM auctions
WHERE status = 'ACTIVE' AND end_time <= $1
`

// ListExpiredAuctions returns the IDs of ACTIVE auctions whose end time has
// passed. Used by the lifecycle sweep on every replica.
func (q *Queries) ListExpiredAuctions(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, listExpiredAuctions, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const updateAuctionHighestBid = `
UPDATE auctions
SET current_highest_bid = $2, updated_at = now()
WHERE id = $1
RETURNING id, item_id, start_time, end_time, starting_bid, current_highest_bid, winner_id, status, created_at, updated_at
`

func (q *Queries) UpdateAuctionHighestBid(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (Auction, error) {
	return scanAuction(q.db.QueryRow(ctx, updateAuctionHighestBid, id, amount))
}

const markAuctionEnded = `
UPDATE auctions
SET status = 'ENDED', winner_id = $2, updated_at = now()
WHERE id = $1
RETURNING id, item_id, start_time, end_time, starting_bid, current_highest_bid, winner_id, status, created_at, updated_at
`

func (q *Queries) MarkAuctionEnded(ctx context.Context, id uuid.UUID, winnerID *string) (Auction, error) {
	return scanAuction(q.db.QueryRow(ctx, markAuctionEnded, id, winnerID))
}

const markAuctionCancelled = `
UPDATE auctions
SET status = 'CANCELLED', updated_at = now()
WHERE id = $1
RETURNING id, item_id, start_time, end_time, starting_bid, current_highest_bid, winner_id, status, created_at, updated_at
`

func (q *Queries) MarkAuctionCancelled(ctx context.Context, id uuid.UUID) (Auction, error) {
	return scanAuction(q.db.QueryRow(ctx, markAuctionCancelled, id))
}

const createBid = `
INSERT INTO bids (id, user_id, auction_id, amount, timestamp)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, user_id, auction_id, amount, timestamp
`

type CreateBidParams struct {
	ID        uuid.UUID
	UserID    string
	AuctionID uuid.UUID
	Amount    decimal.Decimal
	Timestamp time.Time
}

func (q *Queries) CreateBid(ctx context.Context, arg CreateBidParams) (Bid, error) {
	row := q.db.QueryRow(ctx, createBid, arg.ID, arg.UserID, arg.AuctionID, arg.Amount, arg.Timestamp)
	var b Bid
	err := row.Scan(&b.ID, &b.UserID, &b.AuctionID, &b.Amount, &b.Timestamp)
	return b, err
}

const getHighestBid = `
SELECT b.id, b.user_id, u.username, b.auction_id, b.amount, b.timestamp
FROM bids b
JOIN users u ON u.id = b.user_id
WHERE b.auction_id = $1
ORDER BY b.amount DESC
LIMIT 1
`

func (q *Queries) GetHighestBid(ctx context.Context, auctionID uuid.UUID) (BidDetail, error) {
	row := q.db.QueryRow(ctx, getHighestBid, auctionID)
	var b BidDetail
	err := row.Scan(&b.ID, &b.UserID, &b.Username, &b.AuctionID, &b.Amount, &b.Timestamp)
	return b, err
}

const listBids = `
SELECT b.id, b.user_id, u.username, b.auction_id, b.amount, b.timestamp
FROM bids b
JOIN users u ON u.id = b.user_id
WHERE b.auction_id = $1
ORDER BY b.timestamp DESC
LIMIT $2
`

type ListBidsParams struct {
	AuctionID uuid.UUID
	Limit     int32
}

// ListBids returns the newest bids first.
func (q *Queries) ListBids(ctx context.Context, arg ListBidsParams) ([]BidDetail, error) {
	rows, err := q.db.Query(ctx, listBids, arg.AuctionID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []BidDetail
	for rows.Next() {
		var b BidDetail
		if err := rows.Scan(&b.ID, &b.UserID, &b.Username, &b.AuctionID, &b.Amount, &b.Timestamp); err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

const listAuctionParticipants = `
SELECT DISTINCT user_id
FROM bids
WHERE auction_id = $1
`

// ListAuctionParticipants returns the unique user IDs with at least one
// accepted bid on the auction.
func (q *Queries) ListAuctionParticipants(ctx context.Context, auctionID uuid.UUID) ([]string, error) {
	rows, err := q.db.Query(ctx, listAuctionParticipants, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

const countAuctionParticipants = `
SELECT count(DISTINCT user_id)
FROM bids
WHERE auction_id = $1
`

func (q *Queries) CountAuctionParticipants(ctx context.Context, auctionID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countAuctionParticipants, auctionID).Scan(&count)
	return count, err
}

const insertBidAudit = `
INSERT INTO bid_audit (bid_id, auction_id, user_id, amount, bid_timestamp)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (bid_id) DO NOTHING
`

type InsertBidAuditParams struct {
	BidID     uuid.UUID
	AuctionID uuid.UUID
	UserID    string
	Amount    decimal.Decimal
	Timestamp time.Time
}

// InsertBidAudit records an accepted bid in the audit trail. The insert is
// keyed by bid ID so redelivered audit events are absorbed.
func (q *Queries) InsertBidAudit(ctx context.Context, arg InsertBidAuditParams) error {
	_, err := q.db.Exec(ctx, insertBidAudit, arg.BidID, arg.AuctionID, arg.UserID, arg.Amount, arg.Timestamp)
	return err
}

const createNotification = `
INSERT INTO notifications (recipient_id, auction_id, kind, payload)
VALUES ($1, $2, $3, $4)
ON CONFLICT (auction_id, recipient_id, kind) DO NOTHING
RETURNING id, recipient_id, auction_id, kind, payload, delivered_at, created_at
`

type CreateNotificationParams struct {
	RecipientID string
	AuctionID   uuid.UUID
	Kind        NotificationKind
	Payload     json.RawMessage
}

// CreateNotification inserts a durable notification. On a duplicate key the
// insert is a no-op and ErrRecordNotFound is returned; the caller treats that
// as "already recorded".
func (q *Queries) CreateNotification(ctx context.Context, arg CreateNotificationParams) (Notification, error) {
	row := q.db.QueryRow(ctx, createNotification, arg.RecipientID, arg.AuctionID, arg.Kind, arg.Payload)
	var n Notification
	err := row.Scan(&n.ID, &n.RecipientID, &n.AuctionID, &n.Kind, &n.Payload, &n.DeliveredAt, &n.CreatedAt)
	return n, err
}

const markNotificationDelivered = `
UPDATE notifications
SET delivered_at = now()
WHERE id = $1 AND delivered_at IS NULL
`

func (q *Queries) MarkNotificationDelivered(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, markNotificationDelivered, id)
	return err
}

const listUserNotifications = `
SELECT id, recipient_id, auction_id, kind, payload, delivered_at, created_at
FROM notifications
WHERE recipient_id = $1
ORDER BY created_at DESC
LIMIT $2
`

type ListUserNotificationsParams struct {
	RecipientID string
	Limit       int32
}

func (q *Queries) ListUserNotifications(ctx context.Context, arg ListUserNotificationsParams) ([]Notification, error) {
	rows, err := q.db.Query(ctx, listUserNotifications, arg.RecipientID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.AuctionID, &n.Kind, &n.Payload, &n.DeliveredAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func scanAuction(row pgx.Row) (Auction, error) {
	var a Auction
	err := row.Scan(
		&a.ID,
		&a.ItemID,
		&a.StartTime,
		&a.EndTime,
		&a.StartingBid,
		&a.CurrentHighestBid,
		&a.WinnerID,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}
