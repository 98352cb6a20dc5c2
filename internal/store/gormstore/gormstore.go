package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/booking"
)

const (
	constraintEventSequence = "uniq_attempt_event_sequence"
	defaultMetadataJSON     = "{}"
	defaultListLimit        = 50
	maxListLimit            = 500
	pgUniqueViolationCode   = "23505"
	sqliteConstraintCode    = 19
	errorOperationStore     = "store"
	errorSubjectAttempt     = "attempt"
	errorSubjectEvent       = "event"
	errorCodeDuplicate      = "duplicate"
	errorCodeInsert         = "insert"
	errorCodeList           = "list"
	errorCodeUpsert         = "upsert"
	errorCodeSequence       = "sequence"
)

// ErrDuplicateEvent indicates two writers raced for the same event sequence.
var ErrDuplicateEvent = errors.New("duplicate attempt event")

// AttemptRecord is the journal view of one attempt.
type AttemptRecord struct {
	AttemptID string           `json:"attempt_id"`
	Account   string           `json:"account"`
	OfferID   booking.OfferID  `json:"offer_id"`
	PriceWei  string           `json:"price_wei"`
	Step      booking.Step     `json:"step"`
	Status    string           `json:"status"`
	Category  booking.Category `json:"category,omitempty"`
	Message   string           `json:"message,omitempty"`
	CallHash  string           `json:"call_hash,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// EventRecord is the journal view of one transition.
type EventRecord struct {
	Sequence  int64            `json:"sequence"`
	Operation string           `json:"operation"`
	Step      booking.Step     `json:"step,omitempty"`
	Outcome   string           `json:"outcome"`
	CallHash  string           `json:"call_hash,omitempty"`
	Category  booking.Category `json:"category,omitempty"`
	Message   string           `json:"message,omitempty"`
	Metadata  json.RawMessage  `json:"metadata"`
	CreatedAt time.Time        `json:"created_at"`
}

// Store persists the attempt journal using GORM.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore *Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction, now: store.now})
	})
}

// Record appends entry to the journal. Entries that do not belong to an
// attempt are ignored.
func (store *Store) Record(ctx context.Context, entry booking.OperationLog) error {
	if strings.TrimSpace(entry.AttemptID) == "" {
		return nil
	}
	return store.WithTx(ctx, func(ctx context.Context, txStore *Store) error {
		if err := txStore.upsertAttempt(ctx, entry); err != nil {
			return err
		}
		return txStore.appendEvent(ctx, entry)
	})
}

func (store *Store) upsertAttempt(ctx context.Context, entry booking.OperationLog) error {
	now := store.now()
	attempt := Attempt{
		AttemptID: entry.AttemptID,
		Account:   entry.Account.String(),
		OfferID:   int64(entry.OfferID),
		PriceWei:  entry.Amount.String(),
		Step:      string(entry.Step),
		Status:    entry.Status,
		Category:  string(entry.Category),
		Message:   entry.Message,
		CallHash:  entry.CallHash,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&attempt).Error
	if err != nil {
		return wrapStoreError(errorSubjectAttempt, errorCodeUpsert, err)
	}

	updates := map[string]interface{}{
		"status":     entry.Status,
		"updated_at": now,
	}
	if entry.Step != "" {
		updates["step"] = string(entry.Step)
	}
	if entry.Category != booking.CategoryNone {
		updates["category"] = string(entry.Category)
	}
	if entry.Message != "" {
		updates["message"] = entry.Message
	}
	if entry.CallHash != "" {
		updates["call_hash"] = entry.CallHash
	}
	err = store.db.WithContext(ctx).
		Model(&Attempt{}).
		Where("attempt_id = ?", entry.AttemptID).
		Updates(updates).Error
	if err != nil {
		return wrapStoreError(errorSubjectAttempt, errorCodeUpsert, err)
	}
	return nil
}

func (store *Store) appendEvent(ctx context.Context, entry booking.OperationLog) error {
	var last sqlMax
	err := store.db.WithContext(ctx).
		Model(&AttemptEvent{}).
		Select("coalesce(max(sequence),0) as value").
		Where("attempt_id = ?", entry.AttemptID).
		Scan(&last).Error
	if err != nil {
		return wrapStoreError(errorSubjectEvent, errorCodeSequence, err)
	}
	event := AttemptEvent{
		AttemptID: entry.AttemptID,
		Sequence:  last.Value + 1,
		Operation: entry.Operation,
		Step:      string(entry.Step),
		Outcome:   entry.Status,
		CallHash:  entry.CallHash,
		Category:  string(entry.Category),
		Message:   entry.Message,
		Metadata:  eventMetadata(entry),
		CreatedAt: store.now(),
	}
	err = store.db.WithContext(ctx).Create(&event).Error
	if isSequenceConflict(err) {
		return wrapStoreError(errorSubjectEvent, errorCodeDuplicate, ErrDuplicateEvent)
	}
	if err != nil {
		return wrapStoreError(errorSubjectEvent, errorCodeInsert, err)
	}
	return nil
}

// ListAttempts returns the newest attempts first, optionally restricted to one account.
func (store *Store) ListAttempts(ctx context.Context, account string, limit int) ([]AttemptRecord, error) {
	query := store.db.WithContext(ctx).Model(&Attempt{})
	if strings.TrimSpace(account) != "" {
		query = query.Where("account = ?", account)
	}
	var rows []Attempt
	err := query.
		Order("created_at DESC").
		Order("attempt_id").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectAttempt, errorCodeList, err)
	}
	records := make([]AttemptRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, AttemptRecord{
			AttemptID: row.AttemptID,
			Account:   row.Account,
			OfferID:   booking.OfferID(row.OfferID),
			PriceWei:  row.PriceWei,
			Step:      booking.Step(row.Step),
			Status:    row.Status,
			Category:  booking.Category(row.Category),
			Message:   row.Message,
			CallHash:  row.CallHash,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return records, nil
}

// ListEvents returns the transitions of one attempt in the order they were logged.
func (store *Store) ListEvents(ctx context.Context, attemptID string) ([]EventRecord, error) {
	var rows []AttemptEvent
	err := store.db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("sequence ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEvent, errorCodeList, err)
	}
	records := make([]EventRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, EventRecord{
			Sequence:  row.Sequence,
			Operation: row.Operation,
			Step:      booking.Step(row.Step),
			Outcome:   row.Outcome,
			CallHash:  row.CallHash,
			Category:  booking.Category(row.Category),
			Message:   row.Message,
			Metadata:  json.RawMessage(row.Metadata),
			CreatedAt: row.CreatedAt,
		})
	}
	return records, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

type sqlMax struct {
	Value int64
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func eventMetadata(entry booking.OperationLog) datatypes.JSON {
	metadata := map[string]string{}
	if !entry.Amount.IsZero() {
		metadata["amount_wei"] = entry.Amount.String()
	}
	if entry.Error != nil {
		metadata["error"] = entry.Error.Error()
	}
	if len(metadata) == 0 {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON(encoded)
}

func isSequenceConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintEventSequence
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
