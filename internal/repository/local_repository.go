package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

type counterRecord struct {
	Category  string `gorm:"primaryKey"`
	Value     int64
	UpdatedAt time.Time
}

func (counterRecord) TableName() string { return "ticket_counters" }

type ticketRecord struct {
	Category    string `gorm:"primaryKey"`
	Number      int64  `gorm:"primaryKey;autoIncrement:false"`
	OwnerID     string
	ChannelID   string `gorm:"index"`
	State       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClosedAt    *time.Time
	ExportedAt  *time.Time
	OperationID string
}

func (ticketRecord) TableName() string { return "tickets" }

type historyRecord struct {
	ID          string `gorm:"primaryKey"`
	Category    string `gorm:"index:ticket_history_ticket_idx"`
	Number      int64  `gorm:"index:ticket_history_ticket_idx"`
	ActorID     string
	Action      string
	FromState   string
	ToState     string
	CreatedAt   time.Time
	OperationID string
}

func (historyRecord) TableName() string { return "ticket_history" }

// MigrateLocal creates the SQLite schema, including the partial index that backs the
// one-active-ticket rule.
func MigrateLocal(db *gorm.DB) error {
	if err := db.AutoMigrate(&counterRecord{}, &ticketRecord{}, &historyRecord{}); err != nil {
		return err
	}
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ` + activeOwnerIndex +
		` ON tickets (category, owner_id) WHERE state <> 'EXPORTED'`).Error
}

// LocalStore implements the counter, ticket and history repositories on gorm/SQLite.
type LocalStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewLocalStore wraps an already migrated database.
func NewLocalStore(db *gorm.DB) *LocalStore {
	return &LocalStore{db: db, now: time.Now}
}

func (s *LocalStore) Reserve(ctx context.Context, category domain.Category) (int64, error) {
	var value int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now().UTC()
		rec := counterRecord{Category: string(category), Value: 1, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "category"}},
			DoUpdates: clause.Assignments(map[string]any{
				"value":      gorm.Expr("value + ?", 1),
				"updated_at": now,
			}),
		}).Create(&rec).Error; err != nil {
			return err
		}
		var stored counterRecord
		if err := tx.First(&stored, "category = ?", string(category)).Error; err != nil {
			return err
		}
		value = stored.Value
		return nil
	})
	return value, err
}

func (s *LocalStore) Ensure(ctx context.Context, categories []domain.Category) error {
	for _, c := range categories {
		rec := counterRecord{Category: string(c), Value: 0, UpdatedAt: s.now().UTC()}
		if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *LocalStore) Create(ctx context.Context, ticket *domain.Ticket) error {
	rec := toTicketRecord(ticket)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ticketRecord{}).
			Where("category = ? AND owner_id = ? AND state <> ?", rec.Category, rec.OwnerID, string(domain.TicketStateExported)).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateActive
		}
		if err := tx.Create(&rec).Error; err != nil {
			if strings.Contains(err.Error(), "owner_id") {
				return ErrDuplicateActive
			}
			return err
		}
		return nil
	})
}

func (s *LocalStore) Get(ctx context.Context, id domain.TicketID) (*domain.Ticket, error) {
	return s.first(ctx, "category = ? AND number = ?", string(id.Category), id.Number)
}

func (s *LocalStore) GetByChannel(ctx context.Context, channelID string) (*domain.Ticket, error) {
	if channelID == "" {
		return nil, ErrNotFound
	}
	return s.first(ctx, "channel_id = ?", channelID)
}

func (s *LocalStore) FindActive(ctx context.Context, category domain.Category, ownerID string) (*domain.Ticket, error) {
	return s.first(ctx, "category = ? AND owner_id = ? AND state <> ?", string(category), ownerID, string(domain.TicketStateExported))
}

func (s *LocalStore) first(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var rec ticketRecord
	if err := s.db.WithContext(ctx).Where(query, args...).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec.toDomain(), nil
}

func (s *LocalStore) UpdateState(ctx context.Context, ticket *domain.Ticket, from domain.TicketState, entry *domain.TicketHistory) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ticketRecord{}).
			Where("category = ? AND number = ? AND state = ?", string(ticket.ID.Category), ticket.ID.Number, string(from)).
			Updates(map[string]any{
				"state":       string(ticket.State),
				"updated_at":  ticket.UpdatedAt,
				"closed_at":   ticket.ClosedAt,
				"exported_at": ticket.ExportedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&ticketRecord{}).
				Where("category = ? AND number = ?", string(ticket.ID.Category), ticket.ID.Number).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrStateConflict
		}
		if entry == nil {
			return nil
		}
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		return tx.Create(&historyRecord{
			ID:          entry.ID,
			Category:    string(entry.TicketID.Category),
			Number:      entry.TicketID.Number,
			ActorID:     entry.ActorID,
			Action:      string(entry.Action),
			FromState:   string(entry.FromState),
			ToState:     string(entry.ToState),
			CreatedAt:   entry.CreatedAt,
			OperationID: entry.OperationID,
		}).Error
	})
}

func (s *LocalStore) SetChannel(ctx context.Context, id domain.TicketID, channelID string) error {
	res := s.db.WithContext(ctx).Model(&ticketRecord{}).
		Where("category = ? AND number = ?", string(id.Category), id.Number).
		Updates(map[string]any{"channel_id": channelID, "updated_at": s.now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *LocalStore) ListByTicket(ctx context.Context, id domain.TicketID) ([]domain.TicketHistory, error) {
	var recs []historyRecord
	if err := s.db.WithContext(ctx).
		Where("category = ? AND number = ?", string(id.Category), id.Number).
		Order("created_at ASC").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]domain.TicketHistory, 0, len(recs))
	for _, rec := range recs {
		out = append(out, domain.TicketHistory{
			ID:          rec.ID,
			TicketID:    id,
			ActorID:     rec.ActorID,
			Action:      domain.TicketAction(rec.Action),
			FromState:   domain.TicketState(rec.FromState),
			ToState:     domain.TicketState(rec.ToState),
			CreatedAt:   rec.CreatedAt,
			OperationID: rec.OperationID,
		})
	}
	return out, nil
}

func toTicketRecord(t *domain.Ticket) ticketRecord {
	return ticketRecord{
		Category:    string(t.ID.Category),
		Number:      t.ID.Number,
		OwnerID:     t.OwnerID,
		ChannelID:   t.ChannelID,
		State:       string(t.State),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		ClosedAt:    t.ClosedAt,
		ExportedAt:  t.ExportedAt,
		OperationID: t.OperationID,
	}
}

func (r ticketRecord) toDomain() *domain.Ticket {
	return &domain.Ticket{
		ID:          domain.TicketID{Category: domain.Category(r.Category), Number: r.Number},
		OwnerID:     r.OwnerID,
		ChannelID:   r.ChannelID,
		State:       domain.TicketState(r.State),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		ClosedAt:    r.ClosedAt,
		ExportedAt:  r.ExportedAt,
		OperationID: r.OperationID,
	}
}
