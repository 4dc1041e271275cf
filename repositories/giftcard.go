package repositories

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"example.com/backstage/services/giftcard/models"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// ListFilter selects a page of one tenant's gift cards
type ListFilter struct {
	TenantID string
	Status   string
	Page     int
	Limit    int
}

// Normalize clamps page and limit to their allowed ranges. Page is capped so the offset cannot overflow.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit < 1 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if maxPage := math.MaxInt / f.Limit; f.Page > maxPage {
		f.Page = maxPage
	}
	return f
}

func (f ListFilter) offset() int {
	return (f.Page - 1) * f.Limit
}

// GiftCardRepository defines the interface for the gift card read model
type GiftCardRepository interface {
	Find(ctx context.Context, id uuid.UUID) (*models.GiftCard, error)
	FindByCardNumber(ctx context.Context, number string) (*models.GiftCard, error)
	List(ctx context.Context, filter ListFilter) ([]models.GiftCard, int64, error)
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]models.GiftCard, error)
	Insert(ctx context.Context, row *models.GiftCard) error
	// Update writes row only if the stored version still equals expectedVersion.
	Update(ctx context.Context, row *models.GiftCard, expectedVersion int64) error
	Truncate(ctx context.Context) error
}

// giftCardRepository implements GiftCardRepository
type giftCardRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewGiftCardRepository creates a new gift card repository. readOnlyDB may be the same handle as db.
func NewGiftCardRepository(db, readOnlyDB *gorm.DB) GiftCardRepository {
	if readOnlyDB == nil {
		readOnlyDB = db
	}
	return &giftCardRepository{db: db, readOnlyDB: readOnlyDB}
}

// Find finds a gift card by id. The projection reads through the write handle.
func (r *giftCardRepository) Find(ctx context.Context, id uuid.UUID) (*models.GiftCard, error) {
	return r.first(r.db.WithContext(ctx).Where("gift_card_id = ?", id.String()))
}

// FindByCardNumber finds a gift card by its customer-facing number
func (r *giftCardRepository) FindByCardNumber(ctx context.Context, number string) (*models.GiftCard, error) {
	return r.first(r.readOnlyDB.WithContext(ctx).Where("card_number = ?", number))
}

func (r *giftCardRepository) first(q *gorm.DB) (*models.GiftCard, error) {
	var row models.GiftCard
	if err := q.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

// List gets one page of a tenant's gift cards, newest first, with the total count
func (r *giftCardRepository) List(ctx context.Context, filter ListFilter) ([]models.GiftCard, int64, error) {
	filter = filter.Normalize()
	q := r.readOnlyDB.WithContext(ctx).Model(&models.GiftCard{}).Where("tenant_id = ?", filter.TenantID)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count gift cards: %w", err)
	}

	var rows []models.GiftCard
	if err := q.Order("created_at DESC, gift_card_id ASC").
		Offset(filter.offset()).
		Limit(filter.Limit).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list gift cards: %w", err)
	}
	return rows, total, nil
}

// ListExpirable gets active cards whose expiry has passed
func (r *giftCardRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]models.GiftCard, error) {
	var rows []models.GiftCard
	if err := r.readOnlyDB.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", "ACTIVE", now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list expirable gift cards: %w", err)
	}
	return rows, nil
}

// Insert creates a row, failing with ErrDuplicate if it exists
func (r *giftCardRepository) Insert(ctx context.Context, row *models.GiftCard) error {
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert gift card: %w", err)
	}
	return nil
}

// Update saves every column of row guarded by its previous version
func (r *giftCardRepository) Update(ctx context.Context, row *models.GiftCard, expectedVersion int64) error {
	res := r.db.WithContext(ctx).
		Model(&models.GiftCard{}).
		Where("gift_card_id = ? AND version = ?", row.GiftCardID, expectedVersion).
		Select("*").
		Omit("gift_card_id").
		Updates(row)
	if res.Error != nil {
		return fmt.Errorf("failed to update gift card: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleRow
	}
	return nil
}

// Truncate removes every row ahead of a rebuild
func (r *giftCardRepository) Truncate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.GiftCard{}).Error; err != nil {
		return fmt.Errorf("failed to truncate gift cards: %w", err)
	}
	return nil
}
