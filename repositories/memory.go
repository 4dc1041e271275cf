package repositories

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/backstage/services/giftcard/models"
)

// MemoryGiftCardRepository keeps the read model in process.
type MemoryGiftCardRepository struct {
	mu   sync.RWMutex
	rows map[string]models.GiftCard
}

func NewMemoryGiftCardRepository() *MemoryGiftCardRepository {
	return &MemoryGiftCardRepository{rows: make(map[string]models.GiftCard)}
}

func (r *MemoryGiftCardRepository) Find(_ context.Context, id uuid.UUID) (*models.GiftCard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[id.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return &row, nil
}

func (r *MemoryGiftCardRepository) FindByCardNumber(_ context.Context, number string) (*models.GiftCard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, row := range r.rows {
		if row.CardNumber == number {
			return &row, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryGiftCardRepository) List(_ context.Context, filter ListFilter) ([]models.GiftCard, int64, error) {
	filter = filter.Normalize()
	r.mu.RLock()
	var matched []models.GiftCard
	for _, row := range r.rows {
		if row.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != "" && row.Status != filter.Status {
			continue
		}
		matched = append(matched, row)
	}
	r.mu.RUnlock()

	slices.SortFunc(matched, func(a, b models.GiftCard) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.GiftCardID, b.GiftCardID)
	})

	total := int64(len(matched))
	start := min(filter.offset(), len(matched))
	end := min(start+filter.Limit, len(matched))
	return matched[start:end], total, nil
}

func (r *MemoryGiftCardRepository) ListExpirable(_ context.Context, now time.Time, limit int) ([]models.GiftCard, error) {
	r.mu.RLock()
	var out []models.GiftCard
	for _, row := range r.rows {
		if row.Status == "ACTIVE" && row.ExpiresAt != nil && !row.ExpiresAt.After(now) {
			out = append(out, row)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.GiftCard) int {
		return a.ExpiresAt.Compare(*b.ExpiresAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryGiftCardRepository) Insert(_ context.Context, row *models.GiftCard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[row.GiftCardID]; ok {
		return ErrDuplicate
	}
	for _, existing := range r.rows {
		if row.CardNumber != "" && existing.CardNumber == row.CardNumber {
			return ErrDuplicate
		}
	}
	r.rows[row.GiftCardID] = *row
	return nil
}

func (r *MemoryGiftCardRepository) Update(_ context.Context, row *models.GiftCard, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.rows[row.GiftCardID]
	if !ok || current.Version != expectedVersion {
		return ErrStaleRow
	}
	r.rows[row.GiftCardID] = *row
	return nil
}

func (r *MemoryGiftCardRepository) Truncate(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.rows)
	return nil
}
