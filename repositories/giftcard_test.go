package repositories

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/giftcard/models"
	"example.com/backstage/services/giftcard/testutil"
)

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func row(tenant, number, status string, created time.Time) *models.GiftCard {
	expires := created.AddDate(1, 0, 0)
	return &models.GiftCard{
		GiftCardID:      uuid.NewString(),
		TenantID:        tenant,
		CardNumber:      number,
		PIN:             "1234",
		BalanceAmount:   1000,
		BalanceCurrency: "PLN",
		InitialAmount:   1000,
		InitialCurrency: "PLN",
		Status:          status,
		CreatedAt:       created,
		ExpiresAt:       &expires,
		Version:         1,
		UpdatedAt:       created,
	}
}

func repositoryContract(t *testing.T, newRepo func(t *testing.T) GiftCardRepository) {
	t.Run("insert find update", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		r := row("tenant-1", "4539578763621486", "INACTIVE", base)
		require.NoError(t, repo.Insert(ctx, r))
		assert.ErrorIs(t, repo.Insert(ctx, r), ErrDuplicate)

		found, err := repo.Find(ctx, uuid.MustParse(r.GiftCardID))
		require.NoError(t, err)
		assert.Equal(t, "INACTIVE", found.Status)

		byNumber, err := repo.FindByCardNumber(ctx, r.CardNumber)
		require.NoError(t, err)
		assert.Equal(t, r.GiftCardID, byNumber.GiftCardID)

		found.Status = "ACTIVE"
		found.Version = 2
		require.NoError(t, repo.Update(ctx, found, 1))
		assert.ErrorIs(t, repo.Update(ctx, found, 1), ErrStaleRow)

		found, err = repo.Find(ctx, uuid.MustParse(r.GiftCardID))
		require.NoError(t, err)
		assert.Equal(t, "ACTIVE", found.Status)
		assert.Equal(t, int64(2), found.Version)

		_, err = repo.Find(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.FindByCardNumber(ctx, "0000000000000000")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list pages by tenant and status", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		for i := range 5 {
			status := "ACTIVE"
			if i%2 == 1 {
				status = "INACTIVE"
			}
			r := row("tenant-1", uuid.NewString()[:16], status, base.Add(time.Duration(i)*time.Hour))
			require.NoError(t, repo.Insert(ctx, r))
		}
		require.NoError(t, repo.Insert(ctx, row("tenant-2", uuid.NewString()[:16], "ACTIVE", base)))

		rows, total, err := repo.List(ctx, ListFilter{TenantID: "tenant-1", Page: 1, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		require.Len(t, rows, 2)
		assert.True(t, rows[0].CreatedAt.After(rows[1].CreatedAt))

		rows, total, err = repo.List(ctx, ListFilter{TenantID: "tenant-1", Page: 3, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, rows, 1)

		rows, total, err = repo.List(ctx, ListFilter{TenantID: "tenant-1", Status: "ACTIVE"})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, rows, 3)
	})

	t.Run("expirable and truncate", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		due := row("tenant-1", "1111111111111111", "ACTIVE", base.AddDate(-2, 0, 0))
		notDue := row("tenant-1", "2222222222222222", "ACTIVE", base)
		inactive := row("tenant-1", "3333333333333333", "INACTIVE", base.AddDate(-2, 0, 0))
		for _, r := range []*models.GiftCard{due, notDue, inactive} {
			require.NoError(t, repo.Insert(ctx, r))
		}

		rows, err := repo.ListExpirable(ctx, base, 10)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, due.GiftCardID, rows[0].GiftCardID)

		require.NoError(t, repo.Truncate(ctx))
		_, total, err := repo.List(ctx, ListFilter{TenantID: "tenant-1"})
		require.NoError(t, err)
		assert.Zero(t, total)
	})
}

func TestMemoryGiftCardRepository(t *testing.T) {
	repositoryContract(t, func(t *testing.T) GiftCardRepository {
		return NewMemoryGiftCardRepository()
	})
}

func TestGormGiftCardRepository(t *testing.T) {
	repositoryContract(t, func(t *testing.T) GiftCardRepository {
		db := testutil.NewTestDB(t)
		return NewGiftCardRepository(db, db)
	})
}

func TestListFilterNormalize(t *testing.T) {
	f := ListFilter{Page: 0, Limit: 0}.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, DefaultPageLimit, f.Limit)

	f = ListFilter{Page: 2, Limit: 1000}.Normalize()
	assert.Equal(t, MaxPageLimit, f.Limit)
	assert.Equal(t, MaxPageLimit, f.offset())

	f = ListFilter{Page: math.MaxInt, Limit: 20}.Normalize()
	assert.Equal(t, math.MaxInt/20, f.Page)
	assert.Positive(t, f.offset())
	assert.LessOrEqual(t, f.offset(), math.MaxInt-f.Limit)
}

func TestMemoryListHugePageIsEmpty(t *testing.T) {
	repo := NewMemoryGiftCardRepository()
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, row("tenant-1", "4539578763621486", "ACTIVE", base)))

	for _, page := range []int{math.MaxInt / 10, math.MaxInt} {
		var rows []models.GiftCard
		var total int64
		require.NotPanics(t, func() {
			var err error
			rows, total, err = repo.List(ctx, ListFilter{TenantID: "tenant-1", Page: page, Limit: 20})
			require.NoError(t, err)
		})
		assert.Empty(t, rows)
		assert.Equal(t, int64(1), total)
	}
}
