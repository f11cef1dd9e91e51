package repositories

import (
	"context"
	"errors"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Filter is a set of column equality conditions.
type Filter map[string]interface{}

// Repository is a thin generic data access layer over one gorm model.
type Repository[T any] struct {
	db     *gorm.DB
	scopes []func(*gorm.DB) *gorm.DB
}

func New[T any](db *gorm.DB, scopes ...func(*gorm.DB) *gorm.DB) *Repository[T] {
	return &Repository[T]{db: db, scopes: scopes}
}

// WithTx returns a copy of the repository bound to tx.
func (r *Repository[T]) WithTx(tx *gorm.DB) *Repository[T] {
	return &Repository[T]{db: tx, scopes: r.scopes}
}

// DB exposes the underlying handle, mainly for transactions.
func (r *Repository[T]) DB() *gorm.DB {
	return r.db
}

func (r *Repository[T]) query(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(new(T)).Scopes(r.scopes...)
}

func (r *Repository[T]) FindByID(ctx context.Context, id uuid.UUID) (*T, error) {
	var out T
	if err := r.query(ctx).Where("id = ?", id).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Repository[T]) FindBy(ctx context.Context, filter Filter, order ...string) ([]T, error) {
	q := r.query(ctx)
	if len(filter) > 0 {
		q = q.Where(map[string]interface{}(filter))
	}
	for _, o := range order {
		q = q.Order(o)
	}
	var out []T
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository[T]) FindOneBy(ctx context.Context, filter Filter) (*T, error) {
	var out T
	if err := r.query(ctx).Where(map[string]interface{}(filter)).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Repository[T]) Count(ctx context.Context, filter Filter) (int64, error) {
	var n int64
	q := r.query(ctx)
	if len(filter) > 0 {
		q = q.Where(map[string]interface{}(filter))
	}
	err := q.Count(&n).Error
	return n, err
}

func (r *Repository[T]) Create(ctx context.Context, entity *T) error {
	return r.db.WithContext(ctx).Create(entity).Error
}

// UpdateByID applies fields to the row and returns its new state. A missing
// row yields gorm.ErrRecordNotFound.
func (r *Repository[T]) UpdateByID(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*T, error) {
	if err := r.query(ctx).Where("id = ?", id).Updates(fields).Error; err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// UpdateWhere applies fields to every row matching filter and reports how
// many rows changed.
func (r *Repository[T]) UpdateWhere(ctx context.Context, filter Filter, fields map[string]interface{}) (int64, error) {
	res := r.query(ctx).Where(map[string]interface{}(filter)).Updates(fields)
	return res.RowsAffected, res.Error
}

func (r *Repository[T]) DeleteByID(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(new(T))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteBy removes every row matching filter. Slice values become IN
// conditions.
func (r *Repository[T]) DeleteBy(ctx context.Context, filter Filter) (int64, error) {
	if len(filter) == 0 {
		return 0, errors.New("refusing to delete without a filter")
	}
	res := r.db.WithContext(ctx).Where(map[string]interface{}(filter)).Delete(new(T))
	return res.RowsAffected, res.Error
}

// Lock re-reads the row with FOR UPDATE where the dialect supports it.
func (r *Repository[T]) Lock(ctx context.Context, id uuid.UUID) (*T, error) {
	var out T
	q := r.query(ctx).Where("id = ?", id)
	if r.db.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}
