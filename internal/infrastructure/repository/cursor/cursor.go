// Package cursor translates public-id pagination cursors into conditions on
// the numeric primary key shared by every table.
package cursor

import (
	"context"

	"gorm.io/gorm"

	"assistant-server/internal/domain/page"
	"assistant-server/internal/utils/platformerrors"
)

// Apply resolves After/Before cursors against the model query and orders
// the rows. model must produce a fresh query for the entity's table. An
// unknown cursor is a client error, not an empty page.
func Apply(ctx context.Context, q *gorm.DB, params page.Params, model func() *gorm.DB) (*gorm.DB, error) {
	asc := params.Order == page.OrderAsc

	if params.After != "" {
		id, err := resolve(ctx, model, params.After)
		if err != nil {
			return nil, err
		}
		if asc {
			q = q.Where("id > ?", id)
		} else {
			q = q.Where("id < ?", id)
		}
	}
	if params.Before != "" {
		id, err := resolve(ctx, model, params.Before)
		if err != nil {
			return nil, err
		}
		if asc {
			q = q.Where("id < ?", id)
		} else {
			q = q.Where("id > ?", id)
		}
	}

	if asc {
		q = q.Order("id ASC")
	} else {
		q = q.Order("id DESC")
	}
	return q, nil
}

// Window applies the same cursor semantics over an insertion-ordered slice
// and returns up to limit+1 rows for the lookahead. Used by the in-memory
// repositories.
func Window[T any](ctx context.Context, items []T, params page.Params,
	rowID func(T) uint, publicID func(T) string) ([]T, error) {

	find := func(cursorID string) (uint, error) {
		for _, item := range items {
			if publicID(item) == cursorID {
				return rowID(item), nil
			}
		}
		return 0, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeValidation,
			"unknown pagination cursor "+cursorID, nil, "")
	}

	asc := params.Order == page.OrderAsc
	var lower, upper uint
	upper = ^uint(0)

	if params.After != "" {
		id, err := find(params.After)
		if err != nil {
			return nil, err
		}
		if asc {
			lower = id
		} else {
			upper = id
		}
	}
	if params.Before != "" {
		id, err := find(params.Before)
		if err != nil {
			return nil, err
		}
		if asc {
			upper = id
		} else {
			lower = id
		}
	}

	var out []T
	take := func(item T) bool {
		if id := rowID(item); id > lower && id < upper {
			out = append(out, item)
		}
		return len(out) <= params.Limit
	}

	if asc {
		for _, item := range items {
			if !take(item) {
				break
			}
		}
	} else {
		for i := len(items) - 1; i >= 0; i-- {
			if !take(items[i]) {
				break
			}
		}
	}
	return out, nil
}

func resolve(ctx context.Context, model func() *gorm.DB, publicID string) (uint, error) {
	var id uint
	if err := model().Select("id").Where("public_id = ?", publicID).Scan(&id).Error; err != nil {
		return 0, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to resolve pagination cursor", err, "")
	}
	if id == 0 {
		return 0, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeValidation,
			"unknown pagination cursor "+publicID, nil, "")
	}
	return id, nil
}
