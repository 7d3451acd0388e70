// Package repo holds the connection plumbing shared by the users, billing
// and usage repositories.
package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base binds a repository to a connection or to an open transaction.
type Base struct {
	db *gorm.DB
}

// NewBase wraps conn. Repositories call it again with the tx handle from
// WithTx so every statement in a handler joins the same transaction.
func NewBase(conn *gorm.DB) Base {
	return Base{db: conn}
}

// DB returns the connection scoped to ctx so cancellation reaches the driver.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}
