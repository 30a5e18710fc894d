package db

import (
	"context"
	"database/sql"

	"github.com/NasaVasa/alertwatch/internal/txn"
	"gorm.io/gorm"
)

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) Commit() error   { return t.db.Commit().Error }
func (t *gormTx) Rollback() error { return t.db.Rollback().Error }

// TxBeginner opens gorm transactions for txn.Manager.
type TxBeginner struct {
	db *gorm.DB
}

func NewTxBeginner(db *gorm.DB) *TxBeginner {
	return &TxBeginner{db: db}
}

func (b *TxBeginner) Begin(ctx context.Context, isolation sql.IsolationLevel) (txn.Tx, error) {
	var opts *sql.TxOptions
	// sqlite only knows serializable transactions and rejects explicit levels.
	if b.db.Dialector.Name() != "sqlite" {
		opts = &sql.TxOptions{Isolation: isolation}
	}
	tx := b.db.WithContext(ctx).Begin(opts)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &gormTx{db: tx}, nil
}

// conn returns the handle to use for ctx: the bound transaction if any.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := txn.FromContext(ctx).(*gormTx); ok {
		return tx.db.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// batchExec runs query once per row through a single prepared statement.
// An empty row set touches nothing.
func batchExec(db *gorm.DB, query string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	stmt := db.Session(&gorm.Session{PrepareStmt: true})
	for _, args := range rows {
		if err := stmt.Exec(query, args...).Error; err != nil {
			return err
		}
	}
	return nil
}
