package database

import (
	"context"

	"gorm.io/gorm"

	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/logger"
)

// GormAdapter adapts GORM to work with our Database interface
type GormAdapter struct {
	db   *gorm.DB
	inTx bool
}

// NewGormAdapter creates a new GORM adapter
func NewGormAdapter(db *gorm.DB) *GormAdapter {
	return &GormAdapter{db: db}
}

// EnableQueryDebug logs all SQL statements executed through the adapter
func (g *GormAdapter) EnableQueryDebug() *GormAdapter {
	g.db = g.db.Debug()
	logger.Info("GORM query debug mode enabled - all SQL queries will be logged")
	return g
}

func (g *GormAdapter) Exec(ctx context.Context, query string, args ...interface{}) (res common.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = logger.HandlePanic("GormAdapter.Exec", r)
		}
	}()
	result := g.db.WithContext(ctx).Exec(query, args...)
	return &GormResult{result: result}, result.Error
}

// Query uses Scan rather than Find so scalar and map destinations work.
func (g *GormAdapter) Query(ctx context.Context, dest interface{}, query string, args ...interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = logger.HandlePanic("GormAdapter.Query", r)
		}
	}()
	return g.db.WithContext(ctx).Raw(query, args...).Scan(dest).Error
}

func (g *GormAdapter) BeginTx(ctx context.Context) (common.Database, error) {
	tx := g.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &GormAdapter{db: tx, inTx: true}, nil
}

func (g *GormAdapter) CommitTx(ctx context.Context) error {
	if !g.inTx {
		return errNoTransaction
	}
	return g.db.WithContext(ctx).Commit().Error
}

func (g *GormAdapter) RollbackTx(ctx context.Context) error {
	if !g.inTx {
		return errNoTransaction
	}
	return g.db.WithContext(ctx).Rollback().Error
}

func (g *GormAdapter) RunInTransaction(ctx context.Context, fn func(common.Database) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = logger.HandlePanic("GormAdapter.RunInTransaction", r)
		}
	}()
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormAdapter{db: tx, inTx: true})
	})
}

func (g *GormAdapter) GetUnderlyingDB() interface{} {
	return g.db
}

func (g *GormAdapter) DriverName() string {
	return string(common.NormalizeDialect(g.db.Dialector.Name()))
}

// Close closes the connection pool behind the gorm.DB
func (g *GormAdapter) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GormResult implements Result for GORM
type GormResult struct {
	result *gorm.DB
}

func (g *GormResult) RowsAffected() int64 {
	return g.result.RowsAffected
}

// LastInsertId is not exposed by gorm's raw Exec; callers rely on RETURNING instead.
func (g *GormResult) LastInsertId() (int64, error) {
	return 0, nil
}
