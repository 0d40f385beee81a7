package persistence

import (
	"github.com/xuganyu96/chives-exchange/internal/engine/domain"
	"github.com/xuganyu96/chives-exchange/pkg/db"
)

// entities 撮合引擎的全部表，按外键依赖顺序排列
func entities() []any {
	return []any{
		&domain.User{},
		&domain.Company{},
		&domain.Asset{},
		&domain.Order{},
		&domain.Transaction{},
		&domain.EngineLog{},
		&OutboxMessage{},
	}
}

// AutoMigrate 建立或更新撮合引擎的全部表结构
func AutoMigrate(database *db.DB) error {
	return database.DB.AutoMigrate(entities()...)
}

// Reset 删除并重建全部表，基准测试前用来清空历史数据
func Reset(database *db.DB) error {
	migrator := database.DB.Migrator()
	tables := entities()
	// 逆序删除，先删带外键的表
	for i := len(tables) - 1; i >= 0; i-- {
		if migrator.HasTable(tables[i]) {
			if err := migrator.DropTable(tables[i]); err != nil {
				return err
			}
		}
	}
	return database.DB.AutoMigrate(tables...)
}
