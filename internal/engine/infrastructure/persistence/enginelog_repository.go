package persistence

import (
	"context"

	"github.com/xuganyu96/chives-exchange/internal/engine/domain"
	"github.com/xuganyu96/chives-exchange/pkg/logger"
)

// engineLogRepositoryImpl 是 domain.EngineLogRepository 接口的 GORM 实现
type engineLogRepositoryImpl struct {
	store *Store
}

// Append 追加一条引擎日志
func (r *engineLogRepositoryImpl) Append(ctx context.Context, l *domain.EngineLog) error {
	if err := r.store.session(ctx).Create(l).Error; err != nil {
		logger.Error(ctx, "Failed to append engine log to DB", "log_msg", l.LogMsg, "error", err)
		return err
	}
	return nil
}

// CountByMessage 统计指定消息的日志行数
func (r *engineLogRepositoryImpl) CountByMessage(ctx context.Context, msg string) (int64, error) {
	var n int64
	if err := r.store.session(ctx).Model(&domain.EngineLog{}).
		Where("log_msg = ?", msg).
		Count(&n).Error; err != nil {
		logger.Error(ctx, "Failed to count engine logs in DB", "log_msg", msg, "error", err)
		return 0, err
	}
	return n, nil
}
