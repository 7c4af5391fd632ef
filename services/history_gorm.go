package services

import (
	"context"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormHistory keeps prediction records in PostgreSQL or MySQL.
type GormHistory struct {
	db *gorm.DB
}

func NewGormHistory(dsn string) (*GormHistory, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "mysql://") {
		// go-sql-driver wants user:pass@tcp(host:port)/db, not a URL
		dialector = mysql.Open(strings.TrimPrefix(dsn, "mysql://"))
	} else {
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	return NewGormHistoryFromDB(db)
}

func NewGormHistoryFromDB(db *gorm.DB) (*GormHistory, error) {
	if err := db.AutoMigrate(&PredictionRecord{}); err != nil {
		return nil, err
	}
	return &GormHistory{db: db}, nil
}

func (h *GormHistory) Record(ctx context.Context, rec *PredictionRecord) error {
	return h.db.WithContext(ctx).Create(rec).Error
}

func (h *GormHistory) Count(ctx context.Context) (int64, error) {
	var total int64
	err := h.db.WithContext(ctx).Model(&PredictionRecord{}).Count(&total).Error
	return total, err
}

func (h *GormHistory) Recent(ctx context.Context, limit int) ([]PredictionRecord, error) {
	var records []PredictionRecord
	err := h.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&records).Error
	if records == nil {
		records = []PredictionRecord{}
	}
	return records, err
}

func (h *GormHistory) AverageLatency(ctx context.Context) (float64, error) {
	var avg float64
	err := h.db.WithContext(ctx).Model(&PredictionRecord{}).
		Select("COALESCE(AVG(latency_ms), 0)").
		Scan(&avg).Error
	return avg, err
}

func (h *GormHistory) Close(context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
