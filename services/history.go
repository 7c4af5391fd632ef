package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	KindPredict           = "predict"
	KindPredictTotalCases = "predict-total-cases"
)

// PredictionRecord is one successful prediction call. PredictedCases and
// Accuracy are read from the upstream body when present and left nil otherwise.
type PredictionRecord struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id" bson:"_id"`
	Kind           string    `gorm:"type:varchar(32);index" json:"kind" bson:"kind"`
	Disease        string    `gorm:"type:varchar(32);index" json:"disease" bson:"disease"`
	Year           int       `json:"year" bson:"year"`
	Month          int       `json:"month" bson:"month"`
	CurrentCases   int       `json:"current_cases" bson:"current_cases"`
	ActiveCases    int       `json:"active_cases" bson:"active_cases"`
	PredictedCases *float64  `json:"predicted_cases" bson:"predicted_cases,omitempty"`
	Accuracy       *float64  `json:"accuracy" bson:"accuracy,omitempty"`
	LatencyMs      int64     `json:"latency_ms" bson:"latency_ms"`
	CreatedAt      time.Time `gorm:"index" json:"created_at" bson:"created_at"`
}

func (PredictionRecord) TableName() string { return "prediction_records" }

type HistoryStore interface {
	Record(ctx context.Context, rec *PredictionRecord) error
	Count(ctx context.Context) (int64, error)
	// Recent returns at most limit records, newest first.
	Recent(ctx context.Context, limit int) ([]PredictionRecord, error)
	// AverageLatency is the mean latency in milliseconds, 0 when empty.
	AverageLatency(ctx context.Context) (float64, error)
	Close(ctx context.Context) error
}

// OpenHistoryStore picks a backend from the DATABASE_URL scheme. An empty URL
// keeps history in memory for the life of the process.
func OpenHistoryStore(ctx context.Context, dsn string) (HistoryStore, error) {
	switch {
	case dsn == "":
		return NewMemoryHistory(), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewGormHistory(dsn)
	case strings.HasPrefix(dsn, "mysql://"):
		return NewGormHistory(dsn)
	case strings.HasPrefix(dsn, "mongodb://"), strings.HasPrefix(dsn, "mongodb+srv://"):
		return NewMongoHistory(ctx, dsn)
	}
	return nil, fmt.Errorf("unsupported DATABASE_URL scheme: %q", dsn)
}

type MemoryHistory struct {
	mu      sync.RWMutex
	records []PredictionRecord
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

func (h *MemoryHistory) Record(_ context.Context, rec *PredictionRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, *rec)
	return nil
}

func (h *MemoryHistory) Count(_ context.Context) (int64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return int64(len(h.records)), nil
}

func (h *MemoryHistory) Recent(_ context.Context, limit int) ([]PredictionRecord, error) {
	h.mu.RLock()
	out := make([]PredictionRecord, len(h.records))
	copy(out, h.records)
	h.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *MemoryHistory) AverageLatency(_ context.Context) (float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.records) == 0 {
		return 0, nil
	}
	var total int64
	for _, r := range h.records {
		total += r.LatencyMs
	}
	return float64(total) / float64(len(h.records)), nil
}

func (h *MemoryHistory) Close(context.Context) error {
	return nil
}
