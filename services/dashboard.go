package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	DashboardStatsKey = "dashboard_stats"

	defaultModelAccuracy = 85.5
	recentPredictions    = 5
)

type ModelInfoSource interface {
	ModelInfo(ctx context.Context) (*Result, error)
}

type DashboardStats struct {
	TotalPredictions       int64              `json:"totalPredictions"`
	ActiveDiseases         int                `json:"activeDiseases"`
	LastPredictionAccuracy float64            `json:"lastPredictionAccuracy"`
	ProcessingTime         float64            `json:"processingTime"`
	RecentPredictions      []RecentPrediction `json:"recentPredictions"`
}

type RecentPrediction struct {
	Disease        string   `json:"disease"`
	Kind           string   `json:"kind"`
	PredictedCases *float64 `json:"predicted_cases"`
	Accuracy       *float64 `json:"accuracy"`
	Timestamp      string   `json:"timestamp"`
}

// Dashboard builds the summary shown on the dashboard page. The encoded
// summary is cached under DashboardStatsKey for ttl, so every hit within the
// window returns the same bytes and costs no model-info call. Concurrent misses
// share one computation.
type Dashboard struct {
	models         ModelInfoSource
	history        HistoryStore
	cache          Cache
	ttl            time.Duration
	activeDiseases int
	group          singleflight.Group
	log            *logrus.Entry
}

func NewDashboard(models ModelInfoSource, history HistoryStore, cache Cache, ttl time.Duration, activeDiseases int) *Dashboard {
	return &Dashboard{
		models:         models,
		history:        history,
		cache:          cache,
		ttl:            ttl,
		activeDiseases: activeDiseases,
		log:            logrus.WithField("component", "dashboard"),
	}
}

func (d *Dashboard) Stats(ctx context.Context) ([]byte, error) {
	if data, ok := d.cached(ctx); ok {
		return data, nil
	}

	v, err, _ := d.group.Do(DashboardStatsKey, func() (interface{}, error) {
		if data, ok := d.cached(ctx); ok {
			return data, nil
		}

		data, err := d.compute(ctx)
		if err != nil {
			return nil, err
		}
		if err := d.cache.Set(ctx, DashboardStatsKey, data, d.ttl); err != nil {
			d.log.WithError(err).Warn("dashboard cache write failed")
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// cached treats a cache read error as a miss; the dashboard still answers
// when Redis is down.
func (d *Dashboard) cached(ctx context.Context) ([]byte, bool) {
	data, ok, err := d.cache.Get(ctx, DashboardStatsKey)
	if err != nil {
		d.log.WithError(err).Warn("dashboard cache read failed")
		return nil, false
	}
	return data, ok
}

func (d *Dashboard) compute(ctx context.Context) ([]byte, error) {
	info, err := d.models.ModelInfo(ctx)
	if err != nil {
		return nil, err
	}

	stats := DashboardStats{
		ActiveDiseases:         d.activeDiseases,
		LastPredictionAccuracy: defaultModelAccuracy,
		RecentPredictions:      []RecentPrediction{},
	}

	var doc map[string]interface{}
	if json.Unmarshal(info.Body, &doc) == nil {
		if acc, ok := doc["corona_model_accuracy"].(float64); ok {
			stats.LastPredictionAccuracy = acc
		}
	}

	if stats.TotalPredictions, err = d.history.Count(ctx); err != nil {
		return nil, err
	}
	if stats.ProcessingTime, err = d.history.AverageLatency(ctx); err != nil {
		return nil, err
	}

	recent, err := d.history.Recent(ctx, recentPredictions)
	if err != nil {
		return nil, err
	}
	for _, rec := range recent {
		stats.RecentPredictions = append(stats.RecentPredictions, RecentPrediction{
			Disease:        rec.Disease,
			Kind:           rec.Kind,
			PredictedCases: rec.PredictedCases,
			Accuracy:       rec.Accuracy,
			Timestamp:      rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return json.Marshal(stats)
}
