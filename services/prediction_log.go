package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PredictionLog records successful predictions in the history store, then
// archives the raw body and pushes the record to the live feed when those are
// configured. Archive and feed failures are logged, never returned.
type PredictionLog struct {
	store   HistoryStore
	archive Archiver
	feed    *FeedHub
	now     func() time.Time
	log     *logrus.Entry
}

func NewPredictionLog(store HistoryStore, archive Archiver, feed *FeedHub) *PredictionLog {
	return &PredictionLog{
		store:   store,
		archive: archive,
		feed:    feed,
		now:     time.Now,
		log:     logrus.WithField("component", "prediction_log"),
	}
}

func (p *PredictionLog) Store() HistoryStore {
	return p.store
}

func (p *PredictionLog) Record(ctx context.Context, kind string, req *PredictionRequest, res *Result, latency time.Duration) (*PredictionRecord, error) {
	rec := &PredictionRecord{
		ID:           uuid.New().String(),
		Kind:         kind,
		Disease:      *req.Disease,
		Year:         *req.Year,
		Month:        *req.Month,
		CurrentCases: *req.CurrentCases,
		ActiveCases:  *req.ActiveCases,
		LatencyMs:    latency.Milliseconds(),
		CreatedAt:    p.now().UTC(),
	}
	rec.PredictedCases, rec.Accuracy = readPredictionFigures(res.Body)

	if err := p.store.Record(ctx, rec); err != nil {
		return nil, err
	}

	if p.archive != nil {
		if err := p.archive.Archive(ctx, rec, res.Body); err != nil {
			p.log.WithError(err).WithField("id", rec.ID).Warn("archive failed")
		}
	}

	if p.feed != nil {
		if data, err := json.Marshal(rec); err == nil {
			p.feed.Publish(data)
		}
	}

	return rec, nil
}

// readPredictionFigures reads "prediction" or "cumulative_total_cases" and
// "model_accuracy" from an upstream body. Missing or non-numeric fields stay
// nil.
func readPredictionFigures(body []byte) (cases, accuracy *float64) {
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, nil
	}
	for _, key := range []string{"prediction", "cumulative_total_cases"} {
		if v, ok := doc[key].(float64); ok {
			cases = &v
			break
		}
	}
	if v, ok := doc["model_accuracy"].(float64); ok {
		accuracy = &v
	}
	return cases, accuracy
}
