package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"pandemicwatch/services"

	"github.com/sirupsen/logrus"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type predictCall func(ctx context.Context, req *services.PredictionRequest) (*services.Result, error)

func PredictHandler(w http.ResponseWriter, r *http.Request) {
	proxyPrediction(w, r, services.KindPredict, modelClient.Predict)
}

func PredictTotalCasesHandler(w http.ResponseWriter, r *http.Request) {
	proxyPrediction(w, r, services.KindPredictTotalCases, modelClient.PredictTotalCases)
}

func proxyPrediction(w http.ResponseWriter, r *http.Request, kind string, call predictCall) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := requestValidator.Decode(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	start := time.Now()
	res, err := call(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	latency := time.Since(start)

	if _, err := predictionLog.Record(r.Context(), kind, req, res, latency); err != nil {
		logrus.WithError(err).WithField("kind", kind).Warn("failed to record prediction")
	}

	writeResult(w, res)
}

func ModelInfoHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	res, err := modelClient.ModelInfo(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, res)
}

func ProcessedDataHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	res, err := modelClient.ProcessedData(r.Context(), q.Get("page"), q.Get("page_size"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, res)
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	res, err := modelClient.Health(r.Context())
	if err != nil {
		e := services.AsError(err)
		writeJSON(w, http.StatusServiceUnavailable, errorEnvelope{
			Error:   string(e.Kind),
			Message: "AI service down: " + e.Message,
			Status:  http.StatusServiceUnavailable,
		})
		return
	}
	writeResult(w, res)
}

// HistoryHandler lists recorded predictions, newest first, as JSON or CSV.
func HistoryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorEnvelope{
				Error:   string(services.InvalidRequest),
				Message: "limit must be a positive integer",
				Status:  http.StatusBadRequest,
			})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := predictionLog.Store().Recent(r.Context(), limit)
	if err != nil {
		logrus.WithError(err).Error("history read failed")
		http.Error(w, "History unavailable", http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="predictions.csv"`)
		if err := services.WriteHistoryCSV(w, records); err != nil {
			logrus.WithError(err).Error("history export failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, records)
}
