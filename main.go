package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pandemicwatch/handlers"
	"pandemicwatch/web"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	origin := handlers.GetCORSOrigin()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws/predictions" {
			// the upgrade needs the raw http.Hijacker
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logrus.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"latency_ms": time.Since(start).Milliseconds(),
		}).Info("request")
	})
}

func setupLogging() {
	if handlers.IsProduction() {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func main() {
	godotenv.Load()
	setupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := handlers.InitServices(ctx); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize services")
	}

	mux := http.NewServeMux()

	// Prediction proxy
	mux.HandleFunc("/api/pandemic/predict", enableCORS(handlers.PredictHandler))
	mux.HandleFunc("/api/pandemic/predict-total-cases", enableCORS(handlers.PredictTotalCasesHandler))
	mux.HandleFunc("/api/pandemic/model-info", enableCORS(handlers.ModelInfoHandler))
	mux.HandleFunc("/api/pandemic/processed-data", enableCORS(handlers.ProcessedDataHandler))
	mux.HandleFunc("/api/pandemic/history", enableCORS(handlers.HistoryHandler))
	mux.HandleFunc("/api/pandemic/diseases", enableCORS(handlers.DiseasesHandler))
	mux.HandleFunc("/api/health", enableCORS(handlers.HealthHandler))

	// Dashboard
	mux.HandleFunc("/api/dashboard/stats", enableCORS(handlers.DashboardStatsHandler))
	mux.HandleFunc("/api/dashboard/map", enableCORS(handlers.DashboardMapHandler))
	mux.HandleFunc("/ws/predictions", handlers.PredictionFeedHandler)

	mux.Handle("/", web.Handler())

	apiPort := handlers.GetAPIPort()
	srv := &http.Server{
		Addr:              ":" + apiPort,
		Handler:           logRequests(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logrus.Info("Pandemic dashboard running on http://localhost:" + apiPort)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Server failed")
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	handlers.CloseServices(shutdownCtx)
}
