package handlers

import (
	"context"

	"pandemicwatch/services"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

var (
	modelClient      *services.ModelClient
	requestValidator *services.RequestValidator
	predictionLog    *services.PredictionLog
	dashboard        *services.Dashboard
	feedHub          *services.FeedHub
	rdb              *redis.Client
)

// InitServices wires the proxy from the environment. The feed hub runs until
// ctx is cancelled.
func InitServices(ctx context.Context) error {
	modelClient = services.NewModelClient(GetAIAPIURL(), GetAIAPITimeout())

	minYear, maxYear := GetYearBounds()
	requestValidator = services.NewRequestValidator(GetAllowedDiseases(), minYear, maxYear)

	history, err := services.OpenHistoryStore(ctx, GetDatabaseURL())
	if err != nil {
		return err
	}

	var archive services.Archiver
	if bucket := GetArchiveBucket(); bucket != "" {
		s3Archive, err := services.NewS3Archive(GetAWSRegion(), bucket)
		if err != nil {
			return err
		}
		archive = s3Archive
		logrus.WithField("bucket", bucket).Info("archiving predictions to S3")
	}

	feedHub = services.NewFeedHub()
	go feedHub.Run(ctx)

	predictionLog = services.NewPredictionLog(history, archive, feedHub)

	var cache services.Cache = services.NewMemoryCache()
	if addr := GetRedisURL(); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: GetRedisPassword(),
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		cache = services.NewRedisCache(rdb)
		logrus.WithField("addr", addr).Info("dashboard cache on Redis")
	}

	dashboard = services.NewDashboard(modelClient, history, cache, GetDashboardCacheTTL(), len(requestValidator.Diseases()))

	logrus.WithFields(logrus.Fields{
		"ai_api_url": modelClient.BaseURL(),
		"diseases":   requestValidator.Diseases(),
		"min_year":   minYear,
		"max_year":   maxYear,
	}).Info("services initialized")
	return nil
}

func CloseServices(ctx context.Context) {
	if predictionLog != nil {
		if err := predictionLog.Store().Close(ctx); err != nil {
			logrus.WithError(err).Warn("closing history store")
		}
	}
	if rdb != nil {
		rdb.Close()
		rdb = nil
	}
}
