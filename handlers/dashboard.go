package handlers

import (
	_ "embed"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

//go:embed map_fixture.yml
var mapFixture []byte

// CountryRisk is one marker on the dashboard map. Coordinates are [lon, lat].
type CountryRisk struct {
	Country        string    `yaml:"country" json:"country"`
	Coordinates    []float64 `yaml:"coordinates" json:"coordinates"`
	Cases          int       `yaml:"cases" json:"cases"`
	PredictedCases int       `yaml:"predicted_cases" json:"predicted_cases"`
	GrowthRate     float64   `yaml:"growth_rate" json:"growth_rate"`
	RiskLevel      string    `yaml:"risk_level" json:"risk_level"`
}

var (
	mapDataOnce sync.Once
	mapData     []CountryRisk
	mapDataErr  error
)

func loadMapData() ([]CountryRisk, error) {
	mapDataOnce.Do(func() {
		mapDataErr = yaml.Unmarshal(mapFixture, &mapData)
	})
	return mapData, mapDataErr
}

func DashboardStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := dashboard.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func DashboardMapHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	countries, err := loadMapData()
	if err != nil {
		logrus.WithError(err).Error("map fixture is invalid")
		http.Error(w, "Map data unavailable", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, countries)
}
