package handlers

import "net/http"

type diseaseCatalog struct {
	Diseases []string `json:"diseases"`
	MinYear  int      `json:"min_year"`
	MaxYear  int      `json:"max_year"`
}

// DiseasesHandler lists what the prediction form may submit.
func DiseasesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	minYear, maxYear := requestValidator.YearBounds()
	writeJSON(w, http.StatusOK, diseaseCatalog{
		Diseases: requestValidator.Diseases(),
		MinYear:  minYear,
		MaxYear:  maxYear,
	})
}
