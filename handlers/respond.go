package handlers

import (
	"encoding/json"
	"net/http"

	"pandemicwatch/services"

	"github.com/sirupsen/logrus"
)

type errorEnvelope struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Status  int               `json:"status"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeResult sends an upstream body back byte for byte.
func writeResult(w http.ResponseWriter, res *services.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.Status)
	w.Write(res.Body)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := services.AsError(err)

	entry := logrus.WithFields(logrus.Fields{
		"path":   r.URL.Path,
		"kind":   e.Kind,
		"status": e.Status,
	})
	if e.Err != nil {
		entry = entry.WithError(e.Err)
	}
	if e.Kind == services.InvalidRequest {
		entry.Info(e.Message)
	} else {
		entry.Warn(e.Message)
	}

	writeJSON(w, e.Status, errorEnvelope{
		Error:   string(e.Kind),
		Message: e.Message,
		Status:  e.Status,
		Fields:  e.Fields,
	})
}
