package handlers

import (
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: checkFeedOrigin,
}

// checkFeedOrigin accepts same-host pages and the configured CORS origin.
func checkFeedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == GetCORSOrigin() {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// PredictionFeedHandler streams every recorded prediction to the dashboard.
func PredictionFeedHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Debug("feed upgrade failed")
		return
	}
	feedHub.Serve(conn)
}
