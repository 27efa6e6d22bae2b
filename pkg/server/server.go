package server

import (
	"errors"
	"net/http"

	"github.com/fr3shw3b/raop-control/pkg/sessions"
	"github.com/fr3shw3b/raop-control/pkg/utils"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Remote control commands a receiver may send.
var supportedCommands = map[string]bool{
	"play":          true,
	"pause":         true,
	"playpause":     true,
	"stop":          true,
	"nextitem":      true,
	"previtem":      true,
	"beginff":       true,
	"beginrew":      true,
	"playresume":    true,
	"shuffle_songs": true,
	"volumeup":      true,
	"volumedown":    true,
	"mutetoggle":    true,
}

type ServerParams struct {
	// Gatherer is exposed on /metrics when set.
	Gatherer prometheus.Gatherer
}

type serverImpl struct {
	params *ServerParams
	store  sessions.SessionStore
	logger *logrus.Logger
}

// NewDefaultServer creates the DACP remote control endpoint receivers
// call back into. Requests are routed to the session registered under
// their Active-Remote header.
func NewDefaultServer(params *ServerParams, store sessions.SessionStore, logger *logrus.Logger) http.Handler {
	s := &serverImpl{
		params,
		store,
		logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/ctrl-int/1/{command}", s.handleCommand).Methods(http.MethodGet)
	if params.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(params.Gatherer, promhttp.HandlerOpts{}))
	}
	return router
}

func (s *serverImpl) handleCommand(w http.ResponseWriter, r *http.Request) {
	command := mux.Vars(r)["command"]
	activeRemote := r.Header.Get(utils.HeaderActiveRemote)

	log := s.logger.WithFields(logrus.Fields{
		"command":       command,
		"active_remote": activeRemote,
	})

	session, err := s.store.Get(activeRemote)
	if err != nil {
		log.Warn("rejecting remote control request: ", err)
		status := http.StatusForbidden
		if errors.Is(err, sessions.ErrSessionExpired) {
			status = http.StatusGone
		}
		http.Error(w, err.Error(), status)
		return
	}

	if !supportedCommands[command] {
		log.Debug("unsupported remote control command")
		http.Error(w, "unsupported command", http.StatusBadRequest)
		return
	}

	if session.Handler != nil {
		if err := session.Handler(r.Context(), command); err != nil {
			log.Error("remote control command failed: ", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	log.Info("handled remote control command")
	w.WriteHeader(http.StatusNoContent)
}
