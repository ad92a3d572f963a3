package ingester

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/canopy-network/ytwarehouse/pkg/ingest"
)

// StatusResponse is the /status payload.
type StatusResponse struct {
	Running  bool            `json:"running"`
	LastRun  *ingest.Summary `json:"last_run,omitempty"`
	Channels []ChannelStatus `json:"channels"`
}

// SetupServer sets up the HTTP server.
func (a *App) SetupServer(addr string) {
	a.Server = &http.Server{Addr: addr, Handler: a.Router()}
}

// Router exposes the health, status and metrics routes.
func (a *App) Router() *mux.Router {
	r := mux.NewRouter()

	r.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })).Methods("GET")
	r.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if a.Ready(req.Context()) {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})).Methods("GET")
	r.HandleFunc("/status", a.handleStatus).Methods("GET")
	r.HandleFunc("/status/{channel}", a.handleChannelStatus).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return r
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Running:  a.running.Load(),
		LastRun:  a.lastSummary.Load(),
		Channels: []ChannelStatus{},
	}
	a.LastRun.Range(func(_ string, st ChannelStatus) bool {
		resp.Channels = append(resp.Channels, st)
		return true
	})
	sort.Slice(resp.Channels, func(i, j int) bool { return resp.Channels[i].ChannelID < resp.Channels[j].ChannelID })

	a.writeJSON(w, http.StatusOK, resp)
}

func (a *App) handleChannelStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["channel"]
	st, ok := a.LastRun.Load(id)
	if !ok {
		a.writeJSON(w, http.StatusNotFound, map[string]string{"error": "channel has not been ingested yet"})
		return
	}
	a.writeJSON(w, http.StatusOK, st)
}

func (a *App) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.Logger.Warn("Failed to encode response", zap.Error(err))
	}
}
