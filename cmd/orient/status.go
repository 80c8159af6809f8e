package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/station-orient/internal/httputil"
	"github.com/banshee-data/station-orient/internal/orient"
)

// searchStatus is the JSON body of the /status debug route.
type searchStatus struct {
	Session   string  `json:"session,omitempty"`
	Model     string  `json:"model"`
	Targets   int     `json:"targets"`
	Stage     string  `json:"stage"`
	Cells     int     `json:"cells"`
	Outcome   string  `json:"outcome"`
	TargetID  string  `json:"target_id,omitempty"`
	Hz        float64 `json:"hz_rad,omitempty"`
	LastError string  `json:"last_error,omitempty"`
	Started   string  `json:"started"`
}

// statusBoard holds the latest search snapshot for the debug server.
type statusBoard struct {
	mu sync.Mutex
	st searchStatus
}

func newStatusBoard(model string, targets int, started time.Time) *statusBoard {
	return &statusBoard{st: searchStatus{
		Model:   model,
		Targets: targets,
		Stage:   orient.StageWake.String(),
		Outcome: "searching",
		Started: started.UTC().Format(time.RFC3339),
	}}
}

// update is an orient.Options.Progress callback.
func (b *statusBoard) update(rep orient.Report) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.st.Session = rep.SessionID
	b.st.Stage = rep.Stage.String()
	b.st.Cells = rep.Cells
	if rep.LastErr != nil {
		b.st.LastError = rep.LastErr.Error()
	}
}

// finish records the final report.
func (b *statusBoard) finish(rep orient.Report, err error) {
	b.update(rep)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.st.Outcome = rep.Outcome.String()
	if rep.Found() {
		b.st.TargetID = rep.TargetID
		b.st.Hz = rep.Orientation.Radians()
	}
	if err != nil {
		b.st.Outcome = "failed"
		b.st.LastError = err.Error()
	}
}

func (b *statusBoard) snapshot() searchStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st
}

func (b *statusBoard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b.snapshot())
}
