package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/station-orient/internal/angle"
	"github.com/banshee-data/station-orient/internal/orient"
)

func getStatus(t *testing.T, h http.Handler) searchStatus {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var st searchStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	return st
}

func TestStatusBoard(t *testing.T) {
	started := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	board := newStatusBoard("TPS1200", 4, started)

	st := getStatus(t, board)
	assert.Equal(t, "searching", st.Outcome)
	assert.Equal(t, "wake", st.Stage)
	assert.Equal(t, 4, st.Targets)
	assert.Equal(t, "2025-03-01T09:00:00Z", st.Started)

	board.update(orient.Report{SessionID: "s-1", Stage: orient.StageScan, Cells: 12, LastErr: errors.New("no target detected")})
	st = getStatus(t, board)
	assert.Equal(t, "s-1", st.Session)
	assert.Equal(t, "scan", st.Stage)
	assert.Equal(t, 12, st.Cells)
	assert.Equal(t, "no target detected", st.LastError)
	assert.Equal(t, "searching", st.Outcome)

	board.finish(orient.Report{
		SessionID:   "s-1",
		Outcome:     orient.OutcomeOriented,
		Stage:       orient.StageScan,
		Cells:       13,
		TargetID:    "P2",
		Orientation: angle.Radians(2.4),
	}, nil)
	st = getStatus(t, board)
	assert.Equal(t, orient.OutcomeOriented.String(), st.Outcome)
	assert.Equal(t, "P2", st.TargetID)
	assert.InDelta(t, 2.4, st.Hz, 1e-12)
	assert.Equal(t, 13, st.Cells)
}

func TestStatusBoardFailure(t *testing.T) {
	board := newStatusBoard("TPS1200", 1, time.Now())
	board.finish(orient.Report{Stage: orient.StageWake}, orient.ErrLinkDown)

	st := getStatus(t, board)
	assert.Equal(t, "failed", st.Outcome)
	assert.Equal(t, orient.ErrLinkDown.Error(), st.LastError)
	assert.Empty(t, st.TargetID)
}

func TestStatusBoardRejectsWrites(t *testing.T) {
	rec := httptest.NewRecorder()
	newStatusBoard("TPS1200", 0, time.Now()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
