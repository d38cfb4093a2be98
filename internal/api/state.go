package api

import (
	"net/http"

	"github.com/ashpool/dictate/internal/control"
)

// StateResponse describes the current control state for remote clients.
type StateResponse struct {
	State        string `json:"state"`
	Connectivity string `json:"connectivity"`
	Backend      string `json:"backend,omitempty"`
	ElapsedMS    int64  `json:"elapsed_ms,omitempty"`
}

type stateHandler struct {
	ctrl *control.Controller
}

func (h *stateHandler) snapshot() StateResponse {
	return StateResponse{
		State:        h.ctrl.State().String(),
		Connectivity: h.ctrl.Connectivity().String(),
		Backend:      h.ctrl.BackendName(),
		ElapsedMS:    h.ctrl.Elapsed().Milliseconds(),
	}
}

func (h *stateHandler) getState(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.snapshot())
}

// postToggle mirrors the local push-to-talk interaction. The toggle is a
// no-op in states that reject interaction; the response always reports
// the state after the attempt.
func (h *stateHandler) postToggle(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Toggle()
	WriteJSON(w, http.StatusOK, h.snapshot())
}

func (h *stateHandler) postReset(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Reset()
	WriteJSON(w, http.StatusOK, h.snapshot())
}
