package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-cloud/internal/bridge"
)

// handleListEntities returns the current state of every entity.
func (s *Server) handleListEntities(w http.ResponseWriter, _ *http.Request) {
	states := s.entityStates()
	writeJSON(w, http.StatusOK, map[string]any{"entities": states, "count": len(states)})
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	e, ok := s.bridge.Entity(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "entity not found")
		return
	}
	writeJSON(w, http.StatusOK, e.State())
}

// handleTurnOn switches a light on.
//
// Body (optional): {"brightness":128,"color_temp_kelvin":3000}
// Brightness is on the 0-255 scale; both values are clamped to range.
func (s *Server) handleTurnOn(w http.ResponseWriter, r *http.Request) {
	var params bridge.CommandParameters
	if err := decodeOptionalJSON(r, &params); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	s.executeLight(w, r, bridge.CommandTurnOn, params)
}

func (s *Server) handleTurnOff(w http.ResponseWriter, r *http.Request) {
	s.executeLight(w, r, bridge.CommandTurnOff, bridge.CommandParameters{})
}

// executeLight runs a light command and returns the entity's new state.
// On a partial turn_on failure the error is returned; the state still
// reflects the commands that succeeded.
func (s *Server) executeLight(w http.ResponseWriter, r *http.Request, command string, params bridge.CommandParameters) {
	id := chi.URLParam(r, "id")

	if err := s.bridge.Execute(r.Context(), id, command, params); err != nil {
		writeCommandError(w, err)
		return
	}

	e, ok := s.bridge.Entity(id)
	if !ok {
		writeNotFound(w, "entity not found")
		return
	}
	writeJSON(w, http.StatusOK, e.State())
}
