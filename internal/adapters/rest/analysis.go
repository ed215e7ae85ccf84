package rest

import (
	"net/http"

	"github.com/gorilla/mux"
)

// analyzeAudioRequest defines what the client sends us
type analyzeAudioRequest struct {
	TrackID  string `json:"trackId"`
	Filename string `json:"filename"`
}

// AnalyzeAudio handles POST /analyze-audio
func (h *Handler) AnalyzeAudio(w http.ResponseWriter, r *http.Request) {
	// 1. Decode the Request Body
	var req analyzeAudioRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// 2. Validate Input
	if req.TrackID == "" || req.Filename == "" {
		writeError(w, http.StatusBadRequest, "trackId and filename are required")
		return
	}

	// 3. Call the Service
	analysis, err := h.svc.Analysis.AnalyzeTrack(r.Context(), req.TrackID, req.Filename)
	if err != nil {
		h.writeServiceError(w, err, "Failed to analyze audio")
		return
	}

	// 4. Return the Response
	writeJSON(w, http.StatusOK, analysis)
}

// GetAnalysis handles GET /tracks/{id}/analysis
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.svc.Tracks.GetAnalysis(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err, "Failed to load analysis")
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}
