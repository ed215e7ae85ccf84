package rest

import "net/http"

type createMashupRequest struct {
	TrackIDs []string `json:"trackIds"`
}

type createMashupResponse struct {
	TrackID     string `json:"trackId"`
	Filename    string `json:"filename"`
	Description string `json:"description"`
}

// CreateMashup handles POST /mashups
func (h *Handler) CreateMashup(w http.ResponseWriter, r *http.Request) {
	var req createMashupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.Mashups.Create(r.Context(), req.TrackIDs)
	if err != nil {
		h.writeServiceError(w, err, "An error occurred while creating the mashup")
		return
	}

	w.Header().Set("Location", "/tracks/"+result.Track.ID)
	writeJSON(w, http.StatusCreated, createMashupResponse{
		TrackID:     result.Track.ID,
		Filename:    result.Track.Filename,
		Description: result.Description,
	})
}
