package rest

import "net/http"

type queryRequest struct {
	Query   string `json:"query"`
	TrackID string `json:"trackId,omitempty"`
}

type queryResponse struct {
	Response string `json:"response"`
}

// Query handles POST /query
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	answer, err := h.svc.Chat.Query(r.Context(), req.Query, req.TrackID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to answer query")
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{Response: answer})
}
