package rest

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
)

const (
	maxUploadBytes  = 100 << 20
	uploadFormField = "file"
)

// UploadTrack handles POST /tracks with a multipart "file" field.
func (h *Handler) UploadTrack(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart form with a file field is required")
		return
	}

	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload")
		return
	}

	track, err := h.svc.Tracks.Upload(r.Context(), header.Filename, data)
	if err != nil {
		h.writeServiceError(w, err, "Failed to upload track")
		return
	}

	w.Header().Set("Location", "/tracks/"+track.ID)
	writeJSON(w, http.StatusCreated, track)
}

// ListTracks handles GET /tracks
func (h *Handler) ListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.svc.Tracks.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Failed to fetch tracks")
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// GetTrack handles GET /tracks/{id}
func (h *Handler) GetTrack(w http.ResponseWriter, r *http.Request) {
	track, err := h.svc.Tracks.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err, "Failed to fetch track")
		return
	}
	writeJSON(w, http.StatusOK, track)
}
