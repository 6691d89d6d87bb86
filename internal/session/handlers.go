package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"fashionAdvisorAi/internal/events"
	"fashionAdvisorAi/internal/stylist"
)

// Handler exposes the session lifecycle over HTTP.
type Handler struct {
	Manager *Manager
	Broker  *events.Broker
}

// Create handles POST /api/sessions with a multipart "photo" field.
func (h Handler) Create(w http.ResponseWriter, r *http.Request) {
	photo, filename, ok := readPhoto(w, r)
	if !ok {
		return
	}

	view, err := h.Manager.Create(r.Context(), photo, filename)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, view)
}

// Get handles GET /api/sessions/{id}.
func (h Handler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.Manager.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, view)
}

// Photo handles GET /api/sessions/{id}/photo, streaming the base
// image back to the browser.
func (h Handler) Photo(w http.ResponseWriter, r *http.Request) {
	photo, _, err := h.Manager.Photo(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if photo.MIME != "" {
		w.Header().Set("Content-Type", photo.MIME)
	}
	_, _ = w.Write(photo.Data)
}

// SelectImage handles PUT /api/sessions/{id}/photo.
func (h Handler) SelectImage(w http.ResponseWriter, r *http.Request) {
	photo, filename, ok := readPhoto(w, r)
	if !ok {
		return
	}

	view, err := h.Manager.SelectImage(r.Context(), chi.URLParam(r, "id"), photo, filename)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, view)
}

// Suggest handles POST /api/sessions/{id}/suggestions.
func (h Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	view, err := h.Manager.RequestSuggestions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, view)
}

// More handles POST /api/sessions/{id}/more.
func (h Handler) More(w http.ResponseWriter, r *http.Request) {
	view, err := h.Manager.GenerateMore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, view)
}

// Feedback handles POST /api/sessions/{id}/feedback.
func (h Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StyleName string `json:"style_name"`
		Feedback  string `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.StyleName) == "" {
		http.Error(w, "style_name is required", http.StatusBadRequest)
		return
	}

	view, err := h.Manager.Feedback(r.Context(), chi.URLParam(r, "id"), req.StyleName, req.Feedback)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, view)
}

// Like handles POST /api/sessions/{id}/like.
func (h Handler) Like(w http.ResponseWriter, r *http.Request) {
	styleName, ok := readStyleName(w, r)
	if !ok {
		return
	}
	view, err := h.Manager.ToggleLike(r.Context(), chi.URLParam(r, "id"), styleName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, view)
}

// Save handles POST /api/sessions/{id}/save.
func (h Handler) Save(w http.ResponseWriter, r *http.Request) {
	styleName, ok := readStyleName(w, r)
	if !ok {
		return
	}
	view, err := h.Manager.ToggleSave(r.Context(), chi.URLParam(r, "id"), styleName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, view)
}

// Filter handles PUT /api/sessions/{id}/filter.
func (h Handler) Filter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	view, err := h.Manager.SetFilter(r.Context(), chi.URLParam(r, "id"), req.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, view)
}

// Reset handles POST /api/sessions/{id}/reset.
func (h Handler) Reset(w http.ResponseWriter, r *http.Request) {
	view, err := h.Manager.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, view)
}

// StreamEvents handles GET /api/events as a server-sent event stream
// of render status changes.
func (h Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch := h.Broker.Subscribe()
	defer h.Broker.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

var allowedPhotoTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// readPhoto extracts and validates the multipart "photo" field. On
// failure it writes the error response and returns ok=false.
func readPhoto(w http.ResponseWriter, r *http.Request) (stylist.Photo, string, bool) {
	if err := r.ParseMultipartForm(stylist.MaxPhotoBytes + (1 << 20)); err != nil {
		http.Error(w, fmt.Sprintf("could not parse form: %v", err), http.StatusBadRequest)
		return stylist.Photo{}, "", false
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		http.Error(w, "photo is required", http.StatusBadRequest)
		return stylist.Photo{}, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, stylist.MaxPhotoBytes+1))
	if err != nil {
		http.Error(w, "could not read file", http.StatusBadRequest)
		return stylist.Photo{}, "", false
	}
	if len(data) == 0 {
		http.Error(w, "empty file", http.StatusBadRequest)
		return stylist.Photo{}, "", false
	}
	if len(data) > stylist.MaxPhotoBytes {
		http.Error(w, fmt.Sprintf("file exceeds %d bytes", stylist.MaxPhotoBytes), http.StatusBadRequest)
		return stylist.Photo{}, "", false
	}

	mime := header.Header.Get("Content-Type")
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	if !allowedPhotoTypes[mime] {
		http.Error(w, fmt.Sprintf("unsupported image type %q", mime), http.StatusBadRequest)
		return stylist.Photo{}, "", false
	}

	return stylist.Photo{Data: data, MIME: mime}, header.Filename, true
}

func readStyleName(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		StyleName string `json:"style_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return "", false
	}
	if strings.TrimSpace(req.StyleName) == "" {
		http.Error(w, "style_name is required", http.StatusBadRequest)
		return "", false
	}
	return req.StyleName, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
