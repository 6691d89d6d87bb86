package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"fashionAdvisorAi/internal/events"
	"fashionAdvisorAi/internal/media"
	"fashionAdvisorAi/internal/storage"
	"fashionAdvisorAi/internal/stylist"
)

// Create opens a new session around the uploaded photo and returns its
// view. The oldest session is evicted once the cap is reached.
func (m *Manager) Create(ctx context.Context, photo stylist.Photo, filename string) (View, error) {
	if len(photo.Data) == 0 {
		return View{}, fmt.Errorf("empty photo upload")
	}

	id := uuid.NewString()

	m.mu.Lock()
	for len(m.order) >= maxSessions {
		oldest := m.order[0]
		m.order = m.order[1:]
		if victim, ok := m.sessions[oldest]; ok {
			cancelTasks(victim)
			delete(m.sessions, oldest)
		}
	}
	m.sessions[id] = &Session{
		ID:        id,
		photo:     photo,
		photoName: filename,
		phase:     PhaseIdle,
		tasks:     make(map[string]context.CancelFunc),
	}
	m.order = append(m.order, id)
	m.mu.Unlock()

	go m.archivePhoto(id, photo)

	return m.Snapshot(ctx, id)
}

// SelectImage replaces the session's base photo. Any existing
// suggestions, error text, and filter are discarded; the saved outfit
// marker and feedback history survive a photo swap.
func (m *Manager) SelectImage(ctx context.Context, id string, photo stylist.Photo, filename string) (View, error) {
	if len(photo.Data) == 0 {
		return View{}, fmt.Errorf("empty photo upload")
	}

	m.mu.Lock()
	s, err := m.get(id)
	if err != nil {
		m.mu.Unlock()
		return View{}, err
	}
	s.generation++
	m.retireTasks(s)
	s.photo = photo
	s.photoName = filename
	s.suggestions = nil
	s.phase = PhaseIdle
	s.errMsg = ""
	s.filter = ""
	s.generatingMore = false
	m.mu.Unlock()

	go m.archivePhoto(id, photo)

	return m.Snapshot(ctx, id)
}

// Photo returns the session's current base photo.
func (m *Manager) Photo(id string) (stylist.Photo, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.get(id)
	if err != nil {
		return stylist.Photo{}, "", err
	}
	if len(s.photo.Data) == 0 {
		return stylist.Photo{}, "", ErrNotFound
	}
	return s.photo, s.photoName, nil
}

// RequestSuggestions fetches the initial batch of style suggestions
// and starts one render per suggestion. A fetch failure leaves the
// session with an empty list and the error message set; the caller
// still gets a valid view.
func (m *Manager) RequestSuggestions(ctx context.Context, id string) (View, error) {
	m.mu.Lock()
	s, err := m.get(id)
	if err != nil {
		m.mu.Unlock()
		return View{}, err
	}
	if len(s.photo.Data) == 0 {
		s.errMsg = "Please upload an image first."
		m.mu.Unlock()
		return m.Snapshot(ctx, id)
	}
	s.generation++
	m.retireTasks(s)
	gen := s.generation
	photo := s.photo
	s.phase = PhaseAwaiting
	s.errMsg = ""
	s.suggestions = nil
	s.filter = ""
	s.generatingMore = false
	m.mu.Unlock()

	fetched, fetchErr := m.advisor.SuggestStyles(ctx, photo, nil)
	var feedback map[string]string
	if fetchErr == nil {
		feedback = m.feedbackByStyle(ctx)
	}

	m.mu.Lock()
	s, err = m.get(id)
	if err != nil || s.generation != gen {
		m.mu.Unlock()
		if err != nil {
			return View{}, err
		}
		return m.Snapshot(ctx, id)
	}
	if fetchErr != nil {
		s.phase = PhaseIdle
		s.errMsg = fetchErr.Error()
		m.mu.Unlock()
		return m.Snapshot(ctx, id)
	}

	s.phase = PhaseShown
	s.suggestions = prepareBatch(fetched, feedback)
	m.startRendersLocked(s, gen, photo, s.suggestions)
	m.mu.Unlock()

	return m.Snapshot(ctx, id)
}

// GenerateMore fetches an additional batch, excluding and deduplicating
// against the styles already shown. Only one generate-more request may
// run at a time per session.
func (m *Manager) GenerateMore(ctx context.Context, id string) (View, error) {
	m.mu.Lock()
	s, err := m.get(id)
	if err != nil {
		m.mu.Unlock()
		return View{}, err
	}
	if len(s.photo.Data) == 0 || len(s.suggestions) == 0 {
		m.mu.Unlock()
		return m.Snapshot(ctx, id)
	}
	if s.generatingMore {
		m.mu.Unlock()
		return View{}, ErrBusy
	}
	s.generatingMore = true
	s.errMsg = ""
	gen := s.generation
	photo := s.photo
	existing := make([]string, 0, len(s.suggestions))
	for _, sug := range s.suggestions {
		existing = append(existing, sug.StyleName)
	}
	m.mu.Unlock()

	fetched, fetchErr := m.advisor.SuggestStyles(ctx, photo, existing)
	var feedback map[string]string
	if fetchErr == nil {
		feedback = m.feedbackByStyle(ctx)
	}

	m.mu.Lock()
	s, err = m.get(id)
	if err != nil || s.generation != gen {
		m.mu.Unlock()
		if err != nil {
			return View{}, err
		}
		return m.Snapshot(ctx, id)
	}
	s.generatingMore = false
	if fetchErr != nil {
		s.errMsg = fetchErr.Error()
		m.mu.Unlock()
		return m.Snapshot(ctx, id)
	}

	seen := make(map[string]struct{}, len(s.suggestions))
	for _, sug := range s.suggestions {
		seen[sug.StyleName] = struct{}{}
	}
	fresh := make([]stylist.Suggestion, 0, len(fetched))
	for _, sug := range fetched {
		if _, dup := seen[sug.StyleName]; dup {
			continue
		}
		seen[sug.StyleName] = struct{}{}
		fresh = append(fresh, sug)
	}
	fresh = prepareBatch(fresh, feedback)
	s.suggestions = append(s.suggestions, fresh...)
	m.startRendersLocked(s, gen, photo, fresh)
	m.mu.Unlock()

	return m.Snapshot(ctx, id)
}

// Feedback toggles a like or dislike verdict on a suggestion. Choosing
// the verdict the suggestion already carries clears it back to
// neutral. The recomputed record list is written through to storage.
func (m *Manager) Feedback(ctx context.Context, id, styleName, verdict string) (View, error) {
	if verdict != stylist.FeedbackLike && verdict != stylist.FeedbackDislike {
		return View{}, fmt.Errorf("invalid feedback %q", verdict)
	}

	m.mu.Lock()
	s, err := m.get(id)
	if err != nil {
		m.mu.Unlock()
		return View{}, err
	}
	final := verdict
	for i := range s.suggestions {
		if s.suggestions[i].StyleName != styleName {
			continue
		}
		if s.suggestions[i].Feedback == verdict {
			final = ""
		}
		s.suggestions[i].Feedback = final
		break
	}
	m.mu.Unlock()

	records := m.prefs.LoadFeedback(ctx)
	kept := records[:0]
	for _, r := range records {
		if r.SuggestionID != styleName {
			kept = append(kept, r)
		}
	}
	if final != "" {
		kept = append(kept, storage.FeedbackRecord{SuggestionID: styleName, Feedback: final})
	}
	m.prefs.SaveFeedback(ctx, kept)

	return m.Snapshot(ctx, id)
}

// ToggleLike adds or removes the style from the persistent liked set.
func (m *Manager) ToggleLike(ctx context.Context, id, styleName string) (View, error) {
	m.mu.Lock()
	_, err := m.get(id)
	m.mu.Unlock()
	if err != nil {
		return View{}, err
	}

	m.prefs.ToggleLiked(ctx, styleName)
	return m.Snapshot(ctx, id)
}

// ToggleSave marks the style as the single saved outfit, replacing any
// previous marker. Saving the currently saved style clears the marker.
func (m *Manager) ToggleSave(ctx context.Context, id, styleName string) (View, error) {
	m.mu.Lock()
	_, err := m.get(id)
	m.mu.Unlock()
	if err != nil {
		return View{}, err
	}

	if m.prefs.LoadSaved(ctx) == styleName {
		m.prefs.SaveSaved(ctx, "")
	} else {
		m.prefs.SaveSaved(ctx, styleName)
	}
	return m.Snapshot(ctx, id)
}

// SetFilter records the text filter. Filtering is applied at view time
// and never mutates the suggestion list.
func (m *Manager) SetFilter(ctx context.Context, id, query string) (View, error) {
	m.mu.Lock()
	s, err := m.get(id)
	if err != nil {
		m.mu.Unlock()
		return View{}, err
	}
	s.filter = query
	m.mu.Unlock()

	return m.Snapshot(ctx, id)
}

// Reset returns the session to its initial state: photo, suggestions,
// error, and filter are cleared and the saved outfit marker is removed
// from storage. Liked styles and feedback history are kept.
func (m *Manager) Reset(ctx context.Context, id string) (View, error) {
	m.mu.Lock()
	s, err := m.get(id)
	if err != nil {
		m.mu.Unlock()
		return View{}, err
	}
	s.generation++
	m.retireTasks(s)
	s.photo = stylist.Photo{}
	s.photoName = ""
	s.suggestions = nil
	s.phase = PhaseIdle
	s.errMsg = ""
	s.filter = ""
	s.generatingMore = false
	m.mu.Unlock()

	m.prefs.SaveSaved(ctx, "")
	return m.Snapshot(ctx, id)
}

// Snapshot returns the current view of the session with preference
// fields attached.
func (m *Manager) Snapshot(ctx context.Context, id string) (View, error) {
	m.mu.Lock()
	s, err := m.get(id)
	if err != nil {
		m.mu.Unlock()
		return View{}, err
	}
	view := buildView(s)
	m.mu.Unlock()

	view.Saved = m.prefs.LoadSaved(ctx)
	view.Liked = m.prefs.LoadLiked(ctx)
	if view.Liked == nil {
		view.Liked = []string{}
	}
	return view, nil
}

// feedbackByStyle loads persisted feedback keyed by style name.
func (m *Manager) feedbackByStyle(ctx context.Context) map[string]string {
	records := m.prefs.LoadFeedback(ctx)
	if len(records) == 0 {
		return nil
	}
	byStyle := make(map[string]string, len(records))
	for _, r := range records {
		byStyle[r.SuggestionID] = r.Feedback
	}
	return byStyle
}

// prepareBatch marks a fetched batch pending and re-attaches any
// persisted feedback verdicts.
func prepareBatch(fetched []stylist.Suggestion, feedback map[string]string) []stylist.Suggestion {
	out := make([]stylist.Suggestion, len(fetched))
	for i, sug := range fetched {
		sug.ImageStatus = stylist.ImageStatusPending
		sug.ImageData = ""
		sug.ImageURL = ""
		sug.Feedback = feedback[sug.StyleName]
		out[i] = sug
	}
	return out
}

// startRendersLocked launches one render goroutine per suggestion.
// Callers hold the manager lock.
func (m *Manager) startRendersLocked(s *Session, gen int, photo stylist.Photo, batch []stylist.Suggestion) {
	for _, sug := range batch {
		taskCtx, cancel := context.WithCancel(context.Background())
		s.tasks[sug.StyleName] = cancel
		go m.runRender(taskCtx, cancel, s.ID, gen, sug, photo)
	}
}

// runRender executes a single outfit render and applies its outcome.
// Completions from an older generation are discarded without touching
// session state.
func (m *Manager) runRender(ctx context.Context, cancel context.CancelFunc, id string, gen int, sug stylist.Suggestion, photo stylist.Photo) {
	defer cancel()

	dataURI, err := m.renderer.RenderOutfit(ctx, sug, photo)

	imageURL := ""
	if err == nil {
		imageURL = m.archiveRender(ctx, sug.StyleName, dataURI)
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.generation != gen {
		m.mu.Unlock()
		return
	}
	delete(s.tasks, sug.StyleName)

	var evt events.Event
	applied := false
	for i := range s.suggestions {
		if s.suggestions[i].StyleName != sug.StyleName {
			continue
		}
		if err != nil {
			s.suggestions[i].ImageStatus = stylist.ImageStatusFailed
		} else {
			s.suggestions[i].ImageStatus = stylist.ImageStatusReady
			s.suggestions[i].ImageData = dataURI
			s.suggestions[i].ImageURL = imageURL
		}
		evt = events.Event{
			SessionID: id,
			StyleName: sug.StyleName,
			Status:    s.suggestions[i].ImageStatus,
			ImageData: s.suggestions[i].ImageData,
			ImageURL:  s.suggestions[i].ImageURL,
		}
		applied = true
		break
	}
	m.mu.Unlock()

	if err != nil {
		log.Printf("session %s: render %q: %v", id, sug.StyleName, err)
	}
	if applied && m.broker != nil {
		m.broker.Publish(evt)
	}
}

// archivePhoto keeps a durable copy of the uploaded base photo.
// Failures only lose the archive copy; the session serves the photo
// from memory regardless.
func (m *Manager) archivePhoto(id string, photo stylist.Photo) {
	ext := ".jpg"
	switch photo.MIME {
	case "image/png":
		ext = ".png"
	case "image/webp":
		ext = ".webp"
	}
	_, err := m.uploader.Upload(context.Background(), media.UploadInput{
		Filename:    "photos/" + id + ext,
		ContentType: photo.MIME,
		Body:        bytes.NewReader(photo.Data),
		Size:        int64(len(photo.Data)),
	})
	if err != nil && err != media.ErrUploaderDisabled {
		log.Printf("media: archive photo for session %s: %v", id, err)
	}
}

// archiveRender uploads a finished render for durable access. Failures
// degrade to the inline data URI only.
func (m *Manager) archiveRender(ctx context.Context, styleName, dataURI string) string {
	mime, data, err := decodeDataURI(dataURI)
	if err != nil {
		log.Printf("media: decode render %q: %v", styleName, err)
		return ""
	}
	result, err := m.uploader.Upload(ctx, media.UploadInput{
		Filename:    renderFilename(styleName, mime),
		ContentType: mime,
		Body:        bytes.NewReader(data),
		Size:        int64(len(data)),
	})
	if err != nil {
		if err != media.ErrUploaderDisabled {
			log.Printf("media: archive render %q: %v", styleName, err)
		}
		return ""
	}
	return result.URL
}

// decodeDataURI splits a data:<mime>;base64,<payload> string.
func decodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URI")
	}
	mime, _, _ := strings.Cut(meta, ";")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URI payload: %w", err)
	}
	return mime, data, nil
}

func renderFilename(styleName, mime string) string {
	ext := ".png"
	if strings.Contains(mime, "jpeg") {
		ext = ".jpg"
	} else if strings.Contains(mime, "webp") {
		ext = ".webp"
	}
	slug := strings.ToLower(strings.ReplaceAll(styleName, " ", "-"))
	return "renders/" + slug + "-" + uuid.NewString() + ext
}
