package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fashionAdvisorAi/internal/events"
	"fashionAdvisorAi/internal/storage"
	"fashionAdvisorAi/internal/stylist"
)

type fakeAdvisor struct {
	mu      sync.Mutex
	batches [][]stylist.Suggestion
	err     error
	calls   [][]string
}

func (f *fakeAdvisor) SuggestStyles(_ context.Context, _ stylist.Photo, excluded []string) ([]stylist.Suggestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), excluded...))
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, errors.New("no batch queued")
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

// fakeRenderer blocks each render on a per-style gate so tests control
// completion order.
type fakeRenderer struct {
	mu      sync.Mutex
	gates   map[string]chan struct{}
	results map[string]string
	fail    map[string]bool
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		gates:   make(map[string]chan struct{}),
		results: make(map[string]string),
		fail:    make(map[string]bool),
	}
}

func (f *fakeRenderer) gate(styleName string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gates[styleName]
	if !ok {
		g = make(chan struct{})
		f.gates[styleName] = g
	}
	return g
}

// Release lets the render for the style finish with the given data URI.
func (f *fakeRenderer) Release(styleName, dataURI string) {
	f.mu.Lock()
	f.results[styleName] = dataURI
	f.mu.Unlock()
	close(f.gate(styleName))
}

// ReleaseFailed lets the render finish with an error.
func (f *fakeRenderer) ReleaseFailed(styleName string) {
	f.mu.Lock()
	f.fail[styleName] = true
	f.mu.Unlock()
	close(f.gate(styleName))
}

func (f *fakeRenderer) RenderOutfit(ctx context.Context, sug stylist.Suggestion, _ stylist.Photo) (string, error) {
	select {
	case <-f.gate(sug.StyleName):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[sug.StyleName] {
		return "", errors.New("render backend unavailable")
	}
	return f.results[sug.StyleName], nil
}

func makeSuggestion(name string) stylist.Suggestion {
	return stylist.Suggestion{
		StyleName:   name,
		Description: "a " + name + " look",
		Reasoning:   "suits the subject",
		ClothingItems: stylist.ClothingItems{
			Top:         name + " top",
			Bottom:      "dark jeans",
			Footwear:    "white sneakers",
			Accessories: "leather watch",
		},
	}
}

func testPhoto() stylist.Photo {
	return stylist.Photo{Data: []byte("not-really-a-jpeg"), MIME: "image/jpeg"}
}

func newTestManager(t *testing.T, advisor *fakeAdvisor, renderer *fakeRenderer) (*Manager, *storage.Preferences) {
	t.Helper()
	prefs := storage.NewPreferences(storage.NewMemoryKV())
	m := NewManager(ManagerConfig{
		Advisor:     advisor,
		Renderer:    renderer,
		Preferences: prefs,
		Broker:      events.NewBroker(),
	})
	return m, prefs
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func suggestionByName(view View, name string) (stylist.Suggestion, bool) {
	for _, s := range view.Suggestions {
		if s.StyleName == name {
			return s, true
		}
	}
	return stylist.Suggestion{}, false
}

func TestRequestSuggestionsMarksAllPending(t *testing.T) {
	advisor := &fakeAdvisor{batches: [][]stylist.Suggestion{{
		makeSuggestion("Smart Casual"),
		makeSuggestion("Streetwear"),
		makeSuggestion("Bohemian"),
	}}}
	m, _ := newTestManager(t, advisor, newFakeRenderer())

	ctx := context.Background()
	view, err := m.Create(ctx, testPhoto(), "me.jpg")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if view.Phase != PhaseIdle {
		t.Fatalf("phase = %q, want %q", view.Phase, PhaseIdle)
	}

	view, err = m.RequestSuggestions(ctx, view.ID)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if view.Phase != PhaseShown {
		t.Fatalf("phase = %q, want %q", view.Phase, PhaseShown)
	}
	if len(view.Suggestions) != 3 {
		t.Fatalf("got %d suggestions, want 3", len(view.Suggestions))
	}
	for _, s := range view.Suggestions {
		if s.ImageStatus != stylist.ImageStatusPending {
			t.Errorf("%s: status = %q, want pending", s.StyleName, s.ImageStatus)
		}
	}
}

func TestRendersCompleteIndependently(t *testing.T) {
	advisor := &fakeAdvisor{batches: [][]stylist.Suggestion{{
		makeSuggestion("Smart Casual"),
		makeSuggestion("Streetwear"),
	}}}
	renderer := newFakeRenderer()
	m, _ := newTestManager(t, advisor, renderer)

	ctx := context.Background()
	view, _ := m.Create(ctx, testPhoto(), "me.jpg")
	id := view.ID
	if _, err := m.RequestSuggestions(ctx, id); err != nil {
		t.Fatalf("suggest: %v", err)
	}

	// Complete the second card first; the first must stay pending.
	renderer.Release("Streetwear", "data:image/png;base64,aGk=")
	waitFor(t, func() bool {
		v, _ := m.Snapshot(ctx, id)
		s, _ := suggestionByName(v, "Streetwear")
		return s.ImageStatus == stylist.ImageStatusReady
	})

	v, _ := m.Snapshot(ctx, id)
	street, _ := suggestionByName(v, "Streetwear")
	if street.ImageData != "data:image/png;base64,aGk=" {
		t.Errorf("streetwear image = %q", street.ImageData)
	}
	smart, _ := suggestionByName(v, "Smart Casual")
	if smart.ImageStatus != stylist.ImageStatusPending {
		t.Errorf("smart casual status = %q, want pending", smart.ImageStatus)
	}

	renderer.ReleaseFailed("Smart Casual")
	waitFor(t, func() bool {
		v, _ := m.Snapshot(ctx, id)
		s, _ := suggestionByName(v, "Smart Casual")
		return s.ImageStatus == stylist.ImageStatusFailed
	})
}

func TestSuggestionFetchFailure(t *testing.T) {
	advisor := &fakeAdvisor{err: errors.New("model overloaded")}
	m, _ := newTestManager(t, advisor, newFakeRenderer())

	ctx := context.Background()
	view, _ := m.Create(ctx, testPhoto(), "me.jpg")
	view, err := m.RequestSuggestions(ctx, view.ID)
	if err != nil {
		t.Fatalf("suggest returned transport error: %v", err)
	}
	if view.Error == "" {
		t.Fatal("expected error message in view")
	}
	if view.Phase != PhaseIdle {
		t.Errorf("phase = %q, want idle", view.Phase)
	}
	if len(view.Suggestions) != 0 {
		t.Errorf("got %d suggestions, want 0", len(view.Suggestions))
	}
}

func TestGenerateMoreExcludesAndDedupes(t *testing.T) {
	advisor := &fakeAdvisor{batches: [][]stylist.Suggestion{
		{makeSuggestion("Smart Casual"), makeSuggestion("Streetwear")},
		// Remote ignores the exclusion list and repeats a style.
		{makeSuggestion("Streetwear"), makeSuggestion("Bohemian"), makeSuggestion("Bohemian")},
	}}
	m, _ := newTestManager(t, advisor, newFakeRenderer())

	ctx := context.Background()
	view, _ := m.Create(ctx, testPhoto(), "me.jpg")
	id := view.ID
	if _, err := m.RequestSuggestions(ctx, id); err != nil {
		t.Fatalf("suggest: %v", err)
	}

	view, err := m.GenerateMore(ctx, id)
	if err != nil {
		t.Fatalf("more: %v", err)
	}

	want := []string{"Smart Casual", "Streetwear", "Bohemian"}
	if len(view.Suggestions) != len(want) {
		t.Fatalf("got %d suggestions, want %d", len(view.Suggestions), len(want))
	}
	for i, name := range want {
		if view.Suggestions[i].StyleName != name {
			t.Errorf("suggestion %d = %q, want %q", i, view.Suggestions[i].StyleName, name)
		}
	}

	advisor.mu.Lock()
	defer advisor.mu.Unlock()
	if len(advisor.calls) != 2 {
		t.Fatalf("advisor called %d times, want 2", len(advisor.calls))
	}
	excluded := advisor.calls[1]
	if len(excluded) != 2 || excluded[0] != "Smart Casual" || excluded[1] != "Streetwear" {
		t.Errorf("exclusions = %v", excluded)
	}
}

func TestGenerateMoreRejectsConcurrentRequests(t *testing.T) {
	advisor := &fakeAdvisor{batches: [][]stylist.Suggestion{
		{makeSuggestion("Smart Casual")},
	}}
	m, _ := newTestManager(t, advisor, newFakeRenderer())

	ctx := context.Background()
	view, _ := m.Create(ctx, testPhoto(), "me.jpg")
	id := view.ID
	if _, err := m.RequestSuggestions(ctx, id); err != nil {
		t.Fatalf("suggest: %v", err)
	}

	// Mark the session busy as the fetch would.
	m.mu.Lock()
	m.sessions[id].generatingMore = true
	m.mu.Unlock()

	if _, err := m.GenerateMore(ctx, id); !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
}

func TestFeedbackToggleAndPersistence(t *testing.T) {
	advisor := &fakeAdvisor{batches: [][]stylist.Suggestion{
		{makeSuggestion("Smart Casual")},
	}}
	m, prefs := newTestManager(t, advisor, newFakeRenderer())

	ctx := context.Background()
	view, _ := m.Create(ctx, testPhoto(), "me.jpg")
	id := view.ID
	if _, err := m.RequestSuggestions(ctx, id); err != nil {
		t.Fatalf("suggest: %v", err)
	}

	view, err := m.Feedback(ctx, id, "Smart Casual", stylist.FeedbackLike)
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}
	s, _ := suggestionByName(view, "Smart Casual")
	if s.Feedback != stylist.FeedbackLike {
		t.Fatalf("feedback = %q, want like", s.Feedback)
	}
	records := prefs.LoadFeedback(ctx)
	if len(records) != 1 || records[0].Feedback != stylist.FeedbackLike {
		t.Fatalf("records = %+v", records)
	}

	// Same verdict again clears back to neutral and drops the record.
	view, err = m.Feedback(ctx, id, "Smart Casual", stylist.FeedbackLike)
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}
	s, _ = suggestionByName(view, "Smart Casual")
	if s.Feedback != "" {
		t.Fatalf("feedback = %q, want neutral", s.Feedback)
	}
	if records := prefs.LoadFeedback(ctx); len(records) != 0 {
		t.Fatalf("records = %+v, want empty", records)
	}
}

func TestFeedbackSurvivesRegeneration(t *testing.T) {
	advisor := &fakeAdvisor{batches: [][]stylist.Suggestion{
		{makeSuggestion("Smart Casual")},
		{makeSuggestion("Smart Casual"), makeSuggestion("Bohemian")},
	}}
	m, _ := newTestManager(t, advisor, newFakeRenderer())

	ctx := context.Background()
	view, _ := m.Create(ctx, testPhoto(), "me.jpg")
	id := view.ID
	if _, err := m.RequestSuggestions(ctx, id); err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if _, err := m.Feedback(ctx, id, "Smart Casual", stylist.FeedbackDislike); err != nil {
		t.Fatalf("feedback: %v", err)
	}

	// A fresh batch containing the same style name carries the stored
	// verdict forward.
	view, err := m.RequestSuggestions(ctx, id)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	s, ok := suggestionByName(view, "Smart Casual")
	if !ok {
		t.Fatal("smart casual missing")
	}
	if s.Feedback != stylist.FeedbackDislike {
		t.Errorf("feedback = %q, want dislike", s.Feedback)
	}
}

func TestSavedMarkerReplaceAndClear(t *testing.T) {
	advisor := &fakeAdvisor{batches: [][]stylist.Suggestion{
		{makeSuggestion("Smart Casual"), makeSuggestion("Streetwear")},
	}}
	m, _ := newTestManager(t, advisor, newFakeRenderer())

	ctx := context.Background()
	view, _ := m.Create(ctx, testPhoto(), "me.jpg")
	id := view.ID
	if _, err := m.RequestSuggestions(ctx, id); err != nil {
		t.Fatalf("suggest: %v", err)
	}

	view, _ = m.ToggleSave(ctx, id, "Smart Casual")
	if view.Saved != "Smart Casual" {
		t.Fatalf("saved = %q", view.Saved)
	}
	view, _ = m.ToggleSave(ctx, id, "Streetwear")
	if view.Saved != "Streetwear" {
		t.Fatalf("saved = %q, want replacement", view.Saved)
	}
	view, _ = m.ToggleSave(ctx, id, "Streetwear")
	if view.Saved != "" {
		t.Fatalf("saved = %q, want cleared", view.Saved)
	}
}

func TestLikedSetToggles(t *testing.T) {
	advisor := &fakeAdvisor{batches: [][]stylist.Suggestion{
		{makeSuggestion("Smart Casual")},
	}}
	m, prefs := newTestManager(t, advisor, newFakeRenderer())

	ctx := context.Background()
	view, _ := m.Create(ctx, testPhoto(), "me.jpg")
	id := view.ID
	if _, err := m.RequestSuggestions(ctx, id); err != nil {
		t.Fatalf("suggest: %v", err)
	}

	view, _ = m.ToggleLike(ctx, id, "Smart Casual")
	if len(view.Liked) != 1 || view.Liked[0] != "Smart Casual" {
		t.Fatalf("liked = %v", view.Liked)
	}
	view, _ = m.ToggleLike(ctx, id, "Smart Casual")
	if len(view.Liked) != 0 {
		t.Fatalf("liked = %v, want empty", view.Liked)
	}

	// The set persists independently of any session.
	prefs.ToggleLiked(ctx, "Bohemian")
	view, _ = m.Snapshot(ctx, id)
	if len(view.Liked) != 1 || view.Liked[0] != "Bohemian" {
		t.Fatalf("liked = %v", view.Liked)
	}
}

func TestFilterIsNonDestructive(t *testing.T) {
	advisor := &fakeAdvisor{batches: [][]stylist.Suggestion{{
		makeSuggestion("Smart Casual"),
		makeSuggestion("Streetwear"),
		makeSuggestion("Bohemian"),
	}}}
	m, _ := newTestManager(t, advisor, newFakeRenderer())

	ctx := context.Background()
	view, _ := m.Create(ctx, testPhoto(), "me.jpg")
	id := view.ID
	if _, err := m.RequestSuggestions(ctx, id); err != nil {
		t.Fatalf("suggest: %v", err)
	}

	view, err := m.SetFilter(ctx, id, "STREET")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(view.Suggestions) != 1 || view.Suggestions[0].StyleName != "Streetwear" {
		t.Fatalf("filtered = %d suggestions", len(view.Suggestions))
	}
	if view.Total != 3 {
		t.Fatalf("total = %d, want 3", view.Total)
	}

	view, _ = m.SetFilter(ctx, id, "")
	if len(view.Suggestions) != 3 {
		t.Fatalf("got %d suggestions after clearing filter, want 3", len(view.Suggestions))
	}
	want := []string{"Smart Casual", "Streetwear", "Bohemian"}
	for i, name := range want {
		if view.Suggestions[i].StyleName != name {
			t.Errorf("suggestion %d = %q, want %q", i, view.Suggestions[i].StyleName, name)
		}
	}
}

func TestResetClearsSavedButKeepsLikedAndFeedback(t *testing.T) {
	advisor := &fakeAdvisor{batches: [][]stylist.Suggestion{
		{makeSuggestion("Smart Casual")},
	}}
	m, prefs := newTestManager(t, advisor, newFakeRenderer())

	ctx := context.Background()
	view, _ := m.Create(ctx, testPhoto(), "me.jpg")
	id := view.ID
	if _, err := m.RequestSuggestions(ctx, id); err != nil {
		t.Fatalf("suggest: %v", err)
	}
	_, _ = m.ToggleSave(ctx, id, "Smart Casual")
	_, _ = m.ToggleLike(ctx, id, "Smart Casual")
	_, _ = m.Feedback(ctx, id, "Smart Casual", stylist.FeedbackLike)

	view, err := m.Reset(ctx, id)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if view.Phase != PhaseIdle || view.HasPhoto || len(view.Suggestions) != 0 {
		t.Fatalf("view after reset = %+v", view)
	}
	if view.Saved != "" {
		t.Errorf("saved = %q, want cleared", view.Saved)
	}
	if len(view.Liked) != 1 {
		t.Errorf("liked = %v, want kept", view.Liked)
	}
	if records := prefs.LoadFeedback(ctx); len(records) != 1 {
		t.Errorf("feedback records = %+v, want kept", records)
	}
}

func TestStaleRenderCompletionIsDiscarded(t *testing.T) {
	advisor := &fakeAdvisor{batches: [][]stylist.Suggestion{
		{makeSuggestion("Smart Casual")},
		{makeSuggestion("Smart Casual")},
	}}
	renderer := newFakeRenderer()
	m, _ := newTestManager(t, advisor, renderer)

	ctx := context.Background()
	view, _ := m.Create(ctx, testPhoto(), "me.jpg")
	id := view.ID
	if _, err := m.RequestSuggestions(ctx, id); err != nil {
		t.Fatalf("suggest: %v", err)
	}

	// Swap the photo while the first render is still in flight; its
	// eventual completion belongs to the old generation.
	if _, err := m.SelectImage(ctx, id, testPhoto(), "other.jpg"); err != nil {
		t.Fatalf("select: %v", err)
	}
	renderer.Release("Smart Casual", "data:image/png;base64,b2xk")

	// Give the stale goroutine a chance to run to completion.
	time.Sleep(50 * time.Millisecond)

	view, _ = m.Snapshot(ctx, id)
	if len(view.Suggestions) != 0 {
		t.Fatalf("suggestions after photo swap = %d, want 0", len(view.Suggestions))
	}

	// The fresh batch for the new photo starts pending; the stale data
	// URI never leaks in. The gate for the style is already open, so
	// the new render finishes with the same stored result, which is
	// fine: it carries the new generation.
	view, err := m.RequestSuggestions(ctx, id)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	waitFor(t, func() bool {
		v, _ := m.Snapshot(ctx, id)
		s, _ := suggestionByName(v, "Smart Casual")
		return s.ImageStatus == stylist.ImageStatusReady
	})
}

func TestPhotoSwapSweepsTaskRegistry(t *testing.T) {
	advisor := &fakeAdvisor{batches: [][]stylist.Suggestion{
		{makeSuggestion("Smart Casual")},
	}}
	renderer := newFakeRenderer()
	m, _ := newTestManager(t, advisor, renderer)

	ctx := context.Background()
	view, _ := m.Create(ctx, testPhoto(), "me.jpg")
	id := view.ID
	if _, err := m.RequestSuggestions(ctx, id); err != nil {
		t.Fatalf("suggest: %v", err)
	}

	m.mu.Lock()
	inFlight := len(m.sessions[id].tasks)
	m.mu.Unlock()
	if inFlight != 1 {
		t.Fatalf("tasks in flight = %d, want 1", inFlight)
	}

	// Renders are not aborted by a photo swap, but their registry
	// entries must not outlive the generation they belong to.
	if _, err := m.SelectImage(ctx, id, testPhoto(), "other.jpg"); err != nil {
		t.Fatalf("select: %v", err)
	}
	m.mu.Lock()
	leftover := len(m.sessions[id].tasks)
	m.mu.Unlock()
	if leftover != 0 {
		t.Fatalf("tasks after photo swap = %d, want 0", leftover)
	}

	// The stale completion must not re-add or disturb anything.
	renderer.Release("Smart Casual", "data:image/png;base64,aGk=")
	time.Sleep(50 * time.Millisecond)
	m.mu.Lock()
	leftover = len(m.sessions[id].tasks)
	m.mu.Unlock()
	if leftover != 0 {
		t.Fatalf("tasks after stale completion = %d, want 0", leftover)
	}
}

func TestRequestSuggestionsWithoutPhoto(t *testing.T) {
	m, _ := newTestManager(t, &fakeAdvisor{}, newFakeRenderer())

	ctx := context.Background()
	view, _ := m.Create(ctx, testPhoto(), "me.jpg")
	id := view.ID
	if _, err := m.Reset(ctx, id); err != nil {
		t.Fatalf("reset: %v", err)
	}

	view, err := m.RequestSuggestions(ctx, id)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if view.Error == "" {
		t.Fatal("expected an error message without a photo")
	}
	if view.Phase != PhaseIdle {
		t.Errorf("phase = %q, want idle", view.Phase)
	}
}

func TestUnknownSession(t *testing.T) {
	m, _ := newTestManager(t, &fakeAdvisor{}, newFakeRenderer())
	if _, err := m.Snapshot(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
