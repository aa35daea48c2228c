package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/JorgeF123/weather-dashboard/internal/client"
	"github.com/JorgeF123/weather-dashboard/internal/models"
	"github.com/JorgeF123/weather-dashboard/internal/session"
	"github.com/JorgeF123/weather-dashboard/internal/store"
	"github.com/JorgeF123/weather-dashboard/internal/validation"
)

type fakeFetcher struct {
	mu       sync.Mutex
	byCoords func(lat, lon float64) (models.WeatherRecord, error)
	calls    int
}

func (f *fakeFetcher) FetchByCoords(_ context.Context, lat, lon float64) (models.WeatherRecord, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.byCoords == nil {
		t := 60.0
		return models.WeatherRecord{Name: "Somewhere", TempF: &t, Condition: "Clear"}, nil
	}
	return f.byCoords(lat, lon)
}

func (f *fakeFetcher) FetchByName(context.Context, string) (models.WeatherRecord, error) {
	return models.WeatherRecord{}, errors.New("unexpected FetchByName")
}

func (f *fakeFetcher) FetchNearby(context.Context, float64, float64, string) ([]models.NearbyCityEntry, error) {
	return nil, errors.New("unexpected FetchNearby")
}

func (f *fakeFetcher) FetchForecast(context.Context, string, int) ([]models.ForecastDay, error) {
	return nil, errors.New("unexpected FetchForecast")
}

var _ client.Fetcher = (*fakeFetcher)(nil)

func ptr(v float64) *float64 { return &v }

func newTestLedger(fetch client.Fetcher) (*Ledger, *session.Session) {
	sess := session.New()
	return New(store.NewMemoryStore(), fetch, sess, nil), sess
}

// TestSave_Validation covers the refusal cases: empty name and missing
// coordinates.
func TestSave_Validation(t *testing.T) {
	l, _ := newTestLedger(&fakeFetcher{})
	ctx := context.Background()

	if _, err := l.Save(ctx, "", ptr(1), ptr(2)); !validation.IsValidationError(err) {
		t.Errorf("Save(empty name) error = %v, want validation error", err)
	}
	if _, err := l.Save(ctx, "Springfield", nil, nil); !validation.IsValidationError(err) {
		t.Errorf("Save(nil coords) error = %v, want validation error", err)
	}
	if _, err := l.Save(ctx, "Springfield", ptr(37.2), nil); !validation.IsValidationError(err) {
		t.Errorf("Save(nil lon) error = %v, want validation error", err)
	}
}

// TestSave_SucceedsAndReloads verifies the happy path: the place lands in
// the store and the reloaded view contains exactly one entry by that name.
func TestSave_SucceedsAndReloads(t *testing.T) {
	l, sess := newTestLedger(&fakeFetcher{})
	ctx := context.Background()

	place, err := l.Save(ctx, "Springfield", ptr(37.2), ptr(-93.3))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if place.ID == "" {
		t.Error("Save() returned empty ID")
	}

	view := sess.Saved()
	count := 0
	for _, p := range view {
		if p.Name == "Springfield" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("saved view contains %d entries named Springfield, want 1", count)
	}
	if !l.IsSaved("Springfield") {
		t.Error("IsSaved(Springfield) = false after save")
	}
	if l.IsSaved("springfield") {
		t.Error("IsSaved(springfield) = true, want exact-match semantics")
	}
}

// TestSave_DuplicateName rejects a second save under the same exact name.
func TestSave_DuplicateName(t *testing.T) {
	l, _ := newTestLedger(&fakeFetcher{})
	ctx := context.Background()

	if _, err := l.Save(ctx, "Brentwood", ptr(37.93), ptr(-121.69)); err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	_, err := l.Save(ctx, "Brentwood", ptr(36.03), ptr(-86.78))
	if !errors.Is(err, ErrAlreadySaved) {
		t.Fatalf("second Save() error = %v, want ErrAlreadySaved", err)
	}
}

// TestReload_PerEntryIsolation is the ledger's central contract: entry A's
// enrichment fails, entry B's succeeds, and both stay on the list.
func TestReload_PerEntryIsolation(t *testing.T) {
	fetch := &fakeFetcher{
		byCoords: func(lat, lon float64) (models.WeatherRecord, error) {
			if lat == 37.2 {
				return models.WeatherRecord{}, errors.New("provider down")
			}
			temp := 61.0
			return models.WeatherRecord{Name: "B-Town", TempF: &temp, Condition: "Clear"}, nil
		},
	}
	st := store.NewMemoryStore()
	ctx := context.Background()
	_ = st.Add(ctx, models.SavedPlace{ID: "a", Name: "A-Town", Lat: 37.2, Lon: -93.3})
	_ = st.Add(ctx, models.SavedPlace{ID: "b", Name: "B-Town", Lat: 40.7, Lon: -74.0})

	l := New(st, fetch, session.New(), nil)
	got, err := l.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Reload() len = %d, want 2 (failed entry must not be dropped)", len(got))
	}

	a, b := got[0], got[1]
	if a.Err == "" || a.Weather != nil {
		t.Errorf("entry A = %+v, want error marker and no weather", a)
	}
	if !strings.HasPrefix(a.Err, "Failed to fetch weather: ") {
		t.Errorf("entry A error = %q, want 'Failed to fetch weather: ' prefix", a.Err)
	}
	if b.Err != "" || b.Weather == nil {
		t.Errorf("entry B = %+v, want enriched weather and no error", b)
	}
}

type failingStore struct{}

func (failingStore) Add(context.Context, models.SavedPlace) error { return errors.New("store down") }
func (failingStore) List(context.Context) ([]models.SavedPlace, error) {
	return nil, errors.New("store down")
}
func (failingStore) Remove(context.Context, string) error { return errors.New("store down") }

// TestReload_WholeListFailureDegradesToEmpty: a store failure yields an empty
// list, not an error.
func TestReload_WholeListFailureDegradesToEmpty(t *testing.T) {
	l := New(failingStore{}, &fakeFetcher{}, session.New(), nil)

	got, err := l.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload() error = %v, want degraded empty list", err)
	}
	if len(got) != 0 {
		t.Errorf("Reload() len = %d, want 0", len(got))
	}
}

// TestDelete_RemovesAndReloads verifies delete plus reload-after-mutate.
func TestDelete_RemovesAndReloads(t *testing.T) {
	l, sess := newTestLedger(&fakeFetcher{})
	ctx := context.Background()

	place, err := l.Save(ctx, "Springfield", ptr(37.2), ptr(-93.3))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := l.Delete(ctx, place.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(sess.Saved()) != 0 {
		t.Errorf("saved view len = %d after delete, want 0", len(sess.Saved()))
	}

	if err := l.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrNotFound", err)
	}
}

// TestReload_CoalescesConcurrentCalls: a burst of reloads runs one
// enrichment pass, not one per caller.
func TestReload_CoalescesConcurrentCalls(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fetch := &fakeFetcher{
		byCoords: func(lat, lon float64) (models.WeatherRecord, error) {
			once.Do(func() { close(started) })
			<-release
			temp := 60.0
			return models.WeatherRecord{Name: "Town", TempF: &temp, Condition: "Clear"}, nil
		},
	}
	st := store.NewMemoryStore()
	ctx := context.Background()
	_ = st.Add(ctx, models.SavedPlace{ID: "a", Name: "Town", Lat: 37.2, Lon: -93.3})

	l := New(st, fetch, session.New(), nil)

	var wg, entered sync.WaitGroup
	results := make([]int, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		entered.Add(1)
		go func(i int) {
			defer wg.Done()
			entered.Done()
			got, err := l.Reload(ctx)
			if err != nil {
				t.Errorf("Reload() error = %v", err)
			}
			results[i] = len(got)
		}(i)
	}

	<-started
	entered.Wait()
	close(release)
	wg.Wait()

	for i, n := range results {
		if n != 1 {
			t.Errorf("caller %d got len %d, want 1", i, n)
		}
	}
	fetch.mu.Lock()
	calls := fetch.calls
	fetch.mu.Unlock()
	if calls >= 5 {
		t.Errorf("enrichment ran %d times for 5 concurrent reloads, want coalescing", calls)
	}
}
