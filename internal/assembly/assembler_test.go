package assembly

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/isocatalog/internal/catalog"
	"github.com/JakeFAU/isocatalog/internal/fetcher"
	"github.com/JakeFAU/isocatalog/internal/hash/sha256"
	"github.com/JakeFAU/isocatalog/internal/linkcheck"
	"github.com/JakeFAU/isocatalog/internal/policy/admission"
	"github.com/JakeFAU/isocatalog/internal/progress"
	"github.com/JakeFAU/isocatalog/internal/sources"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) stages(source string) []progress.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []progress.Stage
	for _, evt := range e.events {
		if evt.Source == source {
			out = append(out, evt.Stage)
		}
	}
	return out
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func (c fixedClock) Since(t time.Time) time.Duration { return c.now.Sub(t) }

// elapsedClock reports the same elapsed time for every measurement.
type elapsedClock struct {
	fixedClock
	elapsed time.Duration
}

func (c elapsedClock) Since(time.Time) time.Duration { return c.elapsed }

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// statusTransport answers every request with the status mapped to its URL,
// 404 when unmapped.
func statusTransport(statuses map[string]int) http.RoundTripper {
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		status, ok := statuses[req.URL.String()]
		if !ok {
			status = http.StatusNotFound
		}
		return &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(strings.NewReader("")),
			Header:     make(http.Header),
			Request:    req,
		}, nil
	})
}

func newValidator(t *testing.T, statuses map[string]int) *linkcheck.Validator {
	t.Helper()
	gov, err := admission.NewGovernor(admission.Config{GlobalPermits: 8}, nil)
	require.NoError(t, err)
	client := fetcher.New(fetcher.Config{
		Timeout:     time.Second,
		MaxRetries:  1,
		BackoffBase: time.Millisecond,
		BackoffMax:  time.Millisecond,
	}, gov, nil, fetcher.WithTransport(statusTransport(statuses)))
	v, err := linkcheck.New(client, linkcheck.Config{}, nil)
	require.NoError(t, err)
	return v
}

func iso(release, edition, url string) catalog.CandidateRecord {
	return catalog.CandidateRecord{
		Release: release,
		Edition: edition,
		Arch:    catalog.ArchX86_64,
		ISO:     []catalog.Source{catalog.WebSource(url, "", catalog.ArchiveNone)},
	}
}

func staticSource(name string, recs []catalog.CandidateRecord, err error) sources.Generator {
	return sources.NewFunc(catalog.SourceInfo{Name: name, DisplayName: strings.ToUpper(name)},
		func(context.Context) ([]catalog.CandidateRecord, error) {
			return recs, err
		})
}

func testRegistry() []sources.Generator {
	return []sources.Generator{
		staticSource("zorin", []catalog.CandidateRecord{
			iso("17", "core", "https://mirror.example/zorin-17-core.iso"),
			iso("17", "lite", "https://mirror.example/zorin-17-lite.iso"),
		}, nil),
		staticSource("broken", nil, errors.New("index moved")),
		staticSource("empty", nil, nil),
		staticSource("dead", []catalog.CandidateRecord{
			iso("1", "", "https://dead.example/1.iso"),
		}, nil),
		staticSource("alpine", []catalog.CandidateRecord{
			iso("3.20", "", "https://alpine.example/3.20.iso"),
			iso("3.19", "", "https://alpine.example/3.19.iso"),
			iso("3.18", "", "/relative.iso"),
		}, nil),
	}
}

var testStatuses = map[string]int{
	"https://mirror.example/zorin-17-core.iso": http.StatusOK,
	"https://mirror.example/zorin-17-lite.iso": http.StatusTooManyRequests,
	"https://alpine.example/3.20.iso":          http.StatusOK,
	"https://alpine.example/3.19.iso":          http.StatusGone,
}

func TestBuildAllKeepsOnlyConfirmedSourcesInRegistrationOrder(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	a := New(Config{RunID: uuid.New()}, newValidator(t, testStatuses), emitter, fixedClock{now: time.Unix(100, 0)}, nil)

	entries := a.BuildAll(context.Background(), testRegistry())
	require.Len(t, entries, 2)

	require.Equal(t, "zorin", entries[0].Name)
	require.Equal(t, "ZORIN", entries[0].DisplayName)
	require.Len(t, entries[0].Releases, 2)
	require.Equal(t, "core", entries[0].Releases[0].Edition)
	require.Equal(t, "lite", entries[0].Releases[1].Edition)

	require.Equal(t, "alpine", entries[1].Name)
	require.Len(t, entries[1].Releases, 1)
	require.Equal(t, "3.20", entries[1].Releases[0].Release)

	for _, e := range entries {
		require.NotEmpty(t, e.Releases)
	}
}

func TestBuildAllTimesRunWithClock(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	clk := elapsedClock{fixedClock: fixedClock{now: time.Unix(100, 0)}, elapsed: 3 * time.Second}
	a := New(Config{RunID: uuid.New()}, newValidator(t, testStatuses), emitter, clk, nil)

	a.BuildAll(context.Background(), testRegistry())

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	var done []progress.Event
	for _, evt := range emitter.events {
		if evt.Stage == progress.StageRunDone {
			done = append(done, evt)
		}
	}
	require.Len(t, done, 1)
	require.Equal(t, 3*time.Second, done[0].Dur)
}

func TestBuildEntryLogsDroppedRecordsWithReason(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	a := New(Config{RunID: uuid.New()}, newValidator(t, testStatuses), nil, nil, zap.New(core))

	_, ok := a.BuildEntry(context.Background(), testRegistry()[4])
	require.True(t, ok)

	removed := logs.FilterMessage("Removing record").All()
	require.Len(t, removed, 2)
	reasons := map[string]string{}
	for _, entry := range removed {
		fields := entry.ContextMap()
		reasons[fields["release"].(string)] = fields["reason"].(string)
		require.Equal(t, "alpine", fields["source"])
		require.Equal(t, "x86_64", fields["arch"])
	}
	require.Equal(t, map[string]string{
		"3.18": progress.ReasonMalformed,
		"3.19": progress.ReasonUnresolvable,
	}, reasons)
}

func TestBuildEntryDropsFailedEmptyAndDeadSources(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	emitter := &recordingEmitter{}
	a := New(Config{RunID: uuid.New()}, newValidator(t, testStatuses), emitter, nil, zap.New(core))
	gens := testRegistry()

	for _, gen := range []sources.Generator{gens[1], gens[2], gens[3]} {
		_, ok := a.BuildEntry(context.Background(), gen)
		require.False(t, ok, gen.Info().Name)
	}

	require.Equal(t, 1, logs.FilterMessage("Failed to generate").Len())
	require.Equal(t, 1, logs.FilterMessage("No releases found").Len())
	require.Equal(t, 1, logs.FilterMessage("No valid releases").Len())

	require.Equal(t, []progress.Stage{progress.StageSourceStart, progress.StageSourceDropped}, emitter.stages("broken"))
	require.Equal(t, []progress.Stage{
		progress.StageSourceStart,
		progress.StageSourceGenerated,
		progress.StageRecordDropped,
		progress.StageSourceDropped,
	}, emitter.stages("dead"))
}

func TestBuildEntryEmitsValidEvents(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	a := New(Config{RunID: uuid.New()}, newValidator(t, testStatuses), emitter, fixedClock{now: time.Unix(5, 0)}, nil)
	a.BuildAll(context.Background(), testRegistry()[:1])

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	require.NotEmpty(t, emitter.events)
	for _, evt := range emitter.events {
		require.NoError(t, evt.Validate(), evt.Stage)
	}
	require.Equal(t, progress.StageRunStart, emitter.events[0].Stage)
	require.Equal(t, progress.StageRunDone, emitter.events[len(emitter.events)-1].Stage)
	require.Equal(t, 1, emitter.events[len(emitter.events)-1].Count)
}

func TestReplayIsIdempotent(t *testing.T) {
	t.Parallel()

	hasher := sha256.New()
	var fingerprints []string
	for range 3 {
		a := New(Config{RunID: uuid.New(), SourceConcurrency: 2}, newValidator(t, testStatuses), nil, nil, nil)
		entries := a.BuildAll(context.Background(), testRegistry())
		catalog.Sort(entries)
		fp, err := catalog.Fingerprint(entries, hasher)
		require.NoError(t, err)
		fingerprints = append(fingerprints, fp)
	}
	require.Equal(t, fingerprints[0], fingerprints[1])
	require.Equal(t, fingerprints[0], fingerprints[2])
}
