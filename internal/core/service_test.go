package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/sheetfill/internal/audit"
)

// fakeCodec serves grids by file name and encodes export sets as
// "<format>:<rows>".
type fakeCodec struct {
	grids   map[string]Grid
	block     chan struct{} // when set, Decode waits on it
	ignoreCtx bool          // wait on block even after ctx is done
	started   chan struct{}
}

func (c *fakeCodec) Decode(ctx context.Context, fileName string, _ io.Reader) (Grid, error) {
	if c.started != nil {
		c.started <- struct{}{}
	}
	if c.block != nil && c.ignoreCtx {
		<-c.block
	} else if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fileName == "panic.xlsx" {
		panic("corrupt zip")
	}
	grid, ok := c.grids[fileName]
	if !ok {
		return nil, errors.New("unsupported file format")
	}
	return grid, nil
}

func (c *fakeCodec) Encode(w io.Writer, format string, set *ExportSet) error {
	_, err := fmt.Fprintf(w, "%s:%d", format, len(set.Rows))
	return err
}

type fakeRecorder struct {
	mu       sync.Mutex
	loaded   int
	failed   []string
	filled   int
	exported map[string]int
	refused  int
	active   int
}

func (r *fakeRecorder) DatasetLoaded(int, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded++
}

func (r *fakeRecorder) DecodeFailed(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, reason)
}

func (r *fakeRecorder) Reconciled(filled int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filled += filled
}

func (r *fakeRecorder) Exported(mode string, rows int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exported == nil {
		r.exported = make(map[string]int)
	}
	r.exported[mode] += rows
}

func (r *fakeRecorder) ExportRefused(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refused++
}

func (r *fakeRecorder) SessionsActive(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = n
}

func newTestService(t *testing.T, opts Options) (*Service, *fakeCodec, *audit.MemoryStore, *fakeRecorder) {
	t.Helper()
	codec := &fakeCodec{grids: map[string]Grid{
		"people.xlsx": peopleGrid(),
		"done.csv":    {{txt("A")}, {txt("1")}},
		"empty.csv":   {},
		"dup.csv":     {{txt("A"), txt("A")}},
	}}
	store := audit.NewMemoryStore()
	rec := &fakeRecorder{}
	return NewService(codec, store, rec, opts), codec, store, rec
}

func loadPeople(t *testing.T, s *Service) SessionInfo {
	t.Helper()
	info, err := s.Load(context.Background(), "people.xlsx", strings.NewReader(""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return info
}

func auditActions(t *testing.T, store audit.Store, sessionID string) []audit.Action {
	t.Helper()
	entries, err := store.List(context.Background(), audit.Filter{SessionID: sessionID})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	actions := make([]audit.Action, len(entries))
	for i, e := range entries {
		actions[i] = e.Action
	}
	return actions
}

func TestService_Scenario(t *testing.T) {
	s, _, store, rec := newTestService(t, Options{})
	ctx := WithClient(context.Background(), Client{IP: "10.0.0.1"})

	info := loadPeople(t, s)
	if info.Name != "people" || info.State != StateLoaded || info.Records != 2 {
		t.Fatalf("info = %+v", info)
	}
	if info.Stats.MissingRows != 2 || info.Stats.MissingPercent != 100 {
		t.Errorf("initial stats = %+v", info.Stats)
	}

	out, err := s.Reconcile(ctx, info.ID, 1, map[string]string{"Age": "25"})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if out.Stats.MissingRows != 1 || out.Stats.MissingPercent != 50 {
		t.Errorf("stats after reconcile = %+v", out.Stats)
	}

	file, err := s.Export(ctx, info.ID, ExportIncomplete, "csv")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	want := ExportFile{Name: "people_missing.csv", Format: "csv", Rows: 1, Data: []byte("csv:1")}
	if diff := cmp.Diff(want, file); diff != "" {
		t.Errorf("export mismatch (-want +got):\n%s", diff)
	}

	got, err := s.Session(info.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != StateReconciling {
		t.Errorf("state after export = %v, want reconciling", got.State)
	}

	wantActions := []audit.Action{audit.ActionExport, audit.ActionCellFill, audit.ActionDatasetLoad}
	if diff := cmp.Diff(wantActions, auditActions(t, store, info.ID)); diff != "" {
		t.Errorf("audit actions (-want +got):\n%s", diff)
	}

	fills, err := store.List(context.Background(), audit.Filter{SessionID: info.ID, Action: audit.ActionCellFill})
	if err != nil || len(fills) != 1 {
		t.Fatalf("cell fills = %v, %v", fills, err)
	}
	fill := fills[0]
	if fill.Column != "Age" || fill.NewValue != "25" || fill.OldValue != "" || *fill.RecordID != 1 || fill.IPAddress != "10.0.0.1" {
		t.Errorf("cell fill entry = %+v", fill)
	}

	if rec.loaded != 1 || rec.filled != 1 || rec.exported["incomplete-only"] != 1 || rec.active != 1 {
		t.Errorf("recorder = %+v", rec)
	}
}

func TestService_ExportEmptyResult(t *testing.T) {
	s, _, store, rec := newTestService(t, Options{})
	info, err := s.Load(context.Background(), "done.csv", strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.Export(context.Background(), info.ID, ExportIncomplete, "xlsx")
	if !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("err = %v, want ErrEmptyResult", err)
	}
	if rec.refused != 1 {
		t.Errorf("refused = %d, want 1", rec.refused)
	}

	got, _ := s.Session(info.ID)
	if got.State != StateLoaded {
		t.Errorf("state = %v, want loaded", got.State)
	}
	for _, a := range auditActions(t, store, info.ID) {
		if a == audit.ActionExport {
			t.Error("refused export was audited")
		}
	}
}

func TestService_LoadErrors(t *testing.T) {
	tests := []struct {
		file   string
		want   error
		reason string
	}{
		{"empty.csv", ErrEmptyDataset, "dataset"},
		{"dup.csv", ErrDuplicateHeader, "dataset"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			s, _, _, rec := newTestService(t, Options{})
			_, err := s.Load(context.Background(), tt.file, strings.NewReader(""))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if diff := cmp.Diff([]string{tt.reason}, rec.failed); diff != "" {
				t.Errorf("failures (-want +got):\n%s", diff)
			}
			if s.SessionCount() != 0 {
				t.Error("failed load left a session behind")
			}
		})
	}

	s, _, _, _ := newTestService(t, Options{})
	if _, err := s.Load(context.Background(), "nope.pdf", strings.NewReader("")); err == nil || !strings.Contains(err.Error(), "unsupported file format") {
		t.Errorf("unknown file: err = %v", err)
	}
	if _, err := s.Load(context.Background(), "panic.xlsx", strings.NewReader("")); !errors.Is(err, ErrInvalidSpreadsheet) {
		t.Errorf("panicking decoder: err = %v, want ErrInvalidSpreadsheet", err)
	}
	if err := s.WaitForDecodes(context.Background()); err != nil {
		t.Errorf("slot held after decoder panic: %v", err)
	}
}

func TestService_DecodeTimeout(t *testing.T) {
	s, codec, _, _ := newTestService(t, Options{DecodeTimeout: 20 * time.Millisecond})
	codec.block = make(chan struct{})
	defer close(codec.block)

	_, err := s.Load(context.Background(), "people.xlsx", strings.NewReader(""))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	if err := s.WaitForDecodes(context.Background()); err != nil {
		t.Fatalf("WaitForDecodes: %v", err)
	}
	if s.LimiterStatus().Active != 0 {
		t.Error("decode slot not released")
	}
}

func TestService_AbandonedDecodeKeepsSlot(t *testing.T) {
	s, codec, _, rec := newTestService(t, Options{
		DecodeTimeout:        20 * time.Millisecond,
		MaxConcurrentDecodes: 1,
		MaxDecodeWait:        20 * time.Millisecond,
	})
	codec.block = make(chan struct{})
	codec.ignoreCtx = true

	_, err := s.Load(context.Background(), "people.xlsx", strings.NewReader(""))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}

	// The codec is still running, so its slot is still taken.
	if got := s.LimiterStatus(); got.Active != 1 || got.Available != 0 {
		t.Errorf("status while codec runs = %+v", got)
	}
	short, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := s.WaitForDecodes(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForDecodes = %v, want DeadlineExceeded", err)
	}
	if _, err := s.Load(context.Background(), "people.xlsx", strings.NewReader("")); !errors.Is(err, ErrTooManyDecodes) {
		t.Errorf("load while codec runs = %v, want ErrTooManyDecodes", err)
	}

	close(codec.block)
	if err := s.WaitForDecodes(context.Background()); err != nil {
		t.Fatalf("WaitForDecodes after codec returned: %v", err)
	}
	if got := s.LimiterStatus().Available; got != 1 {
		t.Errorf("Available = %d, want 1", got)
	}
	if s.SessionCount() != 0 {
		t.Error("abandoned decode created a session")
	}
	if diff := cmp.Diff([]string{"decode", "busy"}, rec.failed); diff != "" {
		t.Errorf("failures (-want +got):\n%s", diff)
	}
}

func TestService_DecodeSlotsBusy(t *testing.T) {
	s, codec, _, rec := newTestService(t, Options{MaxConcurrentDecodes: 1, MaxDecodeWait: 20 * time.Millisecond})
	codec.block = make(chan struct{})
	codec.started = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := s.Load(context.Background(), "people.xlsx", strings.NewReader(""))
		done <- err
	}()
	<-codec.started

	if _, err := s.Load(context.Background(), "people.xlsx", strings.NewReader("")); !errors.Is(err, ErrTooManyDecodes) {
		t.Errorf("second load err = %v, want ErrTooManyDecodes", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := s.WaitForDecodes(ctx); err == nil {
		t.Error("WaitForDecodes returned while a decode was running")
	}

	close(codec.block)
	if err := <-done; err != nil {
		t.Fatalf("first load: %v", err)
	}
	if err := s.WaitForDecodes(context.Background()); err != nil {
		t.Errorf("WaitForDecodes after drain: %v", err)
	}
	if diff := cmp.Diff([]string{"busy"}, rec.failed); diff != "" {
		t.Errorf("failures (-want +got):\n%s", diff)
	}
}

func TestService_MaxSessions(t *testing.T) {
	s, _, _, _ := newTestService(t, Options{MaxSessions: 1})
	loadPeople(t, s)

	if _, err := s.Load(context.Background(), "people.xlsx", strings.NewReader("")); !errors.Is(err, ErrTooManySessions) {
		t.Errorf("err = %v, want ErrTooManySessions", err)
	}
}

func TestService_MaxSessionsConcurrentLoads(t *testing.T) {
	s, codec, _, _ := newTestService(t, Options{MaxSessions: 1, MaxConcurrentDecodes: 2})
	codec.block = make(chan struct{})
	codec.started = make(chan struct{}, 2)

	errs := make(chan error, 2)
	for range 2 {
		go func() {
			_, err := s.Load(context.Background(), "people.xlsx", strings.NewReader(""))
			errs <- err
		}()
	}
	// Both loads are past the up-front check before either finishes.
	<-codec.started
	<-codec.started
	close(codec.block)

	var ok, full int
	for range 2 {
		switch err := <-errs; {
		case err == nil:
			ok++
		case errors.Is(err, ErrTooManySessions):
			full++
		default:
			t.Errorf("unexpected err: %v", err)
		}
	}
	if ok != 1 || full != 1 {
		t.Errorf("ok = %d, full = %d; want 1 and 1", ok, full)
	}
	if got := s.SessionCount(); got != 1 {
		t.Errorf("SessionCount = %d, want 1", got)
	}
}

func TestService_SessionNotFound(t *testing.T) {
	s, _, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	checks := map[string]error{}
	_, checks["Session"] = s.Session("x")
	_, checks["Stats"] = s.Stats("x")
	_, checks["Records"] = s.Records("x", "")
	_, checks["Record"] = s.Record("x", 0)
	_, checks["Reconcile"] = s.Reconcile(ctx, "x", 0, nil)
	_, checks["Heatmap"] = s.Heatmap("x", 0)
	_, checks["Report"] = s.Report("x")
	_, checks["Export"] = s.Export(ctx, "x", ExportAll, "csv")
	checks["Discard"] = s.Discard(ctx, "x")

	for op, err := range checks {
		if !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("%s: err = %v, want ErrSessionNotFound", op, err)
		}
	}
}

func TestService_Discard(t *testing.T) {
	s, _, store, rec := newTestService(t, Options{})
	info := loadPeople(t, s)

	if err := s.Discard(context.Background(), info.ID); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if _, err := s.Stats(info.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Stats after discard: err = %v", err)
	}
	if s.SessionCount() != 0 || rec.active != 0 {
		t.Errorf("sessions = %d, gauge = %d", s.SessionCount(), rec.active)
	}
	if got := auditActions(t, store, info.ID); got[0] != audit.ActionSessionDiscard {
		t.Errorf("latest audit action = %v", got[0])
	}
}

func TestService_RecordIsACopy(t *testing.T) {
	s, _, _, _ := newTestService(t, Options{})
	info := loadPeople(t, s)

	detail, err := s.Record(info.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"City"}, detail.Summary.MissingFields); diff != "" {
		t.Errorf("missing fields (-want +got):\n%s", diff)
	}

	detail.Record.Fields["City"] = txt("Paris")
	st, _ := s.Stats(info.ID)
	if st.MissingRows != 2 {
		t.Error("mutating the returned record changed the store")
	}

	if _, err := s.Record(info.ID, 5); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestService_SessionsOrdered(t *testing.T) {
	s, _, _, _ := newTestService(t, Options{})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	first := loadPeople(t, s)
	now = now.Add(time.Minute)
	second := loadPeople(t, s)

	var ids []string
	for _, info := range s.Sessions() {
		ids = append(ids, info.ID)
	}
	if diff := cmp.Diff([]string{first.ID, second.ID}, ids); diff != "" {
		t.Errorf("session order (-want +got):\n%s", diff)
	}
}

func TestService_Sweep(t *testing.T) {
	s, _, store, _ := newTestService(t, Options{})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	idle := loadPeople(t, s)
	busy := loadPeople(t, s)

	now = now.Add(90 * time.Minute)
	if _, err := s.Stats(busy.ID); err != nil {
		t.Fatal(err)
	}

	now = now.Add(time.Hour)
	s.Sweep(context.Background(), SweepConfig{IdleTTL: 2 * time.Hour})

	if _, err := s.Session(idle.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("idle session survived: %v", err)
	}
	if _, err := s.Session(busy.ID); err != nil {
		t.Errorf("recently used session expired: %v", err)
	}
	if got := auditActions(t, store, idle.ID); got[0] != audit.ActionSessionExpire {
		t.Errorf("latest audit action for idle session = %v", got[0])
	}
}

func TestService_PurgeAudit(t *testing.T) {
	s, _, store, _ := newTestService(t, Options{})
	info := loadPeople(t, s)

	n, err := s.PurgeAudit(context.Background(), time.Now().Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("PurgeAudit = %d, %v; want 1", n, err)
	}
	if got := auditActions(t, store, info.ID); len(got) != 0 {
		t.Errorf("entries left: %v", got)
	}
}

func TestStartSessionSweeper_StopsOnCancel(t *testing.T) {
	s, _, _, _ := newTestService(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.StartSessionSweeper(ctx, SweepConfig{Interval: time.Millisecond})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSessionStateText(t *testing.T) {
	for _, st := range []SessionState{StateEmpty, StateLoaded, StateReconciling, StateExporting} {
		text, err := st.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var got SessionState
		if err := got.UnmarshalText(text); err != nil || got != st {
			t.Errorf("round trip %v: got %v, %v", st, got, err)
		}
	}

	var st SessionState
	if err := st.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("UnmarshalText accepted an unknown state")
	}
}
