package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetfill/internal/audit"
	"github.com/JonMunkholm/sheetfill/internal/logging"
)

// DefaultDecodeTimeout bounds a single file decode.
const DefaultDecodeTimeout = 10 * time.Minute

// Codec reads and writes spreadsheet files.
type Codec interface {
	// Decode returns the first sheet of the file as a grid.
	Decode(ctx context.Context, fileName string, r io.Reader) (Grid, error)
	// Encode writes set in the named format ("xlsx" or "csv").
	Encode(w io.Writer, format string, set *ExportSet) error
}

// Recorder receives operational measurements. A nil Recorder discards them.
type Recorder interface {
	DatasetLoaded(rows int, took time.Duration)
	DecodeFailed(reason string)
	Reconciled(filled int)
	Exported(mode string, rows int)
	ExportRefused(mode string)
	SessionsActive(n int)
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	MaxConcurrentDecodes int
	MaxDecodeWait        time.Duration
	DecodeTimeout        time.Duration
	MaxSessions          int // 0 means unlimited
}

// Service owns the loaded sessions and runs every operation on them.
type Service struct {
	codec    Codec
	audit    audit.Store
	recorder Recorder
	limiter  *DecodeLimiter
	opts     Options
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewService creates a Service. store and rec may be nil.
func NewService(codec Codec, store audit.Store, rec Recorder, opts Options) *Service {
	if opts.DecodeTimeout <= 0 {
		opts.DecodeTimeout = DefaultDecodeTimeout
	}
	if store == nil {
		store = audit.NewMemoryStore()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Service{
		codec:    codec,
		audit:    store,
		recorder: rec,
		limiter:  NewDecodeLimiter(opts.MaxConcurrentDecodes, opts.MaxDecodeWait),
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Load decodes a file into a new session. It is the only operation that
// waits on I/O: it takes a decode slot, then decodes under the decode
// timeout, giving up as soon as ctx is done.
func (s *Service) Load(ctx context.Context, fileName string, r io.Reader) (SessionInfo, error) {
	if s.atSessionCap() {
		return SessionInfo{}, ErrTooManySessions
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		s.recorder.DecodeFailed("busy")
		return SessionInfo{}, err
	}

	start := s.now()
	grid, err := s.decode(ctx, fileName, r)
	if err != nil {
		s.recorder.DecodeFailed("decode")
		return SessionInfo{}, err
	}

	ds, err := Load(DatasetBaseName(fileName), grid)
	if err != nil {
		s.recorder.DecodeFailed("dataset")
		return SessionInfo{}, fmt.Errorf("load %s: %w", fileName, err)
	}

	now := s.now()
	sess := newSession(uuid.New().String(), fileName, ds, now)

	// Other loads may have finished while this one was decoding.
	s.mu.Lock()
	if s.opts.MaxSessions > 0 && len(s.sessions) >= s.opts.MaxSessions {
		s.mu.Unlock()
		s.recorder.DecodeFailed("capacity")
		return SessionInfo{}, ErrTooManySessions
	}
	s.sessions[sess.ID] = sess
	active := len(s.sessions)
	s.mu.Unlock()

	s.recorder.DatasetLoaded(len(ds.Records), now.Sub(start))
	s.recorder.SessionsActive(active)

	s.logAudit(ctx, audit.Entry{
		SessionID:    sess.ID,
		Action:       audit.ActionDatasetLoad,
		Dataset:      fileName,
		RowsAffected: len(ds.Records),
	})

	logging.WithFields(ctx, "session_id", sess.ID, "file", fileName).Info("dataset loaded",
		"records", len(ds.Records),
		"columns", len(ds.Header),
		"duration_ms", now.Sub(start).Milliseconds(),
	)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.info(), nil
}

func (s *Service) atSessionCap() bool {
	return s.opts.MaxSessions > 0 && s.SessionCount() >= s.opts.MaxSessions
}

type decodeResult struct {
	grid Grid
	err  error
}

// decode runs the codec on its own goroutine. That goroutine owns the slot
// Load acquired and releases it only when the codec returns, so a codec
// that ignores ctx still counts against the limit after decode gives up.
func (s *Service) decode(ctx context.Context, fileName string, r io.Reader) (Grid, error) {
	decodeCtx, cancel := context.WithTimeout(ctx, s.opts.DecodeTimeout)
	defer cancel()

	done := make(chan decodeResult, 1)
	go func() {
		defer s.limiter.Release()
		defer func() {
			if p := recover(); p != nil {
				slog.Error("panic in decode", "file", fileName, "panic", p)
				done <- decodeResult{err: fmt.Errorf("%w: decoder failed: %v", ErrInvalidSpreadsheet, p)}
			}
		}()
		grid, err := s.codec.Decode(decodeCtx, fileName, r)
		done <- decodeResult{grid: grid, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("decode %s: %w", fileName, res.err)
		}
		return res.grid, nil
	case <-decodeCtx.Done():
		return nil, fmt.Errorf("decode %s: %w", fileName, decodeCtx.Err())
	}
}

// Sessions lists open sessions, oldest first.
func (s *Service) Sessions() []SessionInfo {
	s.mu.RLock()
	list := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, sess)
	}
	s.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(list))
	for _, sess := range list {
		sess.mu.Lock()
		if sess.dataset != nil {
			infos = append(infos, sess.info())
		}
		sess.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// SessionCount returns how many sessions are open.
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Session returns a snapshot of one session.
func (s *Service) Session(id string) (SessionInfo, error) {
	var info SessionInfo
	err := s.withSession(id, func(sess *Session) error {
		info = sess.info()
		return nil
	})
	return info, err
}

// Discard closes a session and forgets its dataset.
func (s *Service) Discard(ctx context.Context, id string) error {
	sess, err := s.remove(id)
	if err != nil {
		return err
	}
	sess.close()

	s.logAudit(ctx, audit.Entry{
		SessionID: id,
		Action:    audit.ActionSessionDiscard,
		Dataset:   sess.FileName,
	})
	slog.Info("session discarded", "session_id", id)
	return nil
}

// Stats recomputes the completeness snapshot of a session.
func (s *Service) Stats(id string) (Stats, error) {
	var stats Stats
	err := s.withSession(id, func(sess *Session) error {
		stats = ComputeStats(sess.dataset)
		return nil
	})
	return stats, err
}

// Records returns summaries of the records matching term.
func (s *Service) Records(id, term string) ([]RecordSummary, error) {
	var out []RecordSummary
	err := s.withSession(id, func(sess *Session) error {
		out = SearchRecords(sess.dataset, term)
		return nil
	})
	return out, err
}

// RecordDetail is a single record with its edit targets.
type RecordDetail struct {
	Columns []string      `json:"columns"`
	Record  Record        `json:"record"`
	Summary RecordSummary `json:"summary"`
}

// Record returns one record. The returned copy does not alias the store.
func (s *Service) Record(id string, recordID int) (RecordDetail, error) {
	var detail RecordDetail
	err := s.withSession(id, func(sess *Session) error {
		ds := sess.dataset
		rec := ds.Record(recordID)
		if rec == nil {
			return fmt.Errorf("%w: id %d", ErrRecordNotFound, recordID)
		}
		nameCol, _ := NameColumn(ds.Header)
		detail = RecordDetail{
			Columns: ds.Header.Names(),
			Record:  copyRecord(rec),
			Summary: Summarize(rec, ds.Header, nameCol),
		}
		return nil
	})
	return detail, err
}

// ReconcileOutcome is the result of a save together with the fresh stats.
type ReconcileOutcome struct {
	Result ReconcileResult `json:"result"`
	Stats  Stats           `json:"stats"`
}

// Reconcile fills missing fields of one record and returns fresh stats.
// Every filled field is written to the audit log.
func (s *Service) Reconcile(ctx context.Context, id string, recordID int, values map[string]string) (ReconcileOutcome, error) {
	var out ReconcileOutcome
	err := s.withSession(id, func(sess *Session) error {
		res, err := Reconcile(sess.dataset, recordID, values)
		if err != nil {
			return err
		}
		sess.state = StateReconciling
		out = ReconcileOutcome{Result: res, Stats: ComputeStats(sess.dataset)}

		for _, ch := range res.Applied {
			s.logAudit(ctx, audit.Entry{
				SessionID: id,
				Action:    audit.ActionCellFill,
				Dataset:   sess.FileName,
				RecordID:  audit.IntPtr(recordID),
				Column:    ch.Column,
				OldValue:  ch.OldValue.String,
				NewValue:  ch.NewValue,
			})
		}
		return nil
	})
	if err != nil {
		return ReconcileOutcome{}, err
	}

	s.recorder.Reconciled(len(out.Result.Applied))
	if out.Result.Changed() {
		logging.WithFields(ctx, "session_id", id, "record_id", recordID).Info("record reconciled",
			"filled", len(out.Result.Applied),
			"skipped", len(out.Result.Skipped),
			"missing_rows", out.Stats.MissingRows,
		)
	}
	return out, nil
}

// Heatmap returns the missingness grid for the first limit records.
func (s *Service) Heatmap(id string, limit int) (Heatmap, error) {
	var hm Heatmap
	err := s.withSession(id, func(sess *Session) error {
		hm = BuildHeatmap(sess.dataset, limit)
		return nil
	})
	return hm, err
}

// Report returns the printable view of a session.
func (s *Service) Report(id string) (Report, error) {
	var report Report
	err := s.withSession(id, func(sess *Session) error {
		report = BuildReport(sess.dataset, s.now())
		return nil
	})
	return report, err
}

// ExportFile is an encoded export ready to be written out.
type ExportFile struct {
	Name   string
	Format string
	Rows   int
	Data   []byte
}

// Export filters and encodes a session's records. Nothing is produced when
// the filter selects no rows; the error wraps ErrEmptyResult.
func (s *Service) Export(ctx context.Context, id string, mode ExportMode, format string) (ExportFile, error) {
	var file ExportFile
	err := s.withSession(id, func(sess *Session) error {
		prev := sess.state
		sess.state = StateExporting
		defer func() { sess.state = prev }()

		set, err := FilterExport(sess.dataset, mode)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := s.codec.Encode(&buf, format, set); err != nil {
			return fmt.Errorf("encode export: %w", err)
		}

		file = ExportFile{
			Name:   ExportFileName(sess.dataset.Name, mode, format),
			Format: format,
			Rows:   len(set.Rows),
			Data:   buf.Bytes(),
		}

		s.logAudit(ctx, audit.Entry{
			SessionID:    id,
			Action:       audit.ActionExport,
			Dataset:      sess.FileName,
			RowsAffected: len(set.Rows),
			Reason:       string(mode) + " as " + format,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrEmptyResult) {
			s.recorder.ExportRefused(string(mode))
		}
		return ExportFile{}, err
	}

	s.recorder.Exported(string(mode), file.Rows)
	return file, nil
}

// AuditLog lists the audit entries of one session, newest first.
func (s *Service) AuditLog(ctx context.Context, id string, limit int) ([]audit.Entry, error) {
	return s.audit.List(ctx, audit.Filter{SessionID: id, Limit: limit})
}

// ExpireIdle discards sessions unused since before cutoff and returns how
// many were removed.
func (s *Service) ExpireIdle(ctx context.Context, cutoff time.Time) int {
	s.mu.RLock()
	all := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.RUnlock()

	expired := 0
	for _, sess := range all {
		if !sess.idleSince().Before(cutoff) {
			continue
		}
		if _, err := s.remove(sess.ID); err != nil {
			continue
		}
		sess.close()
		expired++
		s.logAudit(ctx, audit.Entry{
			SessionID: sess.ID,
			Action:    audit.ActionSessionExpire,
			Dataset:   sess.FileName,
		})
	}
	return expired
}

// PurgeAudit deletes audit entries created before cutoff.
func (s *Service) PurgeAudit(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.audit.Purge(ctx, cutoff)
}

// WaitForDecodes blocks until no decode is running or ctx is done.
func (s *Service) WaitForDecodes(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// LimiterStatus reports decode slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// withSession runs fn with the session locked. Sessions that were closed
// while fn was waiting report ErrSessionNotFound.
func (s *Service) withSession(id string, fn func(*Session) error) error {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.dataset == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.lastUsed = s.now()
	return fn(sess)
}

func (s *Service) remove(id string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	active := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.recorder.SessionsActive(active)
	return sess, nil
}

// logAudit records e, picking up client details from ctx. Audit failures
// are logged and never fail the operation.
func (s *Service) logAudit(ctx context.Context, e audit.Entry) {
	client := ClientFrom(ctx)
	if e.IPAddress == "" {
		e.IPAddress = client.IP
	}
	if e.UserAgent == "" {
		e.UserAgent = client.UserAgent
	}
	if _, err := s.audit.Log(ctx, e); err != nil {
		slog.Warn("audit log write failed",
			"action", e.Action,
			"session_id", e.SessionID,
			"error", err,
		)
	}
}

func copyRecord(rec *Record) Record {
	fields := make(map[string]Cell, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = v
	}
	return Record{ID: rec.ID, Fields: fields}
}

type nopRecorder struct{}

func (nopRecorder) DatasetLoaded(int, time.Duration) {}
func (nopRecorder) DecodeFailed(string)              {}
func (nopRecorder) Reconciled(int)                   {}
func (nopRecorder) Exported(string, int)             {}
func (nopRecorder) ExportRefused(string)             {}
func (nopRecorder) SessionsActive(int)               {}
