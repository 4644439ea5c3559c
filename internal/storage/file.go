package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "localnotify/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.snapshot.json (periodic snapshot of both sets)
//   - <prefix>.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File

	pending   map[string]Record
	delivered map[string]Record

	writes    int
	compactAt int
}

type journalOp string

const (
	opPutPending      journalOp = "put_pending"
	opDeletePending   journalOp = "del_pending"
	opMarkDelivered   journalOp = "delivered"
	opDeleteDelivered journalOp = "del_delivered"
)

type journalEntry struct {
	Op  journalOp `json:"op"`
	Rec *Record   `json:"rec,omitempty"`
	IDs []string  `json:"ids,omitempty"`
}

type snapshot struct {
	Pending   []Record `json:"pending"`
	Delivered []Record `json:"delivered"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		snapshotPath: prefix + ".snapshot.json",
		pending:      map[string]Record{},
		delivered:    map[string]Record{},
		compactAt:    cfg.CompactAt,
	}
	if s.compactAt <= 0 {
		s.compactAt = 500
	}

	if err := s.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("storage snapshot unreadable; starting from journal", logx.Err(err))
	}
	journalPath := prefix + ".journal.jsonl"
	if err := s.replayJournal(journalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = jf
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	if err := s.compactLocked(); err != nil {
		s.log.Debug("compact on close failed", logx.Err(err))
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) PutPending(ctx context.Context, r Record) error {
	_ = ctx
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("record id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(journalEntry{Op: opPutPending, Rec: &r}); err != nil {
		return err
	}
	s.pending[r.ID] = r
	return nil
}

func (s *fileStore) DeletePending(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; !ok {
		return nil
	}
	if err := s.appendLocked(journalEntry{Op: opDeletePending, IDs: []string{id}}); err != nil {
		return err
	}
	delete(s.pending, id)
	return nil
}

func (s *fileStore) ListPending(ctx context.Context) ([]Record, error) {
	_ = ctx
	s.mu.Lock()
	out := make([]Record, 0, len(s.pending))
	for _, r := range s.pending {
		out = append(out, r)
	}
	s.mu.Unlock()
	sortPending(out)
	return out, nil
}

func (s *fileStore) MarkDelivered(ctx context.Context, r Record) error {
	_ = ctx
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("record id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(journalEntry{Op: opMarkDelivered, Rec: &r}); err != nil {
		return err
	}
	delete(s.pending, r.ID)
	s.delivered[r.ID] = r
	return nil
}

func (s *fileStore) DeleteDelivered(ctx context.Context, ids ...string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	known := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.delivered[id]; ok {
			known = append(known, id)
		}
	}
	if len(known) == 0 {
		return nil
	}
	if err := s.appendLocked(journalEntry{Op: opDeleteDelivered, IDs: known}); err != nil {
		return err
	}
	for _, id := range known {
		delete(s.delivered, id)
	}
	return nil
}

func (s *fileStore) ListDelivered(ctx context.Context) ([]Record, error) {
	_ = ctx
	s.mu.Lock()
	out := make([]Record, 0, len(s.delivered))
	for _, r := range s.delivered {
		out = append(out, r)
	}
	s.mu.Unlock()
	sortDelivered(out)
	return out, nil
}

func (s *fileStore) appendLocked(e journalEntry) error {
	if s.journal == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journal).Encode(e); err != nil {
		return err
	}
	s.writes++
	if s.writes%s.compactAt == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) apply(e journalEntry) {
	switch e.Op {
	case opPutPending:
		if e.Rec != nil {
			s.pending[e.Rec.ID] = *e.Rec
		}
	case opDeletePending:
		for _, id := range e.IDs {
			delete(s.pending, id)
		}
	case opMarkDelivered:
		if e.Rec != nil {
			delete(s.pending, e.Rec.ID)
			s.delivered[e.Rec.ID] = *e.Rec
		}
	case opDeleteDelivered:
		for _, id := range e.IDs {
			delete(s.delivered, id)
		}
	}
}

func (s *fileStore) compactLocked() error {
	snap := snapshot{
		Pending:   make([]Record, 0, len(s.pending)),
		Delivered: make([]Record, 0, len(s.delivered)),
	}
	for _, r := range s.pending {
		snap.Pending = append(snap.Pending, r)
	}
	for _, r := range s.delivered {
		snap.Delivered = append(snap.Delivered, r)
	}
	sortPending(snap.Pending)
	sortDelivered(snap.Delivered)

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func (s *fileStore) loadSnapshot() error {
	f, err := os.Open(s.snapshotPath)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for _, r := range snap.Pending {
		s.pending[r.ID] = r
	}
	for _, r := range snap.Delivered {
		s.delivered[r.ID] = r
	}
	return nil
}

func (s *fileStore) replayJournal(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var e journalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			// Torn tail write; keep what we have.
			continue
		}
		s.apply(e)
	}
	return sc.Err()
}
