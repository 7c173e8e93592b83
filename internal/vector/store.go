package vector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	generationsDir = "generations"
	currentFile    = "CURRENT"
	indexFile      = "index.bin"
	chunksFile     = "chunks.json"
	stagingPrefix  = ".staging-"
)

var (
	// ErrSuperseded is returned by Publish when a generation with an equal or
	// higher sequence number is already published.
	ErrSuperseded = errors.New("generation superseded by a later submission")
	// ErrInconsistentGeneration is returned when an index and its chunk store
	// disagree on the number of entries.
	ErrInconsistentGeneration = errors.New("index and chunk store sizes differ")
)

// Generation identifies one published index/chunk pair.
type Generation struct {
	Seq   uint64
	JobID string
}

// Name is the generation's directory name: zero-padded sequence, a dash, the job id.
func (g Generation) Name() string {
	return fmt.Sprintf("%010d-%s", g.Seq, g.JobID)
}

// ParseGeneration is the inverse of Generation.Name.
func ParseGeneration(name string) (Generation, error) {
	seqPart, jobID, ok := strings.Cut(name, "-")
	if !ok || jobID == "" {
		return Generation{}, fmt.Errorf("malformed generation name %q", name)
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return Generation{}, fmt.Errorf("malformed generation name %q: %w", name, err)
	}
	return Generation{Seq: seq, JobID: jobID}, nil
}

// Snapshot is an index and the chunk store written with it. Chunks[i] is the
// text of index row i. Snapshots are never modified after publication.
type Snapshot struct {
	Generation Generation
	Index      *FlatIndex
	Chunks     []string
}

// Store keeps published generations under a data directory:
//
//	<dir>/generations/<seq>-<job>/index.bin
//	<dir>/generations/<seq>-<job>/chunks.json
//	<dir>/CURRENT
//
// CURRENT names the live generation and is only ever replaced by rename.
type Store struct {
	dir    string
	keep   int
	logger *zap.Logger

	// pubMu serializes publishers; mu guards the fields below it.
	pubMu     sync.Mutex
	mu        sync.RWMutex
	published Generation
	cached    *Snapshot

	// beforeLoad, when set, runs after a cache miss and before the named
	// generation is read from disk.
	beforeLoad func(name string)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithKeepGenerations sets how many generations stay on disk, the live one
// included. Values below 1 are treated as 1.
func WithKeepGenerations(n int) StoreOption {
	return func(s *Store) {
		if n < 1 {
			n = 1
		}
		s.keep = n
	}
}

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore opens the store rooted at dir, creating it if needed. Nothing is
// loaded until the first call to Current.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	s := &Store{dir: dir, keep: 2, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(filepath.Join(dir, generationsDir), 0755); err != nil {
		return nil, fmt.Errorf("create generations dir: %w", err)
	}
	name, ok, err := s.readCurrent()
	if err != nil {
		return nil, err
	}
	if ok {
		gen, err := ParseGeneration(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", currentFile, err)
		}
		s.published = gen
	}
	return s, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Published returns the live generation. The zero Generation means none.
func (s *Store) Published() Generation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.published
}

// Publish writes idx and chunks as generation gen and makes it live. Both
// files are written to a staging directory that is renamed into place
// before CURRENT is swapped, so a reader never pairs files from different
// jobs. A gen.Seq not above the live one returns ErrSuperseded.
func (s *Store) Publish(gen Generation, idx *FlatIndex, chunks []string) error {
	if idx == nil || idx.Len() != len(chunks) {
		n := 0
		if idx != nil {
			n = idx.Len()
		}
		return fmt.Errorf("%w: %d vectors, %d chunks", ErrInconsistentGeneration, n, len(chunks))
	}

	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	if live := s.Published(); live.JobID != "" && gen.Seq <= live.Seq {
		return fmt.Errorf("%w: generation %d, live %d", ErrSuperseded, gen.Seq, live.Seq)
	}

	genRoot := filepath.Join(s.dir, generationsDir)
	staging, err := os.MkdirTemp(genRoot, stagingPrefix+gen.Name()+"-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	if err := idx.Save(filepath.Join(staging, indexFile)); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("stage index: %w", err)
	}
	if err := SaveChunks(filepath.Join(staging, chunksFile), chunks); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("stage chunks: %w", err)
	}
	final := filepath.Join(genRoot, gen.Name())
	if err := os.Rename(staging, final); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("move generation into place: %w", err)
	}
	if err := s.writeCurrent(gen.Name()); err != nil {
		return err
	}

	s.mu.Lock()
	s.published = gen
	s.cached = &Snapshot{Generation: gen, Index: idx, Chunks: chunks}
	s.mu.Unlock()

	s.logger.Info("published index generation",
		zap.Uint64("seq", gen.Seq),
		zap.String("job_id", gen.JobID),
		zap.Int("vectors", idx.Len()),
		zap.Int("dimensions", idx.Dimensions()))
	s.prune(gen.Name())
	return nil
}

// Current returns the live snapshot. found is false when nothing has been
// published yet. The pair named by CURRENT is loaded on first use and cached
// until CURRENT names a different generation. If loading fails because a
// concurrent publish moved CURRENT on and pruned the generation first,
// CURRENT is read once more and the newer generation returned.
func (s *Store) Current(ctx context.Context) (snap *Snapshot, found bool, err error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	name, ok, err := s.readCurrent()
	if err != nil || !ok {
		return nil, false, err
	}

	snap, err = s.snapshot(name)
	if err != nil {
		retry, ok, rerr := s.readCurrent()
		if rerr != nil || !ok || retry == name {
			return nil, false, err
		}
		s.logger.Debug("generation replaced while loading, retrying",
			zap.String("generation", name), zap.String("current", retry), zap.Error(err))
		if snap, err = s.snapshot(retry); err != nil {
			return nil, false, err
		}
	}
	return snap, true, nil
}

// snapshot returns the generation called name, from the cache when it holds it.
func (s *Store) snapshot(name string) (*Snapshot, error) {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if cached != nil && cached.Generation.Name() == name {
		return cached, nil
	}

	if s.beforeLoad != nil {
		s.beforeLoad(name)
	}
	snap, err := s.load(name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.cached == nil || s.cached.Generation.Seq <= snap.Generation.Seq {
		s.cached = snap
	}
	if s.published.Seq < snap.Generation.Seq {
		s.published = snap.Generation
	}
	s.mu.Unlock()
	s.logger.Debug("loaded index generation", zap.String("generation", name), zap.Int("vectors", snap.Index.Len()))
	return snap, nil
}

func (s *Store) load(name string) (*Snapshot, error) {
	gen, err := ParseGeneration(name)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(s.dir, generationsDir, name)
	idx, found, err := LoadIndex(filepath.Join(dir, indexFile))
	if err != nil {
		return nil, fmt.Errorf("load generation %s: %w", name, err)
	}
	if !found {
		return nil, fmt.Errorf("load generation %s: index file missing", name)
	}
	chunks, err := LoadChunks(filepath.Join(dir, chunksFile))
	if err != nil {
		return nil, fmt.Errorf("load generation %s: %w", name, err)
	}
	if len(chunks) != idx.Len() {
		return nil, fmt.Errorf("load generation %s: %w: %d vectors, %d chunks", name, ErrInconsistentGeneration, idx.Len(), len(chunks))
	}
	return &Snapshot{Generation: gen, Index: idx, Chunks: chunks}, nil
}

func (s *Store) readCurrent() (string, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, currentFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read %s: %w", currentFile, err)
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return "", false, nil
	}
	return name, true, nil
}

func (s *Store) writeCurrent(name string) error {
	tmp, err := os.CreateTemp(s.dir, currentFile+".tmp-")
	if err != nil {
		return fmt.Errorf("create %s temp file: %w", currentFile, err)
	}
	if _, err := tmp.WriteString(name + "\n"); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", currentFile, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("sync %s: %w", currentFile, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", currentFile, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, currentFile)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("swap %s: %w", currentFile, err)
	}
	return nil
}

// prune removes leftover staging directories and all but the newest keep
// generations. live is never removed. Called with pubMu held.
func (s *Store) prune(live string) {
	root := filepath.Join(s.dir, generationsDir)
	if leftovers, err := filepath.Glob(filepath.Join(root, stagingPrefix+"*")); err == nil {
		for _, p := range leftovers {
			_ = os.RemoveAll(p)
		}
	}
	gens, err := s.Generations()
	if err != nil {
		s.logger.Warn("prune generations", zap.Error(err))
		return
	}
	for i, g := range gens {
		if i < s.keep || g.Name() == live {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, g.Name())); err != nil {
			s.logger.Warn("prune generation", zap.String("generation", g.Name()), zap.Error(err))
			continue
		}
		s.logger.Debug("pruned generation", zap.String("generation", g.Name()))
	}
}

// Generations lists the generations on disk, newest first.
func (s *Store) Generations() ([]Generation, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, generationsDir))
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	var gens []Generation
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), stagingPrefix) {
			continue
		}
		if g, err := ParseGeneration(e.Name()); err == nil {
			gens = append(gens, g)
		}
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i].Seq > gens[j].Seq })
	return gens, nil
}
