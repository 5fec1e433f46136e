// Package checkpoint records identifiers whose enrichment already succeeded.
//
// The on-disk format is one identifier per line. The file is only ever appended to, so a
// crash loses at most the identifier being written, never earlier records.
package checkpoint

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Set is the set of checkpointed identifiers.
type Set map[string]struct{}

// Has reports whether id is in the set.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// PathFor returns the checkpoint file used for an input file: a hidden sibling named
// ".<input base name>.checkpoint".
func PathFor(inputPath string) string {
	dir := filepath.Dir(inputPath)
	return filepath.Join(dir, "."+filepath.Base(inputPath)+".checkpoint")
}

// Load reads the checkpoint file at path. A missing file is an empty set.
func Load(path string) (Set, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Set{}, nil
		}
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	set := Set{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		id := strings.TrimSpace(sc.Text())
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	return set, nil
}

// Store is an open checkpoint file. It is not safe for concurrent use.
type Store struct {
	path string
	f    *os.File
	set  Set
}

// Open loads the existing checkpoints at path and opens the file for appending.
func Open(path string) (*Store, error) {
	set, err := Load(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint for append: %w", err)
	}
	s := &Store{path: path, f: f, set: set}
	if err := s.terminateTornLine(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// terminateTornLine appends a newline when the file does not end with one, so the next
// record does not get glued onto an identifier that was cut short by a crash.
func (s *Store) terminateTornLine() error {
	info, err := s.f.Stat()
	if err != nil {
		return fmt.Errorf("stat checkpoint: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}
	r, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open checkpoint: %w", err)
	}
	defer func() {
		_ = r.Close()
	}()
	last := make([]byte, 1)
	if _, err := r.ReadAt(last, info.Size()-1); err != nil {
		return fmt.Errorf("read checkpoint tail: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := s.f.WriteString("\n"); err != nil {
		return fmt.Errorf("repair checkpoint: %w", err)
	}
	return nil
}

// Path returns the checkpoint file path.
func (s *Store) Path() string { return s.path }

// Len returns the number of known identifiers.
func (s *Store) Len() int { return len(s.set) }

// Has reports whether id was checkpointed by this or an earlier run.
func (s *Store) Has(id string) bool { return s.set.Has(id) }

// Record durably appends id. Recording an identifier twice is a no-op.
func (s *Store) Record(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("checkpoint: empty identifier")
	}
	if strings.ContainsAny(id, "\r\n") {
		return fmt.Errorf("checkpoint: identifier %q contains a line break", id)
	}
	if s.set.Has(id) {
		return nil
	}
	if _, err := s.f.WriteString(id + "\n"); err != nil {
		return fmt.Errorf("append checkpoint: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	s.set[id] = struct{}{}
	return nil
}

// Close closes the underlying file.
func (s *Store) Close() error {
	if s == nil || s.f == nil {
		return nil
	}
	return s.f.Close()
}
