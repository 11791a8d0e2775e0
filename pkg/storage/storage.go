// Package storage provides the crash-safe file primitives every other
// component is built on: atomic JSON writes and an append-only JSONL log
// with partial-tail tolerance. It owns no data of its own — it is a
// stateless capability rooted at a base directory.
package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/linustan/komatachi/pkg/komatachierr"
)

// maxLineSize bounds the scanner buffer so a single pathologically long
// transcript line cannot exhaust memory; real messages are orders of
// magnitude smaller.
const maxLineSize = 10 * 1024 * 1024

// Storage is rooted at a base directory. All paths passed to its methods
// are relative to that root.
type Storage struct {
	root string
}

// New roots a Storage capability at dir. The directory is created lazily —
// New itself performs no I/O.
func New(dir string) *Storage {
	return &Storage{root: dir}
}

func (s *Storage) abs(path string) string {
	return filepath.Join(s.root, path)
}

// ReadJSON parses the whole file at path into a value of type T.
func ReadJSON[T any](s *Storage, path string) (T, error) {
	var zero T
	full := s.abs(path)
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return zero, komatachierr.New(komatachierr.NotFound, "file does not exist").WithPath(full)
		}
		return zero, komatachierr.Wrap(komatachierr.IO, "read failed", err).WithPath(full)
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, komatachierr.Wrap(komatachierr.Corrupt, "invalid json", err).WithPath(full)
	}
	return v, nil
}

// WriteJSON atomically (write-temp-then-rename) writes v, pretty-printed,
// to path. Parent directories are created as needed.
func (s *Storage) WriteJSON(path string, v any) error {
	full := s.abs(path)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return komatachierr.Wrap(komatachierr.IO, "marshal failed", err).WithPath(full)
	}
	data = append(data, '\n')
	return s.writeFileAtomic(full, data)
}

// AppendJSONL appends one JSON-encoded entry, newline-terminated, to path.
// A crash mid-append may leave a partial trailing line; ReadAllJSONL
// tolerates that on the last line only.
func (s *Storage) AppendJSONL(path string, entry any) error {
	full := s.abs(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return komatachierr.Wrap(komatachierr.IO, "mkdir failed", err).WithPath(full)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return komatachierr.Wrap(komatachierr.IO, "marshal failed", err).WithPath(full)
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return komatachierr.Wrap(komatachierr.IO, "open failed", err).WithPath(full)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return komatachierr.Wrap(komatachierr.IO, "append failed", err).WithPath(full)
	}
	return f.Sync()
}

// ReadAllJSONL splits path by newline and parses each non-empty line as T.
// If the last non-empty line fails to parse, it is silently skipped (a
// partial tail from a crashed append). Any non-last corrupt line is a hard
// Corrupt failure.
func ReadAllJSONL[T any](s *Storage, path string) ([]T, error) {
	full := s.abs(path)
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, komatachierr.New(komatachierr.NotFound, "file does not exist").WithPath(full)
		}
		return nil, komatachierr.Wrap(komatachierr.IO, "open failed", err).WithPath(full)
	}
	defer f.Close()

	var lines [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), line...))
	}
	if err := scanner.Err(); err != nil {
		return nil, komatachierr.Wrap(komatachierr.IO, "scan failed", err).WithPath(full)
	}

	out := make([]T, 0, len(lines))
	for i, line := range lines {
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			if i == len(lines)-1 {
				// Partial tail from a crashed append: tolerated silently.
				break
			}
			return nil, komatachierr.Wrap(komatachierr.Corrupt, "invalid json line", err).WithPath(full)
		}
		out = append(out, v)
	}
	return out, nil
}

// WriteJSONL atomically rewrites path with one JSON-encoded entry per line.
// Empty input produces an empty file, not a missing one.
func WriteJSONL[T any](s *Storage, path string, entries []T) error {
	full := s.abs(path)

	var buf bytes.Buffer
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return komatachierr.Wrap(komatachierr.IO, "marshal failed", err).WithPath(full)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return s.writeFileAtomic(full, buf.Bytes())
}

// writeFileAtomic writes data to a temp file in the same directory as
// target (same filesystem is required for os.Rename to be atomic), then
// renames it into place. This is the load-bearing crash-safety primitive
// for every write in the system.
func (s *Storage) writeFileAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return komatachierr.Wrap(komatachierr.IO, "mkdir failed", err).WithPath(target)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf("%s.%s.tmp", filepath.Base(target), uuid.NewString()))
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return komatachierr.Wrap(komatachierr.IO, "create temp file failed", err).WithPath(target)
	}
	defer os.Remove(tmpPath)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return komatachierr.Wrap(komatachierr.IO, "write temp file failed", err).WithPath(target)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return komatachierr.Wrap(komatachierr.IO, "sync temp file failed", err).WithPath(target)
	}
	if err := f.Close(); err != nil {
		return komatachierr.Wrap(komatachierr.IO, "close temp file failed", err).WithPath(target)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		return komatachierr.Wrap(komatachierr.IO, "rename temp file failed", err).WithPath(target)
	}
	return nil
}

// Exists reports whether path exists under the storage root.
func (s *Storage) Exists(path string) bool {
	_, err := os.Stat(s.abs(path))
	return err == nil
}
