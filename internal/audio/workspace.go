// Package audio spools synthesized clips to disk and joins them into a
// single MP3.
package audio

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// ErrNoSegments is returned when there is nothing to assemble.
var ErrNoSegments = errors.New("no audio segments to combine")

// Segment is one clip written to a workspace. Index is its position in the script.
type Segment struct {
	Index int
	Path  string
	Size  int64
}

// Workspace is a per-request temp directory. Clips from concurrent requests
// never share a directory.
type Workspace struct {
	dir  string
	once sync.Once
}

// NewWorkspace creates a fresh directory under baseDir. An empty baseDir uses
// the OS temp directory.
func NewWorkspace(baseDir string) (*Workspace, error) {
	if baseDir != "" {
		if err := os.MkdirAll(baseDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create temp base dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(baseDir, "render-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// SegmentPath returns the file name used for the clip at index.
func (w *Workspace) SegmentPath(index int) string {
	return filepath.Join(w.dir, fmt.Sprintf("segment_%04d.mp3", index))
}

// WriteSegment stores the clip for index. Safe for concurrent use with distinct indexes.
func (w *Workspace) WriteSegment(index int, data []byte) (Segment, error) {
	if len(data) == 0 {
		return Segment{}, fmt.Errorf("segment %d has no audio data", index)
	}
	path := w.SegmentPath(index)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Segment{}, fmt.Errorf("failed to write segment %d: %w", index, err)
	}
	return Segment{Index: index, Path: path, Size: int64(len(data))}, nil
}

// Cleanup removes the workspace and everything in it. Calling it more than once is fine.
func (w *Workspace) Cleanup() {
	w.once.Do(func() {
		if err := os.RemoveAll(w.dir); err != nil {
			log.Printf("[Audio] Failed to remove workspace %s: %v", w.dir, err)
		}
	})
}
