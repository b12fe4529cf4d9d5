package audio

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
)

// Assembler joins MP3 clips by concatenating their frames in script order.
// MP3 frames are self-delimiting, so the result plays as one stream without
// re-encoding.
type Assembler struct{}

// Combine concatenates segments ordered by Index and removes the workspace
// before returning, whether or not it succeeded.
func (Assembler) Combine(ws *Workspace, segments []Segment) ([]byte, error) {
	defer ws.Cleanup()

	if len(segments) == 0 {
		return nil, ErrNoSegments
	}

	ordered := make([]Segment, len(segments))
	copy(ordered, segments)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	var total int64
	for i, seg := range ordered {
		if seg.Index != i {
			return nil, fmt.Errorf("segment %d is missing", i)
		}
		total += seg.Size
	}

	var buf bytes.Buffer
	buf.Grow(int(total))
	for _, seg := range ordered {
		if err := appendFile(&buf, seg.Path); err != nil {
			return nil, fmt.Errorf("failed to read segment %d: %w", seg.Index, err)
		}
	}
	return buf.Bytes(), nil
}

func appendFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
