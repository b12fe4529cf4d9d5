package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bobarin/storyvoice/internal/audio"
	"github.com/bobarin/storyvoice/internal/models"
	"github.com/bobarin/storyvoice/internal/services"
)

// SegmentError identifies the script line whose synthesis failed. When
// several lines fail, Index is the lowest of them.
type SegmentError struct {
	Index int
	Cause error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d: %v", e.Index, e.Cause)
}

func (e *SegmentError) Unwrap() error { return e.Cause }

// SegmentSynthesizer speaks every script line with its character's voice.
type SegmentSynthesizer struct {
	tts         services.TTSService
	concurrency int
	timeout     time.Duration
}

func NewSegmentSynthesizer(tts services.TTSService, concurrency int, timeout time.Duration) *SegmentSynthesizer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &SegmentSynthesizer{tts: tts, concurrency: concurrency, timeout: timeout}
}

// ResolveVoice returns the voice of the character named by entry, or the
// first character's voice when no name matches exactly.
func ResolveVoice(entry models.ScriptEntry, characters []models.Character) string {
	for _, c := range characters {
		if c.Name == entry.SpeakerName {
			return c.VoiceID
		}
	}
	if len(characters) == 0 {
		return ""
	}
	return characters[0].VoiceID
}

// Synthesize generates one clip per script line and spools it into ws.
// Segments come back indexed by script position. The first failure cancels
// the lines still in flight; the lowest failing line is returned as
// *SegmentError.
func (s *SegmentSynthesizer) Synthesize(ctx context.Context, script models.Script, characters []models.Character, ws *audio.Workspace) ([]audio.Segment, error) {
	segments := make([]audio.Segment, len(script))

	var (
		mu     sync.Mutex
		lowest *SegmentError
	)
	fail := func(i int, err error) error {
		segErr := &SegmentError{Index: i, Cause: err}
		// cancelled because a sibling failed, not a failure of this line
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			return segErr
		}
		mu.Lock()
		if lowest == nil || i < lowest.Index {
			lowest = segErr
		}
		mu.Unlock()
		return segErr
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, entry := range script {
		voiceID := ResolveVoice(entry, characters)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fail(i, err)
			}

			resp, err := s.speak(gctx, voiceID, entry.SpeakerText)
			if err != nil {
				log.Printf("[Synth] Segment %d (%s) failed: %v", i, entry.SpeakerName, err)
				return fail(i, err)
			}

			seg, err := ws.WriteSegment(i, resp.AudioData)
			if err != nil {
				return fail(i, err)
			}
			segments[i] = seg
			log.Printf("[Synth] Segment %d/%d (%s) ready (%d bytes)", i+1, len(script), entry.SpeakerName, seg.Size)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if lowest != nil {
			return nil, lowest
		}
		return nil, err
	}
	return segments, nil
}

func (s *SegmentSynthesizer) speak(ctx context.Context, voiceID, text string) (*services.TTSResponse, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.tts.GenerateSpeech(ctx, voiceID, text)
}
