// Package pipeline turns a passage of text into one narrated MP3: it finds
// the characters, gives each a voice, writes a script, speaks every line and
// joins the clips.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/bobarin/storyvoice/internal/audio"
	"github.com/bobarin/storyvoice/internal/models"
	"github.com/bobarin/storyvoice/internal/services"
	"github.com/bobarin/storyvoice/internal/voices"
)

// ErrEmptyInput is returned for blank text.
var ErrEmptyInput = errors.New("text is required")

// Stage is a step of a run. Runs only move forward.
type Stage int

const (
	StageIdle Stage = iota
	StageAnalyzingCharacters
	StageMatchingVoices
	StageGeneratingScript
	StageSynthesizingSegments
	StageAssembling
	StageDone
	StageFailed
)

var stageNames = [...]string{
	StageIdle:                 "idle",
	StageAnalyzingCharacters:  "analyzing_characters",
	StageMatchingVoices:       "matching_voices",
	StageGeneratingScript:     "generating_script",
	StageSynthesizingSegments: "synthesizing_segments",
	StageAssembling:           "assembling",
	StageDone:                 "done",
	StageFailed:               "failed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// StageError reports which stage failed. SegmentIndex is the failing script
// line during synthesis and -1 otherwise.
type StageError struct {
	Stage        Stage
	SegmentIndex int
	Err          error
}

func (e *StageError) Error() string {
	if e.SegmentIndex >= 0 {
		return fmt.Sprintf("%s failed at segment %d: %v", e.Stage, e.SegmentIndex, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Result is the output of a successful run.
type Result struct {
	Audio      []byte
	Characters []models.Character
	Script     models.Script
}

// StageFunc observes stage transitions of a run.
type StageFunc func(Stage)

// Options tune a Pipeline. Zero values fall back to sensible defaults.
type Options struct {
	DefaultVoiceID        string
	TempDir               string
	MaxConcurrentSegments int
	ModelTimeout          time.Duration
	SynthesisTimeout      time.Duration
}

// Pipeline runs requests independently; it holds no per-request state and
// is safe for concurrent use.
type Pipeline struct {
	analyzer    *CharacterAnalyzer
	scripts     *ScriptGenerator
	synthesizer *SegmentSynthesizer
	assembler   audio.Assembler
	catalog     *voices.Catalog
	matcher     voices.Matcher
	tempDir     string
}

func New(llm services.TextGenerator, tts services.TTSService, catalog *voices.Catalog, opts Options) *Pipeline {
	if opts.MaxConcurrentSegments < 1 {
		opts.MaxConcurrentSegments = 4
	}
	return &Pipeline{
		analyzer:    NewCharacterAnalyzer(llm, opts.ModelTimeout),
		scripts:     NewScriptGenerator(llm, opts.ModelTimeout),
		synthesizer: NewSegmentSynthesizer(tts, opts.MaxConcurrentSegments, opts.SynthesisTimeout),
		catalog:     catalog,
		matcher:     voices.Matcher{DefaultVoiceID: opts.DefaultVoiceID},
		tempDir:     opts.TempDir,
	}
}

// run tracks the stage of a single request.
type run struct {
	id      string
	stage   Stage
	onStage StageFunc
}

func (r *run) advance(next Stage) error {
	if r.stage == StageFailed || next <= r.stage {
		return fmt.Errorf("invalid stage transition %s -> %s", r.stage, next)
	}
	r.stage = next
	if r.id != "" {
		log.Printf("[Pipeline] %s: %s", r.id, next)
	} else {
		log.Printf("[Pipeline] %s", next)
	}
	if r.onStage != nil {
		r.onStage(next)
	}
	return nil
}

// fail moves the run to Failed and wraps err with the stage it failed in.
func (r *run) fail(segment int, err error) error {
	failed := r.stage
	r.stage = StageFailed
	if r.onStage != nil {
		r.onStage(StageFailed)
	}
	return &StageError{Stage: failed, SegmentIndex: segment, Err: err}
}

// Run generates narrated audio for text.
func (p *Pipeline) Run(ctx context.Context, text string) (*Result, error) {
	return p.RunObserved(ctx, text, nil)
}

// RunObserved is Run with a callback for every stage change, including Failed.
func (p *Pipeline) RunObserved(ctx context.Context, text string, onStage StageFunc) (*Result, error) {
	r := &run{id: middleware.GetReqID(ctx), onStage: onStage}
	if strings.TrimSpace(text) == "" {
		return nil, r.fail(-1, ErrEmptyInput)
	}
	start := time.Now()

	if err := r.advance(StageAnalyzingCharacters); err != nil {
		return nil, r.fail(-1, err)
	}
	characters, err := p.analyzer.Analyze(ctx, text)
	if err != nil {
		return nil, r.fail(-1, err)
	}

	if err := r.advance(StageMatchingVoices); err != nil {
		return nil, r.fail(-1, err)
	}
	if err := p.matcher.AssignVoices(characters, p.catalog.Voices()); err != nil {
		return nil, r.fail(-1, err)
	}
	for _, c := range characters {
		log.Printf("[Pipeline] %s -> voice %s", c.Name, c.VoiceID)
	}

	if err := r.advance(StageGeneratingScript); err != nil {
		return nil, r.fail(-1, err)
	}
	script, err := p.scripts.Generate(ctx, text, characters)
	if err != nil {
		return nil, r.fail(-1, err)
	}

	if err := r.advance(StageSynthesizingSegments); err != nil {
		return nil, r.fail(-1, err)
	}
	ws, err := audio.NewWorkspace(p.tempDir)
	if err != nil {
		return nil, r.fail(-1, err)
	}
	defer ws.Cleanup()

	segments, err := p.synthesizer.Synthesize(ctx, script, characters, ws)
	if err != nil {
		var segErr *SegmentError
		if errors.As(err, &segErr) {
			return nil, r.fail(segErr.Index, segErr.Cause)
		}
		return nil, r.fail(-1, err)
	}

	if err := r.advance(StageAssembling); err != nil {
		return nil, r.fail(-1, err)
	}
	data, err := p.assembler.Combine(ws, segments)
	if err != nil {
		return nil, r.fail(-1, err)
	}

	if err := r.advance(StageDone); err != nil {
		return nil, r.fail(-1, err)
	}
	log.Printf("[Pipeline] Generated %d bytes from %d segments in %v", len(data), len(segments), time.Since(start).Round(time.Millisecond))

	return &Result{Audio: data, Characters: characters, Script: script}, nil
}
