package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/storyvoice/internal/audio"
	"github.com/bobarin/storyvoice/internal/extract"
	"github.com/bobarin/storyvoice/internal/models"
	"github.com/bobarin/storyvoice/internal/services"
	"github.com/bobarin/storyvoice/internal/voices"
)

// fakeLLM answers the character and script prompts separately.
type fakeLLM struct {
	characters string
	script     string
	charErr    error
	scriptErr  error
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.HasPrefix(prompt, "Analyze the following text") {
		return f.characters, f.charErr
	}
	return f.script, f.scriptErr
}

// fakeTTS returns "<voice>:<text>|" for every line so order and voice
// resolution are visible in the assembled output.
type fakeTTS struct {
	failOn   string
	delay    func(text string) time.Duration
	barrier  int32                    // hold every call until this many are in flight
	failSlow map[string]time.Duration // fail after a pause that ignores cancellation
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeTTS) GenerateSpeech(ctx context.Context, voiceID, text string) (*services.TTSResponse, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	if f.barrier > 0 {
		deadline := time.Now().Add(time.Second)
		for f.inFlight.Load() < f.barrier && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}
	if d, ok := f.failSlow[text]; ok {
		time.Sleep(d)
		return nil, &services.RemoteCallError{Provider: "ElevenLabs", StatusCode: 500, Body: text}
	}
	if f.delay != nil {
		select {
		case <-time.After(f.delay(text)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failOn != "" && text == f.failOn {
		return nil, &services.RemoteCallError{Provider: "ElevenLabs", StatusCode: 429, Body: "quota exceeded"}
	}
	return &services.TTSResponse{AudioData: []byte(voiceID + ":" + text + "|"), Format: "mp3"}, nil
}

var catalog = []models.VoiceDescriptor{
	{ID: "v-narrator", Tags: map[string]string{"gender": "neutral", "age": "middle-aged", "style": "formal narrating"}},
	{ID: "v-alice", Tags: map[string]string{"gender": "female", "age": "young", "accent": "american", "style": "excited acting"}},
	{ID: "v-bob", Tags: map[string]string{"gender": "male", "age": "elderly", "accent": "scottish", "style": "gruff acting"}},
}

const cast = `[
  {"name": "Narrator", "properties": {"gender": "Neutral", "age": "Middle-aged", "accent": "Neutral", "tone": "Formal", "style": "Narrating", "urgency": "Low"}},
  {"name": "Alice", "properties": {"gender": "Female", "age": "Young", "accent": "American", "tone": "Excited", "style": "Acting", "urgency": "High"}},
  {"name": "Bob", "properties": {"gender": "Male", "age": "Elderly", "accent": "Scottish", "tone": "Gruff", "style": "Acting", "urgency": "Low"}}
]`

func scriptOf(lines ...[2]string) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = fmt.Sprintf(`{"speaker_name": %q, "speaker_text": %q, "voice_id": null}`, l[0], l[1])
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func newTestPipeline(t *testing.T, llm services.TextGenerator, tts services.TTSService, voiceList []models.VoiceDescriptor, opts Options) (*Pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	opts.TempDir = dir
	if opts.SynthesisTimeout == 0 {
		opts.SynthesisTimeout = 5 * time.Second
	}
	return New(llm, tts, voices.NewStaticCatalog(voiceList), opts), dir
}

func assertNoLeftovers(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp workspace should be removed")
}

func TestRunNarratorOnlyFallback(t *testing.T) {
	text := "The rain fell on the quiet town."
	llm := &fakeLLM{characters: "I am unable to help with that.", script: "Sorry, no script."}
	tts := &fakeTTS{}
	p, dir := newTestPipeline(t, llm, tts, catalog, Options{})

	var stages []Stage
	res, err := p.RunObserved(context.Background(), text, func(s Stage) { stages = append(stages, s) })
	require.NoError(t, err)

	require.Len(t, res.Characters, 1)
	assert.Equal(t, models.NarratorName, res.Characters[0].Name)
	assert.Equal(t, models.NarratorProperties(), res.Characters[0].Properties)
	assert.Equal(t, "v-narrator", res.Characters[0].VoiceID)

	assert.Equal(t, models.Script{{SpeakerName: models.NarratorName, SpeakerText: text}}, res.Script)
	assert.Equal(t, "v-narrator:"+text+"|", string(res.Audio))
	assert.Equal(t, int32(1), tts.calls.Load())

	assert.Equal(t, []Stage{
		StageAnalyzingCharacters, StageMatchingVoices, StageGeneratingScript,
		StageSynthesizingSegments, StageAssembling, StageDone,
	}, stages)
	assertNoLeftovers(t, dir)
}

func TestRunPreservesScriptOrder(t *testing.T) {
	lines := [][2]string{
		{"Narrator", "It was midnight."},
		{"Alice", "Who's there?"},
		{"Bob", "Only me."},
		{"Ghost", "Boo."},
		{"Narrator", "Nobody slept."},
	}
	llm := &fakeLLM{characters: cast, script: "```json\n" + scriptOf(lines...) + "\n```"}
	// earlier lines finish last
	tts := &fakeTTS{delay: func(text string) time.Duration {
		for i, l := range lines {
			if l[1] == text {
				return time.Duration(len(lines)-i) * 10 * time.Millisecond
			}
		}
		return 0
	}}
	p, dir := newTestPipeline(t, llm, tts, catalog, Options{MaxConcurrentSegments: 5})

	res, err := p.Run(context.Background(), "story")
	require.NoError(t, err)

	want := "v-narrator:It was midnight.|" +
		"v-alice:Who's there?|" +
		"v-bob:Only me.|" +
		"v-narrator:Boo.|" + // unknown speaker uses the first character's voice
		"v-narrator:Nobody slept.|"
	assert.Equal(t, want, string(res.Audio))
	assert.Len(t, res.Script, 5)
	assertNoLeftovers(t, dir)
}

func TestRunSegmentFailure(t *testing.T) {
	lines := [][2]string{
		{"Narrator", "one"}, {"Alice", "two"}, {"Bob", "three"}, {"Narrator", "four"},
	}
	llm := &fakeLLM{characters: cast, script: scriptOf(lines...)}
	tts := &fakeTTS{failOn: "three"}
	p, dir := newTestPipeline(t, llm, tts, catalog, Options{MaxConcurrentSegments: 1})

	var last Stage
	res, err := p.RunObserved(context.Background(), "story", func(s Stage) { last = s })
	assert.Nil(t, res)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr), "got %v", err)
	assert.Equal(t, StageSynthesizingSegments, stageErr.Stage)
	assert.Equal(t, 2, stageErr.SegmentIndex)
	assert.Equal(t, StageFailed, last)

	var remote *services.RemoteCallError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, 429, remote.StatusCode)
	assert.Contains(t, err.Error(), "segment 2")
	assert.Contains(t, err.Error(), "quota exceeded")

	// with one worker the line after the failure is never spoken
	assert.Equal(t, int32(3), tts.calls.Load())
	assertNoLeftovers(t, dir)
}

func TestRunScriptValidationFails(t *testing.T) {
	llm := &fakeLLM{characters: cast, script: `[{"speaker_name": "Alice", "speaker_text": "  "}]`}
	tts := &fakeTTS{}
	p, _ := newTestPipeline(t, llm, tts, catalog, Options{})

	_, err := p.Run(context.Background(), "story")

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageGeneratingScript, stageErr.Stage)
	assert.Equal(t, -1, stageErr.SegmentIndex)

	var verr *extract.ScriptValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 0, verr.Index)
	assert.Zero(t, tts.calls.Load())
}

func TestRunAnalyzerError(t *testing.T) {
	llm := &fakeLLM{charErr: errors.New("model unavailable")}
	p, _ := newTestPipeline(t, llm, &fakeTTS{}, catalog, Options{})

	_, err := p.Run(context.Background(), "story")

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageAnalyzingCharacters, stageErr.Stage)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestRunEmptyInput(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeLLM{}, &fakeTTS{}, catalog, Options{})

	_, err := p.Run(context.Background(), "  \n\t")

	assert.ErrorIs(t, err, ErrEmptyInput)
	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageIdle, stageErr.Stage)
}

func TestRunEmptyCatalog(t *testing.T) {
	llm := &fakeLLM{characters: "nothing", script: "nothing"}

	p, _ := newTestPipeline(t, llm, &fakeTTS{}, nil, Options{})
	_, err := p.Run(context.Background(), "story")
	assert.ErrorIs(t, err, voices.ErrEmptyCatalog)
	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageMatchingVoices, stageErr.Stage)

	p, _ = newTestPipeline(t, llm, &fakeTTS{}, nil, Options{DefaultVoiceID: "v-default"})
	res, err := p.Run(context.Background(), "story")
	require.NoError(t, err)
	assert.Equal(t, "v-default:story|", string(res.Audio))
}

func TestRunCancelledContext(t *testing.T) {
	llm := &fakeLLM{characters: cast, script: scriptOf([2]string{"Alice", "hi"})}
	tts := &fakeTTS{}
	p, dir := newTestPipeline(t, llm, tts, catalog, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, "story")
	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageSynthesizingSegments, stageErr.Stage)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, tts.calls.Load())
	assertNoLeftovers(t, dir)
}

func TestSynthesizeRespectsConcurrencyLimit(t *testing.T) {
	script := make(models.Script, 12)
	for i := range script {
		script[i] = models.ScriptEntry{SpeakerName: "Narrator", SpeakerText: fmt.Sprintf("line %d", i)}
	}
	tts := &fakeTTS{delay: func(string) time.Duration { return 5 * time.Millisecond }}
	s := NewSegmentSynthesizer(tts, 3, time.Second)

	ws, err := audio.NewWorkspace(t.TempDir())
	require.NoError(t, err)
	defer ws.Cleanup()

	segments, err := s.Synthesize(context.Background(), script, []models.Character{{Name: "Narrator", VoiceID: "v"}}, ws)
	require.NoError(t, err)
	require.Len(t, segments, 12)
	for i, seg := range segments {
		assert.Equal(t, i, seg.Index)
	}
	assert.LessOrEqual(t, tts.maxSeen.Load(), int32(3))
}

func TestSynthesizeReportsLowestFailingSegment(t *testing.T) {
	script := models.Script{
		{SpeakerName: "Narrator", SpeakerText: "one"},
		{SpeakerName: "Narrator", SpeakerText: "two"},
		{SpeakerName: "Narrator", SpeakerText: "three"},
		{SpeakerName: "Narrator", SpeakerText: "four"},
	}
	// "four" fails first, "two" fails later
	tts := &fakeTTS{barrier: 4, failSlow: map[string]time.Duration{"two": 30 * time.Millisecond, "four": 0}}
	s := NewSegmentSynthesizer(tts, 4, 0)

	ws, err := audio.NewWorkspace(t.TempDir())
	require.NoError(t, err)
	defer ws.Cleanup()

	_, err = s.Synthesize(context.Background(), script, []models.Character{{Name: "Narrator", VoiceID: "v"}}, ws)

	var segErr *SegmentError
	require.True(t, errors.As(err, &segErr), "got %v", err)
	assert.Equal(t, 1, segErr.Index)

	var remote *services.RemoteCallError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "two", remote.Body)
}

func TestSynthesizeIgnoresSiblingCancellation(t *testing.T) {
	script := models.Script{
		{SpeakerName: "Narrator", SpeakerText: "slow"},
		{SpeakerName: "Narrator", SpeakerText: "bad"},
	}
	tts := &fakeTTS{
		failOn: "bad",
		delay: func(text string) time.Duration {
			if text == "slow" {
				return time.Second
			}
			return 0
		},
	}
	s := NewSegmentSynthesizer(tts, 2, 0)

	ws, err := audio.NewWorkspace(t.TempDir())
	require.NoError(t, err)
	defer ws.Cleanup()

	_, err = s.Synthesize(context.Background(), script, []models.Character{{Name: "Narrator", VoiceID: "v"}}, ws)

	var segErr *SegmentError
	require.True(t, errors.As(err, &segErr), "got %v", err)
	assert.Equal(t, 1, segErr.Index)
	assert.False(t, errors.Is(err, context.Canceled))
}

func TestTruncateKeepsWholeRunes(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "héé...", truncate("héééé", 3))
	assert.Equal(t, "日本...", truncate("日本語の物語", 2))
	assert.True(t, utf8.ValidString(truncate(strings.Repeat("ü", 600), logPreviewLen)))
}

func TestResolveVoice(t *testing.T) {
	chars := []models.Character{{Name: "Narrator", VoiceID: "n"}, {Name: "Alice", VoiceID: "a"}}

	assert.Equal(t, "a", ResolveVoice(models.ScriptEntry{SpeakerName: "Alice"}, chars))
	assert.Equal(t, "n", ResolveVoice(models.ScriptEntry{SpeakerName: "alice"}, chars))
	assert.Equal(t, "n", ResolveVoice(models.ScriptEntry{SpeakerName: "Stranger"}, chars))
	assert.Equal(t, "", ResolveVoice(models.ScriptEntry{SpeakerName: "Stranger"}, nil))
}

func TestRunStagesOnlyMoveForward(t *testing.T) {
	r := &run{}
	require.NoError(t, r.advance(StageAnalyzingCharacters))
	assert.Error(t, r.advance(StageAnalyzingCharacters))
	assert.Error(t, r.advance(StageIdle))
	require.NoError(t, r.advance(StageGeneratingScript))

	err := r.fail(-1, errors.New("x"))
	assert.Equal(t, StageFailed, r.stage)
	assert.Equal(t, "generating_script failed: x", err.Error())
	assert.Error(t, r.advance(StageDone))
}

func TestPipelineConcurrentRuns(t *testing.T) {
	llm := &fakeLLM{characters: cast, script: scriptOf([2]string{"Alice", "hello"}, [2]string{"Bob", "bye"})}
	p, dir := newTestPipeline(t, llm, &fakeTTS{}, catalog, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.Run(context.Background(), "story")
			if assert.NoError(t, err) {
				assert.Equal(t, "v-alice:hello|v-bob:bye|", string(res.Audio))
			}
		}()
	}
	wg.Wait()
	assertNoLeftovers(t, dir)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "synthesizing_segments", StageSynthesizingSegments.String())
	assert.Equal(t, "stage(42)", Stage(42).String())
}
