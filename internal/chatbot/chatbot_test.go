package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dugtong/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRuleEngine_Match(t *testing.T) {
	rules, err := NewRuleEngine(DefaultIntents())
	require.NoError(t, err)

	cases := []struct {
		text   string
		intent string
	}{
		{"Hello there!", "greeting"},
		{"Am I eligible to give blood?", "eligibility"},
		{"Who is the universal donor?", "blood_types"},
		{"is O- compatible with AB+", "blood_types"},
		{"Can you help me find the donors in Dagupan", "find_donors"},
		{"is there an EMERGENCY right now", "alerts"},
		{"how do I register", "registration"},
		{"what happens during screening", "donation_process"},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			m, ok := rules.Match(tc.text)
			require.True(t, ok)
			assert.Equal(t, tc.intent, m.Intent)
			assert.NotEmpty(t, m.Answer)
			assert.GreaterOrEqual(t, m.Score, 1)
		})
	}
}

func TestRuleEngine_NoMatch(t *testing.T) {
	rules, err := NewRuleEngine(DefaultIntents())
	require.NoError(t, err)

	for _, text := range []string{"", "   ", "quantum chromodynamics lecture notes", "the of and"} {
		_, ok := rules.Match(text)
		assert.False(t, ok, text)
	}
	// partial words do not count
	_, ok := rules.Match("shipping alerted")
	assert.False(t, ok)
}

func TestRuleEngine_HighestScoreWins(t *testing.T) {
	rules, err := NewRuleEngine([]Intent{
		{Name: "one", Keywords: []string{"blood"}, Answer: "1"},
		{Name: "two", Keywords: []string{"blood", "bank", "storage"}, Answer: "2"},
	})
	require.NoError(t, err)

	m, ok := rules.Match("blood bank storage")
	require.True(t, ok)
	assert.Equal(t, "two", m.Intent)
	assert.Equal(t, 2, m.Score)

	m, ok = rules.Match("blood")
	require.True(t, ok)
	assert.Equal(t, "one", m.Intent)
}

func TestNewRuleEngine_NoKeywords(t *testing.T) {
	_, err := NewRuleEngine([]Intent{{Name: "empty"}})
	assert.Error(t, err)
}

func TestCandidates(t *testing.T) {
	got := Candidates([]string{"k1", "", "k2"}, []string{"m1", "m2"})
	assert.Equal(t, []Candidate{
		{Key: "k1", Model: "m1"}, {Key: "k1", Model: "m2"},
		{Key: "k2", Model: "m1"}, {Key: "k2", Model: "m2"},
	}, got)
	assert.Empty(t, Candidates(nil, []string{"m1"}))
}

// recordingTimer fires at once and remembers every requested delay.
type recordingTimer struct {
	delays *[]time.Duration
	c      chan time.Time
}

func newRecordingTimer(delays *[]time.Duration) *recordingTimer {
	return &recordingTimer{delays: delays, c: make(chan time.Time, 1)}
}

func (r *recordingTimer) Start(d time.Duration) {
	*r.delays = append(*r.delays, d)
	r.c <- time.Now()
}

func (r *recordingTimer) Stop() {}

func (r *recordingTimer) C() <-chan time.Time { return r.c }

func TestAttemptPolicy_StopsAtMaxAttempts(t *testing.T) {
	var delays []time.Duration
	p := AttemptPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 150 * time.Millisecond, timer: newRecordingTimer(&delays)}
	cands := Candidates([]string{"a", "b", "c", "d", "e"}, []string{"m"})

	calls := 0
	_, err := p.Run(context.Background(), cands, func(context.Context, Candidate) (string, error) {
		calls++
		return "", errors.New("boom")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 150 * time.Millisecond}, delays)
}

func TestAttemptPolicy_StopsAtMaxElapsed(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	var delays []time.Duration
	p := AttemptPolicy{
		MaxAttempts: 10,
		MaxElapsed:  1500 * time.Millisecond,
		timer:       newRecordingTimer(&delays),
		now: func() time.Time {
			t := base.Add(time.Duration(tick) * time.Second)
			tick++
			return t
		},
	}
	cands := Candidates([]string{"a", "b", "c", "d"}, []string{"m"})

	var tried []string
	_, err := p.Run(context.Background(), cands, func(_ context.Context, c Candidate) (string, error) {
		tried = append(tried, c.Key)
		return "", errors.New("unavailable")
	})
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Equal(t, []string{"a", "b"}, tried)
}

func TestAttemptPolicy_FirstSuccessWins(t *testing.T) {
	var delays []time.Duration
	p := AttemptPolicy{MaxAttempts: 5, timer: newRecordingTimer(&delays)}
	cands := Candidates([]string{"a", "b", "c"}, []string{"m"})

	var tried []string
	out, err := p.Run(context.Background(), cands, func(_ context.Context, c Candidate) (string, error) {
		tried = append(tried, c.Key)
		if c.Key == "b" {
			return "ok", nil
		}
		return "", errors.New("nope")
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, []string{"a", "b"}, tried)
}

func TestAttemptPolicy_DelayCapAndJitter(t *testing.T) {
	p := AttemptPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}
	b := p.backOff()
	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 200*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 300*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 300*time.Millisecond, b.NextBackOff())

	p.Jitter = 0.5
	for i := 0; i < 50; i++ {
		b := p.backOff()
		b.NextBackOff()
		d := b.NextBackOff()
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}

func TestAttemptPolicy_CyclesCandidatesUpToMaxAttempts(t *testing.T) {
	var delays []time.Duration
	p := AttemptPolicy{MaxAttempts: 5, timer: newRecordingTimer(&delays)}
	cands := Candidates([]string{"a", "b"}, []string{"m"})

	var tried []string
	_, err := p.Run(context.Background(), cands, func(_ context.Context, c Candidate) (string, error) {
		tried = append(tried, c.Key)
		return "", errors.New("busy")
	})
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Contains(t, err.Error(), "after 5 attempt(s)")
	assert.Equal(t, []string{"a", "b", "a", "b", "a"}, tried)
	assert.Len(t, delays, 4)

	// fewer attempts than candidates leaves the rest untried
	tried = nil
	p.MaxAttempts = 1
	_, _ = p.Run(context.Background(), cands, func(_ context.Context, c Candidate) (string, error) {
		tried = append(tried, c.Key)
		return "", errors.New("busy")
	})
	assert.Equal(t, []string{"a"}, tried)
}

func TestAttemptPolicy_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := AttemptPolicy{MaxAttempts: 3, BaseDelay: time.Second}
	calls := 0
	_, err := p.Run(ctx, Candidates([]string{"a", "b"}, []string{"m"}), func(ctx context.Context, _ Candidate) (string, error) {
		calls++
		return "", ctx.Err()
	})
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Equal(t, 1, calls)
}

type geminiStub struct {
	keys   []string
	bodies []generateRequest
	paths  []string
}

func newGeminiServer(t *testing.T, stub *geminiStub, handle func(w http.ResponseWriter, key string)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body generateRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		stub.bodies = append(stub.bodies, body)
		stub.paths = append(stub.paths, r.URL.Path)
		key := r.URL.Query().Get("key")
		stub.keys = append(stub.keys, key)
		w.Header().Set("Content-Type", "application/json")
		handle(w, key)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func fastPolicy() AttemptPolicy {
	return AttemptPolicy{MaxAttempts: 4, MaxElapsed: 5 * time.Second}
}

func TestLLMClient_FallsBackToNextKey(t *testing.T) {
	stub := &geminiStub{}
	url := newGeminiServer(t, stub, func(w http.ResponseWriter, key string) {
		if key == "bad" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":" Drink water "},{"text":"before donating."}]}}]}`))
	})

	llm := NewLLMClient(LLMConfig{
		BaseURL:      url,
		APIKeys:      []string{"bad", "good"},
		Models:       []string{"gemini-test"},
		SystemPrompt: "You help blood donors.",
		Policy:       fastPolicy(),
	}, zap.NewNop())

	history := []domain.ChatbotMessage{
		{Role: domain.ChatRoleUser, Content: "hi"},
		{Role: domain.ChatRoleBot, Content: "hello"},
		{Role: domain.ChatRoleSystem, Content: "ignored"},
	}
	out, err := llm.Generate(context.Background(), history, "any tips?")
	require.NoError(t, err)
	assert.Equal(t, "Drink water before donating.", out)

	assert.Equal(t, []string{"bad", "good"}, stub.keys)
	assert.Equal(t, "/models/gemini-test:generateContent", stub.paths[0])

	body := stub.bodies[1]
	require.NotNil(t, body.SystemInstruction)
	assert.Equal(t, "You help blood donors.", body.SystemInstruction.Parts[0].Text)
	require.Len(t, body.Contents, 3)
	assert.Equal(t, "user", body.Contents[0].Role)
	assert.Equal(t, "model", body.Contents[1].Role)
	assert.Equal(t, "any tips?", body.Contents[2].Parts[0].Text)
	assert.Equal(t, 512, body.GenerationConfig.MaxOutputTokens)
}

func TestLLMClient_MalformedResponse(t *testing.T) {
	stub := &geminiStub{}
	url := newGeminiServer(t, stub, func(w http.ResponseWriter, _ string) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	})
	llm := NewLLMClient(LLMConfig{BaseURL: url, APIKeys: []string{"k"}, Models: []string{"m1", "m2"}, Policy: fastPolicy()}, zap.NewNop())

	_, err := llm.Generate(context.Background(), nil, "question")
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Len(t, stub.keys, 2)
}

func TestLLMClient_Disabled(t *testing.T) {
	llm := NewLLMClient(LLMConfig{Models: []string{"m"}}, zap.NewNop())
	assert.False(t, llm.Enabled())
	_, err := llm.Generate(context.Background(), nil, "q")
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
}

type fakeGenerator struct {
	out   string
	err   error
	calls int
}

func (f *fakeGenerator) Generate(context.Context, []domain.ChatbotMessage, string) (string, error) {
	f.calls++
	return f.out, f.err
}

func TestResponder_Reply(t *testing.T) {
	rules, err := NewRuleEngine(DefaultIntents())
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("rules first", func(t *testing.T) {
		gen := &fakeGenerator{out: "model text"}
		r := NewResponder(rules, gen, zap.NewNop()).Reply(ctx, nil, "am I eligible?")
		assert.Equal(t, SourceRules, r.Source)
		assert.Equal(t, "eligibility", r.Intent)
		assert.Zero(t, gen.calls)
	})

	t.Run("llm when no rule matches", func(t *testing.T) {
		gen := &fakeGenerator{out: "  Iron-rich food helps.  "}
		r := NewResponder(rules, gen, zap.NewNop()).Reply(ctx, nil, "what should I eat tonight")
		assert.Equal(t, SourceLLM, r.Source)
		assert.Equal(t, "Iron-rich food helps.", r.Text)
	})

	t.Run("fallback on llm error", func(t *testing.T) {
		gen := &fakeGenerator{err: ErrAttemptsExhausted}
		r := NewResponder(rules, gen, zap.NewNop()).Reply(ctx, nil, "what should I eat tonight")
		assert.Equal(t, SourceFallback, r.Source)
		assert.Equal(t, FallbackText, r.Text)
	})

	t.Run("fallback on blank llm output", func(t *testing.T) {
		r := NewResponder(rules, &fakeGenerator{out: "   "}, zap.NewNop()).Reply(ctx, nil, "what should I eat tonight")
		assert.Equal(t, SourceFallback, r.Source)
	})

	t.Run("fallback without llm", func(t *testing.T) {
		r := NewResponder(rules, nil, zap.NewNop()).Reply(ctx, nil, "what should I eat tonight")
		assert.Equal(t, SourceFallback, r.Source)
	})

	t.Run("empty input", func(t *testing.T) {
		gen := &fakeGenerator{out: "x"}
		r := NewResponder(rules, gen, zap.NewNop()).Reply(ctx, nil, "  ")
		assert.Equal(t, SourceFallback, r.Source)
		assert.Zero(t, gen.calls)
	})
}
