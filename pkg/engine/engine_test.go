package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chazu/tacit/pkg/config"
	"github.com/chazu/tacit/pkg/haptic"
	"github.com/chazu/tacit/pkg/kernel/marching"
	"github.com/chazu/tacit/pkg/session"
	"github.com/chazu/tacit/pkg/voxel"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

// newTestEngine drives a 20-cell sphere of radius 0.6 centred at (0, 1, 0).
func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	s, err := session.New(config.Config{
		Resolution:      20,
		PlayAreaSize:    2,
		BaseShape:       voxel.ShapeSphere,
		ShapeSize:       1.2,
		ToolRadius:      2,
		Strategy:        marching.Cubes,
		ExtractWorkers:  1,
		MaxChunkVerts:   30000,
		HapticThrottle:  10,
		NearThreshold:   0.4,
		HapticMapping:   haptic.Inverse,
		InsideMagnitude: 200,
		LogLevel:        "info",
	}, session.Options{})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return NewEngine(s, opts...)
}

func evaluate(t *testing.T, eng *Engine, source string) *Result {
	t.Helper()
	res, evalErrs, err := eng.Evaluate(context.Background(), source)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("unexpected eval errors: %v", evalErrs)
	}
	if res == nil {
		t.Fatal("expected non-nil result")
	}
	return res
}

func TestEvaluateEmptyString(t *testing.T) {
	eng := newTestEngine(t)
	for _, src := range []string{"", "   \n\t  \n  "} {
		res := evaluate(t, eng, src)
		if res.Changed != 0 || len(res.Outputs) != 0 {
			t.Errorf("expected empty result for %q, got %+v", src, res)
		}
	}
}

func TestEvaluateValidExpression(t *testing.T) {
	eng := newTestEngine(t)
	res := evaluate(t, eng, "(+ 1 2)")
	if res.Value != "3" {
		t.Errorf("value = %q, want 3", res.Value)
	}
}

func TestEvaluateMultipleExpressions(t *testing.T) {
	eng := newTestEngine(t)

	source := `
(def x 10)
(def y 20)
(+ x y)
`
	res := evaluate(t, eng, source)
	if res.Value != "30" {
		t.Errorf("value = %q, want 30", res.Value)
	}
}

func TestEvaluateSyntaxError(t *testing.T) {
	eng := newTestEngine(t)

	// Unmatched paren is a parse error.
	res, evalErrs, err := eng.Evaluate(context.Background(), "(+ 1 2")
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if res != nil {
		t.Fatal("expected nil result on syntax error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected at least one eval error for syntax error")
	}
	if evalErrs[0].Message == "" {
		t.Error("eval error message should not be empty")
	}
}

func TestEvaluateUndefinedSymbol(t *testing.T) {
	eng := newTestEngine(t)

	res, evalErrs, err := eng.Evaluate(context.Background(), "(+ 1 undefined-symbol)")
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if res != nil {
		t.Fatal("expected nil result on eval error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected at least one eval error for undefined symbol")
	}
}

func TestEvalErrorImplementsError(t *testing.T) {
	e := EvalError{Line: 5, Message: "something went wrong"}
	s := e.Error()
	if !strings.Contains(s, "line 5") {
		t.Errorf("Error() should contain line info, got: %s", s)
	}
	if !strings.Contains(s, "something went wrong") {
		t.Errorf("Error() should contain message, got: %s", s)
	}

	e2 := EvalError{Message: "no location"}
	if strings.Contains(e2.Error(), "line") {
		t.Errorf("Error() with no line should not contain 'line', got: %s", e2.Error())
	}
}

func TestEvaluateWithoutSession(t *testing.T) {
	eng := NewEngine(nil)
	if _, _, err := eng.Evaluate(context.Background(), "(+ 1 2)"); err == nil {
		t.Fatal("expected fatal error without a session")
	}
}

func TestEvaluateTimeout(t *testing.T) {
	// Test the timeout plumbing directly with a channel that never sends.
	var mu sync.Mutex
	var gen uint64 = 1
	ch := make(chan evalResult)

	start := time.Now()
	_, _, err := waitWithTimeout(context.Background(), ch, 1, &mu, &gen, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout error message, got: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("timeout took %s", time.Since(start))
	}
}

func TestEvaluateCancelled(t *testing.T) {
	var mu sync.Mutex
	var gen uint64 = 1
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := waitWithTimeout(ctx, make(chan evalResult), 1, &mu, &gen, EvalTimeout)
	if err == nil || !strings.Contains(err.Error(), "cancelled") {
		t.Fatalf("expected cancellation error, got %v", err)
	}
}

func TestEvaluateGenerationDiscardsStale(t *testing.T) {
	var mu sync.Mutex
	gen := uint64(2) // Current generation is 2

	ch := make(chan evalResult, 1)
	ch <- evalResult{}

	// Pass generation 1 (stale).
	_, _, err := waitWithTimeout(context.Background(), ch, 1, &mu, &gen, EvalTimeout)
	if err == nil {
		t.Fatal("expected error for stale generation")
	}
	if !strings.Contains(err.Error(), "superseded") {
		t.Errorf("expected superseded error, got: %v", err)
	}
}

func TestWithTimeoutIgnoresNonPositive(t *testing.T) {
	eng := NewEngine(nil, WithTimeout(0))
	if eng.timeout != EvalTimeout {
		t.Errorf("timeout = %s, want %s", eng.timeout, EvalTimeout)
	}
	eng = NewEngine(nil, WithTimeout(time.Second))
	if eng.timeout != time.Second {
		t.Errorf("timeout = %s, want 1s", eng.timeout)
	}
}

func TestWithLoggerReceivesFailures(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	eng := NewEngine(nil, WithLogger(logger.WithField("stage", "script")))
	if _, _, err := eng.Evaluate(context.Background(), "(+ 1 2)"); err == nil {
		t.Fatal("expected fatal error without a session")
	}
	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry on the supplied logger")
	}
	if entry.Level != logrus.WarnLevel {
		t.Errorf("level = %s, want warning", entry.Level)
	}
	if entry.Data["stage"] != "script" {
		t.Errorf("fields = %v, want stage=script", entry.Data)
	}

	if eng := NewEngine(nil, WithLogger(nil)); eng.log == nil {
		t.Error("nil logger must keep the default")
	}
}

func TestParseZygomysError(t *testing.T) {
	tests := []struct {
		name     string
		msg      string
		wantLine int
		wantMsg  string
	}{
		{
			name:     "error on line format",
			msg:      "Error on line 5: unexpected token\n",
			wantLine: 5,
			wantMsg:  "unexpected token",
		},
		{
			name:     "no line info",
			msg:      "some generic error",
			wantLine: 0,
			wantMsg:  "some generic error",
		},
		{
			name:     "line format lowercase",
			msg:      "error on line 12: missing paren",
			wantLine: 12,
			wantMsg:  "missing paren",
		},
		{
			name:     "short line format",
			msg:      "line 3: carve: expected number",
			wantLine: 3,
			wantMsg:  "carve: expected number",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := parseZygomysError(errString(tt.msg))
			if len(errs) == 0 {
				t.Fatal("expected at least one error")
			}
			e := errs[0]
			if e.Line != tt.wantLine {
				t.Errorf("line = %d, want %d", e.Line, tt.wantLine)
			}
			if !strings.Contains(e.Message, tt.wantMsg) {
				t.Errorf("message = %q, want containing %q", e.Message, tt.wantMsg)
			}
		})
	}
}

// errString is a simple error type for testing.
type errString string

func (e errString) Error() string { return string(e) }
