// Package engine evaluates sculpt scripts against a live session. Scripts
// are zygomys Lisp running in a sandbox; the session outlives each
// evaluation so consecutive scripts continue the same sculpture.
package engine

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chazu/tacit/pkg/logging"
	"github.com/chazu/tacit/pkg/session"
	"github.com/chazu/tacit/pkg/telemetry"
	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Result is what a successful evaluation did to the session.
type Result struct {
	// Value is the printed value of the last expression.
	Value string
	// Changed counts cells edited by carve, add and tick strokes.
	Changed int
	// Outputs holds every hand output produced by tick, in order.
	Outputs []session.Output
}

// Messages returns the glove messages that were actually sent.
func (r *Result) Messages() []string {
	var out []string
	for _, o := range r.Outputs {
		if o.Message != "" {
			out = append(out, o.Message)
		}
	}
	return out
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout overrides EvalTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger replaces the default component logger.
func WithLogger(log *logrus.Entry) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// Engine runs scripts against one session. Evaluations are serialized;
// each gets a fresh sandboxed environment.
type Engine struct {
	mu         sync.Mutex
	generation uint64

	// run guards the session. A timed-out evaluation keeps it until its
	// goroutine finishes.
	run     sync.Mutex
	session *session.Session
	timeout time.Duration
	log     *logrus.Entry
}

// NewEngine creates an engine driving s.
func NewEngine(s *session.Session, opts ...Option) *Engine {
	e := &Engine{session: s, timeout: EvalTimeout, log: logging.New("engine")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Session returns the driven session.
func (e *Engine) Session() *session.Session { return e.session }

// Evaluate runs source against the session.
//
// Return semantics:
//   - On success: returns result + nil errors + nil error
//   - On parse/eval failure: returns nil result + eval errors + nil error.
//     Edits made before the failing expression stay applied.
//   - On fatal failure (timeout, panic, superseded): returns nil + nil + error
func (e *Engine) Evaluate(ctx context.Context, source string) (*Result, []EvalError, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "engine.Evaluate")
	defer span.End()

	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()
	span.SetAttributes(attribute.Int64("tacit.generation", int64(gen)))

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		res, evalErrs, err := e.evaluate(source)
		ch <- evalResult{result: res, errors: evalErrs, err: err}
	}()

	res, evalErrs, err := waitWithTimeout(ctx, ch, gen, &e.mu, &e.generation, e.timeout)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.log.WithError(err).Warn("evaluation failed")
	case len(evalErrs) > 0:
		span.SetAttributes(attribute.Int("tacit.eval_errors", len(evalErrs)))
		e.log.WithField("errors", len(evalErrs)).Debug("script errors")
	default:
		span.SetAttributes(
			attribute.Int("tacit.changed", res.Changed),
			attribute.Int("tacit.outputs", len(res.Outputs)),
		)
	}
	return res, evalErrs, err
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*Result, []EvalError, error) {
	// Empty source is a valid program that does nothing.
	if strings.TrimSpace(source) == "" {
		return &Result{}, nil, nil
	}
	if e.session == nil {
		return nil, nil, fmt.Errorf("engine has no session")
	}

	e.run.Lock()
	defer e.run.Unlock()

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	rec := &recorder{}
	registerBuiltins(env, e.session, rec)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}

	val, err := env.Run()
	if err != nil {
		return nil, parseZygomysError(err), nil
	}

	res := &Result{Changed: rec.changed, Outputs: rec.outputs}
	if val != nil {
		res.Value = val.SexpString(nil)
	}
	return res, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n"
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}

	// Fallback: no line info available.
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
