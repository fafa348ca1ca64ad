package engine

import (
	"fmt"
	"strings"

	"github.com/chazu/tacit/pkg/session"
	"github.com/chazu/tacit/pkg/voxel"
	zygo "github.com/glycerine/zygomys/zygo"
	"gonum.org/v1/gonum/spatial/r3"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms sculpt scripts before passing them to
// zygomys. It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: tool-radius -> tool_radius
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpVec3 wraps a world-space position.
type sexpVec3 struct {
	vec r3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				// Keyword at end with no value: treat as flag with nil.
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_left) and plain strings ("left").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], nil
	}
	return str.S, nil
}

// toBool accepts true/false; a bare flag keyword (nil value) counts as true.
func toBool(s zygo.Sexp) (bool, error) {
	switch v := s.(type) {
	case *zygo.SexpBool:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return true, nil
		}
	}
	return false, fmt.Errorf("expected boolean, got %T (%s)", s, s.SexpString(nil))
}

// toVec3 extracts a position from a sexpVec3.
func toVec3(s zygo.Sexp) (r3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return r3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// toPosition accepts either a single vec3 or three numbers.
func toPosition(args []zygo.Sexp) (r3.Vec, error) {
	switch len(args) {
	case 1:
		return toVec3(args[0])
	case 3:
		var c [3]float64
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return r3.Vec{}, fmt.Errorf("coordinate %d: %w", i+1, err)
			}
			c[i] = f
		}
		return r3.Vec{X: c[0], Y: c[1], Z: c[2]}, nil
	}
	return r3.Vec{}, fmt.Errorf("expected a vec3 or three numbers, got %d arguments", len(args))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

func toHand(s zygo.Sexp) (session.Hand, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return 0, err
	}
	return session.ParseHand(name)
}

func toModality(s zygo.Sexp) (session.Modality, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return 0, err
	}
	switch name {
	case "glove":
		return session.Glove, nil
	case "controller":
		return session.Handheld, nil
	case "single":
		return session.SingleEffector, nil
	}
	return 0, fmt.Errorf("invalid device %q, expected glove, controller, or single", name)
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// recorder accumulates the side effects of one evaluation.
type recorder struct {
	changed int
	outputs []session.Output
}

// registerBuiltins installs the sculpting builtins into a zygomys
// environment. They drive s and record what happened in rec.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, s *session.Session, rec *recorder) {

	// -----------------------------------------------------------------------
	// (vec3 0 1 0)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		p, err := toPosition(args)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: %w", err)
		}
		return &sexpVec3{vec: p}, nil
	})

	// -----------------------------------------------------------------------
	// (carve 0 1 0) or (carve (vec3 0 1 0)); (add ...) likewise
	// -----------------------------------------------------------------------
	stroke := func(label string, apply func(r3.Vec) (int, error)) zygo.ZlispUserFunction {
		return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			p, err := toPosition(args)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", label, err)
			}
			n, err := apply(p)
			rec.changed += n
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", label, err)
			}
			return &zygo.SexpInt{Val: int64(n)}, nil
		}
	}
	env.AddFunction("carve", stroke("carve", s.Editor().Carve))
	env.AddFunction("add", stroke("add", s.Editor().Add))

	// -----------------------------------------------------------------------
	// (tool :carving | :adding | :toggle)
	// -----------------------------------------------------------------------
	env.AddFunction("tool", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) == 0 {
			return &zygo.SexpStr{S: s.ToolMode().String()}, nil
		}
		mode, err := toKeywordString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("tool: %w", err)
		}
		// Every change goes through the toggle so controllers get the
		// confirming pulses.
		switch mode {
		case "toggle":
			s.ToggleToolMode()
		case "carving", "adding":
			if s.ToolMode().String() != mode {
				s.ToggleToolMode()
			}
		default:
			return zygo.SexpNull, fmt.Errorf("tool: invalid mode %q, expected carving, adding, or toggle", mode)
		}
		return &zygo.SexpStr{S: s.ToolMode().String()}, nil
	})

	// -----------------------------------------------------------------------
	// (radius 3)
	// -----------------------------------------------------------------------
	env.AddFunction("radius", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) == 0 {
			return &zygo.SexpInt{Val: int64(s.Editor().ToolRadius())}, nil
		}
		f, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("radius: %w", err)
		}
		if err := s.Editor().SetToolRadius(int(f)); err != nil {
			return zygo.SexpNull, fmt.Errorf("radius: %w", err)
		}
		return &zygo.SexpInt{Val: int64(s.Editor().ToolRadius())}, nil
	})

	// -----------------------------------------------------------------------
	// (shape :cube 0.5); the size is optional
	// -----------------------------------------------------------------------
	env.AddFunction("shape", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 1 || len(args) > 2 {
			return zygo.SexpNull, fmt.Errorf("shape requires a shape keyword and an optional size")
		}
		kw, err := toKeywordString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("shape: %w", err)
		}
		shape, err := voxel.ParseShape(kw)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("shape: %w", err)
		}
		_, size := s.Editor().BaseShape()
		if len(args) == 2 {
			if size, err = toFloat64(args[1]); err != nil {
				return zygo.SexpNull, fmt.Errorf("shape: size: %w", err)
			}
		}
		if err := s.SetBaseShape(shape, size); err != nil {
			return zygo.SexpNull, fmt.Errorf("shape: %w", err)
		}
		return &zygo.SexpStr{S: shape.String()}, nil
	})

	// -----------------------------------------------------------------------
	// (regenerate)
	// -----------------------------------------------------------------------
	env.AddFunction("regenerate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if err := s.Regenerate(); err != nil {
			return zygo.SexpNull, fmt.Errorf("regenerate: %w", err)
		}
		return &zygo.SexpInt{Val: int64(s.Editor().Field().Count())}, nil
	})

	// -----------------------------------------------------------------------
	// (enter :left :index) and (exit :left :index)
	// -----------------------------------------------------------------------
	contact := func(label string, fn func(session.Hand, session.Digit) error) zygo.ZlispUserFunction {
		return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) != 2 {
				return zygo.SexpNull, fmt.Errorf("%s requires a hand and a digit", label)
			}
			h, err := toHand(args[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", label, err)
			}
			dn, err := toKeywordString(args[1])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", label, err)
			}
			d, err := session.ParseDigit(dn)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", label, err)
			}
			if err := fn(h, d); err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", label, err)
			}
			return zygo.SexpNull, nil
		}
	}
	env.AddFunction("enter", contact("enter", s.Enter))
	env.AddFunction("exit", contact("exit", s.Exit))

	// -----------------------------------------------------------------------
	// (calibrate :left :min)
	// -----------------------------------------------------------------------
	env.AddFunction("calibrate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("calibrate requires a hand and :min or :max")
		}
		h, err := toHand(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("calibrate: %w", err)
		}
		bound, err := toKeywordString(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("calibrate: %w", err)
		}
		switch bound {
		case "min":
			err = s.CalibrateMin(h)
		case "max":
			err = s.CalibrateMax(h)
		default:
			err = fmt.Errorf("invalid bound %q, expected min or max", bound)
		}
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("calibrate: %w", err)
		}
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (tick :left (vec3 0 1 0) :right (vec3 ...) :device :controller
	//       :trigger true :flex "f,1,2,3" :fingers (list v v v))
	//
	// Returns the list of glove messages sent this frame.
	// -----------------------------------------------------------------------
	env.AddFunction("tick", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) > 0 {
			return zygo.SexpNull, fmt.Errorf("tick takes keyword arguments only")
		}
		base := session.Pose{Modality: session.Glove}
		if v, ok := pa.kw["device"]; ok {
			m, err := toModality(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("tick: device: %w", err)
			}
			base.Modality = m
		}
		if v, ok := pa.kw["trigger"]; ok {
			b, err := toBool(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("tick: trigger: %w", err)
			}
			base.Trigger = b
		}
		if v, ok := pa.kw["flex"]; ok {
			str, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("tick: flex: %w", err)
			}
			base.Flex = str
		}
		var fingers []r3.Vec
		if v, ok := pa.kw["fingers"]; ok {
			items, err := sexpListToSlice(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("tick: fingers: %w", err)
			}
			if len(items) != len(base.Fingers) {
				return zygo.SexpNull, fmt.Errorf("tick: fingers: expected %d positions, got %d", len(base.Fingers), len(items))
			}
			for _, item := range items {
				p, err := toVec3(item)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("tick: fingers: %w", err)
				}
				fingers = append(fingers, p)
			}
		}

		pose := func(key string) (*session.Pose, error) {
			v, ok := pa.kw[key]
			if !ok {
				return nil, nil
			}
			at, err := toVec3(v)
			if err != nil {
				return nil, fmt.Errorf("tick: %s: %w", key, err)
			}
			p := base
			p.Tool = at
			for i := range p.Fingers {
				p.Fingers[i] = at
				if fingers != nil {
					p.Fingers[i] = fingers[i]
				}
			}
			return &p, nil
		}
		var (
			frame session.Frame
			err   error
		)
		if frame.Left, err = pose("left"); err != nil {
			return zygo.SexpNull, err
		}
		if frame.Right, err = pose("right"); err != nil {
			return zygo.SexpNull, err
		}

		outs, err := s.Tick(frame)
		var sent []zygo.Sexp
		for _, out := range outs {
			rec.changed += out.Changed
			if out.Message != "" {
				sent = append(sent, &zygo.SexpStr{S: out.Message})
			}
		}
		rec.outputs = append(rec.outputs, outs...)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("tick: %w", err)
		}
		return zygo.MakeList(sent), nil
	})
}
