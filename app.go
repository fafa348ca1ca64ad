package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chazu/tacit/pkg/config"
	"github.com/chazu/tacit/pkg/engine"
	"github.com/chazu/tacit/pkg/export"
	"github.com/chazu/tacit/pkg/logging"
	"github.com/chazu/tacit/pkg/session"
	"github.com/sirupsen/logrus"
)

// clayColor is the display color of every sculpture chunk.
const clayColor = "#cc9e7a"

// App is the front end's view of a sculpting session.
type App struct {
	ctx     context.Context
	cfg     config.Config
	session *session.Session
	engine  *engine.Engine
	log     *logrus.Entry
}

// MeshData is the JSON-serializable mesh sent to the viewer.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	PartName string    `json:"partName"`
	Color    string    `json:"color"`
}

// EvalErrorData is the JSON-serializable form of an evaluation error.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// ImpulseData is a controller rumble produced during evaluation.
type ImpulseData struct {
	Hand       string  `json:"hand"`
	Amplitude  float64 `json:"amplitude"`
	DurationMS int64   `json:"durationMs"`
}

// EvalResult is the complete result of an Evaluate call.
type EvalResult struct {
	Meshes   []MeshData      `json:"meshes"`
	Messages []string        `json:"messages"`
	Impulses []ImpulseData   `json:"impulses"`
	Changed  int             `json:"changed"`
	Value    string          `json:"value"`
	Errors   []EvalErrorData `json:"errors"`
	Warnings []string        `json:"warnings"`
}

// NewApp creates a session from cfg and an engine to script it.
func NewApp(cfg config.Config) (*App, error) {
	s, err := session.New(cfg, session.Options{})
	if err != nil {
		return nil, err
	}
	log := logging.New("app")
	return &App{
		ctx:     context.Background(),
		cfg:     cfg,
		session: s,
		engine:  engine.NewEngine(s, engine.WithLogger(log.WithField("stage", "script"))),
		log:     log,
	}, nil
}

// startup binds the app to a context that bounds every evaluation.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
}

// Evaluate runs a sculpt script and returns the resulting sculpture along
// with the feedback it produced. Errors are reported in the result.
func (a *App) Evaluate(source string) EvalResult {
	result := EvalResult{
		Meshes:   []MeshData{},
		Messages: []string{},
		Impulses: []ImpulseData{},
		Errors:   []EvalErrorData{},
		Warnings: []string{},
	}

	res, evalErrs, err := a.engine.Evaluate(a.ctx, source)
	if err != nil {
		a.log.WithError(err).Error("evaluate")
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}
	for _, e := range evalErrs {
		result.Errors = append(result.Errors, EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message})
	}
	if len(evalErrs) > 0 {
		return result
	}

	result.Value = res.Value
	result.Changed = res.Changed
	for _, o := range res.Outputs {
		if o.Message != "" {
			result.Messages = append(result.Messages, o.Message)
		}
		if o.Modality == session.Handheld && o.Impulse.Duration > 0 {
			result.Impulses = append(result.Impulses, ImpulseData{
				Hand:       o.Hand.String(),
				Amplitude:  o.Impulse.Amplitude,
				DurationMS: o.Impulse.Duration.Milliseconds(),
			})
		}
	}
	if anomalies := a.anomalies(); anomalies > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d contact count anomalies", anomalies))
	}
	result.Meshes = a.Meshes()
	return result
}

// Meshes returns the current sculpture split into viewer-sized chunks.
func (a *App) Meshes() []MeshData {
	out := []MeshData{}
	m := a.session.Mesh()
	if m == nil || m.IsEmpty() {
		return out
	}
	for _, chunk := range m.Partition(a.cfg.MaxChunkVerts) {
		out = append(out, MeshData{
			Vertices: chunk.Vertices,
			Normals:  chunk.Normals,
			Indices:  chunk.Indices,
			PartName: chunk.Name,
			Color:    clayColor,
		})
	}
	return out
}

func (a *App) anomalies() int {
	n := 0
	for h := session.Left; h <= session.Right; h++ {
		for d := session.Thumb; d <= session.Controller; d++ {
			if c, err := a.session.Classifier(h, d); err == nil {
				n += c.Anomalies()
			}
		}
	}
	return n
}

// Export saves the sculpture into dir under a timestamped name. A positive
// smooth re-extracts the field at that many steps per side instead of
// writing the live mesh.
func (a *App) Export(dir string, format export.Format, smooth int) (string, error) {
	m := a.session.Mesh()
	if smooth > 0 {
		f := a.session.Editor().Field()
		var err error
		if m, err = export.Remesh(f, f.Scale(), f.HeightOffset(), smooth); err != nil {
			return "", err
		}
	}
	path, err := export.Save(dir, m, format, a.cfg.MaxChunkVerts, time.Now())
	if err != nil {
		return "", err
	}
	a.log.WithField("path", path).Info("sculpture exported")
	return path, nil
}

// SaveSnapshot writes the voxel field to path.
func (a *App) SaveSnapshot(path string) error {
	data, err := a.session.Editor().Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot replaces the sculpture with the field stored at path.
func (a *App) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return a.session.Restore(data)
}
