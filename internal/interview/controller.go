// Package interview runs practice turns: one question, one recorded answer, one feedback report.
package interview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mimic-ai/interview/internal/analysis"
	"github.com/mimic-ai/interview/internal/apperr"
	"github.com/mimic-ai/interview/internal/capture"
	"github.com/mimic-ai/interview/internal/notify"
	"github.com/mimic-ai/interview/internal/turn"
	"github.com/mimic-ai/interview/internal/upload"
)

var (
	// ErrTurnInProgress is returned by StartTurn while another turn is active.
	ErrTurnInProgress = errors.New("interview: turn in progress")
	// ErrNotReady is returned when no question is loaded.
	ErrNotReady = errors.New("interview: no question loaded")
	// ErrNoActiveTurn is returned by FinishTurn when nothing is recording.
	ErrNoActiveTurn = errors.New("interview: no active turn")
)

// Recorder captures one answer. *capture.Session implements it.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (*capture.Artifact, error)
	Elapsed() int
}

// Uploader persists an answer. *upload.Client implements it.
type Uploader interface {
	Upload(ctx context.Context, art *capture.Artifact, questionID int64) (upload.VideoRecord, error)
}

// Analyzer turns an uploaded answer into a report. *analysis.Orchestrator implements it.
type Analyzer interface {
	Run(ctx context.Context, req analysis.Request, stage analysis.Stager) (analysis.Report, error)
}

// Feedback is what the feedback view receives.
type Feedback struct {
	Turn     int
	Question Question
	VideoID  int64
	Report   analysis.Report
}

// Navigator moves the UI to the feedback view.
type Navigator interface {
	ShowFeedback(ctx context.Context, fb Feedback) error
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Questions QuestionSource
	Recorder  Recorder
	Uploader  Uploader
	Analyzer  Analyzer
	Navigator Navigator
	Notifier  notify.Notifier
	Observers []turn.Observer
	BatchSize int
	Logger    *zap.Logger
}

// Controller owns the question queue and serializes turns.
type Controller struct {
	deps Deps
	log  *zap.Logger

	busy      atomic.Bool
	finishing atomic.Bool

	mu      sync.Mutex
	queue   Queue
	loaded  bool
	turnNo  int
	machine *turn.Machine
	cancel  context.CancelFunc
	turnCtx context.Context
}

// NewController wires a controller.
func NewController(d Deps) *Controller {
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.BatchSize <= 0 {
		d.BatchSize = DefaultBatchSize
	}
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{deps: d, log: log}
}

// Load fetches the first batch of questions.
func (c *Controller) Load(ctx context.Context) error {
	qs, err := c.deps.Questions.Fetch(ctx, c.deps.BatchSize)
	if err != nil {
		c.report(err)
		return err
	}
	c.mu.Lock()
	c.queue.Reset(qs)
	c.loaded = true
	c.mu.Unlock()
	c.deps.Notifier.Clear()
	return nil
}

// Ready reports whether recording controls should be enabled.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.queue.Current()
	return c.loaded && ok && !c.busy.Load()
}

// Current returns the question being asked.
func (c *Controller) Current() (Question, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return Question{}, false
	}
	return c.queue.Current()
}

// Position returns the 0-based cursor and batch size.
func (c *Controller) Position() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Position()
}

// State returns the state of the latest turn.
func (c *Controller) State() turn.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machine == nil {
		return turn.Idle
	}
	return c.machine.State()
}

// Elapsed returns seconds recorded in the current turn.
func (c *Controller) Elapsed() int { return c.deps.Recorder.Elapsed() }

// StartTurn begins recording an answer to the current question.
func (c *Controller) StartTurn(ctx context.Context) error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrTurnInProgress
	}

	c.mu.Lock()
	q, ok := c.queue.Current()
	if !c.loaded || !ok {
		c.mu.Unlock()
		c.busy.Store(false)
		return ErrNotReady
	}
	c.turnNo++
	m := turn.NewMachine(c.turnNo, c.deps.Observers...)
	turnCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.machine, c.turnCtx, c.cancel = m, turnCtx, cancel
	c.mu.Unlock()

	c.deps.Notifier.Clear()
	if err := m.Advance(turn.Recording); err != nil {
		return c.fail(m, err)
	}
	if err := c.deps.Recorder.Start(turnCtx); err != nil {
		return c.fail(m, err)
	}
	c.log.Info("turn started", zap.Int("turn", m.Turn()), zap.Int64("question_id", q.ID))
	return nil
}

// FinishTurn stops recording and runs upload, analysis and navigation. Cancelling ctx
// or calling Abort cancels the remaining stages.
func (c *Controller) FinishTurn(ctx context.Context) (analysis.Report, error) {
	if !c.finishing.CompareAndSwap(false, true) {
		return nil, ErrNoActiveTurn
	}
	c.mu.Lock()
	m, turnCtx := c.machine, c.turnCtx
	q, _ := c.queue.Current()
	c.mu.Unlock()
	if m == nil || m.State() != turn.Recording {
		c.finishing.Store(false)
		return nil, ErrNoActiveTurn
	}
	stop := context.AfterFunc(ctx, c.cancelTurn)
	defer stop()

	art, err := c.stopRecording(turnCtx, m)
	if err != nil {
		return nil, err
	}
	c.deps.Notifier.Notify(notify.Info(fmt.Sprintf("アップロード中 (%s)", art.HumanSize())))

	rec, err := c.deps.Uploader.Upload(turnCtx, art, q.ID)
	if err != nil {
		return nil, c.fail(m, err)
	}
	filename := art.Filename
	art = nil

	report, err := c.deps.Analyzer.Run(turnCtx, analysis.Request{
		VideoID:    rec.ID,
		Filename:   filename,
		QuestionID: q.ID,
		Question:   q.Data,
		Category:   q.Category,
	}, m)
	if err != nil {
		return nil, c.fail(m, err)
	}

	fb := Feedback{Turn: m.Turn(), Question: q, VideoID: rec.ID, Report: report}
	if err := c.deps.Navigator.ShowFeedback(turnCtx, fb); err != nil {
		return nil, c.fail(m, fmt.Errorf("show feedback: %w", err))
	}
	if err := m.Advance(turn.Delivered); err != nil {
		return nil, c.fail(m, err)
	}
	c.log.Info("turn delivered", zap.Int("turn", m.Turn()), zap.Int64("video_id", rec.ID))

	c.advance(ctx)
	c.release()
	return report, nil
}

// stopRecording takes the turn from Recording to Uploading. The caller holds c.finishing,
// which is released once the machine has left Recording.
func (c *Controller) stopRecording(turnCtx context.Context, m *turn.Machine) (*capture.Artifact, error) {
	defer c.finishing.Store(false)
	art, err := c.deps.Recorder.Stop()
	if err != nil {
		if errors.Is(err, capture.ErrNotRecording) && turnCtx.Err() != nil {
			err = turnCtx.Err()
		}
		return nil, c.fail(m, err)
	}
	if err := m.Advance(turn.Uploading); err != nil {
		return nil, c.fail(m, err)
	}
	return art, nil
}

// advance moves past a delivered question, fetching one new batch when the current one runs out.
func (c *Controller) advance(ctx context.Context) {
	c.mu.Lock()
	exhausted := c.queue.Advance()
	c.mu.Unlock()
	if !exhausted {
		return
	}
	qs, err := c.deps.Questions.Fetch(ctx, c.deps.BatchSize)
	if err != nil {
		c.mu.Lock()
		c.loaded = false
		c.mu.Unlock()
		c.report(err)
		return
	}
	c.mu.Lock()
	c.queue.Reset(qs)
	c.mu.Unlock()
}

// Abort cancels the in-flight turn and stops capture if it is still recording.
func (c *Controller) Abort() {
	c.mu.Lock()
	m := c.machine
	c.mu.Unlock()
	c.cancelTurn()
	if m == nil || m.State() != turn.Recording {
		return
	}
	if _, err := c.deps.Recorder.Stop(); err != nil && !errors.Is(err, capture.ErrNotRecording) {
		c.log.Warn("stop capture on abort", zap.Error(err))
	}
	if err := m.Fail(context.Canceled); err == nil {
		c.release()
	}
}

func (c *Controller) cancelTurn() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// fail marks the turn failed, surfaces the error and frees the controller for the
// next turn. The cursor stays on the same question.
func (c *Controller) fail(m *turn.Machine, err error) error {
	if ferr := m.Fail(err); ferr != nil {
		// Abort got there first.
		c.log.Debug("turn already terminal", zap.Error(ferr))
		c.release()
		return err
	}
	c.report(err)
	c.release()
	return err
}

func (c *Controller) release() {
	c.cancelTurn()
	c.busy.Store(false)
}

func (c *Controller) report(err error) {
	if errors.Is(err, context.Canceled) {
		c.log.Info("turn cancelled")
		return
	}
	c.log.Error("interview error", zap.String("kind", string(apperr.KindOf(err))), zap.Error(err))
	c.deps.Notifier.Notify(notify.FromError(err))
}
