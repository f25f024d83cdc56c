package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mimic-ai/interview/internal/analysis"
	"github.com/mimic-ai/interview/internal/apperr"
	"github.com/mimic-ai/interview/internal/capture"
	"github.com/mimic-ai/interview/internal/interview"
	"github.com/mimic-ai/interview/internal/progress"
)

// Keyboard input maps onto the same commands the progress UI sends.
const (
	cmdToggle = "toggle"
	cmdQuit   = "quit"
)

// turnController is the part of *interview.Controller the loop drives.
type turnController interface {
	Load(ctx context.Context) error
	Ready() bool
	Current() (interview.Question, bool)
	Position() (int, int)
	StartTurn(ctx context.Context) error
	FinishTurn(ctx context.Context) (analysis.Report, error)
	Abort()
	Elapsed() int
}

type practiceLoop struct {
	ctrl        turnController
	hub         *progress.Hub
	commands    <-chan string
	out         io.Writer
	interactive bool
	maxTurns    int
	tick        time.Duration
}

var errQuit = errors.New("quit")

// readCommands turns stdin lines into commands: Enter toggles recording, "a" aborts, "q" quits.
func readCommands(r io.Reader, out chan<- string) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		switch strings.ToLower(strings.TrimSpace(sc.Text())) {
		case "":
			out <- cmdToggle
		case "a", "abort":
			out <- progress.CommandAbort
		case "q", "quit", "exit":
			out <- cmdQuit
		}
	}
	out <- cmdQuit
}

func (l *practiceLoop) run(ctx context.Context) error {
	if err := l.ctrl.Load(ctx); err != nil {
		return err
	}
	delivered := 0
	for {
		if !l.ctrl.Ready() {
			if err := l.ctrl.Load(ctx); err != nil {
				return err
			}
		}
		q, ok := l.ctrl.Current()
		if !ok {
			return interview.ErrNotReady
		}
		pos, total := l.ctrl.Position()
		fmt.Fprintf(l.out, "\n[%d/%d] %s\n", pos+1, total, q.Data)
		l.broadcast(progress.EventQuestion, q)
		fmt.Fprintln(l.out, "Enter で録音開始 / q で終了")

		cmd, err := l.next(ctx)
		if err != nil {
			return err
		}
		switch cmd {
		case cmdQuit:
			return nil
		case cmdToggle, progress.CommandStart:
		default:
			continue
		}

		ok, err = l.turn(ctx)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			return err
		}
		if ok {
			delivered++
			if l.maxTurns > 0 && delivered >= l.maxTurns {
				return nil
			}
		}
	}
}

// turn records and processes one answer. It reports whether feedback was delivered.
// Failures the user can retry return (false, nil); the controller has already notified them.
func (l *practiceLoop) turn(ctx context.Context) (bool, error) {
	if err := l.ctrl.StartTurn(ctx); err != nil {
		return false, stopOn(err)
	}
	stopTicker := l.showElapsed()
	fmt.Fprintln(l.out, "録音中: Enter で停止 / a で中止")

	for {
		cmd, err := l.next(ctx)
		if err != nil {
			stopTicker()
			l.ctrl.Abort()
			return false, err
		}
		switch cmd {
		case cmdToggle, progress.CommandFinish:
			stopTicker()
			return l.finish(ctx)
		case progress.CommandAbort:
			stopTicker()
			l.ctrl.Abort()
			fmt.Fprintln(l.out, "録音を中止しました")
			return false, nil
		case cmdQuit:
			stopTicker()
			l.ctrl.Abort()
			return false, errQuit
		}
	}
}

type finishResult struct {
	report analysis.Report
	err    error
}

func (l *practiceLoop) finish(ctx context.Context) (bool, error) {
	done := make(chan finishResult, 1)
	go func() {
		rep, err := l.ctrl.FinishTurn(ctx)
		done <- finishResult{rep, err}
	}()
	fmt.Fprintln(l.out, "アップロードと分析を実行しています (a で中止)")

	quitting := false
	for {
		select {
		case res := <-done:
			if quitting {
				return false, errQuit
			}
			if res.err != nil {
				return false, stopOn(res.err)
			}
			return true, nil
		case cmd := <-l.commands:
			switch cmd {
			case progress.CommandAbort:
				l.ctrl.Abort()
			case cmdQuit:
				quitting = true
				l.ctrl.Abort()
			}
		case <-ctx.Done():
			l.ctrl.Abort()
			<-done
			return false, ctx.Err()
		}
	}
}

// stopOn decides which turn errors end the session.
func stopOn(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return nil
	case apperr.IsKind(err, apperr.KindAuthentication), apperr.IsKind(err, apperr.KindDeviceAccess):
		return err
	case errors.Is(err, interview.ErrNotReady):
		return err
	default:
		return nil
	}
}

func (l *practiceLoop) next(ctx context.Context) (string, error) {
	select {
	case cmd := <-l.commands:
		return cmd, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// showElapsed prints and broadcasts the recording timer until the returned func is called.
func (l *practiceLoop) showElapsed() func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(l.tick)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				sec := l.ctrl.Elapsed()
				label := capture.FormatElapsed(sec)
				l.broadcast(progress.EventElapsed, map[string]any{"seconds": sec, "label": label})
				if l.interactive {
					fmt.Fprintf(l.out, "\r● %s", label)
				}
			}
		}
	}()
	return func() {
		close(stop)
		<-done
		if l.interactive {
			fmt.Fprintln(l.out)
		}
	}
}

func (l *practiceLoop) broadcast(event string, payload any) {
	if l.hub != nil {
		l.hub.Broadcast(event, payload)
	}
}
