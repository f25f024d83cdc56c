package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mimic-ai/interview/internal/analysis"
	"github.com/mimic-ai/interview/internal/backoff"
	"github.com/mimic-ai/interview/internal/capture"
	"github.com/mimic-ai/interview/internal/interview"
	"github.com/mimic-ai/interview/internal/notify"
	"github.com/mimic-ai/interview/internal/progress"
	"github.com/mimic-ai/interview/internal/turn"
	"github.com/mimic-ai/interview/internal/upload"
)

const storageTimeout = 5 * time.Minute

func newPracticeCommand(ctx *commandContext) *cobra.Command {
	var deviceFile, uiAddr string
	var turns int
	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Record answers to interview questions and get feedback",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if deviceFile != "" {
				cfg.DeviceFile = deviceFile
			}
			if uiAddr != "" {
				cfg.UIAddr = uiAddr
			}
			logger := ctx.log()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			api, auth, err := ctx.session()
			if err != nil {
				return err
			}
			user, err := auth.Restore(runCtx)
			if err != nil {
				return userFacing(err)
			}
			if user == nil {
				return errNotLoggedIn
			}

			device, err := openDevice(cfg.DeviceFile, cfg.FFmpegPath, cfg.DeviceInput, logger)
			if err != nil {
				return err
			}
			recorder := capture.NewSession(device, capture.Options{
				LockPath: cfg.LockFile,
				Username: auth.Username,
				Logger:   logger,
			})
			uploader := upload.NewClient(api, &http.Client{Timeout: storageTimeout}, backoff.Default(), logger)
			analyzer := analysis.New(api, analysis.Config{
				PollInterval: cfg.PollInterval,
				MaxWait:      cfg.PollMaxWait,
			}, backoff.Default(), logger)

			out := cmd.OutOrStdout()
			notifiers := notify.Multi{notify.NewWriter(cmd.ErrOrStderr())}
			var observers []turn.Observer
			var hub *progress.Hub
			if cfg.UIAddr != "" {
				hub = progress.NewHub(logger)
				notifiers = append(notifiers, hub)
				observers = append(observers, hub)
			}

			ctrl := interview.NewController(interview.Deps{
				Questions: interview.NewAPIQuestions(api),
				Recorder:  recorder,
				Uploader:  uploader,
				Analyzer:  analyzer,
				Navigator: &terminalNavigator{out: out, hub: hub},
				Notifier:  notifiers,
				Observers: observers,
				BatchSize: cfg.BatchSize,
				Logger:    logger,
			})

			commands := make(chan string, 8)
			go readCommands(cmd.InOrStdin(), commands)
			if hub != nil {
				hub.SetCommandHandler(func(c string) {
					select {
					case commands <- c:
					default:
					}
				})
				uiCtx, cancelUI := context.WithCancel(runCtx)
				defer cancelUI()
				go func() {
					if err := progress.Serve(uiCtx, cfg.UIAddr, hub, logger); err != nil {
						logger.Error("progress ui", zap.Error(err))
					}
				}()
				fmt.Fprintf(out, "進捗画面: http://%s/api/state\n", cfg.UIAddr)
			}

			fmt.Fprintf(out, "%s さん、面接練習を始めます\n", user.Username)
			loop := &practiceLoop{
				ctrl:        ctrl,
				hub:         hub,
				commands:    commands,
				out:         out,
				interactive: isatty.IsTerminal(os.Stdout.Fd()),
				maxTurns:    turns,
				tick:        time.Second,
			}
			return userFacing(loop.run(runCtx))
		},
	}
	cmd.Flags().StringVar(&deviceFile, "device-file", "", "Replay a recorded WebM file instead of the camera")
	cmd.Flags().StringVar(&uiAddr, "ui-addr", "", "Serve live progress on this address, e.g. 127.0.0.1:7070")
	cmd.Flags().IntVar(&turns, "turns", 0, "Stop after this many delivered reports (0 = until quit)")
	return cmd
}

func openDevice(file, ffmpegPath string, input []string, logger *zap.Logger) (capture.Device, error) {
	if file != "" {
		d, err := capture.NewFileDevice(file)
		if err != nil {
			return nil, fmt.Errorf("device file: %w", err)
		}
		return d, nil
	}
	d := capture.NewFFmpegDevice(ffmpegPath, logger)
	if len(input) > 0 {
		d.Input = input
	}
	return d, nil
}
