package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mimic-ai/interview/config"
	"github.com/mimic-ai/interview/internal/apiclient"
	"github.com/mimic-ai/interview/internal/session"
)

type commandContext struct {
	apiFlag     *string
	verboseFlag *bool

	configOnce sync.Once
	config     *config.ClientConfig
	configErr  error

	loggerOnce sync.Once
	logger     *zap.Logger
}

func newCommandContext(apiFlag *string, verboseFlag *bool) *commandContext {
	return &commandContext{apiFlag: apiFlag, verboseFlag: verboseFlag}
}

func (c *commandContext) ensureConfig() (*config.ClientConfig, error) {
	c.configOnce.Do(func() {
		cfg, err := config.LoadClient()
		if err != nil {
			c.configErr = err
			return
		}
		if c.apiFlag != nil {
			if v := strings.TrimSpace(*c.apiFlag); v != "" {
				cfg.APIURL = strings.TrimRight(v, "/")
			}
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) log() *zap.Logger {
	c.loggerOnce.Do(func() {
		verbose := c.verboseFlag != nil && *c.verboseFlag
		c.logger = newLogger(verbose, isatty.IsTerminal(os.Stderr.Fd()))
	})
	return c.logger
}

func (c *commandContext) close() {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

// session returns an API client with the saved cookies and the auth state bound to it.
func (c *commandContext) session() (*apiclient.Client, *session.Auth, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	api, err := apiclient.New(cfg.APIURL,
		apiclient.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		apiclient.WithLogger(c.log()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("api client: %w", err)
	}
	auth := session.NewAuth(api, session.NewStore(cfg.SessionFile), c.log())
	return api, auth, nil
}

// newLogger logs JSON like the backend does; a terminal gets the console encoder.
// Without --verbose only warnings and errors are written.
func newLogger(verbose, terminal bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if terminal {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
