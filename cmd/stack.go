// File: cmd/stack.go
package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vistral/deskpilot/internal/config"
	"github.com/vistral/deskpilot/internal/executor"
	"github.com/vistral/deskpilot/internal/input"
	"github.com/vistral/deskpilot/internal/llmclient"
	"github.com/vistral/deskpilot/internal/observability"
	"github.com/vistral/deskpilot/internal/screen"
)

// stack is the assembled production component graph shared by the run and
// serve commands.
type stack struct {
	logger   *zap.Logger
	client   llmclient.Client
	exec     *executor.Executor
	capturer screen.Capturer
	store    *screen.Store
	width    int
	height   int
}

// buildStack constructs the production components from configuration,
// probing the display geometry when it is not pinned.
func buildStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	logger := observability.GetLogger()

	capturer := screen.NewX11Capturer(cfg.Screen.Width, cfg.Screen.Height, logger)
	width, height, err := capturer.Geometry(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect screen geometry: %w", err)
	}
	logger.Info("Screen geometry resolved.", zap.Int("width", width), zap.Int("height", height))

	launcher, err := executor.NewLauncher(cfg.Launcher)
	if err != nil {
		return nil, err
	}

	surface := input.NewX11Surface(cfg.Input, logger)
	guard := input.NewGuard()

	return &stack{
		logger:   logger,
		client:   llmclient.NewHTTPClient(cfg.LLM, logger),
		exec:     executor.New(surface, guard, launcher, width, height, logger),
		capturer: screen.Guarded(capturer, guard),
		store:    screen.NewStore(cfg.Screenshots, logger),
		width:    width,
		height:   height,
	}, nil
}
