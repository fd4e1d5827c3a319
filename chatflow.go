package chatflow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/internal/validator"
	chathttp "github.com/aretw0/chatflow/pkg/adapters/http"
	"github.com/aretw0/chatflow/pkg/authoring"
	"github.com/aretw0/chatflow/pkg/plans"
	"github.com/aretw0/chatflow/pkg/ports"
)

// Workspace wires both authoring surfaces of one app over a shared backend,
// so the flow editor and the plan attachment view read the same source of truth.
type Workspace struct {
	AppID string
	Flows *authoring.Controller
	Plans *plans.Controller

	backend ports.Backend
	logger  *slog.Logger
}

type workspaceConfig struct {
	notifier ports.Notifier
	logger   *slog.Logger
}

// Option configures a Workspace.
type Option func(*workspaceConfig)

// WithNotifier sets the destination of operator notices for both surfaces.
func WithNotifier(n ports.Notifier) Option {
	return func(c *workspaceConfig) {
		c.notifier = n
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *workspaceConfig) {
		c.logger = logger
	}
}

// NewWorkspace creates a workspace for appID over backend.
func NewWorkspace(appID string, backend ports.Backend, opts ...Option) *Workspace {
	cfg := workspaceConfig{
		notifier: ports.NopNotifier{},
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Workspace{
		AppID:   appID,
		Flows:   authoring.New(appID, backend, backend, authoring.WithNotifier(cfg.notifier), authoring.WithLogger(cfg.logger)),
		Plans:   plans.New(appID, backend, backend, plans.WithNotifier(cfg.notifier), plans.WithLogger(cfg.logger)),
		backend: backend,
		logger:  cfg.logger,
	}
}

// NewRemoteWorkspace creates a workspace against a collaborator API.
func NewRemoteWorkspace(appID, baseURL string, opts ...Option) *Workspace {
	return NewWorkspace(appID, chathttp.NewClient(baseURL), opts...)
}

// Load refreshes both surfaces. Both are attempted; errors are joined.
func (w *Workspace) Load(ctx context.Context) error {
	return errors.Join(w.Flows.Load(ctx), w.Plans.Load(ctx))
}

// Validate checks every stored flow of the app for structural problems,
// dangling links and unreachable questions.
func (w *Workspace) Validate(ctx context.Context) error {
	flows, err := w.backend.ListGrouped(ctx, w.AppID)
	if err != nil {
		return err
	}
	return validator.ValidateFlows(flows)
}
