package widget

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/aretw0/chatflow/pkg/protocol"
)

// Default configuration values.
const (
	DefaultMaxUploadBytes = 10 << 20
	DefaultMaxInputBytes  = protocol.DefaultMaxInputBytes
	DefaultExpandedHeight = 600
	DefaultCompactHeight  = 100
)

// Transcript texts for conditions the session survives.
const (
	msgMalformed     = "A message could not be displayed."
	msgConnectFailed = "Could not connect to the chat. Please close and try again."
	msgSendFailed    = "Your message could not be sent."
	msgInvalidInput  = "Your message contains characters that cannot be sent."
	msgUploadFailed  = "File upload failed. Please try again."
)

// Config holds the per-embedding settings of the widget.
type Config struct {
	AppID          string `yaml:"appId" validate:"required"`
	Country        string `yaml:"country" validate:"omitempty,len=2"`
	MaxUploadBytes int64  `yaml:"maxUploadBytes" validate:"gte=0"`
	MaxInputBytes  int    `yaml:"maxInputBytes" validate:"gte=0"`
	ExpandedHeight int    `yaml:"expandedHeight" validate:"gte=0"`
	CompactHeight  int    `yaml:"compactHeight" validate:"gte=0"`
	Bounds         Rect   `yaml:"-"`
}

func (c Config) withDefaults() Config {
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.MaxInputBytes == 0 {
		c.MaxInputBytes = DefaultMaxInputBytes
	}
	if c.ExpandedHeight == 0 {
		c.ExpandedHeight = DefaultExpandedHeight
	}
	if c.CompactHeight == 0 {
		c.CompactHeight = DefaultCompactHeight
	}
	return c
}

// Hooks observe the runtime. They run outside the runtime lock.
type Hooks struct {
	OnStateChange func(from, to State)
	OnEntry       func(domain.Entry)
}

// Runtime is the widget state machine. It is safe for concurrent use.
//
// Every open starts a fresh session. Events from a previous session (late
// channel reads, finished uploads) carry a stale generation and are dropped.
type Runtime struct {
	cfg      Config
	dialer   ports.Dialer
	uploader ports.Uploader
	host     ports.HostNotifier
	hooks    Hooks
	logger   *slog.Logger
	now      func() time.Time

	// sendMu keeps echo order and channel write order identical.
	sendMu sync.Mutex

	mu          sync.Mutex
	state       State
	session     uint64
	transcript  []domain.Entry
	typing      bool
	placeholder string
	picker      int
	channel     ports.Channel
	cancel      context.CancelFunc
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithHost sets the host notifier. Without one no host signals are posted.
func WithHost(h ports.HostNotifier) Option {
	return func(r *Runtime) {
		r.host = h
	}
}

// WithHooks sets observability hooks.
func WithHooks(h Hooks) Option {
	return func(r *Runtime) {
		r.hooks = h
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithClock overrides the timestamp source of transcript entries.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) {
		r.now = now
	}
}

// New creates a closed widget runtime.
func New(cfg Config, dialer ports.Dialer, uploader ports.Uploader, opts ...Option) *Runtime {
	r := &Runtime{
		cfg:      cfg.withDefaults(),
		dialer:   dialer,
		uploader: uploader,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("app_id", r.cfg.AppID)
	return r
}

// effects collects hook notifications produced while the lock is held.
type effects struct {
	transitions [][2]State
	entries     []domain.Entry
}

func (r *Runtime) setState(fx *effects, to State) {
	if r.state == to {
		return
	}
	fx.transitions = append(fx.transitions, [2]State{r.state, to})
	r.state = to
}

func (r *Runtime) appendEntry(fx *effects, e domain.Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}
	r.transcript = append(r.transcript, e)
	fx.entries = append(fx.entries, e)
}

func (r *Runtime) flush(fx *effects) {
	for _, t := range fx.transitions {
		r.logger.Debug("widget state changed", "from", t[0], "to", t[1])
		if r.hooks.OnStateChange != nil {
			r.hooks.OnStateChange(t[0], t[1])
		}
	}
	if r.hooks.OnEntry != nil {
		for _, e := range fx.entries {
			r.hooks.OnEntry(e)
		}
	}
}

// Open starts a fresh session. It is a no-op unless the widget is Closed.
// The channel is dialled in the background; Open does not wait for it.
func (r *Runtime) Open(ctx context.Context) {
	fx := &effects{}
	r.mu.Lock()
	if r.state != Closed {
		r.mu.Unlock()
		return
	}
	r.session++
	gen := r.session
	r.transcript = nil
	r.typing = false
	r.placeholder = PlaceholderConnecting
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.setState(fx, Opening)
	r.mu.Unlock()

	r.flush(fx)
	r.signalHost(true)
	go r.connect(sessCtx, gen)
}

func (r *Runtime) connect(ctx context.Context, gen uint64) {
	params := protocol.ConnectParams{AppID: r.cfg.AppID, Country: r.cfg.Country}
	ch, err := r.dialer.Dial(ctx, params)

	fx := &effects{}
	r.mu.Lock()
	if r.session != gen || r.state != Opening {
		r.mu.Unlock()
		if ch != nil {
			_ = ch.Close()
		}
		return
	}
	if err != nil {
		r.logger.Warn("chat connection failed", "err", err)
		r.placeholder = PlaceholderEnded
		r.appendEntry(fx, domain.Entry{Type: domain.EntryError, Content: msgConnectFailed})
		r.setState(fx, Disconnected)
		r.mu.Unlock()
		r.flush(fx)
		return
	}
	r.channel = ch
	r.placeholder = PlaceholderReady
	r.setState(fx, Connected)
	r.mu.Unlock()
	r.flush(fx)

	r.readLoop(ctx, gen, ch)
}

func (r *Runtime) readLoop(ctx context.Context, gen uint64, ch ports.Channel) {
	for {
		data, err := ch.Receive(ctx)
		if err != nil {
			r.remoteClosed(gen, err)
			return
		}
		if !r.handleInbound(gen, data) {
			return
		}
	}
}

// handleInbound applies one server payload. It reports false once the session is stale.
func (r *Runtime) handleInbound(gen uint64, data []byte) bool {
	fx := &effects{}
	r.mu.Lock()
	if r.session != gen {
		r.mu.Unlock()
		return false
	}
	msg, err := protocol.DecodeServer(data)
	if err != nil {
		r.logger.Warn("dropping malformed chat message", "err", domain.Protocol("receive", err))
		r.appendEntry(fx, domain.Entry{Type: domain.EntryWarn, Content: msgMalformed})
	} else {
		r.appendEntry(fx, entryFor(msg))
		if msg.EndsTyping() {
			r.typing = false
		}
	}
	r.mu.Unlock()
	r.flush(fx)
	return true
}

func entryFor(msg protocol.ServerMessage) domain.Entry {
	switch msg.Type {
	case protocol.KindBot:
		return domain.Entry{Type: domain.EntryBot, Content: msg.Content}
	case protocol.KindReviewPrompt:
		return domain.Entry{Type: domain.EntryReviewPrompt, Content: msg.Content, URL: msg.ReviewURL}
	case protocol.KindError:
		return domain.Entry{Type: domain.EntryError, Content: msg.Content}
	default:
		return domain.Entry{Type: domain.EntryWarn, Content: msg.Content}
	}
}

func (r *Runtime) remoteClosed(gen uint64, err error) {
	fx := &effects{}
	r.mu.Lock()
	if r.session != gen || r.state != Connected {
		r.mu.Unlock()
		return
	}
	if !errors.Is(err, protocol.ErrClosed) && !errors.Is(err, context.Canceled) {
		r.logger.Warn("chat channel dropped", "err", err)
	}
	ch := r.channel
	r.channel = nil
	r.placeholder = PlaceholderEnded
	r.setState(fx, Disconnected)
	r.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	r.flush(fx)
}

// Close tears the session down from any open state. The channel is closed even
// when a send or upload is in flight; their results are discarded.
func (r *Runtime) Close() {
	fx := &effects{}
	r.mu.Lock()
	if r.state == Closed {
		r.mu.Unlock()
		return
	}
	r.session++
	ch := r.channel
	r.channel = nil
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.typing = false
	r.placeholder = ""
	r.setState(fx, Closed)
	r.mu.Unlock()

	if ch != nil {
		if err := ch.Close(); err != nil {
			r.logger.Debug("closing chat channel", "err", err)
		}
	}
	r.flush(fx)
	r.signalHost(false)
}

// HandlePointer closes the widget on a left-button click outside its bounds.
// It reports whether the click closed the widget.
func (r *Runtime) HandlePointer(ev PointerEvent) bool {
	if ev.Button != ButtonLeft || r.cfg.Bounds.Empty() {
		return false
	}
	if r.cfg.Bounds.Contains(ev.X, ev.Y) {
		return false
	}
	r.mu.Lock()
	open := r.state.IsOpen()
	r.mu.Unlock()
	if !open {
		return false
	}
	r.Close()
	return true
}

// Unmount is called when the host removes the widget.
func (r *Runtime) Unmount() {
	r.Close()
}

// SendText sends a visitor message. It is a no-op unless the widget is
// Connected and text is non-blank. The local echo is appended before the write.
func (r *Runtime) SendText(ctx context.Context, text string) error {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	fx := &effects{}
	r.mu.Lock()
	if r.state != Connected || r.channel == nil {
		r.mu.Unlock()
		return nil
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		r.mu.Unlock()
		return nil
	}
	clean, err := protocol.SanitizeInput(trimmed, r.cfg.MaxInputBytes)
	if err != nil {
		warning := msgInvalidInput
		if errors.Is(err, protocol.ErrInputTooLarge) {
			warning = fmt.Sprintf("Message is too long. The limit is %s.", formatBytes(int64(r.cfg.MaxInputBytes)))
		}
		r.appendEntry(fx, domain.Entry{Type: domain.EntryWarn, Content: warning})
		r.mu.Unlock()
		r.flush(fx)
		return domain.Validation("send", err)
	}
	gen := r.session
	ch := r.channel
	r.appendEntry(fx, domain.Entry{Type: domain.EntryUser, Content: clean})
	r.typing = true
	r.mu.Unlock()
	r.flush(fx)

	if err := ch.Send(ctx, protocol.UserText(clean)); err != nil {
		r.failSend(gen, msgSendFailed, false)
		return domain.Remote("send", err)
	}
	return nil
}

// UploadFile sends a file over the upload side channel and announces it on the
// chat channel. Files over the size ceiling never reach the uploader.
func (r *Runtime) UploadFile(ctx context.Context, file domain.File) error {
	fx := &effects{}
	r.mu.Lock()
	if r.state != Connected {
		r.mu.Unlock()
		return domain.Validation("upload", domain.ErrNotConnected)
	}
	gen := r.session
	r.mu.Unlock()

	file, err := r.checkSize(file)
	if err != nil {
		if !errors.Is(err, domain.ErrFileTooLarge) {
			r.failSend(gen, msgUploadFailed, true)
			return err
		}
		r.mu.Lock()
		if r.session == gen {
			limit := fmt.Sprintf("File is too large. The limit is %s.", formatBytes(r.cfg.MaxUploadBytes))
			r.appendEntry(fx, domain.Entry{Type: domain.EntryWarn, Content: limit, Filename: file.Filename})
			r.picker++
		}
		r.mu.Unlock()
		r.flush(fx)
		return domain.Validation("upload", err)
	}

	uploaded, err := r.uploader.Upload(ctx, r.cfg.AppID, file)
	if err != nil {
		r.logger.Warn("file upload failed", "filename", file.Filename, "err", err)
		r.failSend(gen, msgUploadFailed, true)
		return domain.Remote("upload", err)
	}
	url := r.uploader.DownloadURL(r.cfg.AppID, uploaded.FileID)
	msg := protocol.FileUpload(uploaded.FileID, uploaded.Filename, uploaded.ContentType, url)

	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	r.mu.Lock()
	if r.session != gen || r.state != Connected || r.channel == nil {
		r.mu.Unlock()
		return domain.Validation("upload", domain.ErrNotConnected)
	}
	ch := r.channel
	r.appendEntry(fx, domain.Entry{Type: domain.EntryUserFile, Content: uploaded.Filename, Filename: uploaded.Filename, URL: url})
	r.mu.Unlock()
	r.flush(fx)

	if err := ch.Send(ctx, msg); err != nil {
		r.failSend(gen, msgSendFailed, true)
		return domain.Remote("upload", err)
	}
	return nil
}

// checkSize enforces the upload ceiling. Files of unknown size are buffered up
// to the ceiling to measure them.
func (r *Runtime) checkSize(file domain.File) (domain.File, error) {
	limit := r.cfg.MaxUploadBytes
	if file.Size > limit {
		return file, fmt.Errorf("%w: %d bytes", domain.ErrFileTooLarge, file.Size)
	}
	if file.Size > 0 || file.Content == nil {
		return file, nil
	}
	data, err := io.ReadAll(io.LimitReader(file.Content, limit+1))
	if err != nil {
		return file, fmt.Errorf("failed to read %q: %w", file.Filename, err)
	}
	if int64(len(data)) > limit {
		return file, fmt.Errorf("%w: more than %d bytes", domain.ErrFileTooLarge, limit)
	}
	file.Size = int64(len(data))
	file.Content = bytes.NewReader(data)
	return file, nil
}

// failSend records a recoverable error for the current session.
func (r *Runtime) failSend(gen uint64, content string, resetPicker bool) {
	fx := &effects{}
	r.mu.Lock()
	if r.session != gen {
		r.mu.Unlock()
		return
	}
	r.appendEntry(fx, domain.Entry{Type: domain.EntryError, Content: content})
	r.typing = false
	if resetPicker {
		r.picker++
	}
	r.mu.Unlock()
	r.flush(fx)
}

// signalHost posts the resize and open-state messages. Skipped when not embedded.
func (r *Runtime) signalHost(open bool) {
	if r.host == nil || !r.host.Embedded() {
		return
	}
	height := r.cfg.CompactHeight
	if open {
		height = r.cfg.ExpandedHeight
	}
	if err := r.host.Post(protocol.Resize(height)); err != nil {
		r.logger.Debug("host resize signal failed", "err", err)
	}
	if err := r.host.Post(protocol.State(open)); err != nil {
		r.logger.Debug("host state signal failed", "err", err)
	}
}

// State returns the current lifecycle state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Snapshot returns a copy of the state for rendering.
func (r *Runtime) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		State:            r.state,
		Session:          r.session,
		Transcript:       append([]domain.Entry(nil), r.transcript...),
		Typing:           r.typing,
		Placeholder:      r.placeholder,
		InputEnabled:     r.state == Connected,
		PickerGeneration: r.picker,
	}
}

func formatBytes(n int64) string {
	const mib = 1 << 20
	if n >= mib && n%mib == 0 {
		return fmt.Sprintf("%d MB", n/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}
