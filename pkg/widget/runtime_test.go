package widget_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/chatflow/pkg/adapters/host"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/aretw0/chatflow/pkg/protocol"
	"github.com/aretw0/chatflow/pkg/render"
	"github.com/aretw0/chatflow/pkg/widget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	mu      sync.Mutex
	sent    []protocol.ClientMessage
	sendErr error

	inbox     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		inbox:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeChannel) Send(_ context.Context, msg protocol.ClientMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeChannel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.inbox:
		return data, nil
	case <-c.closed:
		return nil, protocol.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeChannel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeChannel) Sent() []protocol.ClientMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.ClientMessage(nil), c.sent...)
}

func (c *fakeChannel) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	mu       sync.Mutex
	channels []*fakeChannel
	params   []protocol.ConnectParams
	err      error
	gate     chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, params protocol.ConnectParams) (ports.Channel, error) {
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.params = append(d.params, params)
	if d.err != nil {
		return nil, d.err
	}
	ch := newFakeChannel()
	d.channels = append(d.channels, ch)
	return ch, nil
}

func (d *fakeDialer) Last() *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.channels) == 0 {
		return nil
	}
	return d.channels[len(d.channels)-1]
}

type fakeUploader struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (u *fakeUploader) Upload(_ context.Context, appID string, file domain.File) (domain.UploadedFile, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if u.err != nil {
		return domain.UploadedFile{}, u.err
	}
	return domain.UploadedFile{FileID: "f-1", Filename: file.Filename, ContentType: file.ContentType, Size: file.Size}, nil
}

func (u *fakeUploader) DownloadURL(appID, fileID string) string {
	return "https://chat.example/apps/" + appID + "/uploads/" + fileID
}

func (u *fakeUploader) Calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

type fixture struct {
	rt       *widget.Runtime
	dialer   *fakeDialer
	uploader *fakeUploader
	host     *host.Recorder
}

func newFixture(t *testing.T, opts ...widget.Option) *fixture {
	t.Helper()
	f := &fixture{
		dialer:   &fakeDialer{},
		uploader: &fakeUploader{},
		host:     host.NewRecorder(true),
	}
	cfg := widget.Config{
		AppID:   "app-1",
		Country: "br",
		Bounds:  widget.Rect{X: 100, Y: 100, Width: 300, Height: 600},
	}
	opts = append([]widget.Option{widget.WithHost(f.host)}, opts...)
	f.rt = widget.New(cfg, f.dialer, f.uploader, opts...)
	t.Cleanup(f.rt.Unmount)
	return f
}

func (f *fixture) openConnected(t *testing.T) *fakeChannel {
	t.Helper()
	f.rt.Open(context.Background())
	waitState(t, f.rt, widget.Connected)
	ch := f.dialer.Last()
	require.NotNil(t, ch)
	return ch
}

func waitState(t *testing.T, rt *widget.Runtime, want widget.State) {
	t.Helper()
	require.Eventually(t, func() bool { return rt.State() == want }, time.Second, 5*time.Millisecond,
		"runtime never reached %s", want)
}

func waitEntries(t *testing.T, rt *widget.Runtime, n int) []domain.Entry {
	t.Helper()
	require.Eventually(t, func() bool { return len(rt.Snapshot().Transcript) >= n }, time.Second, 5*time.Millisecond,
		"transcript never reached %d entries", n)
	return rt.Snapshot().Transcript
}

func push(ch *fakeChannel, kind protocol.Kind, content string) {
	ch.inbox <- []byte(`{"type":"` + string(kind) + `","content":` + quote(content) + `}`)
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

func TestOpen_ConnectsAndSignalsHost(t *testing.T) {
	f := newFixture(t)
	f.openConnected(t)

	snap := f.rt.Snapshot()
	assert.Equal(t, widget.PlaceholderReady, snap.Placeholder)
	assert.True(t, snap.InputEnabled)
	assert.Empty(t, snap.Transcript, "no greeting is sent on connect")

	require.Len(t, f.dialer.params, 1)
	assert.Equal(t, protocol.ConnectParams{AppID: "app-1", Country: "br"}, f.dialer.params[0])
	assert.Equal(t, []any{protocol.Resize(widget.DefaultExpandedHeight), protocol.State(true)}, f.host.Messages())
}

func TestOpen_NotEmbeddedSkipsHostSignals(t *testing.T) {
	rec := host.NewRecorder(false)
	f := newFixture(t, widget.WithHost(rec))
	f.openConnected(t)
	f.rt.Close()

	assert.Empty(t, rec.Messages())
}

func TestOpen_IgnoredUnlessClosed(t *testing.T) {
	f := newFixture(t)
	f.openConnected(t)
	f.rt.Open(context.Background())

	assert.Equal(t, widget.Connected, f.rt.State())
	assert.Len(t, f.dialer.params, 1)
}

func TestOpen_DialFailure(t *testing.T) {
	f := newFixture(t)
	f.dialer.err = errors.New("connection refused")

	f.rt.Open(context.Background())
	waitState(t, f.rt, widget.Disconnected)

	snap := f.rt.Snapshot()
	require.Len(t, snap.Transcript, 1)
	assert.Equal(t, domain.EntryError, snap.Transcript[0].Type)
	assert.Equal(t, widget.PlaceholderEnded, snap.Placeholder)
	assert.False(t, snap.InputEnabled)
}

func TestRemoteClose_KeepsTranscript(t *testing.T) {
	f := newFixture(t)
	ch := f.openConnected(t)

	push(ch, protocol.KindBot, "Hi!")
	waitEntries(t, f.rt, 1)

	require.NoError(t, ch.Close())
	waitState(t, f.rt, widget.Disconnected)

	snap := f.rt.Snapshot()
	assert.Equal(t, widget.PlaceholderEnded, snap.Placeholder)
	assert.False(t, snap.InputEnabled)
	require.Len(t, snap.Transcript, 1)
	assert.Equal(t, "Hi!", snap.Transcript[0].Content)
}

func TestSendText_NoOpWhenDisconnected(t *testing.T) {
	f := newFixture(t)
	ch := f.openConnected(t)
	require.NoError(t, ch.Close())
	waitState(t, f.rt, widget.Disconnected)

	require.NoError(t, f.rt.SendText(context.Background(), "hello?"))

	assert.Empty(t, f.rt.Snapshot().Transcript, "no message appended")
	assert.Empty(t, ch.Sent(), "no channel write attempted")
}

func TestSendText_NoOpWhenClosedOrBlank(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.rt.SendText(context.Background(), "too early"))
	assert.Empty(t, f.rt.Snapshot().Transcript)

	ch := f.openConnected(t)
	require.NoError(t, f.rt.SendText(context.Background(), "  \n\t "))
	assert.Empty(t, f.rt.Snapshot().Transcript)
	assert.Empty(t, ch.Sent())
}

func TestSendText_EchoesAndSetsTyping(t *testing.T) {
	f := newFixture(t)
	ch := f.openConnected(t)

	require.NoError(t, f.rt.SendText(context.Background(), "  I need help  "))

	snap := f.rt.Snapshot()
	require.Len(t, snap.Transcript, 1)
	assert.Equal(t, domain.EntryUser, snap.Transcript[0].Type)
	assert.Equal(t, "I need help", snap.Transcript[0].Content)
	assert.True(t, snap.Typing)
	assert.Equal(t, []protocol.ClientMessage{protocol.UserText("I need help")}, ch.Sent())
}

func TestSendText_FailureIsInBand(t *testing.T) {
	f := newFixture(t)
	ch := f.openConnected(t)
	ch.sendErr = errors.New("write: broken pipe")

	err := f.rt.SendText(context.Background(), "hello")
	require.Error(t, err)
	class, ok := domain.ClassOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.ClassRemote, class)

	snap := f.rt.Snapshot()
	require.Len(t, snap.Transcript, 2)
	assert.Equal(t, domain.EntryUser, snap.Transcript[0].Type)
	assert.Equal(t, domain.EntryError, snap.Transcript[1].Type)
	assert.False(t, snap.Typing)
	assert.Equal(t, widget.Connected, snap.State)
}

func TestInbound_TypingAndMalformed(t *testing.T) {
	f := newFixture(t)
	ch := f.openConnected(t)
	require.NoError(t, f.rt.SendText(context.Background(), "hi"))

	push(ch, protocol.KindWarn, "Slow down")
	entries := waitEntries(t, f.rt, 2)
	assert.Equal(t, domain.EntryWarn, entries[1].Type)
	assert.True(t, f.rt.Snapshot().Typing, "structural messages leave typing alone")

	ch.inbox <- []byte(`{not json`)
	entries = waitEntries(t, f.rt, 3)
	assert.Equal(t, domain.EntryWarn, entries[2].Type)
	assert.True(t, entries[2].Recoverable())
	assert.Equal(t, widget.Connected, f.rt.State(), "session continues after malformed payload")

	ch.inbox <- []byte(`{"type":"review_prompt","content":"Rate us","reviewUrl":"https://reviews.example/r"}`)
	entries = waitEntries(t, f.rt, 4)
	assert.Equal(t, domain.EntryReviewPrompt, entries[3].Type)
	assert.Equal(t, "https://reviews.example/r", entries[3].URL)
	assert.False(t, f.rt.Snapshot().Typing, "review prompt completes the bot turn")
}

func TestInbound_BotClearsTyping(t *testing.T) {
	f := newFixture(t)
	ch := f.openConnected(t)
	require.NoError(t, f.rt.SendText(context.Background(), "hi"))
	require.True(t, f.rt.Snapshot().Typing)

	push(ch, protocol.KindBot, "Hello!")
	waitEntries(t, f.rt, 2)
	assert.False(t, f.rt.Snapshot().Typing)
}

func TestButtonClick_SendsLabelAsValue(t *testing.T) {
	f := newFixture(t)
	ch := f.openConnected(t)

	push(ch, protocol.KindBot, `Pick one: <button value="a">Option A</button><button>Option B</button>`)
	entries := waitEntries(t, f.rt, 1)

	buttons := render.Buttons(render.Parse(entries[0].Content))
	require.Len(t, buttons, 2)
	require.Equal(t, "Option B", buttons[1].Text)

	require.NoError(t, buttons[1].Activate(context.Background(), f.rt))

	assert.Equal(t, []protocol.ClientMessage{protocol.UserText("Option B")}, ch.Sent())
	last := f.rt.Snapshot().Transcript[1]
	assert.Equal(t, domain.EntryUser, last.Type)
	assert.Equal(t, "Option B", last.Content)
}

func TestSendText_OversizeWarnsInBand(t *testing.T) {
	f := newFixture(t)
	ch := f.openConnected(t)

	err := f.rt.SendText(context.Background(), strings.Repeat("a", widget.DefaultMaxInputBytes+1))
	require.ErrorIs(t, err, protocol.ErrInputTooLarge)
	assert.True(t, domain.IsValidation(err))
	assert.Empty(t, ch.Sent())

	snap := f.rt.Snapshot()
	require.Len(t, snap.Transcript, 1, "no echo, only the warning")
	assert.Equal(t, domain.EntryWarn, snap.Transcript[0].Type)
	assert.Equal(t, "Message is too long. The limit is 4096 bytes.", snap.Transcript[0].Content)
	assert.False(t, snap.Typing)
	assert.True(t, snap.InputEnabled)

	require.NoError(t, f.rt.SendText(context.Background(), "short"))
	assert.Equal(t, []protocol.ClientMessage{protocol.UserText("short")}, ch.Sent())
}

func TestSendText_ConfiguredInputLimit(t *testing.T) {
	dialer := &fakeDialer{}
	rt := widget.New(widget.Config{AppID: "app-1", MaxInputBytes: 8}, dialer, &fakeUploader{})
	t.Cleanup(rt.Unmount)
	rt.Open(context.Background())
	waitState(t, rt, widget.Connected)

	err := rt.SendText(context.Background(), "nine char")
	require.ErrorIs(t, err, protocol.ErrInputTooLarge)
	assert.Contains(t, rt.Snapshot().Transcript[0].Content, "8 bytes")
	require.NoError(t, rt.SendText(context.Background(), "eight ch"))
	assert.Len(t, dialer.Last().Sent(), 1)
}

func TestUploadFile_SizeCeiling(t *testing.T) {
	f := newFixture(t)
	ch := f.openConnected(t)

	err := f.rt.UploadFile(context.Background(), domain.File{
		Filename:    "huge.mov",
		ContentType: "video/quicktime",
		Size:        30 << 20,
	})
	require.ErrorIs(t, err, domain.ErrFileTooLarge)
	assert.True(t, domain.IsValidation(err))
	assert.Zero(t, f.uploader.Calls(), "oversized file never reaches the upload endpoint")

	snap := f.rt.Snapshot()
	require.Len(t, snap.Transcript, 1)
	assert.Equal(t, domain.EntryWarn, snap.Transcript[0].Type)
	assert.Contains(t, snap.Transcript[0].Content, "10 MB")
	assert.Equal(t, 1, snap.PickerGeneration)

	err = f.rt.UploadFile(context.Background(), domain.File{
		Filename:    "receipt.pdf",
		ContentType: "application/pdf",
		Size:        1 << 20,
		Content:     bytes.NewReader(make([]byte, 1<<20)),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.uploader.Calls())

	sent := ch.Sent()
	require.Len(t, sent, 1, "exactly one file_upload message")
	assert.Equal(t, protocol.KindFileUpload, sent[0].Type)
	assert.Equal(t, "f-1", sent[0].FileID)
	assert.Equal(t, "https://chat.example/apps/app-1/uploads/f-1", sent[0].DownloadURL)

	snap = f.rt.Snapshot()
	require.Len(t, snap.Transcript, 2)
	assert.Equal(t, domain.EntryUserFile, snap.Transcript[1].Type)
	assert.Equal(t, "receipt.pdf", snap.Transcript[1].Filename)
}

func TestUploadFile_UnknownSizeIsMeasured(t *testing.T) {
	f := newFixture(t)
	f.openConnected(t)

	err := f.rt.UploadFile(context.Background(), domain.File{
		Filename: "stream.bin",
		Content:  bytes.NewReader(make([]byte, widget.DefaultMaxUploadBytes+1)),
	})
	require.ErrorIs(t, err, domain.ErrFileTooLarge)
	assert.Zero(t, f.uploader.Calls())
}

func TestUploadFile_FailureResetsPicker(t *testing.T) {
	f := newFixture(t)
	ch := f.openConnected(t)
	f.uploader.err = errors.New("503 Service Unavailable")

	err := f.rt.UploadFile(context.Background(), domain.File{Filename: "a.png", Size: 10, Content: strings.NewReader("0123456789")})
	require.Error(t, err)

	snap := f.rt.Snapshot()
	require.Len(t, snap.Transcript, 1)
	assert.Equal(t, domain.EntryError, snap.Transcript[0].Type)
	assert.Equal(t, 1, snap.PickerGeneration)
	assert.Empty(t, ch.Sent())
	assert.Equal(t, widget.Connected, snap.State)
}

func TestUploadFile_RequiresConnection(t *testing.T) {
	f := newFixture(t)
	err := f.rt.UploadFile(context.Background(), domain.File{Filename: "a.png", Size: 1})
	require.ErrorIs(t, err, domain.ErrNotConnected)
	assert.Zero(t, f.uploader.Calls())
}

func TestClose_WhileTypingStartsFreshOnReopen(t *testing.T) {
	f := newFixture(t)
	ch := f.openConnected(t)
	require.NoError(t, f.rt.SendText(context.Background(), "anyone there?"))
	require.True(t, f.rt.Snapshot().Typing)

	f.rt.Close()
	assert.Equal(t, widget.Closed, f.rt.State())
	assert.True(t, ch.IsClosed(), "channel closed on teardown")
	assert.Equal(t, []any{
		protocol.Resize(widget.DefaultExpandedHeight), protocol.State(true),
		protocol.Resize(widget.DefaultCompactHeight), protocol.State(false),
	}, f.host.Messages())

	f.rt.Open(context.Background())
	snap := f.rt.Snapshot()
	assert.Empty(t, snap.Transcript)
	assert.False(t, snap.Typing)
	waitState(t, f.rt, widget.Connected)
}

func TestClose_DropsLateEvents(t *testing.T) {
	f := newFixture(t)
	old := f.openConnected(t)
	f.rt.Close()

	// A payload from the previous session must not leak into the next one.
	old.inbox <- []byte(`{"type":"bot","content":"late"}`)

	f.dialer.gate = make(chan struct{})
	f.rt.Open(context.Background())
	assert.Equal(t, widget.Opening, f.rt.State())

	f.rt.Close()
	close(f.dialer.gate)

	require.Eventually(t, func() bool {
		ch := f.dialer.Last()
		return ch != old && ch != nil && ch.IsClosed()
	}, time.Second, 5*time.Millisecond, "channel dialled for a closed session is closed")
	assert.Equal(t, widget.Closed, f.rt.State())
	assert.Empty(t, f.rt.Snapshot().Transcript)
}

func TestHandlePointer(t *testing.T) {
	f := newFixture(t)
	f.openConnected(t)

	assert.False(t, f.rt.HandlePointer(widget.PointerEvent{X: 5, Y: 5, Button: widget.ButtonRight}), "right button ignored")
	assert.False(t, f.rt.HandlePointer(widget.PointerEvent{X: 150, Y: 150, Button: widget.ButtonLeft}), "click inside ignored")
	assert.Equal(t, widget.Connected, f.rt.State())

	assert.True(t, f.rt.HandlePointer(widget.PointerEvent{X: 5, Y: 5, Button: widget.ButtonLeft}))
	assert.Equal(t, widget.Closed, f.rt.State())

	assert.False(t, f.rt.HandlePointer(widget.PointerEvent{X: 5, Y: 5, Button: widget.ButtonLeft}), "already closed")
}

func TestHooks(t *testing.T) {
	var mu sync.Mutex
	var transitions []string
	var entries []domain.EntryType

	f := newFixture(t, widget.WithHooks(widget.Hooks{
		OnStateChange: func(from, to widget.State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, from.String()+"->"+to.String())
		},
		OnEntry: func(e domain.Entry) {
			mu.Lock()
			defer mu.Unlock()
			entries = append(entries, e.Type)
		},
	}))
	f.openConnected(t)
	require.NoError(t, f.rt.SendText(context.Background(), "hi"))
	f.rt.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"closed->opening", "opening->connected", "connected->closed"}, transitions)
	assert.Equal(t, []domain.EntryType{domain.EntryUser}, entries)
}
