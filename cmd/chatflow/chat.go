package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/aretw0/chatflow/internal/presentation/tui"
	"github.com/aretw0/chatflow/pkg/adapters/host"
	chathttp "github.com/aretw0/chatflow/pkg/adapters/http"
	"github.com/aretw0/chatflow/pkg/adapters/websocket"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/render"
	"github.com/aretw0/chatflow/pkg/widget"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to an app through the chat widget",
	Long: `Opens the chat widget against a running server. Type a reply, or the
number of a button to press it. "/upload <path>" sends a file and "/quit" leaves.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		if appID, _ := cmd.Flags().GetString("app"); appID != "" {
			cfg.Widget.AppID = appID
		}
		if country, _ := cmd.Flags().GetString("country"); country != "" {
			cfg.Widget.Country = country
		}
		if err := cfg.ValidateWidget(); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		api, _ := cmd.Flags().GetString("api")
		plain, _ := cmd.Flags().GetBool("plain")
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			plain = true
		}
		embed, _ := cmd.Flags().GetBool("host")

		s := &chatSession{
			transcript: tui.NewTranscript(plain),
			done:       make(chan struct{}),
			logger:     cfg.Logger(),
		}
		opts := []widget.Option{
			widget.WithLogger(s.logger),
			widget.WithHooks(widget.Hooks{OnEntry: s.print, OnStateChange: s.stateChanged}),
		}
		if embed {
			opts = append(opts, widget.WithHost(host.NewWriter(os.Stderr)))
		}
		s.rt = widget.New(cfg.Widget,
			websocket.NewDialer(chatEndpoint(api), websocket.WithLogger(s.logger)),
			chathttp.NewClient(api),
			opts...,
		)
		s.run(context.Background())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("country", "", "Two-letter country code sent on connect")
	chatCmd.Flags().Bool("plain", false, "Disable colours and markdown styling")
	chatCmd.Flags().Bool("host", false, "Post host frame signals to stderr as JSON lines")
}

type chatSession struct {
	rt         *widget.Runtime
	transcript *tui.Transcript
	logger     *slog.Logger

	mu      sync.Mutex
	buttons []render.Segment

	done     chan struct{}
	doneOnce sync.Once
}

func (s *chatSession) run(ctx context.Context) {
	s.rt.Open(ctx)
	defer s.rt.Unmount()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-s.done:
			fmt.Println("Bye!")
			return
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "/quit" {
				fmt.Println("Bye!")
				return
			}
			if err := s.handle(ctx, strings.TrimSpace(line)); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
		}
	}
}

func (s *chatSession) handle(ctx context.Context, line string) error {
	if path, ok := strings.CutPrefix(line, "/upload "); ok {
		return s.upload(ctx, strings.TrimSpace(path))
	}
	if n, err := strconv.Atoi(line); err == nil {
		s.mu.Lock()
		var value string
		if n >= 1 && n <= len(s.buttons) {
			value = s.buttons[n-1].Value
		}
		s.mu.Unlock()
		if value != "" {
			return s.rt.SendText(ctx, value)
		}
	}
	return s.rt.SendText(ctx, line)
}

func (s *chatSession) upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	return s.rt.UploadFile(ctx, domain.File{
		Filename:    filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Size:        info.Size(),
		Content:     f,
	})
}

func (s *chatSession) print(e domain.Entry) {
	line, buttons := s.transcript.Entry(e)
	if len(buttons) > 0 {
		s.mu.Lock()
		s.buttons = buttons
		s.mu.Unlock()
	}
	fmt.Println(line)
}

func (s *chatSession) stateChanged(from, to widget.State) {
	s.logger.Debug("widget state changed", "from", from, "to", to)
	if to == widget.Disconnected {
		s.doneOnce.Do(func() { close(s.done) })
	}
}

// chatEndpoint maps the API base URL onto its websocket endpoint.
func chatEndpoint(api string) string {
	endpoint := strings.TrimSuffix(api, "/") + "/ws"
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	}
	return endpoint
}
