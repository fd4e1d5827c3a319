package conversation

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/protocol"
	"github.com/aretw0/chatflow/pkg/render"
)

const (
	GreetingText  = "Hi! What can we help you with?"
	ClosingText   = "Thanks for chatting with us!"
	NoFlowsText   = "There is nobody available to chat right now. Please come back later."
	RepromptText  = "Please pick one of the options below."
	ReviewText    = "How did we do? Leave us a review."
	receivedFmt   = "Thanks, we received %s."
	unnamedUpload = "your file"
)

// Dialogue is the state of one visitor conversation.
type Dialogue struct {
	graph       *domain.Graph
	flows       []domain.GroupedFlow
	reviewURL   string
	downloadURL func(domain.Question) string
	logger      *slog.Logger

	current  *domain.Question
	choosing bool
	done     bool
}

// Option configures a Dialogue.
type Option func(*Dialogue)

// WithReviewURL makes the dialogue end with a review prompt.
func WithReviewURL(url string) Option {
	return func(d *Dialogue) {
		d.reviewURL = url
	}
}

// WithAttachmentURL sets how a question's attachment is addressed.
// Without it attachments are not offered.
func WithAttachmentURL(fn func(domain.Question) string) Option {
	return func(d *Dialogue) {
		d.downloadURL = fn
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dialogue) {
		d.logger = logger
	}
}

// NewDialogue prepares a conversation over the given flows. Only active flows
// with a root question are offered.
func NewDialogue(flows []domain.GroupedFlow, opts ...Option) *Dialogue {
	var all []domain.Question
	var offered []domain.GroupedFlow
	for _, gf := range flows {
		all = append(all, gf.Questions...)
		if gf.RootQuestion == nil {
			continue
		}
		all = append(all, *gf.RootQuestion)
		if gf.Group.IsActive {
			offered = append(offered, gf)
		}
	}

	d := &Dialogue{
		graph:  domain.NewGraph(all),
		flows:  offered,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Done reports whether the conversation has ended.
func (d *Dialogue) Done() bool {
	return d.done
}

// Start opens the conversation.
func (d *Dialogue) Start() []protocol.ServerMessage {
	switch len(d.flows) {
	case 0:
		d.done = true
		return []protocol.ServerMessage{bot(NoFlowsText)}
	case 1:
		return d.ask(*d.flows[0].RootQuestion)
	default:
		d.choosing = true
		return []protocol.ServerMessage{bot(d.menu(GreetingText))}
	}
}

// Handle answers one visitor message. Nothing is returned once the
// conversation is done.
func (d *Dialogue) Handle(msg protocol.ClientMessage) []protocol.ServerMessage {
	if d.done {
		return nil
	}
	switch msg.Type {
	case protocol.KindFileUpload:
		return d.received(msg)
	case protocol.KindUser:
		return d.answer(strings.TrimSpace(msg.Content))
	default:
		d.logger.Debug("ignoring message", "type", msg.Type)
		return nil
	}
}

func (d *Dialogue) answer(text string) []protocol.ServerMessage {
	if d.choosing {
		for _, gf := range d.flows {
			if strings.EqualFold(gf.Group.Title, text) {
				d.choosing = false
				return d.ask(*gf.RootQuestion)
			}
		}
		return []protocol.ServerMessage{bot(d.menu(RepromptText))}
	}
	if d.current == nil {
		return d.finish()
	}

	cur := *d.current
	if cur.ExpectsFreeText() {
		return d.advance(cur, nil)
	}
	for _, opt := range sortedOptions(cur) {
		if strings.EqualFold(strings.TrimSpace(opt.Text), text) {
			return d.advance(cur, &opt)
		}
	}
	return []protocol.ServerMessage{bot(RepromptText + "\n" + buttons(cur))}
}

func (d *Dialogue) received(msg protocol.ClientMessage) []protocol.ServerMessage {
	name := msg.Filename
	if name == "" {
		name = unnamedUpload
	}
	out := []protocol.ServerMessage{bot(fmt.Sprintf(receivedFmt, name))}
	if d.current != nil && d.current.ExpectsFreeText() {
		out = append(out, d.advance(*d.current, nil)...)
	}
	return out
}

func (d *Dialogue) advance(from domain.Question, opt *domain.Option) []protocol.ServerMessage {
	next, ok := d.graph.Next(from, opt)
	if !ok {
		if opt != nil && !opt.IsTerminal {
			d.logger.Warn("option link does not resolve", "question_id", from.ID, "next_question_id", opt.NextQuestionID)
		}
		return d.finish()
	}
	return d.ask(next)
}

// ask sends a question. A question without options that is a flow's root only
// opens the flow, so the dialogue moves straight on to its first question.
func (d *Dialogue) ask(q domain.Question) []protocol.ServerMessage {
	d.current = &q
	var b strings.Builder
	b.WriteString(q.Text)
	if !q.ExpectsFreeText() {
		b.WriteString("\n")
		b.WriteString(buttons(q))
	}
	if q.Attachment != nil && q.Attachment.HasFile && d.downloadURL != nil {
		b.WriteString("\n")
		b.WriteString(render.Download(d.downloadURL(q), q.Attachment.Filename))
	}
	out := []protocol.ServerMessage{bot(b.String())}
	if q.IsRoot && q.ExpectsFreeText() {
		out = append(out, d.advance(q, nil)...)
	}
	return out
}

func (d *Dialogue) finish() []protocol.ServerMessage {
	d.done = true
	d.current = nil
	out := []protocol.ServerMessage{bot(ClosingText)}
	if d.reviewURL != "" {
		out = append(out, protocol.ServerMessage{Type: protocol.KindReviewPrompt, Content: ReviewText, ReviewURL: d.reviewURL})
	}
	return out
}

func (d *Dialogue) menu(prompt string) string {
	labels := make([]string, 0, len(d.flows))
	for _, gf := range d.flows {
		labels = append(labels, render.Button(gf.Group.Title, gf.Group.Title))
	}
	return prompt + "\n" + strings.Join(labels, " ")
}

func buttons(q domain.Question) string {
	opts := sortedOptions(q)
	labels := make([]string, 0, len(opts))
	for _, opt := range opts {
		labels = append(labels, render.Button(opt.Text, opt.Text))
	}
	return strings.Join(labels, " ")
}

func sortedOptions(q domain.Question) []domain.Option {
	opts := append([]domain.Option(nil), q.Options...)
	sort.SliceStable(opts, func(i, j int) bool { return opts[i].Order < opts[j].Order })
	return opts
}

func bot(content string) protocol.ServerMessage {
	return protocol.ServerMessage{Type: protocol.KindBot, Content: content}
}
