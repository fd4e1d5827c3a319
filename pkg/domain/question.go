package domain

import (
	"strings"
	"unicode/utf8"
)

// TitleMaxRunes is the length of the title derived from a prompt when the operator leaves it blank.
const TitleMaxRunes = 100

// QuestionTypeID references the externally defined enumeration of answer kinds.
type QuestionTypeID int

const (
	QuestionTypeText QuestionTypeID = iota + 1
	QuestionTypeChoice
)

// Question is a node of the flow graph.
// Links between questions are ids, never pointers; see Graph.
type Question struct {
	ID              string         `json:"id" yaml:"id"`
	AppID           string         `json:"appId" yaml:"appId"`
	WorkflowGroupID string         `json:"workflowGroupId,omitempty" yaml:"workflowGroupId,omitempty"`
	IsRoot          bool           `json:"isRoot" yaml:"isRoot"`
	Title           string         `json:"title" yaml:"title"`
	Text            string         `json:"text" yaml:"text"`
	QuestionTypeID  QuestionTypeID `json:"questionTypeId" yaml:"questionTypeId"`
	Order           int            `json:"order" yaml:"order"`
	IsActive        bool           `json:"isActive" yaml:"isActive"`
	Options         []Option       `json:"options" yaml:"options"`
	Attachment      *Attachment    `json:"attachment,omitempty" yaml:"attachment,omitempty"`
}

// Option is a clickable branching choice attached to a question.
// An empty NextQuestionID means sequential fallback.
type Option struct {
	Text           string `json:"text" yaml:"text"`
	Order          int    `json:"order" yaml:"order"`
	IsTerminal     bool   `json:"isTerminal" yaml:"isTerminal"`
	NextQuestionID string `json:"nextQuestionId,omitempty" yaml:"nextQuestionId,omitempty"`
}

// Attachment describes the single file that may be attached to a question.
type Attachment struct {
	Filename    string `json:"filename" yaml:"filename"`
	ContentType string `json:"contentType" yaml:"contentType"`
	HasFile     bool   `json:"hasFile" yaml:"hasFile"`
}

// ExpectsFreeText reports whether the runtime waits for a typed reply.
func (q Question) ExpectsFreeText() bool {
	return len(q.Options) == 0
}

// Clone returns a deep copy so callers can mutate options without aliasing a cache.
func (q Question) Clone() Question {
	c := q
	if q.Options != nil {
		c.Options = make([]Option, len(q.Options))
		copy(c.Options, q.Options)
	}
	if q.Attachment != nil {
		a := *q.Attachment
		c.Attachment = &a
	}
	return c
}

// DeriveTitle returns the first TitleMaxRunes runes of the prompt.
func DeriveTitle(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if utf8.RuneCountInString(prompt) <= TitleMaxRunes {
		return prompt
	}
	runes := []rune(prompt)
	return string(runes[:TitleMaxRunes])
}

// QuestionPatch is a partial update. Nil fields are preserved by the store.
type QuestionPatch struct {
	WorkflowGroupID *string         `json:"workflowGroupId,omitempty"`
	Title           *string         `json:"title,omitempty"`
	Text            *string         `json:"text,omitempty"`
	QuestionTypeID  *QuestionTypeID `json:"questionTypeId,omitempty"`
	Order           *int            `json:"order,omitempty"`
	IsActive        *bool           `json:"isActive,omitempty"`
	Options         *[]Option       `json:"options,omitempty"`
	Attachment      *Attachment     `json:"attachment,omitempty"`
}

// OrderPatch updates nothing but the stored order.
func OrderPatch(order int) QuestionPatch {
	return QuestionPatch{Order: &order}
}

// EditablePatch captures every operator-editable field of q.
func EditablePatch(q Question) QuestionPatch {
	opts := append([]Option(nil), q.Options...)
	return QuestionPatch{
		WorkflowGroupID: ptr(q.WorkflowGroupID),
		Title:           ptr(q.Title),
		Text:            ptr(q.Text),
		QuestionTypeID:  ptr(q.QuestionTypeID),
		Order:           ptr(q.Order),
		IsActive:        ptr(q.IsActive),
		Options:         &opts,
	}
}

// Apply returns q with every non-nil patch field applied.
func (p QuestionPatch) Apply(q Question) Question {
	out := q.Clone()
	if p.WorkflowGroupID != nil {
		out.WorkflowGroupID = *p.WorkflowGroupID
	}
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Text != nil {
		out.Text = *p.Text
	}
	if p.QuestionTypeID != nil {
		out.QuestionTypeID = *p.QuestionTypeID
	}
	if p.Order != nil {
		out.Order = *p.Order
	}
	if p.IsActive != nil {
		out.IsActive = *p.IsActive
	}
	if p.Options != nil {
		out.Options = append([]Option(nil), (*p.Options)...)
	}
	if p.Attachment != nil {
		a := *p.Attachment
		out.Attachment = &a
	}
	return out
}

func ptr[T any](v T) *T {
	return &v
}
