package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/google/uuid"
)

// Store implements every storage port in memory.
// Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	questions map[string][]domain.Question
	plans     map[string][]domain.Plan
	files     map[string]storedFile
}

type storedFile struct {
	meta domain.UploadedFile
	data []byte
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		questions: make(map[string][]domain.Question),
		plans:     make(map[string][]domain.Plan),
		files:     make(map[string]storedFile),
	}
}

// ListQuestions returns copies of the app's questions in creation order.
func (s *Store) ListQuestions(ctx context.Context, appID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.questions[appID]
	out := make([]domain.Question, len(list))
	for i, q := range list {
		out[i] = q.Clone()
	}
	return out, nil
}

// ListGrouped groups the app's questions by workflow group.
func (s *Store) ListGrouped(ctx context.Context, appID string) ([]domain.GroupedFlow, error) {
	all, err := s.ListQuestions(ctx, appID)
	if err != nil {
		return nil, err
	}
	return domain.GroupQuestions(all), nil
}

// CreateQuestion stores q. Ids are kept when provided, so seeded flows can
// link to each other.
func (s *Store) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	stored := q.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.IsRoot && stored.WorkflowGroupID == "" {
		stored.WorkflowGroupID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.find(stored.AppID, stored.ID); ok {
		return domain.Question{}, fmt.Errorf("question %q already exists", stored.ID)
	}
	s.questions[stored.AppID] = append(s.questions[stored.AppID], stored)
	return stored.Clone(), nil
}

// UpdateQuestion applies patch to the stored question.
func (s *Store) UpdateQuestion(ctx context.Context, appID, id string, patch domain.QuestionPatch) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.find(appID, id)
	if !ok {
		return domain.Question{}, fmt.Errorf("question %q: %w", id, domain.ErrNotFound)
	}
	updated := patch.Apply(s.questions[appID][i])
	s.questions[appID][i] = updated
	return updated.Clone(), nil
}

// DeleteQuestion removes a question.
func (s *Store) DeleteQuestion(ctx context.Context, appID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.find(appID, id)
	if !ok {
		return fmt.Errorf("question %q: %w", id, domain.ErrNotFound)
	}
	list := s.questions[appID]
	s.questions[appID] = append(list[:i:i], list[i+1:]...)
	return nil
}

func (s *Store) find(appID, id string) (int, bool) {
	for i, q := range s.questions[appID] {
		if q.ID == id {
			return i, true
		}
	}
	return -1, false
}

// ListPlans returns copies of the app's plans.
func (s *Store) ListPlans(ctx context.Context, appID string) ([]domain.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.plans[appID]
	out := make([]domain.Plan, len(list))
	for i, p := range list {
		out[i] = p.Clone()
	}
	return out, nil
}

// UpsertPlans replaces plans by id and appends new ones.
func (s *Store) UpsertPlans(ctx context.Context, appID string, inputs []domain.PlanInput) ([]domain.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Plan, 0, len(inputs))
	for _, in := range inputs {
		p := domain.PlanFromInput(in)
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		replaced := false
		for i := range s.plans[appID] {
			if s.plans[appID][i].ID == p.ID {
				s.plans[appID][i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			s.plans[appID] = append(s.plans[appID], p)
		}
		out = append(out, p.Clone())
	}
	return out, nil
}

// UploadAttachment records the file on the question. The content is kept in the file table.
func (s *Store) UploadAttachment(ctx context.Context, appID, questionID string, file domain.File) (domain.Attachment, error) {
	data, err := readAll(file.Content)
	if err != nil {
		return domain.Attachment{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.find(appID, questionID)
	if !ok {
		return domain.Attachment{}, fmt.Errorf("question %q: %w", questionID, domain.ErrNotFound)
	}
	att := domain.Attachment{Filename: file.Filename, ContentType: file.ContentType, HasFile: true}
	s.questions[appID][i].Attachment = &att
	s.files[attachmentKey(appID, questionID)] = storedFile{
		meta: domain.UploadedFile{FileID: questionID, Filename: file.Filename, ContentType: file.ContentType, Size: int64(len(data))},
		data: data,
	}
	return att, nil
}

// DeleteAttachment clears the question's attachment.
func (s *Store) DeleteAttachment(ctx context.Context, appID, questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.find(appID, questionID)
	if !ok {
		return fmt.Errorf("question %q: %w", questionID, domain.ErrNotFound)
	}
	s.questions[appID][i].Attachment = nil
	delete(s.files, attachmentKey(appID, questionID))
	return nil
}

// GetAttachment returns a reader over a question's attached file.
func (s *Store) GetAttachment(ctx context.Context, appID, questionID string) (domain.UploadedFile, io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[attachmentKey(appID, questionID)]
	if !ok {
		return domain.UploadedFile{}, nil, fmt.Errorf("attachment of %q: %w", questionID, domain.ErrNotFound)
	}
	return f.meta, io.NopCloser(bytes.NewReader(f.data)), nil
}

// PutFile stores an upload and assigns it an id.
func (s *Store) PutFile(ctx context.Context, appID string, file domain.File) (domain.UploadedFile, error) {
	data, err := readAll(file.Content)
	if err != nil {
		return domain.UploadedFile{}, err
	}
	meta := domain.UploadedFile{
		FileID:      uuid.NewString(),
		Filename:    file.Filename,
		ContentType: file.ContentType,
		Size:        int64(len(data)),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[fileKey(appID, meta.FileID)] = storedFile{meta: meta, data: data}
	return meta, nil
}

// GetFile returns a reader over a stored upload.
func (s *Store) GetFile(ctx context.Context, appID, fileID string) (domain.UploadedFile, io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[fileKey(appID, fileID)]
	if !ok {
		return domain.UploadedFile{}, nil, fmt.Errorf("file %q: %w", fileID, domain.ErrNotFound)
	}
	return f.meta, io.NopCloser(bytes.NewReader(f.data)), nil
}

func fileKey(appID, fileID string) string {
	return appID + "/files/" + fileID
}

func attachmentKey(appID, questionID string) string {
	return appID + "/attachments/" + questionID
}

func readAll(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file content: %w", err)
	}
	return data, nil
}
