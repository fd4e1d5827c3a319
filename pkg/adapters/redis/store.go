package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// Store implements every storage port using Redis.
//
// Questions and plans live in one hash per app (id -> JSON) with a sorted set
// keeping creation order. Uploaded files are hashes holding metadata and content.
type Store struct {
	client  *backend.Client
	prefix  string
	fileTTL time.Duration
}

type Option func(*Store)

// WithFileTTL sets the expiration for chat uploads. Question attachments never expire.
func WithFileTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.fileTTL = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "chatflow:",
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) appKey(appID string, parts ...string) string {
	return s.prefix + "app:" + appID + ":" + strings.Join(parts, ":")
}

func (s *Store) seqKey() string {
	return s.prefix + "seq"
}

// ListQuestions returns the app's questions in creation order.
func (s *Store) ListQuestions(ctx context.Context, appID string) ([]domain.Question, error) {
	var out []domain.Question
	err := s.listJSON(ctx, s.appKey(appID, "questions"), func(raw string) error {
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return fmt.Errorf("failed to unmarshal question: %w", err)
		}
		out = append(out, q)
		return nil
	})
	return out, err
}

// ListGrouped groups the app's questions by workflow group.
func (s *Store) ListGrouped(ctx context.Context, appID string) ([]domain.GroupedFlow, error) {
	all, err := s.ListQuestions(ctx, appID)
	if err != nil {
		return nil, err
	}
	return domain.GroupQuestions(all), nil
}

// CreateQuestion stores q, keeping a provided id.
func (s *Store) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.IsRoot && q.WorkflowGroupID == "" {
		q.WorkflowGroupID = uuid.NewString()
	}
	data, err := json.Marshal(q)
	if err != nil {
		return domain.Question{}, fmt.Errorf("failed to marshal question: %w", err)
	}

	key := s.appKey(q.AppID, "questions")
	created, err := s.client.HSetNX(ctx, key, q.ID, data).Result()
	if err != nil {
		return domain.Question{}, fmt.Errorf("failed to save to redis: %w", err)
	}
	if !created {
		return domain.Question{}, fmt.Errorf("question %q already exists", q.ID)
	}
	if err := s.index(ctx, key, q.ID); err != nil {
		return domain.Question{}, err
	}
	return q, nil
}

// UpdateQuestion applies patch inside an optimistic transaction.
func (s *Store) UpdateQuestion(ctx context.Context, appID, id string, patch domain.QuestionPatch) (domain.Question, error) {
	var updated domain.Question
	err := s.modifyQuestion(ctx, appID, id, func(q domain.Question) domain.Question {
		updated = patch.Apply(q)
		return updated
	})
	return updated, err
}

// DeleteQuestion removes a question.
func (s *Store) DeleteQuestion(ctx context.Context, appID, id string) error {
	key := s.appKey(appID, "questions")
	pipe := s.client.TxPipeline()
	del := pipe.HDel(ctx, key, id)
	pipe.ZRem(ctx, key+":index", id)
	pipe.Del(ctx, s.appKey(appID, "attachment", id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("question %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListPlans returns the app's plans in creation order.
func (s *Store) ListPlans(ctx context.Context, appID string) ([]domain.Plan, error) {
	var out []domain.Plan
	err := s.listJSON(ctx, s.appKey(appID, "plans"), func(raw string) error {
		var p domain.Plan
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return fmt.Errorf("failed to unmarshal plan: %w", err)
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// UpsertPlans writes every plan, assigning ids to new ones.
func (s *Store) UpsertPlans(ctx context.Context, appID string, inputs []domain.PlanInput) ([]domain.Plan, error) {
	key := s.appKey(appID, "plans")
	out := make([]domain.Plan, 0, len(inputs))
	for _, in := range inputs {
		p := domain.PlanFromInput(in)
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal plan: %w", err)
		}
		if err := s.client.HSet(ctx, key, p.ID, data).Err(); err != nil {
			return nil, fmt.Errorf("failed to save to redis: %w", err)
		}
		if err := s.index(ctx, key, p.ID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// UploadAttachment stores the content and marks the question.
func (s *Store) UploadAttachment(ctx context.Context, appID, questionID string, file domain.File) (domain.Attachment, error) {
	data, err := readAll(file.Content)
	if err != nil {
		return domain.Attachment{}, err
	}
	att := domain.Attachment{Filename: file.Filename, ContentType: file.ContentType, HasFile: true}
	err = s.modifyQuestion(ctx, appID, questionID, func(q domain.Question) domain.Question {
		q.Attachment = &att
		return q
	})
	if err != nil {
		return domain.Attachment{}, err
	}
	meta := domain.UploadedFile{FileID: questionID, Filename: file.Filename, ContentType: file.ContentType, Size: int64(len(data))}
	if err := s.putBlob(ctx, s.appKey(appID, "attachment", questionID), meta, data, 0); err != nil {
		return domain.Attachment{}, err
	}
	return att, nil
}

// DeleteAttachment clears the question's attachment.
func (s *Store) DeleteAttachment(ctx context.Context, appID, questionID string) error {
	err := s.modifyQuestion(ctx, appID, questionID, func(q domain.Question) domain.Question {
		q.Attachment = nil
		return q
	})
	if err != nil {
		return err
	}
	return s.client.Del(ctx, s.appKey(appID, "attachment", questionID)).Err()
}

// PutFile stores a chat upload.
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
	if err := s.putBlob(ctx, s.appKey(appID, "file", meta.FileID), meta, data, s.fileTTL); err != nil {
		return domain.UploadedFile{}, err
	}
	return meta, nil
}

// GetFile loads a chat upload.
func (s *Store) GetFile(ctx context.Context, appID, fileID string) (domain.UploadedFile, io.ReadCloser, error) {
	return s.getBlob(ctx, s.appKey(appID, "file", fileID), "file "+strconv.Quote(fileID))
}

// GetAttachment loads a question's attached file.
func (s *Store) GetAttachment(ctx context.Context, appID, questionID string) (domain.UploadedFile, io.ReadCloser, error) {
	return s.getBlob(ctx, s.appKey(appID, "attachment", questionID), "attachment of "+strconv.Quote(questionID))
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) modifyQuestion(ctx context.Context, appID, id string, fn func(domain.Question) domain.Question) error {
	key := s.appKey(appID, "questions")
	return s.client.Watch(ctx, func(tx *backend.Tx) error {
		raw, err := tx.HGet(ctx, key, id).Result()
		if errors.Is(err, backend.Nil) {
			return fmt.Errorf("question %q: %w", id, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get from redis: %w", err)
		}
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return fmt.Errorf("failed to unmarshal question: %w", err)
		}
		data, err := json.Marshal(fn(q))
		if err != nil {
			return fmt.Errorf("failed to marshal question: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.HSet(ctx, key, id, data)
			return nil
		})
		return err
	}, key)
}

// index records id in the creation-order sorted set of key, once.
func (s *Store) index(ctx context.Context, key, id string) error {
	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate sequence: %w", err)
	}
	err = s.client.ZAddNX(ctx, key+":index", backend.Z{Score: float64(seq), Member: id}).Err()
	if err != nil {
		return fmt.Errorf("failed to index %q: %w", id, err)
	}
	return nil
}

func (s *Store) listJSON(ctx context.Context, key string, fn func(raw string) error) error {
	ids, err := s.client.ZRange(ctx, key+":index", 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to list from redis: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	vals, err := s.client.HMGet(ctx, key, ids...).Result()
	if err != nil {
		return fmt.Errorf("failed to get from redis: %w", err)
	}
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// Index entry outlived its hash field.
			continue
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) putBlob(ctx context.Context, key string, meta domain.UploadedFile, data []byte, ttl time.Duration) error {
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal file metadata: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "meta", rawMeta, "data", data)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

func (s *Store) getBlob(ctx context.Context, key, what string) (domain.UploadedFile, io.ReadCloser, error) {
	vals, err := s.client.HMGet(ctx, key, "meta", "data").Result()
	if err != nil {
		return domain.UploadedFile{}, nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	rawMeta, ok := vals[0].(string)
	if !ok {
		return domain.UploadedFile{}, nil, fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	var meta domain.UploadedFile
	if err := json.Unmarshal([]byte(rawMeta), &meta); err != nil {
		return domain.UploadedFile{}, nil, fmt.Errorf("failed to unmarshal file metadata: %w", err)
	}
	data, _ := vals[1].(string)
	return meta, io.NopCloser(strings.NewReader(data)), nil
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
