// Package seed loads YAML seed documents into a store.
package seed

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Document is a seed file.
type Document struct {
	Apps []App `yaml:"apps" validate:"dive"`
}

// App holds the flows and plans of one tenant. Questions of a flow share a
// workflowGroupId; roots without one get a fresh group.
type App struct {
	ID        string            `yaml:"id" validate:"required"`
	Questions []domain.Question `yaml:"questions"`
	Plans     []domain.Plan     `yaml:"plans"`
}

// Result counts what Apply stored.
type Result struct {
	Questions int
	Plans     int
}

var validate = validator.New()

// Parse decodes a seed document. Unknown fields are rejected.
func Parse(r io.Reader) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return Document{}, fmt.Errorf("failed to parse seed: %w", err)
	}
	if err := validate.Struct(doc); err != nil {
		return Document{}, fmt.Errorf("invalid seed: %w", err)
	}
	return doc, nil
}

// Load parses the seed file at path.
func Load(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, err
	}
	defer f.Close()
	return Parse(f)
}

// Apply creates every question and upserts every plan of doc.
func Apply(ctx context.Context, doc Document, flows ports.FlowStore, plans ports.PlanStore) (Result, error) {
	var res Result
	for _, app := range doc.Apps {
		for _, q := range app.Questions {
			q.AppID = app.ID
			if _, err := flows.CreateQuestion(ctx, q); err != nil {
				return res, fmt.Errorf("app %q: question %q: %w", app.ID, q.ID, err)
			}
			res.Questions++
		}
		if len(app.Plans) == 0 {
			continue
		}
		inputs := make([]domain.PlanInput, len(app.Plans))
		for i, p := range app.Plans {
			inputs[i] = p.Input()
		}
		saved, err := plans.UpsertPlans(ctx, app.ID, inputs)
		if err != nil {
			return res, fmt.Errorf("app %q: plans: %w", app.ID, err)
		}
		res.Plans += len(saved)
	}
	return res, nil
}
