package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// ValidateFlows checks each flow's structure, then crawls it from the root and
// reports dangling links and active questions no path reaches.
func ValidateFlows(flows []domain.GroupedFlow) error {
	var all []domain.Question
	for _, gf := range flows {
		all = append(all, gf.Questions...)
		if gf.RootQuestion != nil {
			all = append(all, *gf.RootQuestion)
		}
	}
	g := domain.NewGraph(all)

	var problems []string
	for _, gf := range flows {
		if err := domain.ValidateFlow(gf); err != nil {
			problems = append(problems, strings.Split(err.Error(), "\n")...)
		}
		if gf.RootQuestion == nil {
			continue
		}
		problems = append(problems, crawl(g, gf)...)
	}

	if len(problems) > 0 {
		return fmt.Errorf("found %d errors:\n- %s", len(problems), strings.Join(problems, "\n- "))
	}
	return nil
}

func crawl(g *domain.Graph, gf domain.GroupedFlow) []string {
	var problems []string
	visited := make(map[string]bool)
	queue := []domain.Question{*gf.RootQuestion}

	for len(queue) > 0 {
		q := queue[0]
		queue = queue[1:]
		if visited[q.ID] {
			continue
		}
		visited[q.ID] = true

		if q.ExpectsFreeText() {
			if next, ok := g.After(q); ok {
				queue = append(queue, next)
			}
			continue
		}
		for _, opt := range q.Options {
			link := g.Resolve(opt)
			switch link.Kind {
			case domain.LinkDangling:
				problems = append(problems, fmt.Sprintf("Dangling link: option %q of %q points to missing question %q", opt.Text, q.ID, opt.NextQuestionID))
			case domain.LinkExplicit:
				queue = append(queue, *link.Target)
			case domain.LinkSequential:
				if next, ok := g.After(q); ok {
					queue = append(queue, next)
				}
			}
		}
	}

	for _, q := range gf.Questions {
		if q.IsActive && !visited[q.ID] {
			problems = append(problems, fmt.Sprintf("Unreachable question: %q in flow %q", q.ID, gf.Group.Title))
		}
	}
	return problems
}
