package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// GraphOverlay highlights questions on the diagram, e.g. a visitor's path.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

const endNode = "END"

// GenerateMermaid produces a Mermaid flowchart of one flow.
// Shapes:
// - Root: ((Circle))
// - Free-text question: [/Parallelogram/]
// - Choice question: {Rhombus}
// Explicit links are solid, sequential fallback is dotted and terminal options
// point at a shared END node. Inactive questions get the inactive class.
func GenerateMermaid(gf domain.GroupedFlow, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	var all []domain.Question
	if gf.RootQuestion != nil {
		all = append(all, *gf.RootQuestion)
	}
	all = append(all, gf.Questions...)
	g := domain.NewGraph(all)

	var inactive []string
	usesEnd := false
	for _, q := range all {
		safeID := sanitizeMermaidID(q.ID)

		opener, closer := "{", "}"
		switch {
		case q.IsRoot:
			opener, closer = "((", "))"
		case q.ExpectsFreeText():
			opener, closer = "[/", "/]"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label(q), closer))
		if !q.IsActive {
			inactive = append(inactive, safeID)
		}

		if q.ExpectsFreeText() {
			if next, ok := g.After(q); ok {
				sb.WriteString(fmt.Sprintf("    %s -.-> %s\n", safeID, sanitizeMermaidID(next.ID)))
			}
			continue
		}
		for _, opt := range q.Options {
			text := escapeLabel(opt.Text)
			link := g.Resolve(opt)
			switch link.Kind {
			case domain.LinkTerminal:
				usesEnd = true
				sb.WriteString(fmt.Sprintf("    %s -- \"%s\" --> %s\n", safeID, text, endNode))
			case domain.LinkExplicit:
				sb.WriteString(fmt.Sprintf("    %s -- \"%s\" --> %s\n", safeID, text, sanitizeMermaidID(link.Target.ID)))
			case domain.LinkSequential:
				if next, ok := g.After(q); ok {
					sb.WriteString(fmt.Sprintf("    %s -. \"%s\" .-> %s\n", safeID, text, sanitizeMermaidID(next.ID)))
				} else {
					usesEnd = true
					sb.WriteString(fmt.Sprintf("    %s -. \"%s\" .-> %s\n", safeID, text, endNode))
				}
			case domain.LinkDangling:
				missing := sanitizeMermaidID(opt.NextQuestionID)
				sb.WriteString(fmt.Sprintf("    %s[\"⚠ %s\"]\n", missing, escapeLabel(opt.NextQuestionID)))
				sb.WriteString(fmt.Sprintf("    %s -- \"%s\" --x %s\n", safeID, text, missing))
			}
		}
	}
	if usesEnd {
		sb.WriteString(fmt.Sprintf("    %s((\"end\"))\n", endNode))
	}

	if len(inactive) > 0 {
		sb.WriteString("    classDef inactive stroke-dasharray: 5 5,color:#999;\n")
		sb.WriteString(fmt.Sprintf("    class %s inactive;\n", strings.Join(inactive, ",")))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for contrast on light and dark themes
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}
		if overlay.CurrentNode != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode)))
		}
	}

	return sb.String()
}

func label(q domain.Question) string {
	text := q.Title
	if text == "" {
		text = domain.DeriveTitle(q.Text)
	}
	text = escapeLabel(text)
	if q.Attachment != nil && q.Attachment.HasFile {
		text += " <br/> 📎 " + escapeLabel(q.Attachment.Filename)
	}
	return text
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.ReplaceAll(s, "\n", " ")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	// Mermaid reserves "end"
	if strings.EqualFold(s, "end") {
		s = "q_" + s
	}
	return s
}
