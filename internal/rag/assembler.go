package rag

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/stemrag/internal/models"
	"github.com/hyperjump/stemrag/pkg/utils"
)

// snippetSeparator sits between formatted snippets.
const snippetSeparator = "\n\n---\n\n"

// Assembler merges retrieved context into the instruction block handed to
// the generation step.
type Assembler struct {
	base     string
	maxChars int
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithMaxContextChars bounds the formatted snippet block. Zero means unlimited.
func WithMaxContextChars(n int) AssemblerOption {
	return func(a *Assembler) {
		if n > 0 {
			a.maxChars = n
		}
	}
}

// NewAssembler creates an assembler over base instructions. An empty base uses SystemPrompt.
func NewAssembler(base string, opts ...AssemblerOption) *Assembler {
	if base == "" {
		base = SystemPrompt
	}
	a := &Assembler{base: base}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Base returns the base instructions.
func (a *Assembler) Base() string {
	return a.base
}

// Assemble returns the base instructions followed by the context section.
// With no context the base instructions are returned unchanged. The query
// is accepted for future re-ranking and does not affect the output.
func (a *Assembler) Assemble(contexts []models.RetrievedContext, _ string) string {
	section := a.FormatContext(contexts)
	if section == "" {
		return a.base
	}
	return a.base + "\n" + section
}

// FormatContext renders contexts into ContextTemplate, or "" when there is nothing to render.
func (a *Assembler) FormatContext(contexts []models.RetrievedContext) string {
	block := formatSnippets(a.fit(contexts))
	if block == "" {
		return ""
	}
	return strings.Replace(ContextTemplate, contextPlaceholder, block, 1)
}

func formatSnippets(contexts []models.RetrievedContext) string {
	parts := make([]string, 0, len(contexts))
	for i, c := range contexts {
		label := fmt.Sprintf("[Chunk %d]", i+1)
		if c.Source != "" {
			label = fmt.Sprintf("[Source: %s]", c.Source)
		}
		parts = append(parts, label+"\n"+c.Content)
	}
	return strings.Join(parts, snippetSeparator)
}

// fit drops the least similar snippets until the formatted block is within
// maxChars, keeping the survivors in their original order. When only one
// snippet remains and it is still too long, its content is truncated.
func (a *Assembler) fit(contexts []models.RetrievedContext) []models.RetrievedContext {
	if a.maxChars <= 0 || len(contexts) == 0 || runeCount(formatSnippets(contexts)) <= a.maxChars {
		return contexts
	}
	order := make([]int, len(contexts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return contexts[order[i]].Similarity > contexts[order[j]].Similarity
	})
	keep := make([]bool, len(contexts))
	for _, i := range order {
		keep[i] = true
	}
	for n := len(order) - 1; n > 0; n-- {
		keep[order[n]] = false
		if runeCount(formatSnippets(selectKept(contexts, keep))) <= a.maxChars {
			return selectKept(contexts, keep)
		}
	}

	best := contexts[order[0]]
	overhead := runeCount(formatSnippets([]models.RetrievedContext{{Source: best.Source, Content: ""}}))
	room := a.maxChars - overhead - len("...")
	if room <= 0 {
		return nil
	}
	best.Content = utils.Truncate(best.Content, room)
	return []models.RetrievedContext{best}
}

func selectKept(contexts []models.RetrievedContext, keep []bool) []models.RetrievedContext {
	out := make([]models.RetrievedContext, 0, len(contexts))
	for i, c := range contexts {
		if keep[i] {
			out = append(out, c)
		}
	}
	return out
}

func runeCount(s string) int {
	return utf8.RuneCountInString(s)
}
