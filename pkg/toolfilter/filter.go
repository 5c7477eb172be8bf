// Package toolfilter implements an optional relevance filter over the
// aggregated tool list, scoring tools against a user message so a
// downstream model sees a shorter, more relevant candidate set.
package toolfilter

import (
	"strings"

	"github.com/stacklok/mcp-aggregator/pkg/rpc"
)

// minToolsFloor is the safety floor: if scoring would leave fewer tools
// than this, filtering is skipped entirely and the full list is returned.
const minToolsFloor = 5

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "to": true, "of": true, "and": true,
	"is": true, "in": true, "for": true, "on": true, "with": true, "this": true,
}

// Filter scores tools against message and returns the subset whose score
// is positive, sorted by descending score. If that would leave fewer
// than minToolsFloor tools, the full unfiltered list is returned instead.
func Filter(tools []rpc.Tool, message string) []rpc.Tool {
	if message == "" {
		return tools
	}

	keywords := tokenize(message)
	if len(keywords) == 0 {
		return tools
	}

	type scored struct {
		tool  rpc.Tool
		score int
	}
	var candidates []scored
	for _, t := range tools {
		score := scoreTool(t, keywords)
		if score > 0 {
			candidates = append(candidates, scored{tool: t, score: score})
		}
	}

	if len(candidates) < minToolsFloor {
		return tools
	}

	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].score > candidates[j-1].score; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	out := make([]rpc.Tool, len(candidates))
	for i, c := range candidates {
		out[i] = c.tool
	}
	return out
}

func scoreTool(t rpc.Tool, keywords map[string]bool) int {
	score := 0
	name := strings.ToLower(t.Name)
	desc := strings.ToLower(t.Description)
	for kw := range keywords {
		if strings.Contains(name, kw) {
			score += 3
		}
		if strings.Contains(desc, kw) {
			score++
		}
	}
	return score
}

func tokenize(message string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	out := make(map[string]bool, len(words))
	for _, w := range words {
		if len(w) < 3 || stopwords[w] {
			continue
		}
		out[w] = true
	}
	return out
}
