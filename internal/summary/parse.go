package summary

import (
	"encoding/json"
	"strings"

	"github.com/sjawhar/callscribe/internal/session"
)

const (
	maxBullets     = 4
	maxSummaryText = 1200
)

// ParseJSON decodes raw into dst. When raw is not JSON as a whole, the span
// between the first '{' and the last '}' is tried. It reports whether either
// attempt succeeded and never panics.
func ParseJSON(raw string, dst any) bool {
	text := strings.TrimSpace(raw)
	if text == "" {
		return false
	}
	if json.Unmarshal([]byte(text), dst) == nil {
		return true
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return false
	}
	return json.Unmarshal([]byte(text[start:end+1]), dst) == nil
}

// RenderText flattens a call summary into the single line handed back to the
// model as context for the next pass.
func RenderText(cs session.CallSummary) string {
	lines := make([]string, 0, maxBullets)
	for i, b := range cs.Bullets {
		if i == maxBullets {
			break
		}
		lines = append(lines, "issue: "+b.ClientIssue+"; action: "+b.AgentAction+"; next: "+b.NextStep)
	}

	out := strings.Join(lines, " | ")
	if cs.CRMParagraph != "" {
		out = strings.TrimSpace(out + " || " + cs.CRMParagraph)
	}

	if r := []rune(out); len(r) > maxSummaryText {
		out = string(r[:maxSummaryText])
	}
	return out
}

func capBullets(bullets []session.Bullet) []session.Bullet {
	if bullets == nil {
		return []session.Bullet{}
	}
	if len(bullets) > maxBullets {
		return bullets[:maxBullets]
	}
	return bullets
}
