package narrative

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/cognicore/navrag/pkg/navrag/situation"
	"github.com/cognicore/navrag/pkg/navrag/store"
)

const systemPreamble = "You are a maritime navigation safety expert. Analyze the collision risk of the situation below using only the listed COLREGs rules and tribunal precedents."

// BuildPrompt renders the analysis prompt, bounded to maxBytes.
func BuildPrompt(p situation.Perception, rules []store.Rule, cases []store.Case, maxBytes int) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\nSituation:\n")
	fmt.Fprintf(&b, "- Visibility: %s\n", orUnknown(PlainText(p.Visibility)))
	fmt.Fprintf(&b, "- Own ship: %s\n", orUnknown(PlainText(p.OwnShip.Type)))
	fmt.Fprintf(&b, "- Target vessels: %d\n", p.TargetCount)
	for i, t := range p.Targets {
		fmt.Fprintf(&b, "  %d. %s bearing %s, distance %s, CPA %s, TCPA %s\n",
			i+1, PlainText(t.Label()), orUnknown(t.Bearing), orUnknown(t.Distance), orUnknown(t.CPA), orUnknown(t.TCPA))
	}

	b.WriteString("\nApplicable rules:\n")
	if len(rules) == 0 {
		b.WriteString("- none retrieved\n")
	}
	for _, r := range rules {
		fmt.Fprintf(&b, "- %s %s (legal weight %.2f)\n", r.ID, PlainText(r.Title), r.LegalWeight)
	}

	b.WriteString("\nPrecedent cases:\n")
	if len(cases) == 0 {
		b.WriteString("- none retrieved\n")
	}
	for _, c := range cases {
		fmt.Fprintf(&b, "- %s %s: %s\n", c.CaseID, PlainText(c.Title), Truncate(PlainText(c.Judgment), judgmentRunes))
	}

	b.WriteString("\nExplain 1) the risk level, 2) which rules govern this situation, 3) the lessons of the precedents, 4) the recommended manoeuvre.\n")
	return bound(b.String(), maxBytes)
}

// PlainText strips markup and collapses whitespace.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return strings.Join(strings.Fields(b.String()), " ")
			}
			return strings.Join(strings.Fields(s), " ")
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			b.WriteByte(' ')
		}
	}
}

// Truncate keeps at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// bound cuts s to at most maxBytes without splitting a rune.
func bound(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
