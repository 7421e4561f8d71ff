package answer

import (
	"fmt"
	"strings"

	"github.com/localrag/localrag/internal/chunkstore"
	"github.com/localrag/localrag/internal/llm"
)

// formatHistory serializes conversation turns into the tagged history block
// both the rewriter and the answering prompts embed.
func formatHistory(messages []llm.Message) string {
	var b strings.Builder
	b.WriteString("<chat_history>\n")
	for _, m := range messages {
		switch m.Role {
		case llm.RoleUser:
			fmt.Fprintf(&b, "<user>%s</user>\n", m.Text)
		case llm.RoleAssistant:
			fmt.Fprintf(&b, "<assistant>%s</assistant>\n", m.Text)
		case llm.RoleSystem:
			fmt.Fprintf(&b, "<system>%s</system>\n", m.Text)
		}
	}
	b.WriteString("</chat_history>")
	return b.String()
}

// formatPassage wraps a single retrieved passage in the citation format the
// model is instructed to quote from.
func formatPassage(p chunkstore.Passage) string {
	source := p.Source
	if source == "" {
		source = "unknown_source"
	}
	return fmt.Sprintf(`<document>
<metadata>
<source>%s</source>
</metadata>
<content>
%s
</content>
</document>`, source, p.Text)
}

// formatPassages renders the full source-material section, or the empty
// string when there are no passages.
func formatPassages(passages []chunkstore.Passage, sectionTitle string) string {
	if len(passages) == 0 {
		return ""
	}

	formatted := make([]string, len(passages))
	for i, p := range passages {
		formatted[i] = formatPassage(p)
	}

	return fmt.Sprintf("%s:\n<documents>\n%s\n</documents>",
		sectionTitle, strings.Join(formatted, "\n"))
}
