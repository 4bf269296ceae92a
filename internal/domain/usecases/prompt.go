package usecases

import (
	"fmt"
	"strings"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
)

// NotFoundAnswer is returned when retrieval finds nothing.
const NotFoundAnswer = "I couldn't find relevant information in the indexed documents."

// buildDirectPrompt lists each context with its provenance until budget runes are used.
// The top hit is always included, cut to the budget if it alone exceeds it.
// It returns the prompt and how many hits it contains.
func buildDirectPrompt(query string, hits []entities.Hit, budget int) (string, int) {
	var parts []string
	used := 0
	for i, h := range hits {
		text := h.Text
		n := len([]rune(text))
		if budget > 0 && used+n > budget {
			if i > 0 {
				break
			}
			text = entities.Truncate(text, budget)
			n = budget
		}
		used += n
		parts = append(parts, fmt.Sprintf("[%d] %s p.%d (%d-%d):\n%s", h.Rank, h.SourceName, h.Page, h.CharStart, h.CharEnd, text))
	}

	var sb strings.Builder
	sb.WriteString("Answer strictly from the provided document excerpts.\n")
	sb.WriteString("If the answer is not present, say you don't know.\n\n")
	sb.WriteString("QUESTION:\n")
	sb.WriteString(query)
	sb.WriteString("\n\nCONTEXTS:\n")
	sb.WriteString(strings.Join(parts, "\n\n"))
	sb.WriteString("\n\nAnswer:")
	return sb.String(), len(parts)
}

// buildSnippetPrompt presents curated snippets without their file names.
func buildSnippetPrompt(query string, snippets []entities.ScoredSnippet) string {
	var sb strings.Builder
	sb.WriteString("Answer the question using only the excerpts below.\n")
	sb.WriteString("Do not name or refer to source files or documents; write the answer as plain prose.\n")
	sb.WriteString("If the excerpts do not contain the answer, say you don't know.\n\n")
	sb.WriteString("QUESTION:\n")
	sb.WriteString(query)
	sb.WriteString("\n\nEXCERPTS:\n")
	for i, s := range snippets {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "(%d) %s", i+1, s.Text)
	}
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}

// buildSelectionPrompt asks the model to pick k representative candidates by index.
func buildSelectionPrompt(name string, candidates []entities.Chunk, k, previewChars int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Below are %d passages from the document %q.\n", len(candidates), name)
	fmt.Fprintf(&sb, "Choose the %d passages that together best represent the document.\n", k)
	sb.WriteString(`Reply with JSON only, in the form {"indices": [0, 3, 5]}, using the numbers in brackets, best first.`)
	sb.WriteString("\n\n")
	for i, c := range candidates {
		text := strings.Join(strings.Fields(entities.Truncate(c.Text, previewChars)), " ")
		fmt.Fprintf(&sb, "[%d] (p.%d) %s\n", i, c.Page, text)
	}
	return sb.String()
}

// templatedAnswer lists the leading text of the first few contexts.
func templatedAnswer(texts []string, labels []string, maxContexts, leadChars int) string {
	var sb strings.Builder
	sb.WriteString("I couldn't generate a complete answer. These excerpts look most relevant:\n")
	for i := 0; i < len(texts) && i < maxContexts; i++ {
		lead := entities.Truncate(texts[i], leadChars)
		fmt.Fprintf(&sb, "\n%s %s\n", labels[i], lead)
	}
	return strings.TrimRight(sb.String(), "\n")
}
