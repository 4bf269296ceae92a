package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
)

var (
	errorStyle   = color.New(color.FgRed, color.Bold).SprintFunc()
	headerStyle  = color.New(color.FgCyan, color.Bold).SprintFunc()
	sourceStyle  = color.New(color.FgBlue).SprintFunc()
	directStyle  = color.New(color.FgGreen).SprintFunc()
	snippetStyle = color.New(color.FgYellow).SprintFunc()
	dimStyle     = color.New(color.Faint).SprintFunc()
)

// scoreStyle colors a score against the confidence threshold.
func scoreStyle(score, threshold float64) string {
	s := fmt.Sprintf("%.3f", score)
	if score >= threshold {
		return directStyle(s)
	}
	return snippetStyle(s)
}

func printHits(w io.Writer, hits []entities.Hit, threshold float64) {
	if len(hits) == 0 {
		fmt.Fprintln(w, dimStyle("no results"))
		return
	}
	for _, h := range hits {
		fmt.Fprintf(w, "%s %s %s p.%d (%d-%d)\n", headerStyle(fmt.Sprintf("[%d]", h.Rank)), scoreStyle(h.Score, threshold),
			sourceStyle(h.SourceName), h.Page, h.CharStart, h.CharEnd)
		fmt.Fprintf(w, "    %s\n", oneLine(entities.Truncate(h.Text, 240)))
	}
}

func printAnswer(w io.Writer, a entities.Answer) {
	mode := directStyle(string(a.Mode))
	if a.Mode == entities.ModeSnippets {
		mode = snippetStyle(string(a.Mode))
	}
	line := fmt.Sprintf("mode %s  top score %s  threshold %.2f", mode, scoreStyle(a.TopScore, a.Threshold), a.Threshold)
	if a.Fallback != "" {
		line += "  fallback " + snippetStyle(a.Fallback)
	}
	fmt.Fprintln(w, line)
	fmt.Fprintln(w)
	fmt.Fprintln(w, a.Answer)
	fmt.Fprintln(w)

	if a.Mode == entities.ModeSnippets {
		fmt.Fprintln(w, headerStyle("Snippets"))
		for i, s := range a.Snippets {
			fmt.Fprintf(w, "(%d) %.3f %s p.%d  %s\n", i+1, s.Score, sourceStyle(s.SourceName), s.Page, dimStyle(oneLine(entities.Truncate(s.Text, 160))))
		}
		return
	}
	if len(a.Contexts) > 0 {
		fmt.Fprintln(w, headerStyle("Sources"))
		printHits(w, a.Contexts, a.Threshold)
	}
}

func printSidecar(w io.Writer, sc entities.SnippetSidecar) {
	fmt.Fprintf(w, "%s  k=%d  created %s\n", headerStyle(sc.SourceName), sc.K, sc.CreatedAt.Format("2006-01-02 15:04:05Z"))
	for _, s := range sc.Snippets {
		fmt.Fprintf(w, "%s p.%d (%d-%d)\n    %s\n", sourceStyle(fmt.Sprintf("#%d", s.Rank)), s.Page, s.CharStart, s.CharEnd, oneLine(entities.Truncate(s.Text, 240)))
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
