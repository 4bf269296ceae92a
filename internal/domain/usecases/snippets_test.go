package usecases

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
)

const manual = "/docs/manual.pdf"

// sized returns one passage per length, each on its own page.
func sized(lengths ...int) []entities.Passage {
	out := make([]entities.Passage, len(lengths))
	for i, n := range lengths {
		out[i] = entities.Passage{Page: i + 1, CharStart: 0, CharEnd: n, Text: strings.Repeat(string(rune('a'+i%26)), n)}
	}
	return out
}

func newTestCurator(gen *mockGenerator, pass []entities.Passage) (*SnippetCurator, *memSidecars) {
	ext := &mockExtractor{passages: map[string][]entities.Passage{manual: pass}}
	sidecars := newMemSidecars()
	var c *SnippetCurator
	if gen == nil {
		c = NewSnippetCurator(ext, nil, sidecars, CuratorOptions{})
	} else {
		c = NewSnippetCurator(ext, gen, sidecars, CuratorOptions{})
	}
	return c, sidecars
}

func snippetLengths(sc entities.SnippetSidecar) []int {
	out := make([]int, len(sc.Snippets))
	for i, s := range sc.Snippets {
		out[i] = len([]rune(s.Text))
	}
	return out
}

func TestSnippetCurator_UsesModelPickFromProse(t *testing.T) {
	gen := &mockGenerator{responses: []string{"Sure! Here you go:\n```json\n{\"indices\": [2, 0]}\n```\nHope it helps."}}
	c, sidecars := newTestCurator(gen, sized(10, 50, 30, 40, 20))

	sc, err := c.Build(context.Background(), manual, 2)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	// candidates are ordered 50, 40, 30, 20, 10
	if got := fmt.Sprint(snippetLengths(sc)); got != "[30 50]" {
		t.Errorf("unexpected snippets %s", got)
	}
	if sc.Snippets[0].Rank != 1 || sc.Snippets[1].Rank != 2 || sc.Snippets[0].Page != 3 {
		t.Errorf("unexpected provenance: %+v", sc.Snippets)
	}
	if sc.K != 2 || sc.SourceName != "manual.pdf" {
		t.Errorf("unexpected sidecar header: %+v", sc)
	}
	if _, ok := sidecars.byPath[manual]; !ok {
		t.Error("sidecar was not saved")
	}
	if !strings.Contains(gen.prompts[0], `"manual.pdf"`) || !strings.Contains(gen.prompts[0], "[4] (p.1)") {
		t.Errorf("unexpected selection prompt:\n%s", gen.prompts[0])
	}
}

func TestSnippetCurator_TopsUpShortPick(t *testing.T) {
	gen := &mockGenerator{responses: []string{"[4]"}}
	c, _ := newTestCurator(gen, sized(10, 50, 30, 40, 20))

	sc, err := c.Build(context.Background(), manual, 3)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if got := fmt.Sprint(snippetLengths(sc)); got != "[10 50 40]" {
		t.Errorf("expected the pick followed by the longest remaining, got %s", got)
	}
}

func TestSnippetCurator_FallsBackToLongest(t *testing.T) {
	cases := []struct {
		name string
		gen  *mockGenerator
	}{
		{"unparseable", &mockGenerator{responses: []string{"I would pick the second and the fourth."}}},
		{"out of range", &mockGenerator{responses: []string{`{"indices": [17, 99]}`}}},
		{"generator error", &mockGenerator{err: errBoom}},
		{"no generator", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestCurator(tc.gen, sized(10, 50, 30, 40, 20))
			sc, err := c.Build(context.Background(), manual, 2)
			if err != nil {
				t.Fatalf("build failed: %v", err)
			}
			if got := fmt.Sprint(snippetLengths(sc)); got != "[50 40]" {
				t.Errorf("expected the two longest passages, got %s", got)
			}
		})
	}
}

func TestSnippetCurator_CapsCandidates(t *testing.T) {
	lengths := make([]int, 50)
	for i := range lengths {
		lengths[i] = i + 1
	}
	gen := &mockGenerator{responses: []string{"no idea"}}
	c, _ := newTestCurator(gen, sized(lengths...))

	sc, err := c.Build(context.Background(), manual, 0)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if got := fmt.Sprint(snippetLengths(sc)); got != "[50 49 48 47 46 45 44 43]" {
		t.Errorf("expected the 8 longest passages, got %s", got)
	}
	if !strings.Contains(gen.prompts[0], "[39]") || strings.Contains(gen.prompts[0], "[40]") {
		t.Error("selection prompt should list exactly 40 candidates")
	}
}

func TestSnippetCurator_KLargerThanDocument(t *testing.T) {
	c, _ := newTestCurator(nil, sized(5, 7))
	sc, err := c.Build(context.Background(), manual, 8)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if sc.K != 2 || len(sc.Snippets) != 2 {
		t.Errorf("expected k clamped to 2, got k=%d with %d snippets", sc.K, len(sc.Snippets))
	}
}

func TestSnippetCurator_CreatedAtIsUTC(t *testing.T) {
	c, _ := newTestCurator(nil, sized(5))
	c.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600)) }

	sc, err := c.Build(context.Background(), manual, 1)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if sc.CreatedAt.Location() != time.UTC || sc.CreatedAt.Hour() != 11 {
		t.Errorf("expected UTC timestamp, got %s", sc.CreatedAt)
	}
}

func TestSnippetCurator_ExtractErrorSavesNothing(t *testing.T) {
	ext := &mockExtractor{failFor: map[string]error{manual: errBoom}}
	sidecars := newMemSidecars()
	c := NewSnippetCurator(ext, nil, sidecars, CuratorOptions{})

	if _, err := c.Build(context.Background(), manual, 3); err == nil {
		t.Fatal("expected extraction error")
	}
	if len(sidecars.byPath) != 0 {
		t.Error("no sidecar should be written on failure")
	}
}
