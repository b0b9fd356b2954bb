// Package formatter assembles recognized per-region content into a single
// deterministic Markdown document (spec §4.7): label-driven decoration,
// content cleanup, formula/bullet/word-break region merging, and image
// placeholders for regions that carry no recognized content.
package formatter

import (
	"fmt"
	"regexp"
	"strings"
)

// Region is one page region's recognized content, as handed off by the
// orchestrator after recognition.
type Region struct {
	Index       int
	NativeLabel string
	BBox        [4]float64
	Content     string
}

// Page is one document page's regions, in pipeline order.
type Page struct {
	Index   int
	Regions []Region
}

// Format renders pages to a single Markdown document.
func Format(pages []Page) string {
	var out []string
	for _, pg := range pages {
		regions := append([]Region(nil), pg.Regions...)
		sortByIndex(regions)
		regions = cleanAll(regions)
		regions = mergeFormulaNumbers(regions)
		regions = mergeWordBreaks(regions)
		regions = alignBullets(regions)
		regions = renumber(regions)

		for _, r := range regions {
			block := renderRegion(pg.Index, r)
			if block != "" {
				out = append(out, block)
			}
		}
	}
	return strings.Join(out, "\n\n")
}

func sortByIndex(regions []Region) {
	for i := 1; i < len(regions); i++ {
		v := regions[i]
		j := i - 1
		for j >= 0 && regions[j].Index > v.Index {
			regions[j+1] = regions[j]
			j--
		}
		regions[j+1] = v
	}
}

func renumber(regions []Region) []Region {
	for i := range regions {
		regions[i].Index = i
	}
	return regions
}

// task maps a native layout label to one of the formatter's coarse content
// kinds, defaulting to the native label itself when unrecognized.
func task(label string) string {
	switch label {
	case "text", "doc_title", "paragraph_title", "formula_number":
		return "text"
	case "table":
		return "table"
	case "formula":
		return "formula"
	case "image", "figure", "chart", "seal":
		return "image"
	default:
		return label
	}
}

func renderRegion(pageIndex int, r Region) string {
	if r.Content == "" {
		if task(r.NativeLabel) == "image" {
			return fmt.Sprintf("![](page=%d,bbox=[%g,%g,%g,%g])", pageIndex, r.BBox[0], r.BBox[1], r.BBox[2], r.BBox[3])
		}
		return ""
	}

	switch r.NativeLabel {
	case "doc_title":
		return "# " + stripHeadingDecoration(r.Content)
	case "paragraph_title":
		return "## " + stripHeadingDecoration(r.Content)
	}

	switch task(r.NativeLabel) {
	case "formula":
		return formatFormula(r.Content)
	case "text":
		return formatText(r.Content)
	default:
		return r.Content
	}
}

var headingDecorRe = regexp.MustCompile(`^(#+\s*|-\s+|\*\s+)+`)

func stripHeadingDecoration(s string) string {
	return headingDecorRe.ReplaceAllString(strings.TrimSpace(s), "")
}

var (
	runCollapseRe = regexp.MustCompile(`[.·_]{2,}|(?:\\_){2,}`)
)

// cleanAll applies the shared whitespace/run cleanup spec §4.7 requires of
// every region's content, regardless of label.
func cleanAll(regions []Region) []Region {
	for i := range regions {
		regions[i].Content = cleanContent(regions[i].Content)
	}
	return regions
}

func cleanContent(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "\t")
	s = strings.TrimSuffix(s, "\t")
	s = runCollapseRe.ReplaceAllStringFunc(s, func(run string) string {
		if run == "" {
			return run
		}
		r := []rune(run)
		unit := string(r[0])
		if strings.HasPrefix(run, "\\_") {
			unit = "\\_"
		}
		return strings.Repeat(unit, 3)
	})
	return s
}

var (
	formulaDelimRe = regexp.MustCompile(`^\$\$(.*)\$\$$|^\\\[(.*)\\\]$|^\\\((.*)\\\)$`)
)

func formatFormula(s string) string {
	s = strings.TrimSpace(s)
	if m := formulaDelimRe.FindStringSubmatch(s); m != nil {
		for _, g := range m[1:] {
			if g != "" {
				s = strings.TrimSpace(g)
				break
			}
		}
	}
	return "$$\n" + s + "\n$$"
}

var (
	bulletRe    = regexp.MustCompile(`^[·•*]\s*`)
	numberingRe = regexp.MustCompile(`^[（(]\s*(\d+)\s*[)）]`)
	letterNumRe = regexp.MustCompile(`^([A-Za-z])[.)]\s*`)
	singleNLRe  = regexp.MustCompile(`([^\n])\n([^\n])`)
)

func formatText(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " ")
		prefixLen := len(line) - len(trimmed)
		prefix := line[:prefixLen]

		if bulletRe.MatchString(trimmed) {
			trimmed = "- " + bulletRe.ReplaceAllString(trimmed, "")
		} else if m := numberingRe.FindStringSubmatch(trimmed); m != nil {
			trimmed = fmt.Sprintf("(%s) %s", m[1], strings.TrimSpace(trimmed[len(m[0]):]))
		} else if m := letterNumRe.FindStringSubmatch(trimmed); m != nil {
			trimmed = fmt.Sprintf("%s. %s", strings.ToLower(m[1]), strings.TrimSpace(trimmed[len(m[0]):]))
		}
		lines[i] = prefix + trimmed
	}
	s = strings.Join(lines, "\n")
	return doubleNewlines(s)
}

func doubleNewlines(s string) string {
	for {
		next := singleNLRe.ReplaceAllString(s, "$1\n\n$2")
		if next == s {
			return s
		}
		s = next
	}
}

// mergeFormulaNumbers folds a "formula_number" region into its preceding
// formula region as a \tag{...} suffix embedded before the closing $$.
func mergeFormulaNumbers(regions []Region) []Region {
	out := regions[:0:0]
	for i := 0; i < len(regions); i++ {
		r := regions[i]
		if r.NativeLabel == "formula_number" && len(out) > 0 && out[len(out)-1].NativeLabel == "formula" {
			prev := &out[len(out)-1]
			tag := strings.TrimSpace(r.Content)
			if strings.HasSuffix(prev.Content, "\n$$") {
				prev.Content = strings.TrimSuffix(prev.Content, "\n$$") + fmt.Sprintf(" \\tag{%s}\n$$", tag)
			} else {
				prev.Content += fmt.Sprintf(" \\tag{%s}", tag)
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

var trailingHyphenRe = regexp.MustCompile(`-$`)

// mergeWordBreaks joins an adjacent pair of "text" regions when the left
// region's content ends with a hyphen and the right begins with a
// lowercase letter, recombining a word split across a layout boundary.
func mergeWordBreaks(regions []Region) []Region {
	out := regions[:0:0]
	for i := 0; i < len(regions); i++ {
		r := regions[i]
		if len(out) > 0 {
			prev := &out[len(out)-1]
			if prev.NativeLabel == "text" && r.NativeLabel == "text" &&
				trailingHyphenRe.MatchString(prev.Content) && startsLowercase(r.Content) {
				prev.Content = trailingHyphenRe.ReplaceAllString(prev.Content, "") + r.Content
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

func startsLowercase(s string) bool {
	for _, r := range s {
		return r >= 'a' && r <= 'z'
	}
	return false
}

// alignBullets prepends "- " to a middle "text" region sitting between two
// bulleted "text" regions whose x-left sits within 10 units of both
// neighbors, restoring a bullet the layout detector split off on its own.
func alignBullets(regions []Region) []Region {
	for i := 1; i < len(regions)-1; i++ {
		left, mid, right := regions[i-1], regions[i], regions[i+1]
		if mid.NativeLabel != "text" || left.NativeLabel != "text" || right.NativeLabel != "text" {
			continue
		}
		if !strings.HasPrefix(strings.TrimSpace(left.Content), "- ") || !strings.HasPrefix(strings.TrimSpace(right.Content), "- ") {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(mid.Content), "- ") {
			continue
		}
		if absDiff(left.BBox[0], mid.BBox[0]) <= 10 && absDiff(right.BBox[0], mid.BBox[0]) <= 10 {
			regions[i].Content = "- " + mid.Content
		}
	}
	return regions
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
