package support

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cucumber/godog"

	"github.com/docreader-go/docreader/internal/formatter"
)

// RegisterFormattingSteps wires the formatting.feature steps.
func (tc *TestContext) RegisterFormattingSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a page with the following regions in order:$`, tc.aPageWithRegions)
	sc.Step(`^a page with an empty "([^"]*)" region at bbox (\d+),(\d+),(\d+),(\d+)$`, tc.aPageWithEmptyRegion)
	sc.Step(`^the page is formatted$`, tc.thePageIsFormatted)
	sc.Step(`^the markdown starts with "([^"]*)"$`, tc.theMarkdownStartsWith)
	sc.Step(`^the markdown contains two paragraph breaks$`, tc.theMarkdownContainsTwoParagraphBreaks)
	sc.Step(`^the markdown ends with the table content$`, tc.theMarkdownEndsWithTheTableContent)
	sc.Step(`^the markdown is "([^"]*)"$`, tc.theMarkdownIs)
}

func (tc *TestContext) aPageWithRegions(table *godog.Table) error {
	regions := make([]formatter.Region, 0, len(table.Rows)-1)
	header := table.Rows[0].Cells
	labelCol, contentCol := -1, -1
	for i, c := range header {
		switch c.Value {
		case "label":
			labelCol = i
		case "content":
			contentCol = i
		}
	}
	for i, row := range table.Rows[1:] {
		regions = append(regions, formatter.Region{
			Index:       i,
			NativeLabel: row.Cells[labelCol].Value,
			Content:     row.Cells[contentCol].Value,
		})
	}
	tc.Page = formatter.Page{Index: 0, Regions: regions}
	return nil
}

func (tc *TestContext) aPageWithEmptyRegion(label string, x1, y1, x2, y2 string) error {
	bbox := [4]float64{}
	for i, v := range []string{x1, y1, x2, y2} {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		bbox[i] = f
	}
	tc.Page = formatter.Page{Index: 0, Regions: []formatter.Region{
		{Index: 0, NativeLabel: label, BBox: bbox},
	}}
	return nil
}

func (tc *TestContext) thePageIsFormatted() error {
	tc.Markdown = formatter.Format([]formatter.Page{tc.Page})
	return nil
}

func (tc *TestContext) theMarkdownStartsWith(prefix string) error {
	if !strings.HasPrefix(tc.Markdown, prefix) {
		return fmt.Errorf("markdown %q does not start with %q", tc.Markdown, prefix)
	}
	return nil
}

func (tc *TestContext) theMarkdownContainsTwoParagraphBreaks() error {
	if got := strings.Count(tc.Markdown, "\n\n"); got != 2 {
		return fmt.Errorf("expected 2 paragraph breaks, got %d in %q", got, tc.Markdown)
	}
	return nil
}

func (tc *TestContext) theMarkdownEndsWithTheTableContent() error {
	if !strings.HasSuffix(tc.Markdown, `| A | B |`) {
		return fmt.Errorf("markdown %q does not end with the table content", tc.Markdown)
	}
	return nil
}

func (tc *TestContext) theMarkdownIs(expected string) error {
	if tc.Markdown != expected {
		return fmt.Errorf("markdown = %q, want %q", tc.Markdown, expected)
	}
	return nil
}
