package integration_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/docreader-go/docreader/test/integration/support"
)

// InitializeScenario builds a fresh TestContext and registers every
// package's step definitions for each scenario.
func InitializeScenario(sc *godog.ScenarioContext) {
	tc := support.NewTestContext()
	tc.RegisterFormattingSteps(sc)
	tc.RegisterModelDeliverySteps(sc)
	tc.RegisterPageCapSteps(sc)
	tc.RegisterPromptHashSteps(sc)
}

// TestFeatures runs one Godog suite per feature file under features/. The
// suite drives internal packages directly rather than a built binary, so
// unlike the CLI-level suite this module's scenarios never fabricate model
// weights for a true end-to-end run (see DESIGN.md).
func TestFeatures(t *testing.T) {
	entries, err := os.ReadDir("features")
	if err != nil {
		t.Fatalf("failed to read features directory: %v", err)
	}

	format := os.Getenv("GODOG_FORMAT")
	if format == "" {
		format = "pretty"
	}
	tags := os.Getenv("GODOG_TAGS")

	found := false
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".feature") {
			continue
		}
		found = true
		featurePath := filepath.Join("features", e.Name())

		t.Run(e.Name(), func(t *testing.T) {
			suite := godog.TestSuite{
				ScenarioInitializer: InitializeScenario,
				Options: &godog.Options{
					Format:   format,
					Tags:     tags,
					Paths:    []string{featurePath},
					TestingT: t,
				},
			}

			if suite.Run() != 0 {
				t.Fatalf("non-zero status returned for %s", featurePath)
			}
		})
	}

	if !found {
		t.Fatalf("no .feature files found in features/")
	}
}
