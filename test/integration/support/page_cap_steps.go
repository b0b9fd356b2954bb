package support

import (
	"fmt"
	"strconv"

	"github.com/cucumber/godog"

	"github.com/docreader-go/docreader/internal/config"
)

// RegisterPageCapSteps wires the page_cap.feature steps.
func (tc *TestContext) RegisterPageCapSteps(sc *godog.ScenarioContext) {
	sc.Step(`^options\.max_pages is (\d+)$`, tc.optionsMaxPagesIs)
	sc.Step(`^options\.max_pages is unset$`, tc.optionsMaxPagesIsUnset)
	sc.Step(`^config\.default_max_pages is (\d+)$`, tc.defaultMaxPagesIs)
	sc.Step(`^config\.default_max_pages is unset$`, tc.defaultMaxPagesIsUnset)
	sc.Step(`^the effective max pages is computed$`, tc.theEffectiveMaxPagesIsComputed)
	sc.Step(`^the effective cap is (\d+)$`, tc.theEffectiveCapIs)
	sc.Step(`^there is no effective cap$`, tc.thereIsNoEffectiveCap)
}

func (tc *TestContext) optionsMaxPagesIs(n int) error {
	v := uint32(n)
	tc.OptionMaxPages = &v
	return nil
}

func (tc *TestContext) optionsMaxPagesIsUnset() error {
	tc.OptionMaxPages = nil
	return nil
}

func (tc *TestContext) defaultMaxPagesIs(raw string) error {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return err
	}
	tc.DefaultMaxPages = &n
	return nil
}

func (tc *TestContext) defaultMaxPagesIsUnset() error {
	tc.DefaultMaxPages = nil
	return nil
}

func (tc *TestContext) theEffectiveMaxPagesIsComputed() error {
	tc.EffectiveCap, tc.HasCap = config.EffectiveMaxPages(tc.OptionMaxPages, tc.DefaultMaxPages)
	return nil
}

func (tc *TestContext) theEffectiveCapIs(expected int) error {
	if !tc.HasCap {
		return fmt.Errorf("expected a cap of %d, got none", expected)
	}
	if tc.EffectiveCap != expected {
		return fmt.Errorf("expected cap %d, got %d", expected, tc.EffectiveCap)
	}
	return nil
}

func (tc *TestContext) thereIsNoEffectiveCap() error {
	if tc.HasCap {
		return fmt.Errorf("expected no cap, got %d", tc.EffectiveCap)
	}
	return nil
}
