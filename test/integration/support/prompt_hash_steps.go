package support

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/cucumber/godog"

	"github.com/docreader-go/docreader/internal/pipeline"
)

// RegisterPromptHashSteps wires the prompt_hash.feature steps.
func (tc *TestContext) RegisterPromptHashSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the no-layout prompt is "([^"]*)"$`, tc.theNoLayoutPromptIs)
	sc.Step(`^the prompt hash is computed$`, tc.thePromptHashIsComputed)
	sc.Step(`^the prompt hash is computed twice$`, tc.thePromptHashIsComputedTwice)
	sc.Step(`^the hash is the first 16 hex digits of SHA256\("([^"]*)"\)$`, tc.theHashIsTheFirst16HexDigitsOfSHA256)
	sc.Step(`^both hashes are equal$`, tc.bothHashesAreEqual)
}

func (tc *TestContext) theNoLayoutPromptIs(prompt string) error {
	tc.Prompt = prompt
	return nil
}

func (tc *TestContext) thePromptHashIsComputed() error {
	tc.Hash1 = pipeline.PromptHash(tc.Prompt)
	return nil
}

func (tc *TestContext) thePromptHashIsComputedTwice() error {
	tc.Hash1 = pipeline.PromptHash(tc.Prompt)
	tc.Hash2 = pipeline.PromptHash(tc.Prompt)
	return nil
}

func (tc *TestContext) theHashIsTheFirst16HexDigitsOfSHA256(prompt string) error {
	sum := sha256.Sum256([]byte(prompt))
	want := hex.EncodeToString(sum[:])[:16]
	if tc.Hash1 != want {
		return fmt.Errorf("hash = %q, want %q", tc.Hash1, want)
	}
	return nil
}

func (tc *TestContext) bothHashesAreEqual() error {
	if tc.Hash1 != tc.Hash2 {
		return fmt.Errorf("hashes differ: %q vs %q", tc.Hash1, tc.Hash2)
	}
	return nil
}
