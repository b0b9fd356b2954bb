// Package support holds the shared state and step registrations for the
// docreader godog suite. Scenarios drive internal packages directly
// (formatter, delivery, config, pipeline) rather than spawning a
// compiled binary, since several of spec §8's scenarios exercise
// internals (delivery state files, prompt-hash metadata) that have no
// CLI-visible surface of their own.
package support

import (
	"context"

	"github.com/docreader-go/docreader/internal/delivery"
	"github.com/docreader-go/docreader/internal/formatter"
)

// TestContext holds the state threaded through one scenario.
type TestContext struct {
	// Formatting scenario state
	Page       formatter.Page
	Markdown   string

	// Model delivery scenario state
	ModelsDir     string
	StatePath     string
	Hub           *fakeHubClient
	Resolver      *delivery.Resolver
	Ready         delivery.ReadyModels
	EnsureErr     error
	VerifyErr     error
	LocalModelDir string

	// Page-cap scenario state
	OptionMaxPages  *uint32
	DefaultMaxPages *int
	EffectiveCap    int
	HasCap          bool

	// Prompt-hash scenario state
	Prompt string
	Hash1  string
	Hash2  string

	ctx context.Context
}

// NewTestContext builds a fresh, empty TestContext for one scenario.
func NewTestContext() *TestContext {
	return &TestContext{ctx: context.Background()}
}
