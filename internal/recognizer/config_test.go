package recognizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPromptForKnownTasks(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, cfg.Prompts.Text, cfg.PromptFor("text"))
	assert.Equal(t, cfg.Prompts.Table, cfg.PromptFor("table"))
	assert.Equal(t, cfg.Prompts.Formula, cfg.PromptFor("formula"))
}

func TestPromptForUnknownTaskDefaultsToNoLayout(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, cfg.Prompts.NoLayout, cfg.PromptFor(""))
	assert.Equal(t, cfg.Prompts.NoLayout, cfg.PromptFor("unknown"))
}

func TestDefaultConfigArchitectureConstants(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 16, cfg.Language.NumHiddenLayers)
	assert.Equal(t, 4, cfg.Language.NumKVHeads)
	assert.Equal(t, 24, cfg.Vision.Depth)
	assert.Equal(t, 2, cfg.Vision.SpatialMergeSize)
}
