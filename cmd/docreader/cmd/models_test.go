package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModelsCommandHasEnsureAndVerifySubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range modelsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["ensure"])
	assert.True(t, names["verify"])
}
