package gossip

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maxpoletaev/cyclon/view"
)

func TestDefaultConfig(t *testing.T) {
	conf := DefaultConfig()

	assert.Greater(t, conf.ViewCapacity, 0)
	assert.GreaterOrEqual(t, conf.Healing, 0)
	assert.GreaterOrEqual(t, conf.Swap, 0)
	assert.True(t, conf.Push)
	assert.True(t, conf.Pull)
	assert.Equal(t, view.Tail, conf.SelectorKind)
	assert.NotNil(t, conf.Logger)
}
