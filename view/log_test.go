package view_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maxpoletaev/cyclon/view"
)

func TestVectorLog_Snapshot_IsACopy(t *testing.T) {
	log := view.NewVectorLog()
	log.Append(view.LogEntry{SubscriberID: "a", Address: "x", UnixMillis: 1})

	snap := log.Snapshot()
	snap[0].Address = "mutated"

	assert.Equal(t, "x", log.Snapshot()[0].Address)
}

func TestVectorLog_Empty(t *testing.T) {
	log := view.NewVectorLog()
	assert.Empty(t, log.Snapshot())
}
