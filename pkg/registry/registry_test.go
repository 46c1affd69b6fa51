package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetUnknownReturnsDefault(t *testing.T) {
	r := New()
	p := r.Get("nonexistent_tool")
	assert.Equal(t, "nonexistent_tool", p.Name)
	assert.Equal(t, CriticalityLow, p.Criticality)
	assert.Equal(t, "limited", p.BlastRadius)
	assert.False(t, p.Irreversible)
}

func TestRegisterOverwrites(t *testing.T) {
	r := New()
	r.Register(ToolProfile{Name: "t", Criticality: CriticalityLow})
	r.Register(ToolProfile{Name: "t", Criticality: CriticalityHigh, Irreversible: true})

	p := r.Get("t")
	assert.Equal(t, CriticalityHigh, p.Criticality)
	assert.True(t, p.Irreversible)
	assert.Len(t, r.All(), 1)
}

func TestAttachRegistersAndReturnsFn(t *testing.T) {
	r := New()
	called := false
	fn := Attach(r, ToolProfile{Name: "freeze_card", Criticality: CriticalityHigh}, func() { called = true })
	fn()
	assert.True(t, called)
	assert.Equal(t, CriticalityHigh, r.Get("freeze_card").Criticality)
	assert.Equal(t, "limited", r.Get("freeze_card").BlastRadius)
}

func TestConcurrentReadsDuringWrites(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Register(ToolProfile{Name: fmt.Sprintf("tool-%d-%d", i, j), Criticality: CriticalityMedium})
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = r.Get(fmt.Sprintf("tool-%d-%d", i, j))
			}
		}(i)
	}
	wg.Wait()
	assert.Len(t, r.All(), 800)
}
