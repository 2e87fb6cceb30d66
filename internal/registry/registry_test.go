package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codervisor/clawden/internal/adapter"
	"github.com/codervisor/clawden/internal/runtimekind"
)

type stubAdapter struct {
	adapter.Adapter
	caps []string
}

func (s *stubAdapter) Metadata(ctx context.Context) (adapter.Metadata, error) {
	return adapter.Metadata{Capabilities: s.caps}, nil
}

func TestRegistryRegisterGetHas(t *testing.T) {
	r := New()
	_, ok := r.Get(runtimekind.ZeroClaw)
	assert.False(t, ok)
	assert.False(t, r.Has(runtimekind.ZeroClaw))

	a := &stubAdapter{caps: []string{"chat"}}
	r.Register(runtimekind.ZeroClaw, a)

	got, ok := r.Get(runtimekind.ZeroClaw)
	require.True(t, ok)
	assert.Same(t, adapter.Adapter(a), got)
	assert.True(t, r.Has(runtimekind.ZeroClaw))
}

func TestRegistryListIsSortedByCanonicalForm(t *testing.T) {
	r := New()
	r.Register(runtimekind.ZeroClaw, &stubAdapter{})
	r.Register(runtimekind.OpenClaw, &stubAdapter{})
	r.Register(runtimekind.NullClaw, &stubAdapter{})

	list := r.List()
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		assert.True(t, list[i-1].String() < list[i].String())
	}
}

func TestDetectRuntimeForCapabilityIgnoresCaseAndReturnsFirst(t *testing.T) {
	r := New()
	r.Register(runtimekind.NullClaw, &stubAdapter{caps: []string{"chat"}})
	r.Register(runtimekind.ZeroClaw, &stubAdapter{caps: []string{"EMBEDDED"}})

	kind, ok := r.DetectRuntimeForCapability(context.Background(), "embedded")
	require.True(t, ok)
	assert.Equal(t, runtimekind.ZeroClaw, kind)

	_, ok = r.DetectRuntimeForCapability(context.Background(), "vision")
	assert.False(t, ok)
}
