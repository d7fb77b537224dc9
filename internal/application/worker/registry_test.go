package worker

import (
	"testing"

	"github.com/aescanero/patchwork/pkg/module"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddGetRelease(t *testing.T) {
	r := newRegistry()
	a := newStub("a", nil)
	b := newStub("b", nil)

	ha := r.add(module.RoleModule, a)
	hb := r.add(module.RoleSubscriber, b)
	assert.Equal(t, 2, r.len())

	m, role, ok := r.get(ha)
	require.True(t, ok)
	assert.Equal(t, a, m)
	assert.Equal(t, module.RoleModule, role)

	r.release(ha)
	_, _, ok = r.get(ha)
	assert.False(t, ok, "released handle is invalid")
	assert.Equal(t, 1, r.len())

	_, _, ok = r.get(hb)
	assert.True(t, ok)
}

func TestRegistry_ReusedSlotInvalidatesOldHandle(t *testing.T) {
	r := newRegistry()
	old := r.add(module.RoleModule, newStub("old", nil))
	r.release(old)

	fresh := r.add(module.RoleModule, newStub("fresh", nil))
	assert.Equal(t, old.index, fresh.index, "slot is reused")
	assert.NotEqual(t, old.gen, fresh.gen)

	_, _, ok := r.get(old)
	assert.False(t, ok)

	m, _, ok := r.get(fresh)
	require.True(t, ok)
	assert.Equal(t, "fresh", m.Name())

	r.release(old)
	_, _, ok = r.get(fresh)
	assert.True(t, ok, "releasing a stale handle is a no-op")
}

func TestRegistry_OutOfRange(t *testing.T) {
	r := newRegistry()
	_, _, ok := r.get(handle{index: 3, gen: 1})
	assert.False(t, ok)
}
