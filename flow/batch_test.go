package flow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/rewrite/unit"
)

func ops(r *unit.Routine) []string {
	var out []string
	for i := r.First(); i != nil; i = i.Next() {
		out = append(out, i.String())
	}
	return out
}

func TestEmptyBatchLeavesAnalysisUntouched(t *testing.T) {
	a, b := unit.PushInt(1), unit.PushInt(2)
	add, ret := unit.Op(unit.OpAdd), unit.Op(unit.OpReturnTop)
	r := routine("()I", true, a, b, add, ret)
	g := NewGraph(r)

	before := ops(r)
	src, _ := g.SingleSource(add, 1)
	require.Equal(t, 1, g.Analyses())

	batch := g.BeginChanges()
	batch.Commit()
	require.NoError(t, g.Change(func(*Batch) error { return nil }))

	assert.Equal(t, before, ops(r))
	again, ok := g.SingleSource(add, 1)
	require.True(t, ok)
	assert.Same(t, src, again)
	assert.Equal(t, 1, g.Analyses(), "an empty batch must not invalidate the analysis")
}

func TestCommitInvalidates(t *testing.T) {
	push, ret := unit.PushInt(1), unit.Op(unit.OpReturnTop)
	r := routine("()I", true, push, ret)
	g := NewGraph(r)
	g.SingleSource(ret, 0)

	repl := unit.PushInt(9)
	require.NoError(t, g.Change(func(b *Batch) error {
		b.Replace(push, repl)
		return nil
	}))
	src, ok := g.SingleSource(ret, 0)
	require.True(t, ok)
	assert.Same(t, repl, src)
	assert.Equal(t, 2, g.Analyses())
}

func TestBatchOrdering(t *testing.T) {
	a, b, c := unit.PushInt(1), unit.PushInt(2), unit.Op(unit.OpAdd)
	ret := unit.Op(unit.OpReturnTop)
	r := routine("()I", true, a, b, c, ret)
	g := NewGraph(r)

	folded := unit.PushInt(3)
	x, y := unit.Op(unit.OpNOP), unit.Op(unit.OpDUP)
	b1 := g.BeginChanges()
	// Incremental style: insert the replacement, then remove the originals.
	b1.InsertBefore(c, folded)
	b1.Remove(a)
	b1.Remove(b)
	b1.Remove(c)
	// Repeated InsertAfter on one anchor keeps record order, and anchors
	// may be instructions inserted earlier in the batch.
	b1.InsertAfter(folded, x)
	b1.InsertAfter(folded, y)
	b1.InsertBefore(x, unit.Op(unit.OpSWAP))
	assert.Equal(t, 7, b1.Len())
	assert.Equal(t, []string{"PUSH_INT8 1", "PUSH_INT8 2", "ADD", "RETURN_TOP"}, ops(r), "nothing applies before commit")
	b1.Commit()

	assert.Equal(t, []string{"PUSH_INT8 3", "SWAP", "NOP", "DUP", "RETURN_TOP"}, ops(r))
	assert.Nil(t, a.Routine())
}

func TestInsertAfterChainKeepsRecordOrder(t *testing.T) {
	a, ret := unit.PushInt(1), unit.Op(unit.OpReturnTop)
	r := routine("()I", true, a, ret)
	g := NewGraph(r)

	x, y, z := unit.Op(unit.OpNOP), unit.Op(unit.OpDUP), unit.Op(unit.OpPOP)
	require.NoError(t, g.Change(func(b *Batch) error {
		b.InsertAfter(a, x)
		b.InsertAfter(x, y)
		b.InsertAfter(a, z)
		return nil
	}))
	assert.Equal(t, []string{"PUSH_INT8 1", "NOP", "DUP", "POP", "RETURN_TOP"}, ops(r))
}

func TestChangeDiscardsOnError(t *testing.T) {
	push, ret := unit.PushInt(1), unit.Op(unit.OpReturnTop)
	r := routine("()I", true, push, ret)
	g := NewGraph(r)
	before := ops(r)

	boom := errors.New("boom")
	err := g.Change(func(b *Batch) error {
		b.Remove(push)
		b.InsertBefore(ret, unit.PushInt(5))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, before, ops(r))

	assert.Panics(t, func() {
		_ = g.Change(func(b *Batch) error {
			b.Remove(push)
			panic("pass failure")
		})
	})
	assert.Equal(t, before, ops(r))

	// The graph is usable again after both aborts.
	b := g.BeginChanges()
	b.Discard()
	b.Discard()
}

func TestBatchMisusePanics(t *testing.T) {
	newGraph := func() (*Graph, *unit.Instruction, *unit.Instruction) {
		a, ret := unit.PushInt(1), unit.Op(unit.OpReturnTop)
		return NewGraph(routine("()I", true, a, ret)), a, ret
	}

	t.Run("reentrant open", func(t *testing.T) {
		g, _, _ := newGraph()
		g.BeginChanges()
		assert.Panics(t, func() { g.BeginChanges() })
	})
	t.Run("double removal", func(t *testing.T) {
		g, a, _ := newGraph()
		b := g.BeginChanges()
		b.Remove(a)
		assert.Panics(t, func() { b.Remove(a) })
	})
	t.Run("removed anchor", func(t *testing.T) {
		g, a, _ := newGraph()
		b := g.BeginChanges()
		b.Remove(a)
		assert.Panics(t, func() { b.InsertAfter(a, unit.Op(unit.OpNOP)) })
	})
	t.Run("foreign anchor", func(t *testing.T) {
		g, _, _ := newGraph()
		b := g.BeginChanges()
		assert.Panics(t, func() { b.InsertBefore(unit.Op(unit.OpNOP), unit.Op(unit.OpNOP)) })
	})
	t.Run("linked insertion", func(t *testing.T) {
		g, a, ret := newGraph()
		b := g.BeginChanges()
		assert.Panics(t, func() { b.InsertBefore(ret, a) })
		n := unit.Op(unit.OpNOP)
		b.InsertBefore(ret, n)
		assert.Panics(t, func() { b.InsertAfter(ret, n) })
	})
	t.Run("use after commit", func(t *testing.T) {
		g, a, _ := newGraph()
		b := g.BeginChanges()
		b.Commit()
		assert.Panics(t, func() { b.Remove(a) })
		assert.Panics(t, func() { b.Commit() })
	})
}
