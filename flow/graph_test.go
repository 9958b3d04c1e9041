package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/rewrite/unit"
)

func routine(sig string, static bool, insns ...*unit.Instruction) *unit.Routine {
	r := unit.NewRoutine("test", sig, static, unit.NewPool())
	r.Append(insns...)
	return r
}

func TestStraightLineProvenance(t *testing.T) {
	a, b := unit.PushInt(1), unit.PushInt(2)
	add, store := unit.Op(unit.OpAdd), unit.Store(0)
	load, ret := unit.Load(0), unit.Op(unit.OpReturnTop)
	g := NewGraph(routine("()I", true, a, b, add, store, load, ret))

	require.NoError(t, g.Err())

	src, ok := g.SingleSource(add, 0)
	require.True(t, ok)
	assert.Same(t, b, src)
	src, ok = g.SingleSource(add, 1)
	require.True(t, ok)
	assert.Same(t, a, src)

	src, ok = g.SingleSource(store, 0)
	require.True(t, ok)
	assert.Same(t, add, src)

	loc, ok := g.LocalSource(load, 0)
	require.True(t, ok)
	assert.Equal(t, Single{Insn: store}, loc)

	src, ok = g.SingleSource(ret, 0)
	require.True(t, ok)
	assert.Same(t, load, src)

	depth, ok := g.StackDepth(add)
	require.True(t, ok)
	assert.Equal(t, 2, depth)

	_, ok = g.Source(add, 2)
	assert.False(t, ok, "depth beyond the stack has no source")
}

func TestDupAndSwap(t *testing.T) {
	a, b := unit.PushInt(1), unit.PushInt(2)
	swap, dup := unit.Op(unit.OpSWAP), unit.Op(unit.OpDUP)
	add := unit.Op(unit.OpAdd)
	g := NewGraph(routine("()V", true, a, b, swap, dup, add, unit.Op(unit.OpPOP), unit.Op(unit.OpPOP), unit.Op(unit.OpReturnNil)))

	top, _ := g.SingleSource(dup, 0)
	assert.Same(t, a, top, "SWAP permutes existing values")
	second, _ := g.SingleSource(dup, 1)
	assert.Same(t, b, second)

	top, _ = g.SingleSource(add, 0)
	assert.Same(t, dup, top, "DUP produces both copies")
	second, _ = g.SingleSource(add, 1)
	assert.Same(t, dup, second)
}

func TestAmbiguityAtMerge(t *testing.T) {
	elseL, endL := unit.NewLabel(), unit.NewLabel()
	p1, p2 := unit.PushInt(1), unit.PushInt(2)
	ret := unit.Op(unit.OpReturnTop)
	g := NewGraph(routine("(I)I", true,
		unit.Load(0), unit.Jump(unit.OpJumpFalse, elseL),
		p1, unit.Jump(unit.OpJump, endL),
		elseL, p2,
		endL, ret,
	))

	_, ok := g.SingleSource(ret, 0)
	assert.False(t, ok, "a merged value must not report a single producer")

	src, ok := g.Source(ret, 0)
	require.True(t, ok)
	m, isMultiple := src.(Multiple)
	require.True(t, isMultiple, "got %v", src)
	assert.Equal(t, []*unit.Instruction{p1, p2}, m.Producers)
	assert.Empty(t, m.Arguments)
	assert.Equal(t, 2, m.Len())
}

func TestSamePathMergeStaysSingle(t *testing.T) {
	skip := unit.NewLabel()
	p := unit.PushInt(7)
	ret := unit.Op(unit.OpReturnTop)
	g := NewGraph(routine("(I)I", true,
		p, unit.Load(0), unit.Jump(unit.OpJumpTrue, skip),
		unit.Op(unit.OpNOP),
		skip, ret,
	))
	src, ok := g.SingleSource(ret, 0)
	require.True(t, ok)
	assert.Same(t, p, src)
}

func TestArguments(t *testing.T) {
	keep := unit.NewLabel()
	store := unit.Store(0)
	load0, load1 := unit.Load(0), unit.Load(1)
	g := NewGraph(routine("(I)V", false,
		load1, unit.Jump(unit.OpJumpTrue, keep),
		unit.Op(unit.OpPushNil), store,
		keep, load0, unit.Op(unit.OpPOP), unit.Op(unit.OpReturnNil),
	))

	src, ok := g.LocalSource(load1, 1)
	require.True(t, ok)
	assert.Equal(t, Argument{Slot: 1}, src)

	src, ok = g.LocalSource(load1, 0)
	require.True(t, ok)
	assert.Equal(t, Argument{Slot: 0}, src, "slot 0 holds the receiver")

	src, ok = g.LocalSource(load0, 0)
	require.True(t, ok)
	assert.Equal(t, Multiple{Producers: []*unit.Instruction{store}, Arguments: []int{0}}, src)

	_, ok = g.LocalSource(load0, 5)
	assert.False(t, ok)
}

func TestUnreachable(t *testing.T) {
	live := unit.PushInt(1)
	dead, deadRet := unit.PushInt(2), unit.Op(unit.OpReturnTop)
	g := NewGraph(routine("()I", true, live, unit.Op(unit.OpReturnTop), dead, deadRet))

	assert.False(t, g.Unreachable(live))
	assert.True(t, g.Unreachable(dead))
	assert.True(t, g.Unreachable(deadRet))
	_, ok := g.Source(deadRet, 0)
	assert.False(t, ok)
}

func TestHandlerEdges(t *testing.T) {
	start, end, handler := unit.NewLabel(), unit.NewLabel(), unit.NewLabel()
	store := unit.Store(0)
	popExc, load := unit.Op(unit.OpPOP), unit.Load(0)
	r := routine("()V", true,
		unit.PushInt(1), store, start, unit.Op(unit.OpNOP), end, unit.Op(unit.OpReturnNil),
		handler, popExc, load, unit.Op(unit.OpPOP), unit.Op(unit.OpReturnNil),
	)
	r.Handlers = []*unit.Handler{{Start: start, End: end, Target: handler}}
	g := NewGraph(r)
	require.NoError(t, g.Err())

	assert.False(t, g.Unreachable(handler))

	exc, ok := g.SingleSource(popExc, 0)
	require.True(t, ok)
	assert.Same(t, handler, exc, "the raised value is produced by the handler label")
	depth, _ := g.StackDepth(popExc)
	assert.Equal(t, 1, depth)

	src, ok := g.LocalSource(load, 0)
	require.True(t, ok)
	assert.Equal(t, Single{Insn: store}, src)
}

func TestHandlerSeesLocalsBeforeStore(t *testing.T) {
	start, end, handler := unit.NewLabel(), unit.NewLabel(), unit.NewLabel()
	load := unit.Load(0)
	r := routine("()V", true,
		start, unit.PushInt(1), unit.Store(0), unit.Op(unit.OpNOP), end, unit.Op(unit.OpReturnNil),
		handler, unit.Op(unit.OpPOP), load, unit.Op(unit.OpPOP), unit.Op(unit.OpReturnNil),
	)
	r.Handlers = []*unit.Handler{{Start: start, End: end, Target: handler}}
	g := NewGraph(r)
	require.NoError(t, g.Err())

	_, ok := g.LocalSource(load, 0)
	assert.False(t, ok, "an exception raised before the store leaves slot 0 unset")
}

// The jump reaches the merge with one local; the fall-through path adds a
// second one.
func TestLocalWrittenOnOnePath(t *testing.T) {
	merge := unit.NewLabel()
	load := unit.Load(1)
	g := NewGraph(routine("(I)V", true,
		unit.Load(0), unit.Jump(unit.OpJumpFalse, merge),
		unit.PushInt(1), unit.Store(1),
		merge, load, unit.Op(unit.OpPOP), unit.Op(unit.OpReturnNil),
	))
	require.NoError(t, g.Err())

	_, ok := g.LocalSource(load, 1)
	assert.False(t, ok, "slot 1 is unset when the jump is taken")

	src, ok := g.LocalSource(load, 0)
	require.True(t, ok)
	assert.Equal(t, Argument{Slot: 0}, src)
}

// Storing slot 2 first leaves a gap at slot 1 that only one path fills.
func TestLocalGapFilledOnOnePath(t *testing.T) {
	merge := unit.NewLabel()
	store1, store2 := unit.Store(1), unit.Store(2)
	load := unit.Load(1)
	g := NewGraph(routine("(I)V", true,
		unit.PushInt(7), store2,
		unit.Load(0), unit.Jump(unit.OpJumpFalse, merge),
		unit.PushInt(1), store1,
		merge, load, unit.Op(unit.OpPOP), unit.Op(unit.OpReturnNil),
	))
	require.NoError(t, g.Err())

	_, ok := g.LocalSource(load, 1)
	assert.False(t, ok)

	src, ok := g.LocalSource(load, 2)
	require.True(t, ok)
	assert.Equal(t, Single{Insn: store2}, src)

	src, ok = g.LocalSource(store1, 2)
	require.True(t, ok)
	assert.Equal(t, Single{Insn: store2}, src)
	_, ok = g.LocalSource(store1, 1)
	assert.False(t, ok, "the gap has no source before it is written")
}

func TestAnalysisFailure(t *testing.T) {
	join := unit.NewLabel()
	ret := unit.Op(unit.OpReturnNil)
	g := NewGraph(routine("(I)V", true,
		unit.Load(0), unit.Jump(unit.OpJumpFalse, join),
		unit.PushInt(1),
		join, ret,
	))
	require.ErrorIs(t, g.Err(), ErrStackMismatch)
	_, ok := g.Source(ret, 0)
	assert.False(t, ok)
	assert.False(t, g.Unreachable(ret), "nothing is known about a failed analysis")

	under := NewGraph(routine("()V", true, unit.Op(unit.OpPOP), unit.Op(unit.OpReturnNil)))
	assert.ErrorIs(t, under.Err(), ErrStackUnderflow)

	off := NewGraph(routine("()V", true, unit.Op(unit.OpNOP)))
	assert.ErrorIs(t, off.Err(), ErrFallOff)
}

func TestForeignInstructionPanics(t *testing.T) {
	g := NewGraph(routine("()V", true, unit.Op(unit.OpReturnNil)))
	assert.Panics(t, func() { g.Source(unit.Op(unit.OpNOP), 0) })
}

func TestAnalysisIsLazyAndMemoized(t *testing.T) {
	push := unit.PushInt(1)
	ret := unit.Op(unit.OpReturnTop)
	g := NewGraph(routine("()I", true, push, ret))
	assert.Equal(t, 0, g.Analyses())

	g.SingleSource(ret, 0)
	g.StackDepth(ret)
	g.Unreachable(push)
	assert.Equal(t, 1, g.Analyses())
}
