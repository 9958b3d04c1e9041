package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/rewrite/emit"
	"github.com/chazu/rewrite/passes/constfold"
	"github.com/chazu/rewrite/passes/deadcode"
	"github.com/chazu/rewrite/pipeline"
	"github.com/chazu/rewrite/unit"
)

func listing(r *unit.Routine) []string {
	var out []string
	for i := r.First(); i != nil; i = i.Next() {
		out = append(out, i.String())
	}
	return out
}

// [push A, push B, call F, return] becomes [push F(A,B), return] without
// touching metadata.
func TestFoldPureCallScenario(t *testing.T) {
	u := unit.New("app/Main", "")
	a := u.Pool.Add(unit.StringConst("ab"))
	b := u.Pool.Add(unit.StringConst("cd"))
	f := u.Pool.Add(unit.MethodConst("lib/Strings", "concat", "(LString;LString;)LString;"))
	r := u.AddRoutine("greeting", "()LString;", true)
	r.Append(unit.Literal(a), unit.Literal(b), unit.Ref(unit.OpInvokeStatic, f), unit.Op(unit.OpReturnTop))
	data, err := emit.Write(u, emit.Options{Recompute: true})
	require.NoError(t, err)

	d := pipeline.New(pipeline.Options{CheckMetadata: true})
	require.NoError(t, d.Register(constfold.New(constfold.Options{Funcs: constfold.StringFuncs()})))

	out, err := d.Transform("app/Main", data)
	require.NoError(t, err)
	back, err := unit.Decode(out)
	require.NoError(t, err)

	rt := back.Routine("greeting", "")
	require.NotNil(t, rt)
	require.Equal(t, 2, rt.Len())
	assert.Equal(t, unit.OpPushLiteral, rt.First().Op)
	c, err := back.Pool.Get(rt.First().Index)
	require.NoError(t, err)
	assert.Equal(t, unit.StringConst("abcd"), c)
	assert.Equal(t, unit.OpReturnTop, rt.Last().Op)

	assert.Equal(t, 2, rt.MaxStack, "classified Changed: stored metadata is kept")
	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.Changed)
	assert.Equal(t, uint64(0), stats.Recomputed)
}

// A pass whose only opportunities lie in unreachable code reports None and
// the unit comes back untouched.
func TestUnreachableOnlyEditsReportNone(t *testing.T) {
	u := unit.New("app/Main", "")
	f := u.Pool.Add(unit.MethodConst("lib/Math", "max", "(II)I"))
	r := u.AddRoutine("run", "()V", true)
	r.Append(unit.Op(unit.OpReturnNil),
		unit.PushInt(1), unit.PushInt(2), unit.Ref(unit.OpInvokeStatic, f), unit.Op(unit.OpPOP), unit.Op(unit.OpReturnNil))
	data, err := unit.Encode(u)
	require.NoError(t, err)

	d := pipeline.New(pipeline.Options{})
	require.NoError(t, d.Register(constfold.New(constfold.Options{Funcs: constfold.MathFuncs()})))
	out, err := d.Transform("app/Main", data)
	require.NoError(t, err)
	assert.Same(t, &data[0], &out[0])
	assert.Equal(t, uint64(1), d.Stats().Decodes)
	assert.Equal(t, uint64(0), d.Stats().Changed)
}

func TestPassesCompose(t *testing.T) {
	u := unit.New("app/Main", "")
	f := u.Pool.Add(unit.MethodConst("lib/Math", "max", "(II)I"))
	r := u.AddRoutine("run", "()I", true)
	r.Append(unit.PushInt(2), unit.PushInt(3), unit.Op(unit.OpAdd), unit.PushInt(4),
		unit.Ref(unit.OpInvokeStatic, f), unit.Op(unit.OpReturnTop), unit.Op(unit.OpNOP))
	data, err := emit.Write(u, emit.Options{Recompute: true})
	require.NoError(t, err)

	d := pipeline.New(pipeline.Options{CheckMetadata: true})
	require.NoError(t, d.Register(deadcode.New()))
	require.NoError(t, d.Register(constfold.New(constfold.Options{Funcs: constfold.MathFuncs(), Arithmetic: true})))

	out, err := d.Transform("app/Main", data)
	require.NoError(t, err)
	back, err := unit.Decode(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"PUSH_INT8 5", "RETURN_TOP"}, listing(back.Routines[0]))
}
