package constfold

import (
	"github.com/chazu/rewrite/unit"
)

// Func is a routine that may be evaluated at rewrite time: it has no side
// effects and its result depends only on its arguments.
type Func struct {
	Owner string
	Name  string
	Sig   string
	// Eval computes the result from literal arguments, first argument
	// first. Returning false leaves the call in place.
	Eval func(args []unit.Constant) (unit.Constant, bool)
}

// Ref returns the member reference calls to f use.
func (f Func) Ref() unit.MemberRef {
	return unit.MemberRef{Owner: f.Owner, Name: f.Name, Sig: f.Sig}
}

func ints(args []unit.Constant) ([]int64, bool) {
	out := make([]int64, len(args))
	for i, a := range args {
		if a.Kind != unit.ConstInt {
			return nil, false
		}
		out[i] = a.Int
	}
	return out, true
}

func intFunc(owner, name string, arity int, fn func(v []int64) int64) Func {
	sig := "("
	for i := 0; i < arity; i++ {
		sig += "I"
	}
	sig += ")I"
	return Func{
		Owner: owner, Name: name, Sig: sig,
		Eval: func(args []unit.Constant) (unit.Constant, bool) {
			v, ok := ints(args)
			if !ok {
				return unit.Constant{}, false
			}
			return unit.IntConst(fn(v)), true
		},
	}
}

// MathFuncs folds the integer helpers of lib/Math.
func MathFuncs() []Func {
	return []Func{
		intFunc("lib/Math", "max", 2, func(v []int64) int64 { return max(v[0], v[1]) }),
		intFunc("lib/Math", "min", 2, func(v []int64) int64 { return min(v[0], v[1]) }),
		intFunc("lib/Math", "abs", 1, func(v []int64) int64 {
			if v[0] < 0 {
				return -v[0]
			}
			return v[0]
		}),
	}
}

// StringFuncs folds the pure helpers of lib/Strings.
func StringFuncs() []Func {
	str := "L" + unit.StringClass + ";"
	return []Func{{
		Owner: "lib/Strings", Name: "concat", Sig: "(" + str + str + ")" + str,
		Eval: func(args []unit.Constant) (unit.Constant, bool) {
			if args[0].Kind != unit.ConstString || args[1].Kind != unit.ConstString {
				return unit.Constant{}, false
			}
			return unit.StringConst(args[0].Str + args[1].Str), true
		},
	}, {
		Owner: "lib/Strings", Name: "length", Sig: "(" + str + ")I",
		Eval: func(args []unit.Constant) (unit.Constant, bool) {
			if args[0].Kind != unit.ConstString {
				return unit.Constant{}, false
			}
			return unit.IntConst(int64(len(args[0].Str))), true
		},
	}}
}
