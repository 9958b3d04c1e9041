package unit

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction renders one instruction with its encoded offset.
// Pool references are annotated with the referenced constant.
func DisassembleInstruction(insn *Instruction, offset int, pool *Pool) string {
	if insn.IsLabel() {
		if insn.Frame != nil {
			return fmt.Sprintf("      L%d:  %s", insn.id, insn.Frame)
		}
		return fmt.Sprintf("      L%d:", insn.id)
	}
	s := fmt.Sprintf("%04d  %s", offset, insn)
	if insn.Op.IsPoolRef() && pool != nil {
		if c, err := pool.Get(insn.Index); err == nil {
			s += "  ; " + c.String()
		}
	}
	return s
}

// DisassembleRoutine renders a routine header, its handlers and its code.
func DisassembleRoutine(r *Routine) string {
	var b strings.Builder
	kind := "routine"
	if r.Static {
		kind = "static routine"
	}
	fmt.Fprintf(&b, "%s %s  stack=%d locals=%d\n", kind, r, r.MaxStack, r.MaxLocals)
	for _, h := range r.Handlers {
		catch := h.Catch
		if catch == "" {
			catch = "*"
		}
		fmt.Fprintf(&b, "  handler %s [L%d, L%d) -> L%d\n", catch, h.Start.id, h.End.id, h.Target.id)
	}
	offsets := Offsets(r)
	for i := r.First(); i != nil; i = i.Next() {
		b.WriteString("  ")
		b.WriteString(DisassembleInstruction(i, offsets[i], r.Pool))
		b.WriteByte('\n')
	}
	return b.String()
}

// Disassemble renders a whole unit: header, pool and every routine.
func Disassemble(u *Unit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "unit %s", u.Name)
	if u.Super != "" {
		fmt.Fprintf(&b, " extends %s", u.Super)
	}
	b.WriteString("\n\npool:\n")
	for i, c := range u.Pool.Entries() {
		fmt.Fprintf(&b, "  #%d = %s\n", i, c)
	}
	for _, r := range u.Routines {
		b.WriteByte('\n')
		b.WriteString(DisassembleRoutine(r))
	}
	return b.String()
}
