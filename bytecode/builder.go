// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the weave project.
// Copyright 2024-present the weave authors.

package bytecode

import (
	"fmt"

	"github.com/mixweave/weave/jvm"
)

// LoadInsn returns the load instruction moving the local variable in slot
// onto the stack, picking the opcode family from t.
func LoadInsn(t jvm.Type, slot int) *Instruction {
	return NewVarInsn(loadOpcode(t), slot)
}

// StoreInsn returns the store instruction moving the stack top into slot.
func StoreInsn(t jvm.Type, slot int) *Instruction {
	return NewVarInsn(loadOpcode(t)+(ISTORE-ILOAD), slot)
}

// ReturnInsn returns the return instruction matching the given return type.
func ReturnInsn(t jvm.Type) *Instruction {
	switch t.Descriptor() {
	case "V":
		return NewInsn(RETURN)
	case "J":
		return NewInsn(LRETURN)
	case "F":
		return NewInsn(FRETURN)
	case "D":
		return NewInsn(DRETURN)
	case "Z", "C", "B", "S", "I":
		return NewInsn(IRETURN)
	default:
		return NewInsn(ARETURN)
	}
}

// PushInt returns the cheapest instruction pushing the integer v.
func PushInt(v int) *Instruction {
	switch {
	case v >= -1 && v <= 5:
		return NewInsn(Opcode(int(ICONST_0) + v))
	case v >= -128 && v <= 127:
		return NewIntInsn(BIPUSH, v)
	case v >= -32768 && v <= 32767:
		return NewIntInsn(SIPUSH, v)
	default:
		return NewLdcInsn(int32(v))
	}
}

// ConstantValue extracts the constant pushed by in, returning false when the
// instruction does not push a recognizable constant. Integer constants of
// every width yield int64 and floating-point ones float64, so values compare
// uniformly regardless of how the constant is encoded.
func ConstantValue(in *Instruction) (any, bool) {
	switch {
	case in.Op == ACONST_NULL:
		return nil, true
	case in.Op.IsIntConstant():
		return int64(in.Op) - int64(ICONST_0), true
	case in.Op == LCONST_0 || in.Op == LCONST_1:
		return int64(in.Op - LCONST_0), true
	case in.Op == FCONST_0 || in.Op == FCONST_1 || in.Op == FCONST_2:
		return float64(in.Op - FCONST_0), true
	case in.Op == DCONST_0 || in.Op == DCONST_1:
		return float64(in.Op - DCONST_0), true
	case in.Op == BIPUSH || in.Op == SIPUSH:
		return int64(in.IntVal), true
	case in.Op == LDC:
		switch v := in.Cst.(type) {
		case int32:
			return int64(v), true
		case float32:
			return float64(v), true
		default:
			return in.Cst, true
		}
	default:
		return nil, false
	}
}

// ConstantType returns the type of the constant pushed by in. It reports
// false for non-constant instructions.
func ConstantType(in *Instruction) (jvm.Type, bool) {
	switch {
	case in.Op == ACONST_NULL:
		return jvm.ObjectType("java/lang/Object"), true
	case in.Op.IsIntConstant(), in.Op == BIPUSH, in.Op == SIPUSH:
		return jvm.Int, true
	case in.Op == LCONST_0, in.Op == LCONST_1:
		return jvm.Long, true
	case in.Op == FCONST_0, in.Op == FCONST_1, in.Op == FCONST_2:
		return jvm.Float, true
	case in.Op == DCONST_0, in.Op == DCONST_1:
		return jvm.Double, true
	case in.Op == LDC:
		switch in.Cst.(type) {
		case int32:
			return jvm.Int, true
		case int64:
			return jvm.Long, true
		case float32:
			return jvm.Float, true
		case float64:
			return jvm.Double, true
		case string:
			return jvm.ObjectType("java/lang/String"), true
		case jvm.Type:
			return jvm.ObjectType("java/lang/Class"), true
		default:
			return jvm.Void, false
		}
	default:
		return jvm.Void, false
	}
}

func loadOpcode(t jvm.Type) Opcode {
	switch t.Descriptor() {
	case "J":
		return LLOAD
	case "F":
		return FLOAD
	case "D":
		return DLOAD
	case "Z", "C", "B", "S", "I":
		return ILOAD
	case "V":
		panic(fmt.Errorf("no load instruction for void"))
	default:
		return ALOAD
	}
}
