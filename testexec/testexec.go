// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package testexec is a reference interpreter for the kernel-circuit IR,
// computing a register's value, and the values it depends on, over float64
// field points. It exists
// only to give the pass test suite something to check a circuit's *result*
// against, before and after optimization — a small stand-in for the role
// testquery.Run plays in exercising real query plans end to end.
package testexec

import (
	"fmt"

	"kernelopt/kernel"
)

// Field is one evaluated register's value: a flat, row-major buffer of
// FieldPoints*TensorPoints float64s.
type Field struct {
	Type kernel.FieldType
	Data []float64
}

// Bindings supplies the runtime value of every ConstantField and
// RecurrentField opcode's named field, keyed by FieldName.
type Bindings map[string]Field

// Eval computes the value of target by walking its dependency graph
// depth-first, memoizing every register it has already computed. It
// returns an error if the circuit references a name Bindings has no entry
// for, or if an opcode's shape preconditions (already checked by the
// factories that build real kernels) don't hold — both are signs of a
// malformed test fixture, not a legitimate runtime outcome.
func Eval(target *kernel.VirtualFieldRegister, bindings Bindings) (Field, error) {
	memo := make(map[*kernel.VirtualFieldRegister]Field)
	return eval(target, bindings, memo)
}

func eval(r *kernel.VirtualFieldRegister, bindings Bindings, memo map[*kernel.VirtualFieldRegister]Field) (Field, error) {
	if f, ok := memo[r]; ok {
		return f, nil
	}
	k := r.Source()
	var out Field
	var err error
	switch op := k.Opcode().(type) {
	case kernel.ConstantFieldOp:
		out, err = lookupBinding(bindings, op.FieldName, r.FieldType())
	case kernel.RecurrentFieldOp:
		out, err = lookupBinding(bindings, op.FieldName, r.FieldType())
	case kernel.BinaryOp:
		out, err = evalBinary(k, op.Kind, bindings, memo)
	case kernel.ScalarOp:
		out, err = evalScalar(k, op, bindings, memo)
	case kernel.FlipOp:
		out, err = evalFlip(k, bindings, memo)
	case kernel.ReshapeOp:
		out, err = evalPassthroughShapeOnly(k, r.FieldType(), bindings, memo)
	case kernel.TensorReduceOp:
		out, err = evalTensorReduce(k, op, r.FieldType(), bindings, memo)
	case kernel.MergedOp:
		out, err = evalMerged(k, op, r.FieldType(), bindings, memo)
	default:
		err = fmt.Errorf("testexec: %s is not supported by the reference executor", k.Opcode().Name())
	}
	if err != nil {
		return Field{}, err
	}
	memo[r] = out
	return out, nil
}

func lookupBinding(bindings Bindings, name string, want kernel.FieldType) (Field, error) {
	f, ok := bindings[name]
	if !ok {
		return Field{}, fmt.Errorf("testexec: no binding for field %q", name)
	}
	if !f.Type.Equals(want) {
		return Field{}, fmt.Errorf("testexec: binding for %q has type %s, expected %s", name, f.Type, want)
	}
	return f, nil
}

func evalBinary(k *kernel.AbstractKernel, kind kernel.BinaryKind, bindings Bindings, memo map[*kernel.VirtualFieldRegister]Field) (Field, error) {
	a, err := eval(k.Operand(0), bindings, memo)
	if err != nil {
		return Field{}, err
	}
	b, err := eval(k.Operand(1), bindings, memo)
	if err != nil {
		return Field{}, err
	}
	if len(a.Data) != len(b.Data) {
		return Field{}, fmt.Errorf("testexec: binary op operands have mismatched lengths %d and %d", len(a.Data), len(b.Data))
	}
	out := make([]float64, len(a.Data))
	for i := range out {
		out[i] = applyBinary(kind, a.Data[i], b.Data[i])
	}
	return Field{Type: k.Outputs()[0].FieldType(), Data: out}, nil
}

func evalScalar(k *kernel.AbstractKernel, op kernel.ScalarOp, bindings Bindings, memo map[*kernel.VirtualFieldRegister]Field) (Field, error) {
	a, err := eval(k.Inputs()[0], bindings, memo)
	if err != nil {
		return Field{}, err
	}
	out := make([]float64, len(a.Data))
	for i, v := range a.Data {
		out[i] = applyBinary(op.Kind, v, op.Scalar)
	}
	return Field{Type: k.Outputs()[0].FieldType(), Data: out}, nil
}

// arity is the number of operands an elementwise opcode consumes. -1 means
// the opcode cannot appear inside a MergedOp this executor understands.
func arity(op kernel.Opcode) int {
	switch op.(type) {
	case kernel.BinaryOp:
		return 2
	case kernel.ScalarOp, kernel.FlipOp:
		return 1
	default:
		return -1
	}
}

// evalElementwise applies op to already-evaluated operands. outType is
// only attached to the returned Field for bookkeeping; elementwise opcodes
// never branch on it.
func evalElementwise(op kernel.Opcode, operands []Field, outType kernel.FieldType) (Field, error) {
	switch o := op.(type) {
	case kernel.BinaryOp:
		if len(operands[0].Data) != len(operands[1].Data) {
			return Field{}, fmt.Errorf("testexec: merged binary operands have mismatched lengths %d and %d", len(operands[0].Data), len(operands[1].Data))
		}
		out := make([]float64, len(operands[0].Data))
		for i := range out {
			out[i] = applyBinary(o.Kind, operands[0].Data[i], operands[1].Data[i])
		}
		return Field{Type: outType, Data: out}, nil
	case kernel.ScalarOp:
		out := make([]float64, len(operands[0].Data))
		for i, v := range operands[0].Data {
			out[i] = applyBinary(o.Kind, v, o.Scalar)
		}
		return Field{Type: outType, Data: out}, nil
	case kernel.FlipOp:
		out := make([]float64, len(operands[0].Data))
		for i, v := range operands[0].Data {
			out[len(out)-1-i] = v
		}
		return Field{Type: outType, Data: out}, nil
	default:
		return Field{}, fmt.Errorf("testexec: %s cannot appear inside a merged kernel", op.Name())
	}
}

// evalMerged evaluates a fused HyperKernelMerger kernel by first computing
// Source's value from the slice of the kernel's inputs starting at
// SourceOffset, then splicing that value into Sink's operand list at the
// same offset, matching the input layout HyperKernelMerger built the
// kernel with.
func evalMerged(k *kernel.AbstractKernel, op kernel.MergedOp, outType kernel.FieldType, bindings Bindings, memo map[*kernel.VirtualFieldRegister]Field) (Field, error) {
	srcArity, sinkArity := arity(op.Source), arity(op.Sink)
	if srcArity < 0 || sinkArity < 0 {
		return Field{}, fmt.Errorf("testexec: merged kernel %s uses an opcode the reference executor cannot fuse", k.DebugName())
	}
	if op.SourceOffset < 0 || op.SourceOffset+srcArity > k.NumOperands() {
		return Field{}, fmt.Errorf("testexec: merged kernel %s has an out-of-range source offset", k.DebugName())
	}

	srcOperands := make([]Field, srcArity)
	for i := 0; i < srcArity; i++ {
		f, err := eval(k.Operand(op.SourceOffset+i), bindings, memo)
		if err != nil {
			return Field{}, err
		}
		srcOperands[i] = f
	}
	srcValue, err := evalElementwise(op.Source, srcOperands, kernel.FieldType{})
	if err != nil {
		return Field{}, err
	}

	sinkOperands := make([]Field, sinkArity)
	oi := 0
	for i := 0; i < sinkArity; i++ {
		if i == op.SourceOffset {
			sinkOperands[i] = srcValue
			continue
		}
		pos := oi
		if oi >= op.SourceOffset {
			pos = op.SourceOffset + srcArity + (oi - op.SourceOffset)
		}
		f, err := eval(k.Operand(pos), bindings, memo)
		if err != nil {
			return Field{}, err
		}
		sinkOperands[i] = f
		oi++
	}
	return evalElementwise(op.Sink, sinkOperands, outType)
}

func applyBinary(kind kernel.BinaryKind, a, b float64) float64 {
	switch kind {
	case kernel.Add:
		return a + b
	case kernel.Subtract:
		return a - b
	case kernel.Multiply:
		return a * b
	case kernel.Divide:
		return a / b
	default:
		panic(fmt.Sprintf("testexec: unhandled BinaryKind %v", kind))
	}
}

func evalFlip(k *kernel.AbstractKernel, bindings Bindings, memo map[*kernel.VirtualFieldRegister]Field) (Field, error) {
	a, err := eval(k.Inputs()[0], bindings, memo)
	if err != nil {
		return Field{}, err
	}
	out := make([]float64, len(a.Data))
	for i, v := range a.Data {
		out[len(out)-1-i] = v
	}
	return Field{Type: k.Outputs()[0].FieldType(), Data: out}, nil
}

// evalPassthroughShapeOnly is shared by ReshapeOp: a pure relabelling, so
// the underlying element order and count never change.
func evalPassthroughShapeOnly(k *kernel.AbstractKernel, outType kernel.FieldType, bindings Bindings, memo map[*kernel.VirtualFieldRegister]Field) (Field, error) {
	a, err := eval(k.Inputs()[0], bindings, memo)
	if err != nil {
		return Field{}, err
	}
	if len(a.Data) != outType.FieldPoints()*outType.TensorPoints() {
		return Field{}, fmt.Errorf("testexec: reshape changed element count from %d to %d", len(a.Data), outType.FieldPoints()*outType.TensorPoints())
	}
	return Field{Type: outType, Data: a.Data}, nil
}

func evalTensorReduce(k *kernel.AbstractKernel, op kernel.TensorReduceOp, outType kernel.FieldType, bindings Bindings, memo map[*kernel.VirtualFieldRegister]Field) (Field, error) {
	a, err := eval(k.Inputs()[0], bindings, memo)
	if err != nil {
		return Field{}, err
	}
	inType := k.Inputs()[0].FieldType()
	groups := inType.TensorPoints() / op.Factor
	out := make([]float64, inType.FieldPoints()*groups)
	for fp := 0; fp < inType.FieldPoints(); fp++ {
		base := fp * inType.TensorPoints()
		outBase := fp * groups
		for g := 0; g < groups; g++ {
			acc := a.Data[base+g*op.Factor]
			for j := 1; j < op.Factor; j++ {
				acc = reduceStep(op.Operator, acc, a.Data[base+g*op.Factor+j])
			}
			out[outBase+g] = acc
		}
	}
	return Field{Type: outType, Data: out}, nil
}

func reduceStep(operator kernel.ReduceOperator, acc, v float64) float64 {
	switch operator {
	case kernel.ReduceSum:
		return acc + v
	case kernel.ReduceMin:
		if v < acc {
			return v
		}
		return acc
	case kernel.ReduceMax:
		if v > acc {
			return v
		}
		return acc
	default:
		panic(fmt.Sprintf("testexec: unhandled ReduceOperator %v", operator))
	}
}
