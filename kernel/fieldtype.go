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

// Package kernel is the kernel-circuit IR: field types, opcodes, virtual
// field registers and the kernel nodes that produce them, plus the
// circuit that owns all of it and the rewrite primitives every
// optimization pass is built from.
package kernel

import (
	"fmt"
	"strings"
)

// ElementType is the scalar type stored at every point of a field.
type ElementType int

const (
	Float32 ElementType = iota
	Complex32
	Uint8Pixel
	Int32
)

func (e ElementType) String() string {
	switch e {
	case Float32:
		return "Float32"
	case Complex32:
		return "Complex32"
	case Uint8Pixel:
		return "Uint8Pixel"
	case Int32:
		return "Int32"
	default:
		return fmt.Sprintf("ElementType(%d)", int(e))
	}
}

// Shape is a sequence of positive dimension sizes. It compares by value.
type Shape []int

// Equals reports whether two shapes have the same dimensionality and sizes.
func (s Shape) Equals(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Points returns the total element count of the shape (1 for the 0-d shape).
func (s Shape) Points() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (s Shape) clone() Shape {
	if s == nil {
		return nil
	}
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

// FieldType is the immutable value type attached to every virtual field
// register: the field's spatial shape, the tensor (vector/matrix) shape of
// each field point, and the scalar element type. Two FieldTypes compare by
// value.
type FieldType struct {
	FieldShape  Shape
	TensorShape Shape
	Element     ElementType
}

// NewFieldType validates and constructs a FieldType. FieldShape must have
// 0-3 dimensions and TensorShape must have 0-2 dimensions, matching the
// dimensionality limits the frontend and kernel factories assume.
func NewFieldType(fieldShape, tensorShape Shape, elem ElementType) (FieldType, error) {
	if len(fieldShape) > 3 {
		return FieldType{}, fmt.Errorf("kernel: field shape %s has more than 3 dimensions", fieldShape)
	}
	if len(tensorShape) > 2 {
		return FieldType{}, fmt.Errorf("kernel: tensor shape %s has more than 2 dimensions", tensorShape)
	}
	for _, d := range fieldShape {
		if d <= 0 {
			return FieldType{}, fmt.Errorf("kernel: field shape %s has a non-positive dimension", fieldShape)
		}
	}
	for _, d := range tensorShape {
		if d <= 0 {
			return FieldType{}, fmt.Errorf("kernel: tensor shape %s has a non-positive dimension", tensorShape)
		}
	}
	return FieldType{
		FieldShape:  fieldShape.clone(),
		TensorShape: tensorShape.clone(),
		Element:     elem,
	}, nil
}

// MustFieldType is NewFieldType, panicking on invalid shapes. Intended for
// kernel factories and tests that construct field types from already-valid
// literals.
func MustFieldType(fieldShape, tensorShape Shape, elem ElementType) FieldType {
	ft, err := NewFieldType(fieldShape, tensorShape, elem)
	if err != nil {
		panic(err)
	}
	return ft
}

// Equals reports structural (value) equality.
func (t FieldType) Equals(o FieldType) bool {
	return t.FieldShape.Equals(o.FieldShape) &&
		t.TensorShape.Equals(o.TensorShape) &&
		t.Element == o.Element
}

// Dimensions is the number of field-shape dimensions.
func (t FieldType) Dimensions() int { return len(t.FieldShape) }

// TensorOrder is the number of tensor-shape dimensions (0 = scalar field).
func (t FieldType) TensorOrder() int { return len(t.TensorShape) }

// TensorPoints is the element count of a single field point's tensor.
func (t FieldType) TensorPoints() int { return t.TensorShape.Points() }

// FieldPoints is the number of points in the field shape.
func (t FieldType) FieldPoints() int { return t.FieldShape.Points() }

func (t FieldType) String() string {
	if t.TensorOrder() == 0 {
		return fmt.Sprintf("%s<%s>", t.FieldShape, t.Element)
	}
	return fmt.Sprintf("%s<%s><%s>", t.FieldShape, t.TensorShape, t.Element)
}
