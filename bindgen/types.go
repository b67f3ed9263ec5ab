package bindgen

import (
	"gobindgen/parser"
)

// IKind classifies a C integer type by signedness and platform width class.
// It deliberately carries no fixed bit width; target widths come from the ABI
// table below so the emitter can honor the platform the bindings target.
type IKind int

const (
	ISChar IKind = iota
	IUChar
	IShort
	IUShort
	IInt
	IUInt
	ILong
	IULong
	ILongLong
	IULongLong
)

func (k IKind) Signed() bool {
	switch k {
	case ISChar, IShort, IInt, ILong, ILongLong:
		return true
	}
	return false
}

func (k IKind) String() string {
	switch k {
	case ISChar:
		return "signed char"
	case IUChar:
		return "unsigned char"
	case IShort:
		return "short"
	case IUShort:
		return "unsigned short"
	case IInt:
		return "int"
	case IUInt:
		return "unsigned int"
	case ILong:
		return "long"
	case IULong:
		return "unsigned long"
	case ILongLong:
		return "long long"
	case IULongLong:
		return "unsigned long long"
	}
	return "int"
}

// FKind classifies a C floating type.
type FKind int

const (
	FFloat FKind = iota
	FDouble
)

// Type is the canonical tagged union over C types.
type Type interface {
	isType()
}

type Void struct{}

type Bool struct{}

type Int struct {
	Kind IKind
}

type Float struct {
	Kind FKind
}

type Pointer struct {
	Elem  Type
	Const bool
}

// Array is a C array type. Len is -1 for incomplete arrays.
type Array struct {
	Elem Type
	Len  int
}

// Func is a bare C function type; it appears in practice under a Pointer.
type Func struct {
	Sig FuncSig
}

// Named references a Global. The referenced node may still be a
// declaration-only placeholder while its body is being filled; that is the
// cycle-breaking representation.
type Named struct {
	Def *Global
}

// Unknown is the opaque placeholder for a raw type the registry could not
// classify. The original spelling is preserved for diagnostics.
type Unknown struct {
	Spelling string
}

func (Void) isType()    {}
func (Bool) isType()    {}
func (Int) isType()     {}
func (Float) isType()   {}
func (Pointer) isType() {}
func (Array) isType()   {}
func (Func) isType()    {}
func (Named) isType()   {}
func (Unknown) isType() {}

type FuncSig struct {
	Ret      Type
	Params   []Param
	Variadic bool
	ABI      string
}

type Param struct {
	Name string
	Type Type
}

// GlobalKind tags a canonical top-level declaration node. CompDecl/EnumDecl
// are the declaration-only states; filling promotes them to Comp/Enum.
type GlobalKind int

const (
	GTypeAlias GlobalKind = iota
	GCompDecl
	GComp
	GEnumDecl
	GEnum
	GVar
	GFunc
)

// Global is one canonical node per distinct C top-level declaration identity.
// A node is created as soon as its raw identity is first seen, filled at most
// once, and immutable afterwards.
type Global struct {
	Kind      GlobalKind
	Name      string // C spelling; empty for anonymous aggregates
	GoName    string // assigned by the name resolver
	Loc       parser.Location
	Anonymous bool
	Builtin   bool

	// Enclosing is the declaration an anonymous aggregate was defined
	// inside of; nil otherwise.
	Enclosing *Global

	Alias Type
	Comp  *CompInfo
	Enum  *EnumInfo
	Var   *VarInfo
	Func  *FuncInfo
}

type CompInfo struct {
	IsUnion bool
	Fields  []Field
	Size    int
	Align   int
}

// Field preserves layout exactly as declared: order, bit widths and the byte
// offset of the member (for bit-fields, of its storage unit).
type Field struct {
	Name   string
	Type   Type
	Bits   int // -1 when not a bit-field
	Offset int
}

type EnumInfo struct {
	Items []EnumItem
	Kind  IKind
}

type EnumItem struct {
	Name  string
	Value int64
}

type VarInfo struct {
	Type  Type
	Const bool
}

type FuncInfo struct {
	LinkName string
	Sig      FuncSig
}

// ABI widths used for layout computation (LP64). The canonical model keeps
// width classes; only layout and the emitted Go types consume these sizes.
const pointerSize = 8

func (k IKind) ByteSize() int {
	switch k {
	case ISChar, IUChar:
		return 1
	case IShort, IUShort:
		return 2
	case IInt, IUInt:
		return 4
	}
	return 8
}

func (k FKind) ByteSize() int {
	if k == FFloat {
		return 4
	}
	return 8
}

// sizeAlignOf reports the byte size and alignment of a type under the ABI
// table. Incomplete and unrepresentable types report zero size.
func sizeAlignOf(t Type) (size, align int) {
	switch v := t.(type) {
	case Void:
		return 0, 1
	case Bool:
		return 1, 1
	case Int:
		s := v.Kind.ByteSize()
		return s, s
	case Float:
		s := v.Kind.ByteSize()
		return s, s
	case Pointer:
		return pointerSize, pointerSize
	case Func:
		return pointerSize, pointerSize
	case Array:
		es, ea := sizeAlignOf(v.Elem)
		if v.Len < 0 {
			return 0, ea
		}
		return es * v.Len, ea
	case Named:
		return sizeAlignOfGlobal(v.Def)
	case Unknown:
		// Opaque placeholder: pointer-sized so enclosing layout stays sane.
		return pointerSize, pointerSize
	}
	return 0, 1
}

func sizeAlignOfGlobal(g *Global) (size, align int) {
	switch g.Kind {
	case GComp:
		return g.Comp.Size, g.Comp.Align
	case GEnum:
		s := g.Enum.Kind.ByteSize()
		return s, s
	case GTypeAlias:
		return sizeAlignOf(g.Alias)
	}
	// Declaration-only nodes have no layout; only pointers to them are legal.
	return 0, 1
}
