package parser

import "strconv"

// Location is the source position a declaration was first seen at.
type Location struct {
	File string
	Line int
}

// DeclKind tags a raw top-level declaration.
type DeclKind int

const (
	DeclStruct DeclKind = iota
	DeclUnion
	DeclEnum
	DeclTypedef
	DeclFunc
	DeclVar
)

// Decl is one raw declaration as produced by the front end. The same identity
// may be yielded more than once: forward declarations carry Definition=false,
// the later body carries Definition=true with the same ID.
type Decl struct {
	Kind       DeclKind
	ID         string
	Name       string
	Loc        Location
	Definition bool

	Fields []FieldDecl    // struct/union bodies
	Items  []EnumItemDecl // enum bodies
	Type   *TypeRef       // typedef target or variable type
	Sig    *SigDecl       // function signature
	Const  bool           // const-qualified variable
}

// FieldDecl is a struct or union member. Bits is -1 for plain members and the
// declared width for bit-fields.
type FieldDecl struct {
	Name string
	Type *TypeRef
	Bits int
}

type EnumItemDecl struct {
	Name  string
	Value int64
}

type SigDecl struct {
	Ret      *TypeRef
	Params   []ParamDecl
	Variadic bool
}

type ParamDecl struct {
	Name string
	Type *TypeRef
}

// RefKind tags a raw type handle.
type RefKind int

const (
	// RefPrim is a primitive spelling such as "unsigned long" or "uint32_t".
	RefPrim RefKind = iota
	// RefNamed references another declaration by identity key.
	RefNamed
	RefPointer
	RefArray
	RefFunc
	// RefInline is an anonymous aggregate defined in place, e.g. a nested
	// unnamed struct inside a field.
	RefInline
)

// TypeRef is a raw sub-type handle. It mirrors the C type syntax; the registry
// turns it into a canonical Type.
type TypeRef struct {
	Kind     RefKind
	Spelling string
	Const    bool
	Elem     *TypeRef // pointer/array element
	Len      int      // array length, -1 when unspecified
	Sig      *SigDecl // function types
	RefID    string   // RefNamed: identity key of the referenced declaration
	Inline   *Decl    // RefInline: the in-place definition
}

// Identity keys. Named tags share identity across headers; anonymous
// aggregates are identified by their declaration site.

func StructID(tag string) string   { return "struct " + tag }
func UnionID(tag string) string    { return "union " + tag }
func EnumID(tag string) string     { return "enum " + tag }
func TypedefID(name string) string { return "typedef " + name }
func FuncID(name string) string    { return "func " + name }
func VarID(name string) string     { return "var " + name }

func anonID(kind string, loc Location) string {
	return kind + "@" + loc.File + ":" + strconv.Itoa(loc.Line)
}
