package bindgen

import (
	"fmt"
	"math"
	"strings"

	"gobindgen/parser"
)

// registry converts the raw declaration stream into the canonical Global
// graph. One registry serves exactly one generation pass; the graph it builds
// is handed to the emitter and discarded as a unit with the result.
type registry struct {
	globals  map[string]*Global
	order    []*Global
	strict   bool
	override *IKind
	logger   Logger
}

func newRegistry(opts *Options, logger Logger) *registry {
	return &registry{
		globals:  make(map[string]*Global),
		strict:   opts.FailOnUnknownType,
		override: opts.OverrideEnumTy,
		logger:   logger,
	}
}

func (r *registry) registerAll(decls []parser.Decl) error {
	for i := range decls {
		if _, err := r.register(&decls[i], nil); err != nil {
			return err
		}
	}
	return nil
}

// register is idempotent: revisiting a raw identity returns the node already
// created for it. A struct/union/enum is entered into the map as a
// declaration-only placeholder before its body is resolved, so a field type
// that refers back to it resolves to the placeholder instead of recursing.
func (r *registry) register(d *parser.Decl, enclosing *Global) (*Global, error) {
	g, ok := r.globals[d.ID]
	if !ok {
		g = r.newGlobal(d, enclosing)
		r.globals[d.ID] = g
		r.order = append(r.order, g)
	}

	switch d.Kind {
	case parser.DeclStruct, parser.DeclUnion:
		if d.Definition && g.Kind == GCompDecl {
			if err := r.fillComp(g, d); err != nil {
				return nil, err
			}
		}
	case parser.DeclEnum:
		if d.Definition && g.Kind == GEnumDecl {
			r.fillEnum(g, d)
		}
	case parser.DeclTypedef:
		if g.Alias == nil {
			t, err := r.resolveType(d.Type, g)
			if err != nil {
				return nil, err
			}
			g.Alias = t
			r.adoptTypedefName(g, t)
		}
	case parser.DeclFunc:
		if g.Func == nil {
			sig, err := r.resolveSig(d.Sig, g)
			if err != nil {
				return nil, err
			}
			g.Func = &FuncInfo{LinkName: d.Name, Sig: sig}
		}
	case parser.DeclVar:
		if g.Var == nil {
			t, err := r.resolveType(d.Type, g)
			if err != nil {
				return nil, err
			}
			g.Var = &VarInfo{Type: t, Const: d.Const}
		}
	}
	return g, nil
}

func (r *registry) newGlobal(d *parser.Decl, enclosing *Global) *Global {
	g := &Global{
		Name:      d.Name,
		Loc:       d.Loc,
		Anonymous: d.Name == "",
		Enclosing: enclosing,
		Builtin:   builtinNames[d.Name],
	}
	switch d.Kind {
	case parser.DeclStruct:
		g.Kind = GCompDecl
		g.Comp = &CompInfo{}
	case parser.DeclUnion:
		g.Kind = GCompDecl
		g.Comp = &CompInfo{IsUnion: true}
	case parser.DeclEnum:
		g.Kind = GEnumDecl
		g.Enum = &EnumInfo{Kind: IInt}
	case parser.DeclTypedef:
		g.Kind = GTypeAlias
	case parser.DeclFunc:
		g.Kind = GFunc
	case parser.DeclVar:
		g.Kind = GVar
	}
	return g
}

func (r *registry) fillComp(g *Global, d *parser.Decl) error {
	for _, f := range d.Fields {
		t, err := r.resolveType(f.Type, g)
		if err != nil {
			return err
		}
		g.Comp.Fields = append(g.Comp.Fields, Field{Name: f.Name, Type: t, Bits: f.Bits})
	}
	computeLayout(g.Comp)
	g.Kind = GComp
	return nil
}

func (r *registry) fillEnum(g *Global, d *parser.Decl) {
	for _, it := range d.Items {
		g.Enum.Items = append(g.Enum.Items, EnumItem{Name: it.Name, Value: it.Value})
	}
	g.Enum.Kind = inferEnumKind(g.Enum.Items)
	if r.override != nil {
		g.Enum.Kind = *r.override
	}
	g.Kind = GEnum
}

// adoptTypedefName gives "typedef struct {...} Foo;" aggregates the typedef's
// name. The alias node stays in the graph; the emitter collapses it.
func (r *registry) adoptTypedefName(alias *Global, t Type) {
	n, ok := t.(Named)
	if !ok || !n.Def.Anonymous || n.Def.Name != "" {
		return
	}
	n.Def.Name = alias.Name
	n.Def.Anonymous = false
}

func (r *registry) resolveSig(sig *parser.SigDecl, enclosing *Global) (FuncSig, error) {
	out := FuncSig{Variadic: sig.Variadic, ABI: "C"}
	ret, err := r.resolveType(sig.Ret, enclosing)
	if err != nil {
		return out, err
	}
	out.Ret = ret
	for _, p := range sig.Params {
		t, err := r.resolveType(p.Type, enclosing)
		if err != nil {
			return out, err
		}
		out.Params = append(out.Params, Param{Name: p.Name, Type: t})
	}
	return out, nil
}

func (r *registry) resolveType(ref *parser.TypeRef, enclosing *Global) (Type, error) {
	if ref == nil {
		return Void{}, nil
	}
	switch ref.Kind {
	case parser.RefPrim:
		if t, ok := primitiveType(ref.Spelling); ok {
			return t, nil
		}
		return r.unknownType(ref.Spelling)

	case parser.RefNamed:
		if g, ok := r.globals[ref.RefID]; ok {
			return Named{Def: g}, nil
		}
		if kind, tag, ok := tagOfID(ref.RefID); ok {
			// First use of a tag we have no record for yet; enter a
			// declaration-only placeholder so references can exist
			// before (or without) the definition.
			g := r.placeholderTag(kind, tag, ref.RefID)
			return Named{Def: g}, nil
		}
		// A typedef name that never got declared: stdint and friends land
		// here, everything else is unknown.
		if t, ok := primitiveType(ref.Spelling); ok {
			return t, nil
		}
		return r.unknownType(ref.Spelling)

	case parser.RefPointer:
		elem, err := r.resolveType(ref.Elem, enclosing)
		if err != nil {
			return nil, err
		}
		return Pointer{Elem: elem, Const: ref.Const}, nil

	case parser.RefArray:
		elem, err := r.resolveType(ref.Elem, enclosing)
		if err != nil {
			return nil, err
		}
		return Array{Elem: elem, Len: ref.Len}, nil

	case parser.RefFunc:
		sig, err := r.resolveSig(ref.Sig, enclosing)
		if err != nil {
			return nil, err
		}
		return Func{Sig: sig}, nil

	case parser.RefInline:
		g, err := r.register(ref.Inline, enclosing)
		if err != nil {
			return nil, err
		}
		return Named{Def: g}, nil
	}
	return r.unknownType(ref.Spelling)
}

func (r *registry) placeholderTag(kind parser.DeclKind, tag, id string) *Global {
	d := &parser.Decl{Kind: kind, ID: id, Name: tag}
	g := r.newGlobal(d, nil)
	r.globals[id] = g
	r.order = append(r.order, g)
	return g
}

func tagOfID(id string) (parser.DeclKind, string, bool) {
	switch {
	case strings.HasPrefix(id, "struct "):
		return parser.DeclStruct, strings.TrimPrefix(id, "struct "), true
	case strings.HasPrefix(id, "union "):
		return parser.DeclUnion, strings.TrimPrefix(id, "union "), true
	case strings.HasPrefix(id, "enum "):
		return parser.DeclEnum, strings.TrimPrefix(id, "enum "), true
	}
	return 0, "", false
}

func (r *registry) unknownType(spelling string) (Type, error) {
	if r.strict {
		return nil, &UnknownTypeError{Spelling: spelling}
	}
	r.logger.Warn(fmt.Sprintf("unknown type %q; keeping an opaque placeholder", spelling))
	return Unknown{Spelling: spelling}, nil
}

// builtinNames marks declarations that originate from compiler internals.
var builtinNames = map[string]bool{
	"__va_list_tag":     true,
	"__va_list":         true,
	"__builtin_va_list": true,
}

func primitiveType(spelling string) (Type, bool) {
	switch spelling {
	case "void":
		return Void{}, true
	case "bool", "_Bool":
		return Bool{}, true
	case "float":
		return Float{Kind: FFloat}, true
	case "double", "long double":
		return Float{Kind: FDouble}, true
	}
	if k, ok := intKind(spelling); ok {
		return Int{Kind: k}, true
	}
	return nil, false
}

func intKind(spelling string) (IKind, bool) {
	switch spelling {
	case "char", "signed char", "int8_t":
		return ISChar, true
	case "unsigned char", "uint8_t":
		return IUChar, true
	case "short", "short int", "signed short", "signed short int", "int16_t":
		return IShort, true
	case "unsigned short", "unsigned short int", "uint16_t":
		return IUShort, true
	case "int", "signed", "signed int", "int32_t", "wchar_t":
		return IInt, true
	case "unsigned", "unsigned int", "uint32_t":
		return IUInt, true
	case "long", "long int", "signed long", "signed long int",
		"ssize_t", "ptrdiff_t", "intptr_t":
		return ILong, true
	case "unsigned long", "unsigned long int", "size_t", "uintptr_t":
		return IULong, true
	case "long long", "long long int", "signed long long",
		"signed long long int", "int64_t", "intmax_t":
		return ILongLong, true
	case "unsigned long long", "unsigned long long int", "uint64_t", "uintmax_t":
		return IULongLong, true
	}
	return 0, false
}

// inferEnumKind picks the narrowest conventional kind covering the values,
// starting from the C default of int.
func inferEnumKind(items []EnumItem) IKind {
	var min, max int64
	for _, it := range items {
		if it.Value < min {
			min = it.Value
		}
		if it.Value > max {
			max = it.Value
		}
	}
	switch {
	case min >= math.MinInt32 && max <= math.MaxInt32:
		return IInt
	case min >= 0 && max <= math.MaxUint32:
		return IUInt
	case min < 0:
		return ILongLong
	}
	return IULongLong
}

func alignUp(n, a int) int {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}

// computeLayout assigns member offsets and the aggregate size/align under the
// ABI table. Field order is never changed. Consecutive bit-fields share a
// storage unit while the declared widths fit; a zero-width bit-field closes
// the current unit, as it does in C.
func computeLayout(c *CompInfo) {
	align := 1
	if c.IsUnion {
		size := 0
		for i := range c.Fields {
			s, a := sizeAlignOf(c.Fields[i].Type)
			c.Fields[i].Offset = 0
			if s > size {
				size = s
			}
			if a > align {
				align = a
			}
		}
		c.Align = align
		c.Size = alignUp(size, align)
		return
	}

	offset := 0
	unitStart, unitSize, unitBits := 0, 0, 0
	for i := range c.Fields {
		f := &c.Fields[i]
		s, a := sizeAlignOf(f.Type)
		if s == 0 {
			s, a = 1, 1
		}

		if f.Bits == 0 {
			// Zero-width bit-field: closes the current unit and aligns
			// the next member, contributing no storage or alignment of
			// its own.
			offset = alignUp(offset, a)
			f.Offset = offset
			unitSize, unitBits = 0, 0
			continue
		}
		if a > align {
			align = a
		}

		if f.Bits > 0 {
			if unitSize == 0 || unitSize != s || unitBits+f.Bits > s*8 {
				offset = alignUp(offset, a)
				unitStart = offset
				unitSize = s
				unitBits = 0
				offset += s
			}
			f.Offset = unitStart
			unitBits += f.Bits
			continue
		}

		unitSize, unitBits = 0, 0
		offset = alignUp(offset, a)
		f.Offset = offset
		offset += s
	}
	c.Align = align
	c.Size = alignUp(offset, align)
}
