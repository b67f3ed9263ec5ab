package bindgen

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-cz/textcase"
)

// DeclKind tags an emitted declaration.
type DeclKind int

const (
	KindLoader DeclKind = iota
	KindType
	KindEnum
	KindVar
	KindFunc
)

func (k DeclKind) String() string {
	switch k {
	case KindLoader:
		return "loader"
	case KindType:
		return "type"
	case KindEnum:
		return "enum"
	case KindVar:
		return "var"
	case KindFunc:
		return "func"
	}
	return "decl"
}

// Decl is one rendered binding declaration. Source holds the complete Go
// source for the declaration; Links lists every link target it carries.
type Decl struct {
	Name   string
	Kind   DeclKind
	Source string
	Links  []Link
}

const maxLineWidth = 80

type emitter struct {
	links  []Link
	logger Logger
	decls  []Decl

	funcs []*Global
	vars  []*Global
}

// emit renders the filtered graph into declarations. Types come out in
// topological order over by-value edges with registration order as the
// tie-break; pointer references never force ordering, which is what makes
// cyclic graphs renderable.
func emit(globals []*Global, links []Link, logger Logger) []Decl {
	e := &emitter{links: links, logger: logger}

	for _, g := range topoOrder(globals) {
		e.emitGlobal(g)
	}

	if len(e.links) > 0 && (len(e.funcs) > 0 || len(e.vars) > 0) {
		loader := e.renderLoader()
		e.decls = append([]Decl{loader}, e.decls...)
	}
	return e.decls
}

// topoOrder orders type declarations so that by-value dependencies (struct
// members held directly, array elements, alias targets) come before their
// users. Functions and variables keep their relative registration order.
func topoOrder(globals []*Global) []*Global {
	inSet := make(map[*Global]bool, len(globals))
	for _, g := range globals {
		inSet[g] = true
	}

	var out []*Global
	state := make(map[*Global]int) // 0 unvisited, 1 visiting, 2 done

	var visit func(g *Global)
	visit = func(g *Global) {
		if !inSet[g] || state[g] != 0 {
			return
		}
		state[g] = 1
		for _, dep := range byValueDeps(g) {
			visit(dep)
		}
		state[g] = 2
		out = append(out, g)
	}

	for _, g := range globals {
		visit(g)
	}
	return out
}

func byValueDeps(g *Global) []*Global {
	var deps []*Global
	var walk func(t Type)
	walk = func(t Type) {
		switch v := t.(type) {
		case Named:
			deps = append(deps, v.Def)
		case Array:
			walk(v.Elem)
		}
	}
	switch g.Kind {
	case GComp:
		for _, f := range g.Comp.Fields {
			walk(f.Type)
		}
	case GTypeAlias:
		walk(g.Alias)
	}
	return deps
}

func (e *emitter) emitGlobal(g *Global) {
	switch g.Kind {
	case GCompDecl, GEnumDecl:
		// Declared but never defined: an opaque handle is all the target
		// can say about it.
		e.add(g, KindType, fmt.Sprintf("type %s uintptr\n", g.GoName))
	case GComp:
		e.emitComp(g)
	case GEnum:
		e.emitEnum(g)
	case GTypeAlias:
		e.emitAlias(g)
	case GVar:
		e.vars = append(e.vars, g)
		e.emitVar(g)
	case GFunc:
		if g.Func.Sig.Variadic {
			e.logger.Warn(fmt.Sprintf("skipping variadic function %s", g.Name))
			return
		}
		e.funcs = append(e.funcs, g)
		e.emitFunc(g)
	}
}

// add records a declaration. Link metadata is a symbol property, so only
// functions and variables carry it; the loader attaches its own.
func (e *emitter) add(g *Global, kind DeclKind, src string) {
	d := Decl{Name: g.GoName, Kind: kind, Source: src}
	if kind == KindFunc || kind == KindVar {
		d.Links = e.links
	}
	e.decls = append(e.decls, d)
}

func (e *emitter) emitComp(g *Global) {
	var buf bytes.Buffer

	if g.Comp.IsUnion {
		e.logger.Warn(fmt.Sprintf("union %s lowered to raw storage", describe(g)))
		fmt.Fprintf(&buf, "type %s struct {\n", g.GoName)
		fmt.Fprintf(&buf, "\t// union of: %s\n", fieldList(g.Comp.Fields))
		elem, n := storageShape(g.Comp.Size, g.Comp.Align)
		fmt.Fprintf(&buf, "\tRaw [%d]%s\n", n, elem)
		fmt.Fprintf(&buf, "}\n")
		e.add(g, KindType, buf.String())
		return
	}

	fmt.Fprintf(&buf, "type %s struct {\n", g.GoName)
	bitUnits := 0
	for i := 0; i < len(g.Comp.Fields); {
		f := g.Comp.Fields[i]
		if f.Bits == 0 {
			i++
			continue
		}
		if f.Bits > 0 {
			// A run of bit-fields sharing one storage unit becomes a
			// single sized integer member.
			j := i
			var widths []string
			for j < len(g.Comp.Fields) && g.Comp.Fields[j].Bits > 0 &&
				g.Comp.Fields[j].Offset == f.Offset {
				bf := g.Comp.Fields[j]
				widths = append(widths, fmt.Sprintf("%s:%d",
					MapFieldIdent(bf.Name, j), bf.Bits))
				j++
			}
			size, _ := sizeAlignOf(f.Type)
			fmt.Fprintf(&buf, "\tBits%d uint%d // %s\n",
				bitUnits, size*8, strings.Join(widths, " "))
			bitUnits++
			i = j
			continue
		}
		fmt.Fprintf(&buf, "\t%s %s\n", MapFieldIdent(f.Name, i), goType(f.Type))
		i++
	}
	fmt.Fprintf(&buf, "}\n")
	if bitUnits > 0 {
		e.logger.Warn(fmt.Sprintf("struct %s: bit-fields packed into opaque storage", describe(g)))
	}
	e.add(g, KindType, buf.String())
}

func (e *emitter) emitEnum(g *Global) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "type %s %s\n\n", g.GoName, intGoType(g.Enum.Kind))
	if len(g.Enum.Items) == 0 {
		e.add(g, KindEnum, buf.String())
		return
	}
	fmt.Fprintf(&buf, "const (\n")
	for _, it := range g.Enum.Items {
		fmt.Fprintf(&buf, "\t%s %s = %d\n", MapIdent(it.Name), g.GoName, it.Value)
	}
	fmt.Fprintf(&buf, ")\n")
	e.add(g, KindEnum, buf.String())
}

func (e *emitter) emitAlias(g *Global) {
	// A collapsed typedef prints as its aggregate; the aggregate's own
	// declaration already carries the shared name.
	if collapsedTarget(g) != nil {
		return
	}
	e.add(g, KindType, fmt.Sprintf("type %s %s\n", g.GoName, goType(g.Alias)))
}

func (e *emitter) emitVar(g *Global) {
	src := fmt.Sprintf("// %s is the address of the C symbol %q.\nvar %s uintptr\n",
		g.GoName, g.Name, g.GoName)
	e.add(g, KindVar, src)
}

func (e *emitter) emitFunc(g *Global) {
	e.add(g, KindFunc, fmt.Sprintf("var %s %s\n", g.GoName, funcType(g.Func.Sig, len("var "+g.GoName+" "))))
}

// funcType renders a Go func type, wrapping parameters one per line when the
// single-line form would pass the column limit.
func funcType(sig FuncSig, used int) string {
	ret := ""
	if _, isVoid := sig.Ret.(Void); !isVoid {
		ret = " " + goType(sig.Ret)
	}

	var params []string
	for i, p := range sig.Params {
		params = append(params, paramIdent(p.Name, i)+" "+goType(p.Type))
	}

	oneLine := "func(" + strings.Join(params, ", ") + ")" + ret
	if used+len(oneLine) <= maxLineWidth || len(params) == 0 {
		return oneLine
	}

	var buf bytes.Buffer
	buf.WriteString("func(\n")
	for _, p := range params {
		fmt.Fprintf(&buf, "\t%s,\n", p)
	}
	buf.WriteString(")")
	buf.WriteString(ret)
	return buf.String()
}

func paramIdent(name string, ordinal int) string {
	if name == "" {
		return "a" + strconv.Itoa(ordinal)
	}
	out := textcase.CamelCase(name)
	if out == "" || goKeywords[out] {
		out = name + "_"
	}
	return out
}

// renderLoader emits the library loader: one handle per link target, dlopen
// with a platform file name, then symbol registration for every emitted
// function and variable. Registration goes through the first handle; the
// handles are opened RTLD_GLOBAL so symbols resolve across targets.
func (e *emitter) renderLoader() Decl {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "var (\n")
	for _, l := range e.links {
		fmt.Fprintf(&buf, "\tlib%s uintptr\n", MapIdent(l.Name))
	}
	fmt.Fprintf(&buf, ")\n\n")

	fmt.Fprintf(&buf, "func Load() error {\n")
	fmt.Fprintf(&buf, "\tvar err error\n\n")
	for _, l := range e.links {
		handle := "lib" + MapIdent(l.Name)
		fmt.Fprintf(&buf, "\t%s, err = purego.Dlopen(%s, purego.RTLD_NOW|purego.RTLD_GLOBAL)\n",
			handle, linkPathExpr(l))
		fmt.Fprintf(&buf, "\tif err != nil {\n")
		fmt.Fprintf(&buf, "\t\treturn fmt.Errorf(\"loading %s: %%w\", err)\n", l.Name)
		fmt.Fprintf(&buf, "\t}\n")
	}

	primary := "lib" + MapIdent(e.links[0].Name)
	if len(e.funcs) > 0 {
		fmt.Fprintf(&buf, "\n")
		for _, g := range e.funcs {
			fmt.Fprintf(&buf, "\tpurego.RegisterLibFunc(&%s, %s, %q)\n",
				g.GoName, primary, g.Func.LinkName)
		}
	}
	if len(e.vars) > 0 {
		fmt.Fprintf(&buf, "\n")
		for _, g := range e.vars {
			fmt.Fprintf(&buf, "\tif %s, err = purego.Dlsym(%s, %q); err != nil {\n",
				g.GoName, primary, g.Name)
			fmt.Fprintf(&buf, "\t\treturn fmt.Errorf(\"%s: %%w\", err)\n", g.Name)
			fmt.Fprintf(&buf, "\t}\n")
		}
	}
	fmt.Fprintf(&buf, "\n\treturn nil\n")
	fmt.Fprintf(&buf, "}\n\n")

	buf.WriteString(libraryFileFunc)

	return Decl{Name: "Load", Kind: KindLoader, Source: buf.String(), Links: e.links}
}

func linkPathExpr(l Link) string {
	if l.Kind == LinkFramework {
		p := fmt.Sprintf("/Library/Frameworks/%s.framework/%s", l.Name, l.Name)
		return strconv.Quote(p)
	}
	return fmt.Sprintf("libraryFileName(%q)", l.Name)
}

const libraryFileFunc = `func libraryFileName(name string) string {
	switch runtime.GOOS {
	case "darwin":
		return "lib" + name + ".dylib"
	case "windows":
		return name + ".dll"
	default:
		return "lib" + name + ".so"
	}
}
`

// renderText serializes declarations into one deterministic Go source file.
func renderText(decls []Decl) string {
	var buf bytes.Buffer

	buf.WriteString("// Code generated by gobindgen. DO NOT EDIT.\n\n")
	buf.WriteString("package bindings\n")

	if len(decls) > 0 && decls[0].Kind == KindLoader {
		buf.WriteString("\nimport (\n")
		buf.WriteString("\t\"fmt\"\n")
		buf.WriteString("\t\"runtime\"\n\n")
		buf.WriteString("\t\"github.com/ebitengine/purego\"\n")
		buf.WriteString(")\n")
	}

	for _, d := range decls {
		buf.WriteString("\n")
		buf.WriteString(d.Source)
	}
	return buf.String()
}

// goType maps a canonical type to its Go spelling under the ABI table.
// References to declarations the output cannot represent directly fall back
// to uintptr, which keeps every emitted declaration well formed.
func goType(t Type) string {
	switch v := t.(type) {
	case Void:
		// Only legal as a return type, handled by the caller.
		return "struct{}"
	case Bool:
		return "bool"
	case Int:
		return intGoType(v.Kind)
	case Float:
		if v.Kind == FFloat {
			return "float32"
		}
		return "float64"
	case Pointer:
		return pointerGoType(v)
	case Array:
		n := v.Len
		if n < 0 {
			n = 0
		}
		return fmt.Sprintf("[%d]%s", n, goType(v.Elem))
	case Func:
		return "uintptr"
	case Named:
		return v.Def.GoName
	case Unknown:
		return "uintptr"
	}
	return "uintptr"
}

func pointerGoType(p Pointer) string {
	switch elem := p.Elem.(type) {
	case Named:
		switch elem.Def.Kind {
		case GComp, GEnum, GTypeAlias:
			return "*" + elem.Def.GoName
		case GCompDecl, GEnumDecl:
			// The opaque handle type already stands for "pointer to".
			return elem.Def.GoName
		}
	case Int, Float, Bool:
		return "*" + goType(p.Elem)
	case Pointer:
		inner := pointerGoType(elem)
		if strings.HasPrefix(inner, "*") {
			return "*" + inner
		}
	}
	return "uintptr"
}

func intGoType(k IKind) string {
	bits := k.ByteSize() * 8
	if k.Signed() {
		return "int" + strconv.Itoa(bits)
	}
	return "uint" + strconv.Itoa(bits)
}

// storageShape picks the widest integer element matching the alignment, the
// same lowering the raw-storage degradations use for unions.
func storageShape(size, align int) (elem string, n int) {
	switch {
	case align >= 8 && size%8 == 0:
		return "uint64", size / 8
	case align >= 4 && size%4 == 0:
		return "uint32", size / 4
	case align >= 2 && size%2 == 0:
		return "uint16", size / 2
	}
	return "byte", size
}

func fieldList(fields []Field) string {
	var parts []string
	for i, f := range fields {
		parts = append(parts, MapFieldIdent(f.Name, i)+" "+goType(f.Type))
	}
	return strings.Join(parts, ", ")
}

func describe(g *Global) string {
	if g.Name != "" {
		return g.Name
	}
	return g.GoName
}
