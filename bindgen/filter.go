package bindgen

import "strings"

// LinkType describes how an emitted symbol is externally linked.
type LinkType int

const (
	LinkDefault LinkType = iota
	LinkStatic
	LinkFramework
)

func (l LinkType) String() string {
	switch l {
	case LinkStatic:
		return "static"
	case LinkFramework:
		return "framework"
	}
	return "dynamic"
}

// Link is one configured link target. Every emitted function and variable
// carries all configured links; a symbol may legitimately carry several.
type Link struct {
	Name string
	Kind LinkType
}

// matchesPattern reports whether a declaration's source file matches the
// selection filter. An empty pattern set selects everything.
func matchesPattern(loc string, pats []string) bool {
	if len(pats) == 0 {
		return true
	}
	for _, p := range pats {
		if strings.Contains(loc, p) {
			return true
		}
	}
	return false
}

// selectGlobals applies the pattern filter and builtin policy, then closes
// the selected set over type dependencies: a type referenced from a selected
// declaration is emitted even when its own location fails the filter, since
// omitting it would leave an undefined name in the output.
func selectGlobals(order []*Global, pats []string, builtins bool) []*Global {
	selected := make(map[*Global]bool)

	var mark func(g *Global)
	var markType func(t Type)

	mark = func(g *Global) {
		if selected[g] {
			return
		}
		selected[g] = true
		switch g.Kind {
		case GTypeAlias:
			markType(g.Alias)
		case GComp:
			for _, f := range g.Comp.Fields {
				markType(f.Type)
			}
		case GVar:
			markType(g.Var.Type)
		case GFunc:
			markType(g.Func.Sig.Ret)
			for _, p := range g.Func.Sig.Params {
				markType(p.Type)
			}
		}
	}

	markType = func(t Type) {
		switch v := t.(type) {
		case Pointer:
			markType(v.Elem)
		case Array:
			markType(v.Elem)
		case Func:
			markType(v.Sig.Ret)
			for _, p := range v.Sig.Params {
				markType(p.Type)
			}
		case Named:
			mark(v.Def)
		}
	}

	for _, g := range order {
		if g.Builtin && !builtins {
			continue
		}
		if !matchesPattern(g.Loc.File, pats) {
			continue
		}
		// Anonymous aggregates enter the set through their enclosing
		// declaration, not on their own.
		if g.Anonymous {
			continue
		}
		mark(g)
	}

	out := make([]*Global, 0, len(selected))
	for _, g := range order {
		if selected[g] {
			out = append(out, g)
		}
	}
	return out
}
