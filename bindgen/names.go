package bindgen

import (
	"strconv"

	"github.com/golang-cz/textcase"
)

// assignNames gives every global a deterministic target identifier. It runs
// once, after registration completes, over first-encounter order, which makes
// the result stable across runs for identical input. A typedef that collapses
// into its aggregate claims no name of its own: it takes the aggregate's name
// so references through either spelling print the one declared identifier.
func assignNames(order []*Global, warn func(string)) {
	n := &namer{
		taken:    make(map[string]bool),
		anonSeqs: make(map[*Global]int),
	}
	var collapsed []*Global
	for _, g := range order {
		if collapsedTarget(g) != nil {
			collapsed = append(collapsed, g)
			continue
		}
		g.GoName = n.nameFor(g, warn)
	}
	for _, g := range collapsed {
		g.GoName = collapsedTarget(g).GoName
	}
}

// collapsedTarget reports the node a typedef folds into: the target of
// "typedef struct {...} name;" after name adoption, or of
// "typedef struct name name;". Alias and target share one C spelling and
// emit a single declaration.
func collapsedTarget(g *Global) *Global {
	if g.Kind != GTypeAlias {
		return nil
	}
	n, ok := g.Alias.(Named)
	if !ok || n.Def.Name == "" || n.Def.Name != g.Name {
		return nil
	}
	return n.Def
}

type namer struct {
	taken    map[string]bool
	anonSeqs map[*Global]int
}

func (n *namer) nameFor(g *Global, warn func(string)) string {
	base := ""
	if g.Anonymous {
		base = n.anonName(g)
	} else {
		base = MapIdent(g.Name)
	}
	if base == "" {
		base = "Unnamed"
	}

	name := base
	for i := 2; n.taken[name]; i++ {
		name = base + "_" + strconv.Itoa(i)
		if i == 2 && warn != nil {
			warn("identifier collision on " + base + "; suffixing")
		}
	}
	n.taken[name] = true
	return name
}

// anonName derives <enclosing>_<counter>, the counter scoped to the nearest
// named enclosing declaration and ordered by first encounter within it.
func (n *namer) anonName(g *Global) string {
	enc := g.Enclosing
	for enc != nil && enc.Anonymous {
		enc = enc.Enclosing
	}
	if enc == nil {
		// Top-level anonymous aggregate with no anchor at all.
		n.anonSeqs[nil]++
		return "Unnamed_" + strconv.Itoa(n.anonSeqs[nil])
	}
	n.anonSeqs[enc]++
	return MapIdent(enc.Name) + "_" + strconv.Itoa(n.anonSeqs[enc])
}

// MapIdent maps a C spelling to the target naming convention. The exported
// casing can never collide with a Go keyword; the keyword guard lives where
// lower-case identifiers are minted, on parameter names.
func MapIdent(name string) string {
	if name == "" {
		return ""
	}
	if out := textcase.PascalCase(name); out != "" {
		return out
	}
	return name
}

// MapFieldIdent is MapIdent for struct members and parameters, with a
// fallback for members the target cannot leave unnamed.
func MapFieldIdent(name string, ordinal int) string {
	if name == "" {
		return "Field" + strconv.Itoa(ordinal)
	}
	return MapIdent(name)
}

var goKeywords = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true,
	"continue": true, "default": true, "defer": true, "else": true,
	"fallthrough": true, "for": true, "func": true, "go": true,
	"goto": true, "if": true, "import": true, "interface": true,
	"map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true,
	"var": true,
}
