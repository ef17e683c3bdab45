package gpu

import (
	"fmt"
	"regexp"
	"strings"
)

// ProgramSource carries the stages of a shader program. Vertex and Fragment
// are GLSL ES 1.00. Kage is the fragment stage for devices that compile
// Ebitengine's shading language; those devices run the vertex stage on the CPU.
type ProgramSource struct {
	Vertex   string
	Fragment string
	Kage     string
}

// Stage is a shader stage
type Stage int

const (
	VertexStage Stage = iota
	FragmentStage
)

func (s Stage) String() string {
	if s == VertexStage {
		return "vertex"
	}
	return "fragment"
}

// Variable is an attribute or uniform declared by a program
type Variable struct {
	Name     string
	Type     string
	Stage    Stage
	Location Location
}

// Interface is the set of inputs a program declares
type Interface struct {
	Attributes []Variable
	Uniforms   []Variable
}

var (
	declPattern = regexp.MustCompile(`^\s*(attribute|uniform)\s+(?:(?:lowp|mediump|highp)\s+)?(\w+)\s+(\w+)\s*;`)
	mainPattern = regexp.MustCompile(`\bvoid\s+main\s*\(\s*(?:void\s*)?\)`)
)

// Reflect parses the attribute and uniform declarations of both GLSL stages.
// It fails when a stage has no main function, when an attribute is declared
// outside the vertex stage, or when a name is declared twice with different
// types. Locations are assigned in declaration order, attributes and uniforms
// numbered separately; a uniform declared in both stages shares one location.
func Reflect(src ProgramSource) (Interface, error) {
	var iface Interface

	stages := []struct {
		stage Stage
		text  string
	}{
		{VertexStage, src.Vertex},
		{FragmentStage, src.Fragment},
	}

	for _, st := range stages {
		text := stripComments(st.text)
		if !mainPattern.MatchString(text) {
			return Interface{}, fmt.Errorf("compile %s stage: missing main()", st.stage)
		}

		for n, line := range strings.Split(text, "\n") {
			m := declPattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			qualifier, typ, name := m[1], m[2], m[3]

			switch qualifier {
			case "attribute":
				if st.stage != VertexStage {
					return Interface{}, fmt.Errorf("compile %s stage: line %d: attribute %q outside vertex stage", st.stage, n+1, name)
				}
				if _, ok := iface.find(iface.Attributes, name); ok {
					return Interface{}, fmt.Errorf("compile %s stage: line %d: attribute %q redeclared", st.stage, n+1, name)
				}
				iface.Attributes = append(iface.Attributes, Variable{
					Name: name, Type: typ, Stage: st.stage, Location: Location(len(iface.Attributes)),
				})
			case "uniform":
				if prev, ok := iface.find(iface.Uniforms, name); ok {
					if prev.Type != typ {
						return Interface{}, fmt.Errorf("link: uniform %q declared as %s and %s", name, prev.Type, typ)
					}
					continue
				}
				iface.Uniforms = append(iface.Uniforms, Variable{
					Name: name, Type: typ, Stage: st.stage, Location: Location(len(iface.Uniforms)),
				})
			}
		}
	}

	return iface, nil
}

func (i Interface) find(vars []Variable, name string) (Variable, bool) {
	for _, v := range vars {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

// Attribute returns the named attribute
func (i Interface) Attribute(name string) (Variable, bool) {
	return i.find(i.Attributes, name)
}

// Uniform returns the named uniform
func (i Interface) Uniform(name string) (Variable, bool) {
	return i.find(i.Uniforms, name)
}

// LineProgram is the shape of program a CPU-side device can execute: a
// position attribute transformed by a mat4 uniform, and a flat vec4 color
// uniform written by the fragment stage.
type LineProgram struct {
	Position   Location
	Projection Location
	Color      Location
	Interface  Interface
}

// ResolveLineProgram reflects src and checks that it has the line program shape
func ResolveLineProgram(src ProgramSource) (LineProgram, error) {
	iface, err := Reflect(src)
	if err != nil {
		return LineProgram{}, err
	}

	lp := LineProgram{
		Position:   NoLocation,
		Projection: NoLocation,
		Color:      NoLocation,
		Interface:  iface,
	}

	for _, a := range iface.Attributes {
		if a.Type != "vec2" && a.Type != "vec3" && a.Type != "vec4" {
			return LineProgram{}, fmt.Errorf("link: attribute %q has unsupported type %s", a.Name, a.Type)
		}
		if lp.Position != NoLocation {
			return LineProgram{}, fmt.Errorf("link: more than one vertex attribute")
		}
		lp.Position = a.Location
	}
	for _, u := range iface.Uniforms {
		switch {
		case u.Type == "mat4" && u.Stage == VertexStage && lp.Projection == NoLocation:
			lp.Projection = u.Location
		case u.Type == "vec4" && u.Stage == FragmentStage && lp.Color == NoLocation:
			lp.Color = u.Location
		default:
			return LineProgram{}, fmt.Errorf("link: unsupported uniform %s %q in %s stage", u.Type, u.Name, u.Stage)
		}
	}

	switch {
	case lp.Position == NoLocation:
		return LineProgram{}, fmt.Errorf("link: no position attribute")
	case lp.Projection == NoLocation:
		return LineProgram{}, fmt.Errorf("link: no mat4 projection uniform in vertex stage")
	case lp.Color == NoLocation:
		return LineProgram{}, fmt.Errorf("link: no vec4 color uniform in fragment stage")
	}
	return lp, nil
}

var (
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment  = regexp.MustCompile(`//[^\n]*`)
)

func stripComments(s string) string {
	s = blockComment.ReplaceAllStringFunc(s, func(c string) string {
		// keep line numbers stable for error messages
		return strings.Repeat("\n", strings.Count(c, "\n"))
	})
	return lineComment.ReplaceAllString(s, "")
}
