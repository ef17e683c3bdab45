package topology

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

//go:embed data/tesselation.txt
var tesselationData []byte

var tesselation = mustParseTriangles(tesselationData)

func mustParseTriangles(data []byte) []Connection {
	conns, err := ParseTriangles(bytes.NewReader(data))
	if err != nil {
		panic(fmt.Sprintf("topology: embedded tesselation: %v", err))
	}
	return conns
}

// ParseTriangles reads a triangle list and expands every triangle (a, b, c)
// into the connections (a,b), (b,c), (c,a).
//
// Two line formats are accepted and may not be mixed in one stream:
//   - plain triples of 0-based landmark indices, "a b c"
//   - Wavefront OBJ face records, "f a b c" with 1-based vertex indices and
//     optional /vt/vn suffixes; polygons with more than three vertices are
//     fanned. Other OBJ records (v, vt, vn, o, g, s, usemtl) are skipped.
//
// Blank lines and lines starting with '#' are ignored.
func ParseTriangles(r io.Reader) ([]Connection, error) {
	var (
		conns []Connection
		obj   bool
		plain bool
		line  int
	)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)

		switch fields[0] {
		case "f":
			obj = true
			idx, err := parseIndices(fields[1:], 1)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			if len(idx) < 3 {
				return nil, fmt.Errorf("line %d: face needs at least 3 vertices, got %d", line, len(idx))
			}
			for i := 1; i+1 < len(idx); i++ {
				conns = appendTriangle(conns, idx[0], idx[i], idx[i+1])
			}
		case "v", "vt", "vn", "vp", "o", "g", "s", "l", "usemtl", "mtllib":
			obj = true
		default:
			plain = true
			if len(fields) != 3 {
				return nil, fmt.Errorf("line %d: want 3 indices, got %d", line, len(fields))
			}
			idx, err := parseIndices(fields, 0)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			conns = appendTriangle(conns, idx[0], idx[1], idx[2])
		}

		if obj && plain {
			return nil, fmt.Errorf("line %d: mixed OBJ and plain triangle records", line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read triangles: %w", err)
	}
	if len(conns) == 0 {
		return nil, fmt.Errorf("no triangles found")
	}
	return conns, nil
}

// parseIndices converts index fields to uint16, subtracting base
func parseIndices(fields []string, base int) ([]uint16, error) {
	out := make([]uint16, 0, len(fields))
	for _, f := range fields {
		// OBJ vertex references look like v, v/vt, v//vn or v/vt/vn
		if i := strings.IndexByte(f, '/'); i >= 0 {
			f = f[:i]
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("bad index %q: %w", f, err)
		}
		n -= base
		if n < 0 || n > math.MaxUint16 {
			return nil, fmt.Errorf("index %q out of range", f)
		}
		out = append(out, uint16(n))
	}
	return out, nil
}

func appendTriangle(conns []Connection, a, b, c uint16) []Connection {
	return append(conns,
		Connection{a, b},
		Connection{b, c},
		Connection{c, a},
	)
}
