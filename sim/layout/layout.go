// Package layout decodes restaurant floor plans into sim.Grid values.
//
// A Layout is a named matrix of integer cell codes (or, in the text dialect, rows of
// whitespace-separated symbols). Three dialects are understood:
//
//	compact   0 free, 1 wall, 2 table, 3 kitchen, 4 parking
//	numbered  0 free, 1 or 101 wall, 2-99 table labelled by its number, 100 kitchen, 200 parking
//	text      "*" free, "#" wall, "停" parking, "台" kitchen, letters are tables labelled by the letter
//
// Compact tables take labels from the Tables map ("x,y" -> label); unlabelled tables are
// named T1, T2, ... in row-major order.
package layout

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/dinebot-sim/dinebot-sim/sim"
)

// Dialect names a cell-code convention.
type Dialect string

const (
	DialectCompact  Dialect = "compact"
	DialectNumbered Dialect = "numbered"
	DialectText     Dialect = "text"
)

// validDialects maps dialect names to validity. "" means compact.
var validDialects = map[Dialect]bool{
	"":              true,
	DialectCompact:  true,
	DialectNumbered: true,
	DialectText:     true,
}

// IsValidDialect returns true if name is a recognized dialect.
func IsValidDialect(name string) bool {
	return validDialects[Dialect(name)]
}

// Layout is the on-disk form of a restaurant floor plan.
type Layout struct {
	Name    string            `yaml:"name" json:"name"`
	Dialect Dialect           `yaml:"dialect,omitempty" json:"dialect,omitempty"`
	Cells   [][]int           `yaml:"cells,omitempty" json:"cells,omitempty"`
	Rows    []string          `yaml:"rows,omitempty" json:"rows,omitempty"` // text dialect only
	Tables  map[string]string `yaml:"tables,omitempty" json:"tables,omitempty"`
}

// Load reads and strictly parses a layout file. YAML and JSON are both accepted.
// A layout without a name takes the file's base name.
func Load(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading layout: %w", err)
	}
	l, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if l.Name == "" {
		base := filepath.Base(path)
		l.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return l, nil
}

// Parse strictly decodes a layout document.
func Parse(data []byte) (*Layout, error) {
	var l Layout
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&l); err != nil {
		return nil, fmt.Errorf("parsing layout: %w", err)
	}
	return &l, nil
}

// Grid decodes the layout into an immutable grid.
func (l *Layout) Grid() (*sim.Grid, error) {
	if !validDialects[l.Dialect] {
		return nil, fmt.Errorf("layout %q: unknown dialect %q", l.Name, l.Dialect)
	}
	if l.Dialect == DialectText {
		return l.textGrid()
	}
	if len(l.Rows) > 0 {
		return nil, fmt.Errorf("layout %q: rows are only valid in the %s dialect", l.Name, DialectText)
	}
	height := len(l.Cells)
	if height == 0 {
		return nil, fmt.Errorf("layout %q: no cells", l.Name)
	}
	width := len(l.Cells[0])
	kinds := make([]sim.CellKind, 0, width*height)
	tables := make(map[string]sim.Cell)
	var unlabelled []sim.Cell

	for y, row := range l.Cells {
		if len(row) != width {
			return nil, fmt.Errorf("layout %q: row %d has %d cells, want %d", l.Name, y, len(row), width)
		}
		for x, code := range row {
			c := sim.Cell{X: x, Y: y}
			var (
				kind  sim.CellKind
				label string
				err   error
			)
			if l.Dialect == DialectNumbered {
				kind, label, err = decodeNumbered(code)
			} else {
				kind, err = decodeCompact(code)
			}
			if err != nil {
				return nil, fmt.Errorf("layout %q: cell %s: %w", l.Name, c, err)
			}
			kinds = append(kinds, kind)
			if kind != sim.CellTable {
				continue
			}
			if label == "" {
				label = l.Tables[cellKey(c)]
			}
			if label == "" {
				unlabelled = append(unlabelled, c)
				continue
			}
			if err := addTable(tables, label, c); err != nil {
				return nil, fmt.Errorf("layout %q: %w", l.Name, err)
			}
		}
	}
	if err := l.checkTableKeys(width, height, kinds); err != nil {
		return nil, err
	}

	// Default labels count every table cell in row-major order, labelled or not.
	n := 0
	next := 0
	for y := 0; y < height && next < len(unlabelled); y++ {
		for x := 0; x < width && next < len(unlabelled); x++ {
			if kinds[y*width+x] != sim.CellTable {
				continue
			}
			n++
			if unlabelled[next] != (sim.Cell{X: x, Y: y}) {
				continue
			}
			if err := addTable(tables, "T"+strconv.Itoa(n), unlabelled[next]); err != nil {
				return nil, fmt.Errorf("layout %q: %w", l.Name, err)
			}
			next++
		}
	}
	return sim.NewGrid(l.Name, width, height, kinds, tables)
}

// checkTableKeys rejects Tables entries that do not point at a table cell.
func (l *Layout) checkTableKeys(width, height int, kinds []sim.CellKind) error {
	if len(l.Tables) > 0 && l.Dialect == DialectNumbered {
		return fmt.Errorf("layout %q: numbered tables are labelled by their code; remove the tables map", l.Name)
	}
	keys := make([]string, 0, len(l.Tables))
	for k := range l.Tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c, err := parseCellKey(k)
		if err != nil {
			return fmt.Errorf("layout %q: tables: %w", l.Name, err)
		}
		if c.X < 0 || c.X >= width || c.Y < 0 || c.Y >= height || kinds[c.Y*width+c.X] != sim.CellTable {
			return fmt.Errorf("layout %q: tables: %q is not a table cell", l.Name, k)
		}
	}
	return nil
}

// textGrid decodes the symbol-row dialect.
func (l *Layout) textGrid() (*sim.Grid, error) {
	if len(l.Cells) > 0 || len(l.Tables) > 0 {
		return nil, fmt.Errorf("layout %q: the %s dialect takes rows only", l.Name, DialectText)
	}
	var rows [][]string
	for _, r := range l.Rows {
		if fields := strings.Fields(r); len(fields) > 0 {
			rows = append(rows, fields)
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("layout %q: no rows", l.Name)
	}
	width, height := len(rows[0]), len(rows)
	kinds := make([]sim.CellKind, 0, width*height)
	tables := make(map[string]sim.Cell)
	for y, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("layout %q: row %d has %d symbols, want %d", l.Name, y, len(row), width)
		}
		for x, sym := range row {
			c := sim.Cell{X: x, Y: y}
			switch {
			case sym == "#":
				kinds = append(kinds, sim.CellWall)
			case sym == "*" || sym == ".":
				kinds = append(kinds, sim.CellFree)
			case sym == "停":
				kinds = append(kinds, sim.CellParking)
			case sym == "台":
				kinds = append(kinds, sim.CellKitchen)
			case isTableSymbol(sym):
				kinds = append(kinds, sim.CellTable)
				if err := addTable(tables, sym, c); err != nil {
					return nil, fmt.Errorf("layout %q: %w", l.Name, err)
				}
			default:
				logrus.Warnf("layout %q: unknown symbol %q at %s, treating as free", l.Name, sym, c)
				kinds = append(kinds, sim.CellFree)
			}
		}
	}
	return sim.NewGrid(l.Name, width, height, kinds, tables)
}

func isTableSymbol(sym string) bool {
	for _, r := range sym {
		if !unicode.IsLetter(r) || r > unicode.MaxASCII {
			return false
		}
	}
	return sym != ""
}

func decodeCompact(code int) (sim.CellKind, error) {
	switch code {
	case 0:
		return sim.CellFree, nil
	case 1:
		return sim.CellWall, nil
	case 2:
		return sim.CellTable, nil
	case 3:
		return sim.CellKitchen, nil
	case 4:
		return sim.CellParking, nil
	}
	return 0, fmt.Errorf("unknown compact code %d", code)
}

func decodeNumbered(code int) (sim.CellKind, string, error) {
	switch {
	case code == 0:
		return sim.CellFree, "", nil
	case code == 1 || code == 101:
		return sim.CellWall, "", nil
	case code >= 2 && code <= 99:
		return sim.CellTable, strconv.Itoa(code), nil
	case code == 100:
		return sim.CellKitchen, "", nil
	case code == 200:
		return sim.CellParking, "", nil
	}
	return 0, "", fmt.Errorf("unknown numbered code %d", code)
}

func addTable(tables map[string]sim.Cell, label string, c sim.Cell) error {
	if prev, dup := tables[label]; dup {
		return fmt.Errorf("table %q appears at both %s and %s", label, prev, c)
	}
	tables[label] = c
	return nil
}

func cellKey(c sim.Cell) string {
	return fmt.Sprintf("%d,%d", c.X, c.Y)
}

func parseCellKey(key string) (sim.Cell, error) {
	xs, ys, ok := strings.Cut(key, ",")
	if !ok {
		return sim.Cell{}, fmt.Errorf("cell key %q: want \"x,y\"", key)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return sim.Cell{}, fmt.Errorf("cell key %q: %w", key, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return sim.Cell{}, fmt.Errorf("cell key %q: %w", key, err)
	}
	return sim.Cell{X: x, Y: y}, nil
}
