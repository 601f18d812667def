package parser

import (
	"github.com/pattyshack/gt/parseutil"
	"gopkg.in/yaml.v3"
)

// Maps yaml node marks (line / column) back to parseutil locations by
// replaying the source through a location tracking reader.
type locator struct {
	fileName string
	content  []byte

	lineStarts []int

	reader parseutil.BufferedByteLocationReader
	offset int
}

func newLocator(fileName string, content []byte) *locator {
	lineStarts := []int{0}
	for idx, char := range content {
		if char == '\n' {
			lineStarts = append(lineStarts, idx+1)
		}
	}

	loc := &locator{
		fileName:   fileName,
		content:    content,
		lineStarts: lineStarts,
	}
	loc.reset()
	return loc
}

func (loc *locator) reset() {
	loc.reader = parseutil.NewBufferedByteLocationReaderFromSlice(
		loc.fileName,
		loc.content)
	loc.offset = 0
}

func (loc *locator) byteOffset(line int, column int) int {
	if line < 1 {
		return 0
	}
	if line > len(loc.lineStarts) {
		return len(loc.content)
	}

	offset := loc.lineStarts[line-1]
	if column > 1 {
		offset += column - 1
	}

	end := len(loc.content)
	if line < len(loc.lineStarts) {
		end = loc.lineStarts[line]
	}
	if offset > end {
		offset = end
	}
	return offset
}

func (loc *locator) Location(node *yaml.Node) parseutil.Location {
	offset := loc.byteOffset(node.Line, node.Column)
	if offset < loc.offset {
		loc.reset()
	}

	if offset > loc.offset {
		_, err := loc.reader.Discard(offset - loc.offset)
		if err != nil {
			panic("should never happen")
		}
		loc.offset = offset
	}

	return loc.reader.Location
}

// Nodes are single tokens for location purposes.
func (loc *locator) Pos(node *yaml.Node) parseutil.StartEndPos {
	start := loc.Location(node)
	return parseutil.NewStartEndPos(start, start)
}
