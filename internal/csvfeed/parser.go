// Package csvfeed turns a delimited OHLC document into a validated series.
//
// Parsing and validation are separate steps: Parse never fails and keeps
// malformed lines, Validate drops them and counts the drops.
package csvfeed

import "strings"

// DefaultDelimiter separates fields in "date,open,high,low,close" lines.
const DefaultDelimiter = ','

// Parser splits documents on a single delimiter character.
// No quoting or escaping is recognised.
type Parser struct {
	Delimiter rune
}

// NewParser returns a parser for the given delimiter. A zero delimiter
// falls back to DefaultDelimiter.
func NewParser(delim rune) *Parser {
	if delim == 0 {
		delim = DefaultDelimiter
	}
	return &Parser{Delimiter: delim}
}

// Parse splits text with the default comma delimiter.
func Parse(text string) []RawRow {
	return NewParser(DefaultDelimiter).Parse(text)
}

// Parse discards the header line and returns one row per remaining line,
// including malformed ones. Trailing empty lines produce no rows.
func (p *Parser) Parse(text string) []RawRow {
	lines := strings.Split(text, "\n")
	if len(lines) <= 1 {
		return []RawRow{}
	}
	lines = lines[1:]

	// Drop trailing blank lines only; interior blanks are kept as malformed rows.
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}

	delim := string(p.delimiter())
	rows := make([]RawRow, 0, end)
	for i := 0; i < end; i++ {
		line := strings.TrimSuffix(lines[i], "\r")
		fields := strings.Split(line, delim)
		for j := range fields {
			fields[j] = strings.TrimSpace(fields[j])
		}
		rows = append(rows, RawRow{Line: i + 2, Fields: fields})
	}
	return rows
}

func (p *Parser) delimiter() rune {
	if p == nil || p.Delimiter == 0 {
		return DefaultDelimiter
	}
	return p.Delimiter
}
