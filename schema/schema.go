// Package schema extracts instruction definitions from a Solana
// program's Rust instruction enum. The scan is strict and fail-fast:
// any deviation from the expected grammar is an error, never a guess.
package schema

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
)

// Field is one typed instruction argument. Order matters: fields are
// serialized in declaration order.
type Field struct {
	Name string
	Type string
}

// Instruction describes a single instruction variant.
type Instruction struct {
	Name          string
	Discriminator int
	Accounts      int
	Args          []Field
}

// Config controls which enum is scanned and how account counts are
// derived.
type Config struct {
	// EnumName is the Rust enum holding the instruction variants.
	EnumName string
	// SkipVariants lists internal variants to exclude from the result.
	SkipVariants []string
	// AccountFloor is the minimum account count assumed per
	// instruction when fewer annotations are present.
	AccountFloor int
}

// DefaultConfig returns the configuration matching the commerce
// program's instruction definitions.
func DefaultConfig() Config {
	return Config{
		EnumName:     "CommerceProgramInstruction",
		SkipVariants: []string{"EmitEvent"},
		AccountFloor: 3,
	}
}

// ParseFile reads path and extracts its instruction definitions.
func ParseFile(path string, cfg Config) ([]Instruction, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instructions file %s: %w", path, err)
	}

	instrs, err := Parse(string(src), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return instrs, nil
}

// Parse extracts instruction definitions from Rust source text. Each
// retained variant must be preceded by at least one #[account(...)]
// annotation; the reported count is floored at cfg.AccountFloor.
func Parse(src string, cfg Config) ([]Instruction, error) {
	body, err := enumBody(src, cfg.EnumName)
	if err != nil {
		return nil, err
	}

	s := &scanner{src: body}

	var instrs []Instruction

	accounts := 0

	for {
		s.skipTrivia()

		if s.eof() {
			break
		}

		if s.hasPrefix("#[") {
			attr, err := s.attribute()
			if err != nil {
				return nil, err
			}

			if strings.HasPrefix(attr, "#[account(") {
				accounts++
			}

			continue
		}

		inst, err := s.variant()
		if err != nil {
			return nil, err
		}

		if !slices.Contains(cfg.SkipVariants, inst.Name) {
			if accounts == 0 {
				return nil, fmt.Errorf(
					"no #[account(...)] annotations found for instruction %q",
					inst.Name,
				)
			}

			inst.Accounts = max(accounts, cfg.AccountFloor)
			instrs = append(instrs, inst)
		}

		accounts = 0
	}

	if len(instrs) == 0 {
		return nil, fmt.Errorf(
			"no instruction variants found in enum %s", cfg.EnumName,
		)
	}

	return instrs, nil
}

// enumBody locates the named enum declaration and returns the text
// between its outermost braces, found by a balanced scan so nested
// bodies inside variants do not terminate it early.
func enumBody(src, enumName string) (string, error) {
	marker := "pub enum " + enumName

	idx := 0
	for {
		rel := strings.Index(src[idx:], marker)
		if rel < 0 {
			return "", fmt.Errorf("enum %s not found", enumName)
		}

		idx += rel

		// Reject prefix matches such as FooInstructionV2.
		next := idx + len(marker)
		if next >= len(src) || !isIdentChar(src[next]) {
			break
		}

		idx = next
	}

	open := strings.IndexByte(src[idx:], '{')
	if open < 0 {
		return "", fmt.Errorf("enum %s has no body", enumName)
	}

	open += idx

	depth := 0
	for i := open; i < len(src); i++ {
		switch src[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return src[open+1 : i], nil
			}
		}
	}

	return "", fmt.Errorf("unbalanced braces in enum %s", enumName)
}

// scanner walks enum body text. It only understands the handful of
// constructs the instruction grammar uses.
type scanner struct {
	src string
	pos int
}

func (s *scanner) eof() bool { return s.pos >= len(s.src) }

func (s *scanner) hasPrefix(p string) bool {
	return strings.HasPrefix(s.src[s.pos:], p)
}

// skipTrivia advances past whitespace, variant-separator commas, and
// line, doc, and block comments.
func (s *scanner) skipTrivia() {
	for !s.eof() {
		switch c := s.src[s.pos]; {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == ',':
			s.pos++
		case s.hasPrefix("//"):
			nl := strings.IndexByte(s.src[s.pos:], '\n')
			if nl < 0 {
				s.pos = len(s.src)
			} else {
				s.pos += nl + 1
			}
		case s.hasPrefix("/*"):
			end := strings.Index(s.src[s.pos+2:], "*/")
			if end < 0 {
				s.pos = len(s.src)
			} else {
				s.pos += end + 4
			}
		default:
			return
		}
	}
}

// attribute consumes a #[...] attribute, which may span multiple lines
// and contain string literals, and returns its full text.
func (s *scanner) attribute() (string, error) {
	start := s.pos
	s.pos += 2 // consume "#["

	depth := 1
	for !s.eof() {
		switch s.src[s.pos] {
		case '"':
			if err := s.skipString(); err != nil {
				return "", err
			}

			continue
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				s.pos++

				return s.src[start:s.pos], nil
			}
		}
		s.pos++
	}

	return "", fmt.Errorf("unterminated attribute at offset %d", start)
}

func (s *scanner) skipString() error {
	s.pos++ // opening quote

	for !s.eof() {
		switch s.src[s.pos] {
		case '\\':
			s.pos += 2

			continue
		case '"':
			s.pos++

			return nil
		}
		s.pos++
	}

	return fmt.Errorf("unterminated string literal")
}

// variant consumes one enum variant: an identifier, an optional inline
// field list, and a numeric discriminator.
func (s *scanner) variant() (Instruction, error) {
	name, err := s.identifier()
	if err != nil {
		return Instruction{}, err
	}

	inst := Instruction{Name: name}

	s.skipTrivia()

	if !s.eof() && s.src[s.pos] == '{' {
		fieldsSrc, err := s.braceBlock()
		if err != nil {
			return inst, fmt.Errorf("instruction %s: %w", name, err)
		}

		inst.Args, err = parseFields(fieldsSrc)
		if err != nil {
			return inst, fmt.Errorf("instruction %s: %w", name, err)
		}

		s.skipTrivia()
	}

	if s.eof() || s.src[s.pos] != '=' {
		return inst, fmt.Errorf(
			"instruction %s: missing '=' discriminator", name,
		)
	}

	s.pos++
	s.skipTrivia()

	inst.Discriminator, err = s.number()
	if err != nil {
		return inst, fmt.Errorf("instruction %s: %w", name, err)
	}

	return inst, nil
}

func (s *scanner) identifier() (string, error) {
	start := s.pos
	for !s.eof() && isIdentChar(s.src[s.pos]) {
		s.pos++
	}

	if s.pos == start {
		return "", fmt.Errorf(
			"expected identifier at offset %d", start,
		)
	}

	return s.src[start:s.pos], nil
}

// braceBlock consumes a balanced {...} block and returns its interior.
func (s *scanner) braceBlock() (string, error) {
	start := s.pos

	depth := 0
	for !s.eof() {
		switch s.src[s.pos] {
		case '"':
			if err := s.skipString(); err != nil {
				return "", err
			}

			continue
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				s.pos++

				return s.src[start+1 : s.pos-1], nil
			}
		}
		s.pos++
	}

	return "", fmt.Errorf("unbalanced braces at offset %d", start)
}

func (s *scanner) number() (int, error) {
	start := s.pos
	for !s.eof() && s.src[s.pos] >= '0' && s.src[s.pos] <= '9' {
		s.pos++
	}

	if s.pos == start {
		return 0, fmt.Errorf("expected discriminator at offset %d", start)
	}

	return strconv.Atoi(s.src[start:s.pos])
}

// parseFields parses an inline field list like "order_id: u32, amount:
// u64," into ordered name/type pairs.
func parseFields(src string) ([]Field, error) {
	s := &scanner{src: src}

	var fields []Field

	for {
		s.skipTrivia()

		if s.eof() {
			break
		}

		name, err := s.identifier()
		if err != nil {
			return nil, err
		}

		s.skipTrivia()

		if s.eof() || s.src[s.pos] != ':' {
			return nil, fmt.Errorf("field %s: expected ':'", name)
		}

		s.pos++

		typ, err := s.fieldType()
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}

		fields = append(fields, Field{Name: name, Type: typ})
	}

	return fields, nil
}

// fieldType consumes type text up to the next top-level comma. Angle
// brackets, square brackets, and parentheses nest, so Vec<(u8, u8)>
// style types survive intact.
func (s *scanner) fieldType() (string, error) {
	start := s.pos

	depth := 0
	for !s.eof() {
		switch s.src[s.pos] {
		case '<', '[', '(':
			depth++
		case '>', ']', ')':
			depth--
		case ',':
			if depth == 0 {
				typ := strings.TrimSpace(s.src[start:s.pos])
				s.pos++

				if typ == "" {
					return "", fmt.Errorf("empty type")
				}

				return typ, nil
			}
		}
		s.pos++
	}

	typ := strings.TrimSpace(s.src[start:s.pos])
	if typ == "" {
		return "", fmt.Errorf("missing type")
	}

	return typ, nil
}

func isIdentChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
