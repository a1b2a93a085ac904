// Copyright 2020 healer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package prog holds the test program representation consumed by the
// execution substrate. Programs are produced by the generation engine,
// which lives outside of this repository; here they are opaque ordered
// call sequences that can be serialized, shipped to the agent process
// and translated into interpreter statements.
package prog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Prog is an ordered sequence of calls. It is immutable for the duration
// of one execution.
type Prog struct {
	Calls []*Call
}

// Call is one target-specific call: a name plus already-rendered argument
// expressions. The substrate never interprets the arguments.
type Call struct {
	Name string
	Args []string
}

// Serialize renders the program in the textual exchange format:
// one call per line, "name(arg1, arg2)".
func (p *Prog) Serialize() []byte {
	buf := new(bytes.Buffer)
	for _, c := range p.Calls {
		fmt.Fprintf(buf, "%v(%v)\n", c.Name, strings.Join(c.Args, ", "))
	}
	return buf.Bytes()
}

// Deserialize parses the textual form produced by Serialize.
func Deserialize(data []byte) (*Prog, error) {
	p := new(Prog)
	s := bufio.NewScanner(bytes.NewReader(data))
	s.Buffer(nil, 1<<20)
	for line := 1; s.Scan(); line++ {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			continue
		}
		call, err := parseCall(text)
		if err != nil {
			return nil, fmt.Errorf("line %v: %w", line, err)
		}
		p.Calls = append(p.Calls, call)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if len(p.Calls) == 0 {
		return nil, fmt.Errorf("empty program")
	}
	return p, nil
}

// ReadFrom reads a serialized program from r until EOF and parses it.
func ReadFrom(r io.Reader) (*Prog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read program: %w", err)
	}
	return Deserialize(data)
}

func parseCall(text string) (*Call, error) {
	open := strings.IndexByte(text, '(')
	if open <= 0 || !strings.HasSuffix(text, ")") {
		return nil, fmt.Errorf("malformed call %q", text)
	}
	call := &Call{Name: text[:open]}
	inner := text[open+1 : len(text)-1]
	if inner != "" {
		for _, arg := range splitArgs(inner) {
			call.Args = append(call.Args, strings.TrimSpace(arg))
		}
	}
	return call, nil
}

// splitArgs splits on top-level commas, leaving commas inside
// brackets/quotes alone (arguments can be array or string literals).
func splitArgs(s string) []string {
	var args []string
	depth := 0
	quoted := false
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case '(', '[', '{':
			if !quoted {
				depth++
			}
		case ')', ']', '}':
			if !quoted {
				depth--
			}
		case ',':
			if !quoted && depth == 0 {
				args = append(args, s[last:i])
				last = i + 1
			}
		}
	}
	return append(args, s[last:])
}

func (p *Prog) String() string {
	return string(p.Serialize())
}
