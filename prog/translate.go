// Copyright 2020 healer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"fmt"
	"strings"

	"github.com/healer-fuzz/healer/sys/targets"
)

// StmtIter lazily renders a program into interpreter statements against a
// target description: one statement per call, in program order. The iterator
// is finite and non-restartable.
type StmtIter struct {
	p   *Prog
	t   *targets.Target
	pos int
}

// Translate returns a statement iterator for p against t.
func Translate(p *Prog, t *targets.Target) *StmtIter {
	return &StmtIter{p: p, t: t}
}

// Next returns the next statement, or "", false after the last one.
func (it *StmtIter) Next() (string, bool) {
	if it.pos >= len(it.p.Calls) {
		return "", false
	}
	c := it.p.Calls[it.pos]
	it.pos++
	return fmt.Sprintf("r%v = %v(%v);", it.pos-1, c.Name, strings.Join(c.Args, ", ")), true
}

// Remaining returns how many statements have not been produced yet.
func (it *StmtIter) Remaining() int {
	return len(it.p.Calls) - it.pos
}
