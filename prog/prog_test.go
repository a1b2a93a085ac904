// Copyright 2020 healer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/healer-fuzz/healer/sys/targets"
)

func TestSerializeRoundTrip(t *testing.T) {
	p := &Prog{Calls: []*Call{
		{Name: "open", Args: []string{`"/dev/null"`, "0x2"}},
		{Name: "mmap", Args: []string{"0", "0x1000", "3", "0x32", "-1", "0"}},
		{Name: "close", Args: nil},
	}}
	got, err := Deserialize(p.Serialize())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(p, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%v", diff)
	}
}

func TestDeserializeErrors(t *testing.T) {
	for _, input := range []string{
		"",
		"\n\n",
		"no parens",
		"unclosed(",
		"(args)",
	} {
		_, err := Deserialize([]byte(input))
		assert.Error(t, err, "input %q", input)
	}
}

func TestNestedArgs(t *testing.T) {
	p, err := Deserialize([]byte(`write(1, {0x1, "a,b", [2, 3]}, 8)`))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"1", `{0x1, "a,b", [2, 3]}`, "8"}
	assert.Equal(t, want, p.Calls[0].Args)
}

func TestTranslateOrder(t *testing.T) {
	p := &Prog{Calls: []*Call{
		{Name: "getpid"},
		{Name: "close", Args: []string{"1"}},
	}}
	it := Translate(p, targets.Get("linux", "amd64"))
	var stmts []string
	for {
		stmt, ok := it.Next()
		if !ok {
			break
		}
		stmts = append(stmts, stmt)
	}
	assert.Equal(t, []string{
		"r0 = getpid();",
		"r1 = close(1);",
	}, stmts)
	// The iterator is not restartable.
	_, ok := it.Next()
	assert.False(t, ok)
	assert.Equal(t, 0, it.Remaining())
}
