// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tosmole_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/R-Hidayatullah/tosmole"
)

func TestRawStringWindows1252Decoding(t *testing.T) {
	c := qt.New(t)

	// 0xE9 is 'é' in Windows-1252 but not valid standalone UTF-8.
	s := tosmole.RawString{Bytes: []byte{'c', 0xE9}}
	c.Assert(s.String(), qt.Equals, "cé")
}

func TestRawStringEmpty(t *testing.T) {
	c := qt.New(t)

	var s tosmole.RawString
	c.Assert(s.String(), qt.Equals, "")
}
