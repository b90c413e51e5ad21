// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package common

import "testing"

func TestBytesConversion(t *testing.T) {
	bytes := []byte{5}
	hash := BytesToHash(bytes)

	var exp Hash
	exp[31] = 5

	if hash != exp {
		t.Errorf("expected %x got %x", exp, hash)
	}
}

func TestHexToHash(t *testing.T) {
	tests := []struct {
		input string
		want  Hash
	}{
		{"0x0000000000000000000000000000000000000000000000000000000000000001", Hash{31: 1}},
		{"0x01", Hash{31: 1}},
		{"", Hash{}},
	}
	for i, tt := range tests {
		if have := HexToHash(tt.input); have != tt.want {
			t.Errorf("test %d: hash mismatch: have %x, want %x", i, have, tt.want)
		}
	}
}

func TestEmptyHash(t *testing.T) {
	if !EmptyHash(Hash{}) {
		t.Errorf("zero hash not reported empty")
	}
	if EmptyHash(Hash{31: 1}) {
		t.Errorf("non-zero hash reported empty")
	}
}
