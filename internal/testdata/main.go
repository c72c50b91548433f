// Package testdata holds the sequence shipped with the binary.
package testdata

import _ "embed"

// Basics is a short warm-up used when no sequence file is given.
//
//go:embed basics.seq
var Basics []byte
