package frameindex

import "errors"

var (
	errTruncatedHeader = errors.New("frameindex: file shorter than the 32-byte header")
	errBadMagic        = errors.New("frameindex: missing MVIX magic")
)
