package qr

import "errors"

var (
	errNoFrames                = errors.New("qr: no frames to decode")
	errShortFrame              = errors.New("qr: frame body shorter than its envelope")
	errCRCMismatch             = errors.New("qr: frame crc32 mismatch")
	errMixedChunks             = errors.New("qr: frames belong to different chunk sets")
	errIncompleteChunks        = errors.New("qr: missing one or more chunks")
	errPersistentDecodeFailure = errors.New("qr: decode failed after binarization retry")
)
