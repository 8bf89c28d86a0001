package videocodec

import "errors"

var (
	errNoFrames     = errors.New("videocodec: empty frame batch")
	errPartialFrame = errors.New("videocodec: decoded byte stream is not a whole number of frames")
)
