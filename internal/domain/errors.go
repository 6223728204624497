package domain

import "errors"

var (
	ErrDeviceUnavailable  = errors.New("device unavailable")
	ErrSampleRateMismatch = errors.New("sample rate not supported by device")
	ErrTooManyChannels    = errors.New("device does not support the requested channel count")
	ErrResampling         = errors.New("resampling failed")
	ErrBufferShape        = errors.New("buffer shape mismatch")
	ErrUnknownChannel     = errors.New("unknown channel")
	ErrUnknownBus         = errors.New("unknown bus")
	ErrUnknownClip        = errors.New("unknown clip")
	ErrNoDevice           = errors.New("no device bound")
	ErrUnsupportedFormat  = errors.New("unsupported audio format")
	ErrWrongKind          = errors.New("operation not supported by channel kind")
)
