package audio

import "errors"

var (
	ErrNoDeviceSelected = errors.New("no recording device selected")
	ErrAlreadyRecording = errors.New("already recording")
	ErrBackendOpen      = errors.New("audio backend failed to open device")
	ErrBackendStart     = errors.New("audio backend failed to start capture")
	ErrBackendRead      = errors.New("audio backend capture read failed")
	ErrInsufficientData = errors.New("not enough samples in queue")
	ErrCodec            = errors.New("voice frame codec failed")

	ErrQueueFull      = errors.New("sample queue is full")
	ErrQueueNotEmpty  = errors.New("sample queue is not empty")
	ErrNotIdle        = errors.New("recording session in progress")
	ErrDeviceNotFound = errors.New("audio device not found")
	ErrInvalidHandle  = errors.New("invalid or released audio handle")
	ErrManagerClosed  = errors.New("audio manager closed")
	ErrNoBackend      = errors.New("no audio backend available")
)
