package audio

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hraban/opus"
)

const (
	// DefaultBitrate 语音默认码率
	DefaultBitrate = 32000
	// maxPacketSize OPUS 最大包大小
	maxPacketSize = 4000
	// maxOpusFrameSize 120ms@48kHz，解码缓冲区上限
	maxOpusFrameSize = 5760
)

var (
	_ FrameEncoder = (*OpusEncoder)(nil)
	_ FrameDecoder = (*OpusDecoder)(nil)
)

// OpusDecoder OPUS音频解码器
type OpusDecoder struct {
	decoder    *opus.Decoder
	sampleRate int
	channels   int
	logger     *slog.Logger
}

// NewOpusDecoder 创建新的OPUS解码器
func NewOpusDecoder(sampleRate, channels int, logger *slog.Logger) (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusDecoder{
		decoder:    dec,
		sampleRate: sampleRate,
		channels:   channels,
		logger:     logger,
	}, nil
}

// Decode 解码一帧OPUS数据为 float32 PCM
func (d *OpusDecoder) Decode(data []byte) ([]float32, error) {
	if d.decoder == nil {
		return nil, errors.New("decoder not initialized")
	}

	pcm := make([]float32, maxOpusFrameSize*d.channels)
	n, err := d.decoder.DecodeFloat32(data, pcm)
	if err != nil {
		return nil, fmt.Errorf("%w: opus decode: %v", ErrCodec, err)
	}

	return pcm[:n*d.channels], nil
}

// Close 释放解码器资源
func (d *OpusDecoder) Close() {
	if d.decoder != nil {
		d.decoder = nil
	}
}

// OpusEncoder OPUS音频编码器，只接受 FrameSize 个采样
type OpusEncoder struct {
	encoder    *opus.Encoder
	sampleRate int
	channels   int
	frameSize  int
	logger     *slog.Logger
}

// NewOpusEncoder 创建新的OPUS编码器
func NewOpusEncoder(sampleRate, channels, bitrate int, logger *slog.Logger) (*OpusEncoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	if err := enc.SetBitrate(bitrate); err != nil {
		return nil, fmt.Errorf("failed to set bitrate: %w", err)
	}

	return &OpusEncoder{
		encoder:    enc,
		sampleRate: sampleRate,
		channels:   channels,
		frameSize:  sampleRate * int(ChunkRecordTime.Milliseconds()) / 1000 * channels,
		logger:     logger,
	}, nil
}

// NewVoiceEncoder 按语音帧参数创建编码器
func NewVoiceEncoder(bitrate int, logger *slog.Logger) (*OpusEncoder, error) {
	if bitrate <= 0 {
		bitrate = DefaultBitrate
	}
	return NewOpusEncoder(TargetSampleRate, Channels, bitrate, logger)
}

// Encode 编码一帧PCM数据
func (e *OpusEncoder) Encode(pcm []float32) ([]byte, error) {
	if e.encoder == nil {
		return nil, errors.New("encoder not initialized")
	}
	if len(pcm) != e.frameSize {
		return nil, fmt.Errorf("%w: frame must be %d samples, got %d", ErrCodec, e.frameSize, len(pcm))
	}

	data := make([]byte, maxPacketSize)
	n, err := e.encoder.EncodeFloat32(pcm, data)
	if err != nil {
		return nil, fmt.Errorf("%w: opus encode: %v", ErrCodec, err)
	}

	return data[:n], nil
}

// Close 释放编码器资源
func (e *OpusEncoder) Close() {
	if e.encoder != nil {
		e.encoder = nil
	}
}
