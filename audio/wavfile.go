package audio

import (
	"errors"
	"fmt"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth  = 16
	wavPCMFormat = 1
)

// WAVRecorder 把原始模式的采样写入 16 位单声道 WAV 文件。
// Write 可以直接作为 RawCallback 使用。
type WAVRecorder struct {
	mu      sync.Mutex
	file    *os.File
	encoder *wav.Encoder
	samples int
	err     error
}

// NewWAVRecorder 创建 WAV 文件，sampleRate <= 0 时使用 TargetSampleRate
func NewWAVRecorder(path string, sampleRate int) (*WAVRecorder, error) {
	if sampleRate <= 0 {
		sampleRate = TargetSampleRate
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create wav file: %w", err)
	}
	return &WAVRecorder{
		file:    file,
		encoder: wav.NewEncoder(file, sampleRate, wavBitDepth, Channels, wavPCMFormat),
	}, nil
}

// Write 追加采样，第一次写入失败后的数据都会被丢弃，错误由 Close 返回
func (w *WAVRecorder) Write(pcm []float32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil || w.encoder == nil {
		return
	}

	data := make([]int, len(pcm))
	for i, s := range Float32ToInt16(pcm) {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: Channels, SampleRate: w.encoder.SampleRate},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}
	if err := w.encoder.Write(buf); err != nil {
		w.err = fmt.Errorf("failed to write wav samples: %w", err)
		return
	}
	w.samples += len(pcm)
}

// Samples 已写入的采样数
func (w *WAVRecorder) Samples() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.samples
}

// Close 写入文件头并关闭文件
func (w *WAVRecorder) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.encoder == nil {
		return w.err
	}

	err := w.err
	if cerr := w.encoder.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("failed to finalize wav file: %w", cerr)
	}
	if cerr := w.file.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("failed to close wav file: %w", cerr)
	}
	w.encoder = nil
	return err
}

// ReadWAV 读取 WAV 文件并合成单声道 float32，返回采样和采样率
func ReadWAV(path string) ([]float32, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open wav file: %w", err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, 0, errors.New("not a valid wav file")
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode wav file: %w", err)
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth <= 0 {
		bitDepth = wavBitDepth
	}
	scale := float32(int64(1) << (bitDepth - 1))
	pcm := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		pcm[i] = float32(s) / scale
	}

	channels := int(decoder.NumChans)
	return DownmixToMono(pcm, channels), int(decoder.SampleRate), nil
}
