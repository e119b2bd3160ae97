package audio

import (
	"encoding/binary"
	"math"
)

// Float32ToBytes float32 PCM 转为小端字节
func Float32ToBytes(pcm []float32) []byte {
	b := make([]byte, len(pcm)*4)
	for i, s := range pcm {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(s))
	}
	return b
}

// BytesToFloat32 小端字节转为 float32 PCM，多余的字节被忽略
func BytesToFloat32(b []byte) []float32 {
	pcm := make([]float32, len(b)/4)
	for i := range pcm {
		pcm[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return pcm
}

// DownmixToMono 交织的多声道采样取平均值合成单声道
func DownmixToMono(pcm []float32, channels int) []float32 {
	if channels <= 1 {
		return pcm
	}
	mono := make([]float32, len(pcm)/channels)
	for i := range mono {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += pcm[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// Int16ToFloat32 16 位整数采样转为 [-1, 1) 浮点
func Int16ToFloat32(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Float32ToInt16 浮点采样转为 16 位整数，超出范围的值被截断
func Float32ToInt16(pcm []float32) []int16 {
	out := make([]int16, len(pcm))
	for i, s := range pcm {
		v := s * 32767.0
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}
