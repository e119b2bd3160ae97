package audio

import "fmt"

// SampleQueue 定长的 PCM 采样队列，只由音频线程访问。
// 容量只能在队列为空时通过 Reserve 调整，Push 不会隐式扩容，
// 这样帧边界的计数始终是精确的。
type SampleQueue struct {
	buf  []float32
	read int
}

// NewSampleQueue 创建容量为 capacity 个采样的队列
func NewSampleQueue(capacity int) *SampleQueue {
	if capacity < 0 {
		capacity = 0
	}
	return &SampleQueue{buf: make([]float32, 0, capacity)}
}

// Push 追加采样，超过剩余空间时返回 ErrQueueFull 且不写入任何数据
func (q *SampleQueue) Push(samples []float32) error {
	if len(samples) > q.Free() {
		return fmt.Errorf("%w: need %d, free %d", ErrQueueFull, len(samples), q.Free())
	}
	q.compact()
	q.buf = append(q.buf, samples...)
	return nil
}

// Take 取出并消费 n 个采样，返回的切片归调用方所有
func (q *SampleQueue) Take(n int) ([]float32, error) {
	if n < 0 || q.Available() < n {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrInsufficientData, n, q.Available())
	}
	out := make([]float32, n)
	copy(out, q.buf[q.read:q.read+n])
	q.read += n
	if q.read == len(q.buf) {
		q.buf = q.buf[:0]
		q.read = 0
	}
	return out, nil
}

// Available 未读采样数
func (q *SampleQueue) Available() int {
	return len(q.buf) - q.read
}

// Free 还能写入的采样数
func (q *SampleQueue) Free() int {
	return cap(q.buf) - q.Available()
}

func (q *SampleQueue) Cap() int {
	return cap(q.buf)
}

func (q *SampleQueue) Clear() {
	q.buf = q.buf[:0]
	q.read = 0
}

// Reserve 重新设置容量，仅在队列为空时有效
func (q *SampleQueue) Reserve(capacity int) error {
	if q.Available() != 0 {
		return ErrQueueNotEmpty
	}
	if capacity < 0 {
		capacity = 0
	}
	q.read = 0
	if cap(q.buf) == capacity {
		q.buf = q.buf[:0]
		return nil
	}
	q.buf = make([]float32, 0, capacity)
	return nil
}

// compact 把未读数据移到缓冲区开头
func (q *SampleQueue) compact() {
	if q.read == 0 {
		return
	}
	n := copy(q.buf, q.buf[q.read:])
	q.buf = q.buf[:n]
	q.read = 0
}
