package core

import "sync"

// turnController 半双工控制：上行语音和下行播放不能同时进行
type turnController struct {
	mu          sync.Mutex
	isSending   bool
	isReceiving bool
}

func (c *turnController) StartSending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isReceiving {
		return false
	}

	c.isSending = true
	return true
}

func (c *turnController) StopSending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isSending = false
}

// StartReceiving 服务端开始说话时调用，会抢占上行
func (c *turnController) StartReceiving() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isSending = false
	c.isReceiving = true
}

func (c *turnController) StopReceiving() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isReceiving = false
}

func (c *turnController) IsSending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isSending
}

func (c *turnController) IsReceiving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isReceiving
}

func (c *turnController) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isSending = false
	c.isReceiving = false
}
