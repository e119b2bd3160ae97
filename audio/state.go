package audio

import "sync/atomic"

// RecordState 录音状态
type RecordState int32

const (
	StateIdle RecordState = iota
	// StateDeferredStart 调用方已请求开始，音频线程尚未打开采集流
	StateDeferredStart
	StateActive
	// StateStopping 正常停止：音频线程会投递剩余的完整帧
	StateStopping
	// StateHalting 立即停止：丢弃剩余数据
	StateHalting
)

func (s RecordState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDeferredStart:
		return "deferred_start"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateHalting:
		return "halting"
	default:
		return "unknown"
	}
}

// recordSession 一次录音会话的不可变参数，随状态一起发布
type recordSession struct {
	id      string
	raw     bool
	onFrame FrameCallback
	onRaw   RawCallback
}

// recordStatus 状态快照，发布后不再修改
type recordStatus struct {
	state   RecordState
	session *recordSession
}

var idleStatus = &recordStatus{state: StateIdle}

// recordStateMachine 单个原子指针上的状态机，所有转换都是 CAS。
//
// 调用方线程只做三种转换：
//
//	Idle -> DeferredStart
//	DeferredStart|Active -> Stopping
//	DeferredStart|Active|Stopping -> Halting
//
// 其余转换只由音频线程完成。优先级 halt > stop > deferred start > active：
// halt 可以覆盖 stop，stop 不能覆盖 halt。
type recordStateMachine struct {
	p atomic.Pointer[recordStatus]
}

func (m *recordStateMachine) current() *recordStatus {
	if s := m.p.Load(); s != nil {
		return s
	}
	return idleStatus
}

func (m *recordStateMachine) Load() RecordState {
	return m.current().state
}

func (m *recordStateMachine) transition(allowed func(RecordState) bool, to RecordState, session *recordSession) (*recordStatus, bool) {
	for {
		raw := m.p.Load()
		cur := raw
		if cur == nil {
			cur = idleStatus
		}
		if !allowed(cur.state) {
			return cur, false
		}
		next := &recordStatus{state: to, session: cur.session}
		if session != nil {
			next.session = session
		}
		if m.p.CompareAndSwap(raw, next) {
			return next, true
		}
	}
}

// requestStart 调用方线程：Idle -> DeferredStart，同时发布会话
func (m *recordStateMachine) requestStart(session *recordSession) bool {
	_, ok := m.transition(func(s RecordState) bool {
		return s == StateIdle
	}, StateDeferredStart, session)
	return ok
}

// requestStop 调用方线程，没有会话或已经在停止时无效果
func (m *recordStateMachine) requestStop() bool {
	_, ok := m.transition(func(s RecordState) bool {
		return s == StateDeferredStart || s == StateActive
	}, StateStopping, nil)
	return ok
}

// requestHalt 调用方线程
func (m *recordStateMachine) requestHalt() bool {
	_, ok := m.transition(func(s RecordState) bool {
		return s != StateIdle && s != StateHalting
	}, StateHalting, nil)
	return ok
}

// activate 音频线程：采集流已打开
func (m *recordStateMachine) activate() bool {
	_, ok := m.transition(func(s RecordState) bool {
		return s == StateDeferredStart
	}, StateActive, nil)
	return ok
}

// reset 音频线程：会话结束。调用方此时最多只能把状态改为 Halting，
// 而会话已经结束，所以直接写 Idle 是安全的。
func (m *recordStateMachine) reset() {
	m.p.Store(idleStatus)
}
