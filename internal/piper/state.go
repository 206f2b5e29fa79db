package piper

// State 表示引擎会话的生命周期状态。
type State int

const (
	// StateUninitialized 尚未调用 Initialize。
	StateUninitialized State = iota
	// StateInitialized 可以加载语音和合成。
	StateInitialized
	// StateTerminated 已释放全局资源，不可再使用。
	StateTerminated
)

var stateNames = [...]string{
	"Uninitialized",
	"Initialized",
	"Terminated",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// validTransition 检查状态转换是否合法：
//
//	Uninitialized → Initialized  （Initialize）
//	Initialized   → Terminated   （Terminate）
//
// Terminated 是终态，不支持再次初始化。未初始化时 Terminate 不改变状态。
func validTransition(from, to State) bool {
	switch from {
	case StateUninitialized:
		return to == StateInitialized
	case StateInitialized:
		return to == StateTerminated
	}
	return false
}

// transitionError 返回从 from 状态执行 op 时对应的生命周期错误。
func transitionError(op string, from State) error {
	switch from {
	case StateUninitialized:
		return lifecycleError(op, ErrNotInitialized)
	case StateInitialized:
		return lifecycleError(op, ErrAlreadyInitialized)
	default:
		return lifecycleError(op, ErrTerminated)
	}
}
