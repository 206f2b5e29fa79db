package piper

import (
	"errors"
	"fmt"
)

// Kind 区分错误类别，调用方据此判断是生命周期误用还是输入有误。
type Kind int

const (
	// KindUnknown 未归类的错误。
	KindUnknown Kind = iota
	// KindLifecycle 在 Initialize 之前或 Terminate 之后调用，或使用已关闭的语音。
	KindLifecycle
	// KindConfig 参数缺失或非法（路径、说话人序号、模型配置）。
	KindConfig
	// KindIO 文件不存在、不可读或不可写。
	KindIO
	// KindSynthesis 引擎拒绝输入或输出退化。
	KindSynthesis
)

var kindNames = [...]string{
	"unknown",
	"lifecycle",
	"config",
	"io",
	"synthesis",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

var (
	// ErrNotInitialized 引擎尚未初始化。
	ErrNotInitialized = errors.New("引擎未初始化")
	// ErrAlreadyInitialized 引擎已经初始化。
	ErrAlreadyInitialized = errors.New("引擎已初始化")
	// ErrTerminated 引擎已终止，不支持再次初始化。
	ErrTerminated = errors.New("引擎已终止")
	// ErrVoiceClosed 语音已释放。
	ErrVoiceClosed = errors.New("语音已关闭")
	// ErrInvalidSpeaker 说话人序号或名称不在模型的说话人表中。
	ErrInvalidSpeaker = errors.New("说话人无效")
	// ErrInvalidConfig 模型配置文件内容非法。
	ErrInvalidConfig = errors.New("模型配置无效")
	// ErrDegenerateOutput 非空文本合成出零长度音频。
	ErrDegenerateOutput = errors.New("合成结果为空")
)

// Error 是绑定层返回的错误，携带操作名和错误类别。
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("[piper] %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf 返回 err 链中第一个 *Error 的类别。
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

func newError(op string, kind Kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func lifecycleError(op string, err error) error {
	return newError(op, KindLifecycle, err)
}

func configError(op string, format string, args ...interface{}) error {
	return newError(op, KindConfig, fmt.Errorf(format, args...))
}

func ioError(op string, err error) error {
	return newError(op, KindIO, err)
}

func synthesisError(op string, err error) error {
	return newError(op, KindSynthesis, err)
}
