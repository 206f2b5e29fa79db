package piper

import (
	"sync"

	"github.com/iabetor/pipervoice/internal/logger"
)

// Voice 是已加载的语音模型句柄。必须在 Terminate 之前 Close。
type Voice struct {
	mu      sync.Mutex
	session *Session
	model   Model

	id         int
	modelPath  string
	config     *VoiceConfig
	sampleRate int
	speaker    int

	closed     bool
	terminated bool // 由 Terminate 强制释放
}

// SampleRate 返回输出音频的采样率（Hz），在语音生命周期内不变。
func (v *Voice) SampleRate() int {
	return v.sampleRate
}

// Speaker 返回使用的说话人序号。
func (v *Voice) Speaker() int {
	return v.speaker
}

// NumSpeakers 返回模型配置中的说话人数量。
func (v *Voice) NumSpeakers() int {
	return v.config.NumSpeakers
}

// ModelPath 返回模型文件路径。
func (v *Voice) ModelPath() string {
	return v.modelPath
}

// Language 返回配置中的语言代码，缺省时返回 espeak 语音名。
func (v *Voice) Language() string {
	if v.config.Language.Code != "" {
		return v.config.Language.Code
	}
	return v.config.Espeak.Voice
}

// Close 释放原生模型。重复调用是空操作；
// 如果语音已被 Terminate 强制释放，返回 ErrTerminated。
func (v *Voice) Close() error {
	v.mu.Lock()
	if v.closed {
		terminated := v.terminated
		v.mu.Unlock()
		if terminated {
			return lifecycleError("Close", ErrTerminated)
		}
		return nil
	}
	v.releaseLocked(false)
	v.mu.Unlock()

	v.session.forget(v)
	return nil
}

// release 在持有语音锁的情况下释放模型，等待进行中的合成结束。
func (v *Voice) release(byTerminate bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.closed {
		v.releaseLocked(byTerminate)
	}
}

func (v *Voice) releaseLocked(byTerminate bool) {
	v.model.Release()
	v.model = nil
	v.closed = true
	v.terminated = byTerminate
	logger.Debugf("[piper] 语音已释放 (id=%d, by_terminate=%v)", v.id, byTerminate)
}

// usableLocked 检查语音是否可用，调用方必须持有 v.mu。
func (v *Voice) usableLocked(op string) error {
	if v.closed {
		if v.terminated {
			return lifecycleError(op, ErrTerminated)
		}
		return lifecycleError(op, ErrVoiceClosed)
	}
	return nil
}
