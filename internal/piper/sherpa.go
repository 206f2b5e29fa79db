package piper

import (
	"fmt"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// SherpaRuntime 使用 sherpa-onnx 的离线 TTS（VITS/piper 模型）实现 Runtime。
type SherpaRuntime struct {
	opts RuntimeOptions
}

// 确保实现 Runtime 接口
var _ Runtime = (*SherpaRuntime)(nil)

// NewSherpaRuntime 创建 sherpa-onnx 运行时。
func NewSherpaRuntime() *SherpaRuntime {
	return &SherpaRuntime{}
}

// Name 返回运行时名称。
func (r *SherpaRuntime) Name() string {
	return "sherpa-onnx"
}

// Open 记录推理参数。sherpa-onnx 没有进程级初始化，模型各自持有 onnxruntime 会话。
func (r *SherpaRuntime) Open(opts RuntimeOptions) error {
	if opts.NumThreads <= 0 {
		opts.NumThreads = 1
	}
	if opts.Provider == "" {
		opts.Provider = "cpu"
	}
	r.opts = opts
	return nil
}

// LoadModel 创建 sherpa-onnx OfflineTts。
func (r *SherpaRuntime) LoadModel(spec ModelSpec) (Model, error) {
	config := sherpa.OfflineTtsConfig{}

	config.Model.Vits.Model = spec.ModelPath
	config.Model.Vits.Tokens = spec.TokensPath
	config.Model.Vits.DataDir = spec.DataDir
	config.Model.Vits.NoiseScale = spec.NoiseScale
	config.Model.Vits.NoiseScaleW = spec.NoiseScaleW
	config.Model.Vits.LengthScale = spec.LengthScale

	config.Model.NumThreads = r.opts.NumThreads
	config.Model.Provider = r.opts.Provider
	config.Model.Debug = 0

	// 分句由绑定层完成，每次只送入一句
	config.MaxNumSentences = 1

	tts := sherpa.NewOfflineTts(&config)
	if tts == nil {
		return nil, fmt.Errorf("创建离线 TTS 失败，模型路径: %s", spec.ModelPath)
	}
	if tts.SampleRate() <= 0 {
		sherpa.DeleteOfflineTts(tts)
		return nil, fmt.Errorf("模型 %s 的采样率无效: %d", spec.ModelPath, tts.SampleRate())
	}

	return &sherpaModel{tts: tts}, nil
}

// Close 无需释放任何进程级资源。
func (r *SherpaRuntime) Close() {}

// sherpaModel 封装一个 sherpa-onnx OfflineTts 实例。
type sherpaModel struct {
	tts *sherpa.OfflineTts
}

func (m *sherpaModel) SampleRate() int {
	return m.tts.SampleRate()
}

func (m *sherpaModel) NumSpeakers() int {
	return m.tts.NumSpeakers()
}

func (m *sherpaModel) Generate(text string, speaker int) ([]float32, error) {
	audio := m.tts.Generate(text, speaker, 1.0)
	if audio == nil {
		return nil, fmt.Errorf("引擎未返回音频")
	}
	return audio.Samples, nil
}

func (m *sherpaModel) Release() {
	if m.tts != nil {
		sherpa.DeleteOfflineTts(m.tts)
		m.tts = nil
	}
}
