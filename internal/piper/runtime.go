package piper

// Runtime 抽象原生语音合成运行时。
// Session 持有唯一的 Runtime，Open/Close 与 Initialize/Terminate 一一对应。
type Runtime interface {
	// Name 返回运行时名称，用于日志。
	Name() string
	// Open 初始化进程级原生状态。
	Open(opts RuntimeOptions) error
	// LoadModel 加载一个语音模型。
	LoadModel(spec ModelSpec) (Model, error)
	// Close 释放进程级原生状态。调用前所有 Model 必须已释放。
	Close()
}

// RuntimeOptions 是初始化运行时的参数。
type RuntimeOptions struct {
	Provider   string // "cpu" 或 "cuda"
	NumThreads int
}

// ModelSpec 描述一次模型加载。
type ModelSpec struct {
	ModelPath   string
	TokensPath  string
	DataDir     string // espeak-ng-data 目录，不使用 espeak 时为空
	NoiseScale  float32
	NoiseScaleW float32
	LengthScale float32
}

// Model 是已加载的原生模型句柄。
// 同一个 Model 上的调用必须串行。
type Model interface {
	SampleRate() int
	NumSpeakers() int
	// Generate 合成一段文本，返回 [-1, 1] 范围的 float32 样本。
	Generate(text string, speaker int) ([]float32, error)
	// Release 释放原生内存，只会被调用一次。
	Release()
}
