package piper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/iabetor/pipervoice/internal/logger"
)

// InitOptions 是 Initialize 的参数。
type InitOptions struct {
	// UseEspeak 启用 espeak-ng 音素化（piper 语音的默认方式）。
	UseEspeak bool
	// UseGPU 使用 CUDA 推理。
	UseGPU bool
	// EspeakDataDir 指定 espeak-ng-data 目录，为空则依次查找模型目录、ESPEAK_DATA_PATH 和系统目录。
	EspeakDataDir string
	// NumThreads 推理线程数，0 表示 1。
	NumThreads int
	// WorkDir 存放生成的 tokens 文件，为空则创建临时目录并在 Terminate 时删除。
	WorkDir string
}

// DefaultInitOptions 返回默认初始化参数：启用 espeak，使用 CPU。
func DefaultInitOptions() InitOptions {
	return InitOptions{UseEspeak: true}
}

// Session 是进程级的引擎会话。
// 必须先 Initialize 才能加载语音；Terminate 之后不可再使用。
// 所有方法可以并发调用，但同一个 Voice 上的合成会被串行化。
type Session struct {
	mu      sync.Mutex
	runtime Runtime
	state   State

	opts        InitOptions
	dataDir     string
	workDir     string
	ownsWorkDir bool

	voices map[*Voice]struct{}
	nextID int
}

// NewSession 创建一个使用 rt 的会话，初始状态为 Uninitialized。
func NewSession(rt Runtime) *Session {
	return &Session{
		runtime: rt,
		state:   StateUninitialized,
	}
}

// State 返回当前生命周期状态。
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialize 初始化原生运行时。重复初始化或终止后再初始化都会返回生命周期错误。
func (s *Session) Initialize(opts InitOptions) error {
	const op = "Initialize"

	s.mu.Lock()
	defer s.mu.Unlock()

	if !validTransition(s.state, StateInitialized) {
		return transitionError(op, s.state)
	}

	var dataDir string
	if opts.UseEspeak {
		dir, err := resolveEspeakDataDir(opts.EspeakDataDir)
		switch {
		case err == nil:
			dataDir = dir
		case opts.EspeakDataDir != "":
			return newError(op, KindConfig, err)
		default:
			// 模型包通常自带 espeak-ng-data，加载语音时再查找
			logger.Debugf("[piper] 未找到系统 espeak-ng-data，将使用模型目录下的数据: %v", err)
		}
	}

	workDir := opts.WorkDir
	ownsWorkDir := false
	if workDir == "" {
		dir, err := os.MkdirTemp("", "pipervoice-")
		if err != nil {
			return ioError(op, fmt.Errorf("创建工作目录失败: %w", err))
		}
		workDir = dir
		ownsWorkDir = true
	} else if err := os.MkdirAll(workDir, 0755); err != nil {
		return ioError(op, fmt.Errorf("创建工作目录 %s 失败: %w", workDir, err))
	}

	provider := "cpu"
	if opts.UseGPU {
		provider = "cuda"
	}
	if err := s.runtime.Open(RuntimeOptions{Provider: provider, NumThreads: opts.NumThreads}); err != nil {
		if ownsWorkDir {
			_ = os.RemoveAll(workDir)
		}
		return newError(op, KindConfig, fmt.Errorf("初始化 %s 失败: %w", s.runtime.Name(), err))
	}

	s.opts = opts
	s.dataDir = dataDir
	s.workDir = workDir
	s.ownsWorkDir = ownsWorkDir
	s.voices = make(map[*Voice]struct{})
	s.state = StateInitialized

	logger.Infof("[piper] 引擎已初始化 (runtime=%s, espeak=%v, provider=%s, data=%s)",
		s.runtime.Name(), opts.UseEspeak, provider, dataDir)
	return nil
}

// Terminate 释放原生运行时。可以重复调用；未初始化时什么也不做。
// 仍未关闭的语音会被一并释放，之后对它们调用 Close 会返回 ErrTerminated。
func (s *Session) Terminate() error {
	s.mu.Lock()
	if !validTransition(s.state, StateTerminated) {
		s.mu.Unlock()
		return nil
	}
	s.state = StateTerminated
	voices := s.voices
	s.voices = nil
	workDir, ownsWorkDir := s.workDir, s.ownsWorkDir
	s.mu.Unlock()

	if len(voices) > 0 {
		logger.Warnf("[piper] Terminate 时仍有 %d 个语音未关闭，将强制释放", len(voices))
	}
	for v := range voices {
		v.release(true)
	}

	s.runtime.Close()

	if ownsWorkDir {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warnf("[piper] 删除工作目录 %s 失败: %v", workDir, err)
		}
	}

	logger.Info("[piper] 引擎已终止")
	return nil
}

// VoiceOptions 是加载语音的可选参数，nil 表示使用默认说话人。
type VoiceOptions struct {
	// SpeakerIndex 多说话人模型中的说话人序号。
	SpeakerIndex *int
	// SpeakerName 按 speaker_id_map 中的名称选择说话人，SpeakerIndex 非空时忽略。
	SpeakerName string
}

// WithSpeaker 返回指定说话人序号的选项。
func WithSpeaker(index int) *VoiceOptions {
	return &VoiceOptions{SpeakerIndex: &index}
}

// LoadVoice 加载模型文件和配套的 JSON 配置，返回需要调用方 Close 的语音句柄。
func (s *Session) LoadVoice(modelPath, configPath string, opts *VoiceOptions) (*Voice, error) {
	const op = "LoadVoice"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInitialized {
		return nil, transitionError(op, s.state)
	}

	if modelPath == "" {
		return nil, configError(op, "模型路径为空")
	}
	if configPath == "" {
		return nil, configError(op, "模型配置路径为空")
	}
	if err := checkReadableFile(modelPath); err != nil {
		return nil, ioError(op, err)
	}

	cfg, err := LoadVoiceConfig(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.UsesEspeak() && !s.opts.UseEspeak {
		return nil, configError(op, "语音 %s 使用 espeak 音素，但引擎初始化时未启用 espeak", modelPath)
	}

	speaker, err := cfg.ResolveSpeaker(opts)
	if err != nil {
		return nil, newError(op, KindConfig, err)
	}

	s.nextID++
	id := s.nextID

	tokensPath, err := s.resolveTokens(modelPath, cfg, id)
	if err != nil {
		if errors.Is(err, ErrInvalidConfig) {
			return nil, newError(op, KindConfig, err)
		}
		return nil, ioError(op, err)
	}

	spec := ModelSpec{
		ModelPath:   modelPath,
		TokensPath:  tokensPath,
		NoiseScale:  cfg.Inference.NoiseScale,
		NoiseScaleW: cfg.Inference.NoiseW,
		LengthScale: cfg.Inference.LengthScale,
	}
	if cfg.UsesEspeak() {
		dir, err := s.espeakDataDir(modelPath)
		if err != nil {
			return nil, newError(op, KindConfig, err)
		}
		spec.DataDir = dir
	}

	model, err := s.runtime.LoadModel(spec)
	if err != nil {
		return nil, configError(op, "加载模型 %s 失败: %w", modelPath, err)
	}

	if n := model.NumSpeakers(); n > 0 && speaker >= n {
		model.Release()
		return nil, newError(op, KindConfig, fmt.Errorf("%w: 序号 %d 超出模型说话人数 %d", ErrInvalidSpeaker, speaker, n))
	}

	sampleRate := model.SampleRate()
	if sampleRate != cfg.Audio.SampleRate {
		logger.Warnf("[piper] 模型采样率 %d 与配置 %d 不一致，以模型为准", sampleRate, cfg.Audio.SampleRate)
	}

	v := &Voice{
		session:    s,
		model:      model,
		id:         id,
		modelPath:  modelPath,
		config:     cfg,
		sampleRate: sampleRate,
		speaker:    speaker,
	}
	s.voices[v] = struct{}{}

	logger.Infof("[piper] 语音已加载 (id=%d, model=%s, speaker=%d, sample_rate=%d)",
		id, filepath.Base(modelPath), speaker, sampleRate)
	return v, nil
}

// resolveTokens 优先使用模型目录下现成的 tokens.txt，否则由 phoneme_id_map 生成。
func (s *Session) resolveTokens(modelPath string, cfg *VoiceConfig, id int) (string, error) {
	existing := filepath.Join(filepath.Dir(modelPath), "tokens.txt")
	if err := checkReadableFile(existing); err == nil {
		return existing, nil
	}

	base := strings.TrimSuffix(filepath.Base(modelPath), filepath.Ext(modelPath))
	path := filepath.Join(s.workDir, fmt.Sprintf("%s-%d.tokens.txt", base, id))
	if err := cfg.WriteTokens(path); err != nil {
		return "", err
	}
	logger.Debugf("[piper] 已生成 tokens 文件: %s", path)
	return path, nil
}

// espeakDataDir 确定语音使用的 espeak-ng-data 目录。
// 顺序：InitOptions 显式指定的目录、模型目录下的 espeak-ng-data、环境变量或系统目录。
func (s *Session) espeakDataDir(modelPath string) (string, error) {
	if s.opts.EspeakDataDir != "" {
		return s.dataDir, nil
	}
	bundled := filepath.Join(filepath.Dir(modelPath), espeakDataDirName)
	if isEspeakDataDir(bundled) {
		return bundled, nil
	}
	if s.dataDir != "" {
		return s.dataDir, nil
	}
	return "", fmt.Errorf("未找到 espeak-ng-data 目录：%s 下没有，也未设置 %s 或在配置中指定", filepath.Dir(modelPath), espeakDataEnv)
}

// checkInitialized 返回会话是否处于可用状态。
func (s *Session) checkInitialized(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitialized {
		return transitionError(op, s.state)
	}
	return nil
}

// forget 把已关闭的语音从登记表中移除。
func (s *Session) forget(v *Voice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.voices, v)
}

// OpenVoices 返回尚未关闭的语音数量。
func (s *Session) OpenVoices() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.voices)
}

func checkReadableFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("无法读取文件 %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("无法读取文件 %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s 是目录而不是文件", path)
	}
	return nil
}
