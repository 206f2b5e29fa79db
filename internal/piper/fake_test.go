package piper

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// fakeRuntime 是不依赖原生库的 Runtime，用于测试生命周期和分块约定。
type fakeRuntime struct {
	mu sync.Mutex

	opened   int
	closed   int
	openOpts RuntimeOptions
	openErr  error
	loadErr  error
	specs    []ModelSpec
	models   []*fakeModel

	sampleRate  int
	numSpeakers int
	// generate 为空时按文本长度生成确定性的样本
	generate func(text string, speaker int) ([]float32, error)
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{sampleRate: 22050, numSpeakers: 2}
}

func (r *fakeRuntime) Name() string { return "fake" }

func (r *fakeRuntime) Open(opts RuntimeOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.openErr != nil {
		return r.openErr
	}
	r.opened++
	r.openOpts = opts
	return nil
}

func (r *fakeRuntime) LoadModel(spec ModelSpec) (Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	r.specs = append(r.specs, spec)
	m := &fakeModel{runtime: r, sampleRate: r.sampleRate, numSpeakers: r.numSpeakers}
	r.models = append(r.models, m)
	return m, nil
}

func (r *fakeRuntime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
}

type fakeModel struct {
	runtime     *fakeRuntime
	sampleRate  int
	numSpeakers int
	released    int
	calls       []string
}

func (m *fakeModel) SampleRate() int  { return m.sampleRate }
func (m *fakeModel) NumSpeakers() int { return m.numSpeakers }

func (m *fakeModel) Generate(text string, speaker int) ([]float32, error) {
	m.calls = append(m.calls, text)
	if m.runtime.generate != nil {
		return m.runtime.generate(text, speaker)
	}
	return synthesize(text, speaker), nil
}

func (m *fakeModel) Release() { m.released++ }

// synthesize 每个字节产生 4 个样本，数值由字节和说话人决定。
func synthesize(text string, speaker int) []float32 {
	out := make([]float32, 0, len(text)*4)
	for i := 0; i < len(text); i++ {
		v := float32(int(text[i])%100+speaker) / 200
		out = append(out, v, -v, v/2, 0)
	}
	return out
}

const testVoiceConfig = `{
  "audio": {"sample_rate": 22050, "quality": "medium"},
  "espeak": {"voice": "en-us"},
  "language": {"code": "en_US"},
  "inference": {"noise_scale": 0.5, "length_scale": 1.2, "noise_w": 0.7},
  "phoneme_type": "espeak",
  "num_symbols": 4,
  "num_speakers": 2,
  "speaker_id_map": {"alice": 0, "bob": 1},
  "phoneme_id_map": {"_": [0], "^": [1], "$": [2], " ": [3]}
}`

// voiceFixture 在临时目录中创建模型文件、配置文件和 espeak 数据目录。
type voiceFixture struct {
	dir        string
	modelPath  string
	configPath string
	espeakDir  string
}

func newVoiceFixture(t *testing.T, config string) voiceFixture {
	t.Helper()
	dir := t.TempDir()
	f := voiceFixture{
		dir:        dir,
		modelPath:  filepath.Join(dir, "voice.onnx"),
		configPath: filepath.Join(dir, "voice.onnx.json"),
		espeakDir:  filepath.Join(dir, "espeak-ng-data"),
	}
	if err := os.WriteFile(f.modelPath, []byte("onnx"), 0644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	if err := os.WriteFile(f.configPath, []byte(config), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.MkdirAll(f.espeakDir, 0755); err != nil {
		t.Fatalf("mkdir espeak: %v", err)
	}
	if err := os.WriteFile(filepath.Join(f.espeakDir, "phontab"), []byte{0}, 0644); err != nil {
		t.Fatalf("write phontab: %v", err)
	}
	return f
}

func (f voiceFixture) initOptions(t *testing.T) InitOptions {
	return InitOptions{
		UseEspeak:     true,
		EspeakDataDir: f.espeakDir,
		WorkDir:       filepath.Join(t.TempDir(), "work"),
	}
}

// newTestSession 返回已初始化的会话，测试结束时自动 Terminate。
func newTestSession(t *testing.T) (*Session, *fakeRuntime, voiceFixture) {
	t.Helper()
	rt := newFakeRuntime()
	fx := newVoiceFixture(t, testVoiceConfig)
	s := NewSession(rt)
	if err := s.Initialize(fx.initOptions(t)); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Terminate() })
	return s, rt, fx
}

func requireKind(t *testing.T, err error, kind Kind, target error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if KindOf(err) != kind {
		t.Errorf("expected kind %s, got %s (%v)", kind, KindOf(err), err)
	}
	if target != nil && !errors.Is(err, target) {
		t.Errorf("expected errors.Is(%v), got %v", target, err)
	}
}
