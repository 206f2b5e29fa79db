package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/iabetor/pipervoice/internal/database"
	"gopkg.in/yaml.v3"
)

// ErrInvalid 表示缺少必填项或取值非法。
var ErrInvalid = errors.New("配置无效")

// 环境变量，优先级高于配置文件。
const (
	EnvModel       = "VOICE_MODEL"
	EnvModelConfig = "VOICE_MODEL_CONFIG"
	EnvText        = "TEXT_TO_SPEAK"
	EnvSpeed       = "TEXT_SPEED"
)

// Config 是 pipervoice 的顶层配置结构。
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Voice     VoiceConfig     `yaml:"voice"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Output    OutputConfig    `yaml:"output"`
	History   HistoryConfig   `yaml:"history"`
	Log       LogConfig       `yaml:"log"`
}

// EngineConfig 引擎初始化配置。
type EngineConfig struct {
	// UseEspeak 为空时默认启用。
	UseEspeak     *bool  `yaml:"use_espeak"`
	UseGPU        bool   `yaml:"use_gpu"`
	EspeakDataDir string `yaml:"espeak_data_dir"`
	NumThreads    int    `yaml:"num_threads"`
	// WorkDir 存放生成的 tokens 文件，为空则使用临时目录。
	WorkDir string `yaml:"work_dir"`
}

// EspeakEnabled 返回是否启用 espeak 音素化。
func (e EngineConfig) EspeakEnabled() bool {
	return e.UseEspeak == nil || *e.UseEspeak
}

// VoiceConfig 语音模型配置。
type VoiceConfig struct {
	ModelPath  string `yaml:"model_path"`
	ConfigPath string `yaml:"config_path"`
	// Speaker 多说话人模型的说话人序号，为空使用默认说话人。
	Speaker     *int   `yaml:"speaker"`
	SpeakerName string `yaml:"speaker_name"`
}

// SynthesisConfig 合成配置。
type SynthesisConfig struct {
	Text string `yaml:"text"`
	// Speed 播放速度倍率，只改写 WAV 头中的采样率。
	Speed float64 `yaml:"speed"`
}

// OutputConfig 输出配置。
type OutputConfig struct {
	WAVPath       string `yaml:"wav_path"`
	StreamWAVPath string `yaml:"stream_wav_path"`
	Channels      int    `yaml:"channels"`
	// Play 合成完成后通过声卡播放。
	Play bool `yaml:"play"`
}

// HistoryConfig 合成历史记录配置。
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Load 读取 YAML 配置文件并返回 Config。path 为空时只使用默认值。
// 支持 ${VAR_NAME} 形式的环境变量展开，之后再应用 VOICE_MODEL 等环境变量覆盖。
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
		}

		// 展开环境变量，如 ${HOME}
		expanded := os.Expand(string(data), func(key string) string {
			return os.Getenv(key)
		})

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	setDefaults(cfg)
	return cfg, nil
}

// applyEnv 用环境变量覆盖配置文件中的值。
func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvModel); v != "" {
		cfg.Voice.ModelPath = v
	}
	if v := os.Getenv(EnvModelConfig); v != "" {
		cfg.Voice.ConfigPath = v
	}
	if v := os.Getenv(EnvText); v != "" {
		cfg.Synthesis.Text = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSpeed)); v != "" {
		speed, err := ParseSpeed(v)
		if err != nil {
			return err
		}
		cfg.Synthesis.Speed = speed
	}
	return nil
}

// ParseSpeed 解析速度倍率。无法解析时返回 ErrInvalid；是否落在允许的档位由 WAV 写入时决定。
func ParseSpeed(s string) (float64, error) {
	speed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q 不是数字", ErrInvalid, EnvSpeed, s)
	}
	return speed, nil
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Engine.NumThreads == 0 {
		cfg.Engine.NumThreads = 1
	}
	if cfg.Synthesis.Speed == 0 {
		cfg.Synthesis.Speed = 1.0
	}
	if cfg.Output.WAVPath == "" {
		cfg.Output.WAVPath = "test.wav"
	}
	if cfg.Output.StreamWAVPath == "" {
		cfg.Output.StreamWAVPath = "test_stream.wav"
	}
	if cfg.Output.Channels == 0 {
		cfg.Output.Channels = 1
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSize == 0 {
		cfg.Log.MaxSize = 10
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.Log.MaxAge == 0 {
		cfg.Log.MaxAge = 7
	}

	if cfg.History.DBPath == "" {
		cfg.History.DBPath = database.DefaultPath()
	} else if strings.HasPrefix(cfg.History.DBPath, "~/") {
		// Go 不会自动展开 ~，需要手动替换为用户主目录
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.History.DBPath = filepath.Join(home, cfg.History.DBPath[2:])
		}
	}

	cfg.Voice.ModelPath = strings.TrimSpace(cfg.Voice.ModelPath)
	cfg.Voice.ConfigPath = strings.TrimSpace(cfg.Voice.ConfigPath)
}

// Validate 检查必填项。needText 为 true 时要求提供待合成文本。
func (c *Config) Validate(needText bool) error {
	var missing []string
	if c.Voice.ModelPath == "" {
		missing = append(missing, EnvModel)
	}
	if c.Voice.ConfigPath == "" {
		missing = append(missing, EnvModelConfig)
	}
	if needText && strings.TrimSpace(c.Synthesis.Text) == "" {
		missing = append(missing, EnvText)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: 缺少 %s", ErrInvalid, strings.Join(missing, ", "))
	}

	if c.Voice.Speaker != nil && *c.Voice.Speaker < 0 {
		return fmt.Errorf("%w: voice.speaker 不能为负数，当前 %d", ErrInvalid, *c.Voice.Speaker)
	}
	if c.Output.Channels < 1 || c.Output.Channels > 8 {
		return fmt.Errorf("%w: output.channels 必须在 1-8 之间，当前 %d", ErrInvalid, c.Output.Channels)
	}
	if c.Engine.NumThreads < 0 {
		return fmt.Errorf("%w: engine.num_threads 不能为负数，当前 %d", ErrInvalid, c.Engine.NumThreads)
	}
	return nil
}
