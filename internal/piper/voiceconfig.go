package piper

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// piper 训练脚本写入 .onnx.json 时使用的默认推理参数。
const (
	defaultSampleRate  = 22050
	defaultNoiseScale  = 0.667
	defaultLengthScale = 1.0
	defaultNoiseW      = 0.8
)

// 音素类型。
const (
	PhonemeTypeEspeak = "espeak"
	PhonemeTypeText   = "text"
)

// VoiceConfig 对应 piper 语音模型旁的 JSON 配置文件（*.onnx.json）。
// 只解析驱动引擎所需的字段。
type VoiceConfig struct {
	Audio struct {
		SampleRate int    `json:"sample_rate"`
		Quality    string `json:"quality"`
	} `json:"audio"`
	Espeak struct {
		Voice string `json:"voice"`
	} `json:"espeak"`
	Language struct {
		Code string `json:"code"`
	} `json:"language"`
	Inference struct {
		NoiseScale  float32 `json:"noise_scale"`
		LengthScale float32 `json:"length_scale"`
		NoiseW      float32 `json:"noise_w"`
	} `json:"inference"`
	PhonemeType  string           `json:"phoneme_type"`
	NumSymbols   int              `json:"num_symbols"`
	NumSpeakers  int              `json:"num_speakers"`
	SpeakerIDMap map[string]int   `json:"speaker_id_map"`
	PhonemeIDMap map[string][]int `json:"phoneme_id_map"`
	Dataset      string           `json:"dataset"`
}

// LoadVoiceConfig 读取并校验语音配置文件。
func LoadVoiceConfig(path string) (*VoiceConfig, error) {
	const op = "LoadVoiceConfig"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ioError(op, fmt.Errorf("读取模型配置 %s 失败: %w", path, err))
	}
	cfg, err := parseVoiceConfig(data)
	if err != nil {
		return nil, newError(op, KindConfig, fmt.Errorf("模型配置 %s: %w", path, err))
	}
	return cfg, nil
}

func parseVoiceConfig(data []byte) (*VoiceConfig, error) {
	cfg := &VoiceConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = defaultSampleRate
	}
	if cfg.Inference.NoiseScale == 0 {
		cfg.Inference.NoiseScale = defaultNoiseScale
	}
	if cfg.Inference.LengthScale == 0 {
		cfg.Inference.LengthScale = defaultLengthScale
	}
	if cfg.Inference.NoiseW == 0 {
		cfg.Inference.NoiseW = defaultNoiseW
	}
	if cfg.NumSpeakers == 0 {
		cfg.NumSpeakers = 1
	}
	if cfg.PhonemeType == "" {
		cfg.PhonemeType = PhonemeTypeEspeak
	}

	if cfg.Audio.SampleRate < 0 {
		return nil, fmt.Errorf("%w: audio.sample_rate 必须为正数，当前 %d", ErrInvalidConfig, cfg.Audio.SampleRate)
	}
	if cfg.NumSpeakers < 0 {
		return nil, fmt.Errorf("%w: num_speakers 不能为负数，当前 %d", ErrInvalidConfig, cfg.NumSpeakers)
	}
	if cfg.PhonemeType != PhonemeTypeEspeak && cfg.PhonemeType != PhonemeTypeText {
		return nil, fmt.Errorf("%w: 不支持的 phoneme_type %q", ErrInvalidConfig, cfg.PhonemeType)
	}
	for name, id := range cfg.SpeakerIDMap {
		if id < 0 || id >= cfg.NumSpeakers {
			return nil, fmt.Errorf("%w: 说话人 %q 的序号 %d 超出范围 [0, %d)", ErrInvalidConfig, name, id, cfg.NumSpeakers)
		}
	}
	return cfg, nil
}

// UsesEspeak 返回该语音是否需要 espeak-ng 做音素化。
func (c *VoiceConfig) UsesEspeak() bool {
	return c.PhonemeType == PhonemeTypeEspeak
}

// ResolveSpeaker 根据选项确定说话人序号。
// 未指定时使用 0；同时指定名称和序号时以序号为准。
func (c *VoiceConfig) ResolveSpeaker(opts *VoiceOptions) (int, error) {
	if opts == nil {
		return 0, nil
	}
	if opts.SpeakerIndex != nil {
		idx := *opts.SpeakerIndex
		if idx < 0 || idx >= c.NumSpeakers {
			return 0, fmt.Errorf("%w: 序号 %d 超出范围 [0, %d)", ErrInvalidSpeaker, idx, c.NumSpeakers)
		}
		return idx, nil
	}
	if opts.SpeakerName != "" {
		idx, ok := c.SpeakerIDMap[opts.SpeakerName]
		if !ok {
			return 0, fmt.Errorf("%w: 模型中没有名为 %q 的说话人", ErrInvalidSpeaker, opts.SpeakerName)
		}
		return idx, nil
	}
	return 0, nil
}

// WriteTokens 将 phoneme_id_map 写成引擎使用的 tokens.txt（每行 "符号 序号"，按序号排序）。
func (c *VoiceConfig) WriteTokens(path string) error {
	if len(c.PhonemeIDMap) == 0 {
		return fmt.Errorf("%w: 缺少 phoneme_id_map，无法生成 tokens", ErrInvalidConfig)
	}

	type token struct {
		symbol string
		id     int
	}
	tokens := make([]token, 0, len(c.PhonemeIDMap))
	for symbol, ids := range c.PhonemeIDMap {
		if len(ids) == 0 {
			continue
		}
		tokens = append(tokens, token{symbol: symbol, id: ids[0]})
	}
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].id != tokens[j].id {
			return tokens[i].id < tokens[j].id
		}
		return tokens[i].symbol < tokens[j].symbol
	})

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建 tokens 文件 %s 失败: %w", path, err)
	}
	w := bufio.NewWriter(f)
	for _, t := range tokens {
		if strings.ContainsAny(t.symbol, "\n\r") {
			continue
		}
		fmt.Fprintf(w, "%s %d\n", t.symbol, t.id)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("写入 tokens 文件 %s 失败: %w", path, err)
	}
	return f.Close()
}
