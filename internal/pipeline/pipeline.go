package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/iabetor/pipervoice/internal/audio"
	"github.com/iabetor/pipervoice/internal/config"
	"github.com/iabetor/pipervoice/internal/database"
	"github.com/iabetor/pipervoice/internal/logger"
	"github.com/iabetor/pipervoice/internal/piper"
)

// Player 播放合成结果，由 audio.Player 实现。
type Player interface {
	Play(ctx context.Context, samples []int16, sampleRate int) error
}

// Result 是一次合成的结果。
type Result struct {
	// Samples 合成出的全部单声道样本。
	Samples []int16
	// Chunks 流式模式下交付的分块数，单次模式为 1（空结果为 0）。
	Chunks int
	// WAV 写入成功时的文件信息。
	WAV audio.WAVInfo
	// WAVErr 写入 WAV 失败的原因。写入失败不影响合成结果。
	WAVErr error
	// HistoryID 写入历史记录后的记录 ID。
	HistoryID string
	Duration  time.Duration
}

// Pipeline 串联引擎会话、WAV 输出、播放和历史记录。
type Pipeline struct {
	cfg     *config.Config
	session *piper.Session
	history *database.DB
	player  Player
}

// Option 配置 Pipeline 的可选组件。
type Option func(*Pipeline)

// WithHistory 把每次合成写入历史数据库。
func WithHistory(db *database.DB) Option {
	return func(p *Pipeline) { p.history = db }
}

// WithPlayer 在合成完成后播放音频。
func WithPlayer(player Player) Option {
	return func(p *Pipeline) { p.player = player }
}

// New 根据配置创建 Pipeline，rt 为原生运行时。
func New(cfg *config.Config, rt piper.Runtime, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		session: piper.NewSession(rt),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Session 返回底层引擎会话。
func (p *Pipeline) Session() *piper.Session {
	return p.session
}

// Init 按 engine 配置初始化引擎。
func (p *Pipeline) Init() error {
	e := p.cfg.Engine
	return p.session.Initialize(piper.InitOptions{
		UseEspeak:     e.EspeakEnabled(),
		UseGPU:        e.UseGPU,
		EspeakDataDir: e.EspeakDataDir,
		NumThreads:    e.NumThreads,
		WorkDir:       e.WorkDir,
	})
}

// Close 终止引擎会话。
func (p *Pipeline) Close() error {
	return p.session.Terminate()
}

// LoadVoice 按 voice 配置加载语音，调用方负责 Close。
func (p *Pipeline) LoadVoice() (*piper.Voice, error) {
	v := p.cfg.Voice
	var opts *piper.VoiceOptions
	if v.Speaker != nil || v.SpeakerName != "" {
		opts = &piper.VoiceOptions{SpeakerIndex: v.Speaker, SpeakerName: v.SpeakerName}
	}
	return p.session.LoadVoice(v.ModelPath, v.ConfigPath, opts)
}

// Speak 一次性合成配置中的文本并写入 output.wav_path。
func (p *Pipeline) Speak(ctx context.Context) (*Result, error) {
	voice, err := p.LoadVoice()
	if err != nil {
		return nil, err
	}
	defer p.closeVoice(voice)

	start := time.Now()
	samples, err := p.session.TextToAudio(ctx, voice, p.cfg.Synthesis.Text)
	if err != nil {
		return nil, err
	}

	res := &Result{Samples: samples, Duration: time.Since(start)}
	if len(samples) > 0 {
		res.Chunks = 1
	}
	logger.Infof("[pipeline] 合成完成: %d 个样本, 耗时 %v", len(samples), res.Duration)

	path := p.cfg.Output.WAVPath
	res.WAV, res.WAVErr = audio.WriteWAV(path, [][]int16{samples}, voice.SampleRate(), p.wavOptions())
	p.finish(ctx, voice, database.ModeSingle, path, res)
	return res, nil
}

// Stream 按句流式合成配置中的文本，每个分块到达时立即写入 output.stream_wav_path。
// 合成失败时删除已写入的部分文件。
func (p *Pipeline) Stream(ctx context.Context) (*Result, error) {
	voice, err := p.LoadVoice()
	if err != nil {
		return nil, err
	}
	defer p.closeVoice(voice)

	path := p.cfg.Output.StreamWAVPath
	res := &Result{}

	w, wavErr := audio.NewWAVWriter(path, voice.SampleRate(), p.wavOptions())
	if wavErr != nil {
		res.WAVErr = wavErr
	}

	start := time.Now()
	err = p.session.TextToAudioStream(ctx, voice, p.cfg.Synthesis.Text, func(chunk []int16) error {
		res.Chunks++
		res.Samples = append(res.Samples, chunk...)
		logger.Debugf("[pipeline] 收到第 %d 个分块: %d 个样本", res.Chunks, len(chunk))
		if w != nil && res.WAVErr == nil {
			res.WAVErr = w.WriteChunk(chunk)
		}
		return nil
	})
	res.Duration = time.Since(start)

	if w != nil {
		info, closeErr := w.Close()
		if res.WAVErr == nil {
			res.WAV, res.WAVErr = info, closeErr
		}
	}
	if err != nil {
		// 合成中途失败时不保留不完整的 WAV 文件
		if w != nil {
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				logger.Warnf("[pipeline] 删除不完整的 WAV 文件 %s 失败: %v", path, rmErr)
			}
		}
		return nil, err
	}

	logger.Infof("[pipeline] 流式合成完成: %d 个分块, %d 个样本, 耗时 %v", res.Chunks, len(res.Samples), res.Duration)
	p.finish(ctx, voice, database.ModeStream, path, res)
	return res, nil
}

func (p *Pipeline) wavOptions() audio.WAVOptions {
	return audio.WAVOptions{
		Channels: p.cfg.Output.Channels,
		Speed:    p.cfg.Synthesis.Speed,
	}
}

// finish 处理合成后的收尾：报告 WAV 结果、写历史、播放。都不影响合成本身的成败。
func (p *Pipeline) finish(ctx context.Context, voice *piper.Voice, mode, path string, res *Result) {
	if res.WAVErr != nil {
		logger.Errorf("[pipeline] 写入 WAV 失败: %v", res.WAVErr)
	} else {
		logger.Infof("[pipeline] 已写入 %s (%d 个样本, %d 声道, 声明采样率 %d Hz)",
			res.WAV.Path, res.WAV.NumSamples, res.WAV.Channels, res.WAV.DeclaredRate)
	}

	if p.history != nil {
		declared, _ := audio.SpeedRate(voice.SampleRate(), p.cfg.Synthesis.Speed)
		id, err := p.history.RecordSynthesis(&database.Synthesis{
			Mode:         mode,
			Model:        filepath.Base(voice.ModelPath()),
			Speaker:      voice.Speaker(),
			Text:         p.cfg.Synthesis.Text,
			NumSamples:   len(res.Samples),
			Chunks:       res.Chunks,
			SampleRate:   voice.SampleRate(),
			DeclaredRate: declared,
			Speed:        p.cfg.Synthesis.Speed,
			OutputPath:   outputPath(path, res.WAVErr),
			Duration:     res.Duration,
		})
		if err != nil {
			logger.Warnf("[pipeline] 写入合成历史失败: %v", err)
		} else {
			res.HistoryID = id
		}
	}

	if p.player != nil && len(res.Samples) > 0 {
		rate, _ := audio.SpeedRate(voice.SampleRate(), p.cfg.Synthesis.Speed)
		if err := p.player.Play(ctx, res.Samples, rate); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warnf("[pipeline] 播放失败: %v", err)
		}
	}
}

func (p *Pipeline) closeVoice(v *piper.Voice) {
	if err := v.Close(); err != nil {
		logger.Warnf("[pipeline] 关闭语音失败: %v", err)
	}
}

func outputPath(path string, wavErr error) string {
	if wavErr != nil {
		return ""
	}
	return path
}

// Describe 返回语音的简要信息，供 load 命令输出。
func Describe(v *piper.Voice) string {
	return fmt.Sprintf("model=%s language=%s sample_rate=%d speakers=%d speaker=%d",
		filepath.Base(v.ModelPath()), v.Language(), v.SampleRate(), v.NumSpeakers(), v.Speaker())
}
