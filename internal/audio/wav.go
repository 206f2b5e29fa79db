package audio

import (
	"errors"
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// BitDepth 是写入 WAV 文件的固定位深（16-bit signed PCM，小端）。
	BitDepth = 16
	// MaxChannels 是 WAV 输出允许的最大声道数。
	MaxChannels = 8

	// wavFormatPCM 是 WAV fmt 块中的 PCM 格式码。
	wavFormatPCM = 1
)

// ErrInvalidFormat 表示 WAV 输出参数不合法。
var ErrInvalidFormat = errors.New("WAV 参数无效")

// WAVOptions 是 WAV 输出选项。
type WAVOptions struct {
	// Channels 声道数，0 表示单声道。多声道时每个单声道样本会复制到所有声道。
	Channels int
	// Speed 播放速度倍率，0 表示不变。
	// 只改写文件头中声明的采样率，不对样本数据做重采样。
	Speed float64
}

// WAVInfo 描述写入完成的 WAV 文件。
type WAVInfo struct {
	Path         string
	NumSamples   int // 每声道样本数，等于所有分块长度之和
	Channels     int
	SampleRate   int // 样本数据的原始采样率
	DeclaredRate int // 文件头中声明的播放采样率
}

// SpeedRate 计算速度倍率对应的声明采样率。
// 倍率只在 0.25 ~ 1.75 之间且为 0.25 的整数倍时生效，
// 其它取值静默忽略并返回原始采样率。
func SpeedRate(baseRate int, speed float64) (int, bool) {
	if speed > 0.24 && speed < 1.76 && math.Mod(speed*100, 25) == 0 {
		return int(float64(baseRate) * speed), true
	}
	return baseRate, false
}

// WAVWriter 以流式方式把 PCM 分块写入 WAV 文件。
// 分块按 WriteChunk 的调用顺序拼接，Close 时回填文件头中的长度字段。
type WAVWriter struct {
	path       string
	file       *os.File
	enc        *wav.Encoder
	format     *goaudio.Format
	channels   int
	baseRate   int
	declared   int
	numSamples int
	closed     bool
}

// NewWAVWriter 创建目标文件并准备写入。sampleRate 为样本数据的采样率。
func NewWAVWriter(path string, sampleRate int, opts WAVOptions) (*WAVWriter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: 采样率必须为正数，当前 %d", ErrInvalidFormat, sampleRate)
	}
	channels := opts.Channels
	if channels == 0 {
		channels = 1
	}
	if channels < 0 || channels > MaxChannels {
		return nil, fmt.Errorf("%w: 声道数必须在 1 到 %d 之间，当前 %d", ErrInvalidFormat, MaxChannels, channels)
	}

	declared, _ := SpeedRate(sampleRate, opts.Speed)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("创建 WAV 文件 %s 失败: %w", path, err)
	}

	return &WAVWriter{
		path:     path,
		file:     f,
		enc:      wav.NewEncoder(f, declared, BitDepth, channels, wavFormatPCM),
		format:   &goaudio.Format{NumChannels: channels, SampleRate: declared},
		channels: channels,
		baseRate: sampleRate,
		declared: declared,
	}, nil
}

// WriteChunk 追加一个 PCM 分块。空分块被忽略。
func (w *WAVWriter) WriteChunk(chunk []int16) error {
	if w.closed {
		return fmt.Errorf("WAV 文件 %s 已关闭", w.path)
	}
	if len(chunk) == 0 {
		return nil
	}

	frames := Interleave(chunk, w.channels)
	data := make([]int, len(frames))
	for i, s := range frames {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{Format: w.format, Data: data, SourceBitDepth: BitDepth}
	if err := w.enc.Write(buf); err != nil {
		return fmt.Errorf("写入 WAV 文件 %s 失败: %w", w.path, err)
	}
	w.numSamples += len(chunk)
	return nil
}

// NumSamples 返回已写入的每声道样本数。
func (w *WAVWriter) NumSamples() int {
	return w.numSamples
}

// Close 回填文件头并关闭文件。重复调用返回第一次的结果信息。
func (w *WAVWriter) Close() (WAVInfo, error) {
	info := WAVInfo{
		Path:         w.path,
		NumSamples:   w.numSamples,
		Channels:     w.channels,
		SampleRate:   w.baseRate,
		DeclaredRate: w.declared,
	}
	if w.closed {
		return info, nil
	}
	w.closed = true

	var encErr error
	if w.numSamples == 0 {
		// 没有任何样本时也要写出文件头
		encErr = w.enc.Write(&goaudio.IntBuffer{Format: w.format, Data: []int{}, SourceBitDepth: BitDepth})
	}
	if encErr == nil {
		encErr = w.enc.Close()
	}
	closeErr := w.file.Close()
	if encErr != nil {
		return info, fmt.Errorf("写入 WAV 文件头 %s 失败: %w", w.path, encErr)
	}
	if closeErr != nil {
		return info, fmt.Errorf("关闭 WAV 文件 %s 失败: %w", w.path, closeErr)
	}
	return info, nil
}

// WriteWAV 将按顺序排列的 PCM 分块写成一个 WAV 文件。
func WriteWAV(path string, chunks [][]int16, sampleRate int, opts WAVOptions) (WAVInfo, error) {
	w, err := NewWAVWriter(path, sampleRate, opts)
	if err != nil {
		return WAVInfo{}, err
	}
	for _, c := range chunks {
		if err := w.WriteChunk(c); err != nil {
			_, _ = w.Close()
			return WAVInfo{}, err
		}
	}
	return w.Close()
}
