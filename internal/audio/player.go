package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/iabetor/pipervoice/internal/logger"
)

// Player 使用 malgo (miniaudio) 播放合成结果。
type Player struct {
	ctx      *malgo.AllocatedContext
	channels int
	mu       sync.Mutex
	closed   bool
}

// NewPlayer 创建一个新的音频播放实例。
// channels: 输出声道数，单声道样本会复制到每个声道
func NewPlayer(channels int) (*Player, error) {
	if channels < 1 || channels > MaxChannels {
		return nil, fmt.Errorf("%w: 声道数 %d", ErrInvalidFormat, channels)
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("初始化播放上下文失败: %w", err)
	}

	return &Player{
		ctx:      ctx,
		channels: channels,
	}, nil
}

// Play 通过默认扬声器播放 16-bit 单声道样本。
// sampleRate 是播放设备使用的采样率；传入 WAV 头中声明的采样率即可听到变速效果。
// 阻塞直到播放完成或 ctx 被取消。
func (p *Player) Play(ctx context.Context, samples []int16, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}
	if sampleRate <= 0 {
		return fmt.Errorf("%w: 采样率 %d", ErrInvalidFormat, sampleRate)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("播放器已关闭")
	}
	p.mu.Unlock()

	cursor := newPCMCursor(Int16ToBytes(Interleave(samples, p.channels)))
	done := make(chan struct{})

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(p.channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInFrames = 512
	deviceConfig.Periods = 2

	bytesPerFrame := p.channels * 2
	callbacks := malgo.DeviceCallbacks{
		Data: func(outputSamples, inputSamples []byte, frameCount uint32) {
			if cursor.fill(outputSamples[:int(frameCount)*bytesPerFrame]) {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		},
	}

	device, err := malgo.InitDevice(p.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("初始化播放设备失败: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("启动播放设备失败: %w", err)
	}
	defer device.Stop()

	select {
	case <-ctx.Done():
		logger.Info("[audio] 播放被取消")
		return ctx.Err()
	case <-done:
		logger.Debugf("[audio] 播放完成 (%d 个样本, %d Hz)", len(samples), sampleRate)
		return nil
	}
}

// Close 释放所有资源。
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	if p.ctx != nil {
		_ = p.ctx.Uninit()
		p.ctx.Free()
		p.ctx = nil
	}
}

// pcmCursor 按设备回调的节奏依次吐出 PCM 字节。
type pcmCursor struct {
	data []byte
	pos  int
}

func newPCMCursor(data []byte) *pcmCursor {
	return &pcmCursor{data: data}
}

// fill 把下一段数据复制到 out，不足部分填静音。数据已全部交出时返回 true。
func (c *pcmCursor) fill(out []byte) bool {
	n := copy(out, c.data[c.pos:])
	c.pos += n
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	return n == 0 && c.pos >= len(c.data)
}
