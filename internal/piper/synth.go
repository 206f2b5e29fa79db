package piper

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/iabetor/pipervoice/internal/audio"
	"github.com/iabetor/pipervoice/internal/logger"
)

// ChunkFunc 接收一段按生成顺序交付的 PCM 分块。返回错误会中止合成。
type ChunkFunc func(chunk []int16) error

// errStopIteration 用于在迭代器被提前终止时结束合成。
var errStopIteration = errors.New("迭代已停止")

// TextToAudio 合成整段文本并返回全部 16-bit 单声道样本。
// 空白文本返回空结果。
func (s *Session) TextToAudio(ctx context.Context, v *Voice, text string) ([]int16, error) {
	var samples []int16
	err := s.TextToAudioStream(ctx, v, text, func(chunk []int16) error {
		samples = append(samples, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return samples, nil
}

// TextToAudioStream 按句合成文本，每合成完一句就同步调用一次 onChunk。
// 分块严格按生成顺序交付，全部交付后才返回。
// ctx 只在句与句之间检查，进行中的原生调用不会被打断。
// onChunk 在持有语音锁的情况下调用，回调内不能关闭该语音。
func (s *Session) TextToAudioStream(ctx context.Context, v *Voice, text string, onChunk ChunkFunc) error {
	const op = "TextToAudio"

	if v == nil {
		return configError(op, "语音为空")
	}
	if onChunk == nil {
		return configError(op, "分块回调为空")
	}
	if err := s.checkInitialized(op); err != nil {
		return err
	}
	if v.session != s {
		return lifecycleError(op, fmt.Errorf("语音 %d 不属于当前会话", v.id))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.usableLocked(op); err != nil {
		return err
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	total := 0
	chunks := 0
	for _, sentence := range sentences {
		if err := ctx.Err(); err != nil {
			return err
		}

		samples, err := v.model.Generate(sentence, v.speaker)
		if err != nil {
			return synthesisError(op, fmt.Errorf("合成 %q 失败: %w", sentence, err))
		}
		if len(samples) == 0 {
			logger.Debugf("[piper] 句子 %q 未产生音频", sentence)
			continue
		}

		chunk := audio.Float32ToInt16(samples)
		total += len(chunk)
		chunks++
		if err := onChunk(chunk); err != nil {
			return fmt.Errorf("[piper] 分块回调失败: %w", err)
		}
	}

	if total == 0 && hasSpeakableText(text) {
		return synthesisError(op, fmt.Errorf("%w: %d 个字符", ErrDegenerateOutput, utf8.RuneCountInString(text)))
	}

	logger.Debugf("[piper] 合成完成: %d 句, %d 个分块, %d 个样本", len(sentences), chunks, total)
	return nil
}

// Chunks 以迭代器形式返回 TextToAudioStream 的分块。
// 迭代出错时最后一次产出 (nil, err)；提前 break 会在当前句结束后终止合成。
// 迭代期间语音处于锁定状态，循环体内不能关闭该语音。
func (s *Session) Chunks(ctx context.Context, v *Voice, text string) iter.Seq2[[]int16, error] {
	return func(yield func([]int16, error) bool) {
		err := s.TextToAudioStream(ctx, v, text, func(chunk []int16) error {
			if !yield(chunk, nil) {
				return errStopIteration
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopIteration) {
			yield(nil, err)
		}
	}
}

// splitSentences 把文本拆成逐句合成的片段。
// 只含标点的片段并入前一句；英文句点后面必须是空白或文本结尾才算句末，避免拆开小数。
func splitSentences(text string) []string {
	var sentences []string
	var pending string
	remaining := text

	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if !hasSpeakableText(s) {
			if n := len(sentences); n > 0 {
				sentences[n-1] += s
			} else {
				pending += s
			}
			return
		}
		sentences = append(sentences, pending+s)
		pending = ""
	}

	for {
		sentence, rest, found := extractSentence(remaining)
		if !found {
			add(remaining)
			break
		}
		add(sentence)
		remaining = rest
	}
	return sentences
}

// extractSentence 尝试从文本中提取第一个完整句子。
func extractSentence(text string) (string, string, bool) {
	for i, r := range text {
		if !isSentenceEnd(text, i, r) {
			continue
		}
		splitAt := i + utf8.RuneLen(r)
		return text[:splitAt], text[splitAt:], true
	}
	return "", text, false
}

func isSentenceEnd(text string, i int, r rune) bool {
	switch r {
	case '。', '！', '？', '；', '\n':
		return true
	case '.', '!', '?', ';':
		next := i + utf8.RuneLen(r)
		if next >= len(text) {
			return true
		}
		nr, _ := utf8.DecodeRuneInString(text[next:])
		return unicode.IsSpace(nr)
	}
	return false
}

// hasSpeakableText 返回文本是否包含字母或数字。
func hasSpeakableText(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}
