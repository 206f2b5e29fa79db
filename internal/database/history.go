package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// 合成方式。
const (
	ModeSingle = "single"
	ModeStream = "stream"
)

// Synthesis 是一次合成的记录。
type Synthesis struct {
	ID           string
	Mode         string
	Model        string
	Speaker      int
	Text         string
	NumSamples   int
	Chunks       int
	SampleRate   int
	DeclaredRate int
	Speed        float64
	OutputPath   string
	Duration     time.Duration
	CreatedAt    time.Time
}

// RecordSynthesis 写入一条合成记录，ID 为空时自动生成。返回记录 ID。
func (db *DB) RecordSynthesis(s *Synthesis) (string, error) {
	if s.Mode != ModeSingle && s.Mode != ModeStream {
		return "", fmt.Errorf("未知的合成方式 %q", s.Mode)
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	_, err := db.Exec(`INSERT INTO synthesis_history
		(id, mode, model, speaker, text, num_samples, chunks, sample_rate, declared_rate, speed, output_path, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Mode, s.Model, s.Speaker, s.Text, s.NumSamples, s.Chunks,
		s.SampleRate, s.DeclaredRate, s.Speed, s.OutputPath, s.Duration.Milliseconds(), s.CreatedAt.UTC())
	if err != nil {
		return "", fmt.Errorf("写入合成记录失败: %w", err)
	}
	return s.ID, nil
}

// ListSyntheses 按时间倒序返回最近的 limit 条记录，limit <= 0 时返回全部。
func (db *DB) ListSyntheses(limit int) ([]Synthesis, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`SELECT id, mode, model, speaker, text, num_samples, chunks,
		sample_rate, declared_rate, speed, output_path, duration_ms, created_at
		FROM synthesis_history ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询合成记录失败: %w", err)
	}
	defer rows.Close()

	var list []Synthesis
	for rows.Next() {
		var s Synthesis
		var durationMs int64
		if err := rows.Scan(&s.ID, &s.Mode, &s.Model, &s.Speaker, &s.Text, &s.NumSamples, &s.Chunks,
			&s.SampleRate, &s.DeclaredRate, &s.Speed, &s.OutputPath, &durationMs, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("读取合成记录失败: %w", err)
		}
		s.Duration = time.Duration(durationMs) * time.Millisecond
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历合成记录失败: %w", err)
	}
	return list, nil
}

// ErrNotFound 记录不存在。
var ErrNotFound = errors.New("记录不存在")

// GetSynthesis 按 ID 查询记录。
func (db *DB) GetSynthesis(id string) (*Synthesis, error) {
	var s Synthesis
	var durationMs int64
	err := db.QueryRow(`SELECT id, mode, model, speaker, text, num_samples, chunks,
		sample_rate, declared_rate, speed, output_path, duration_ms, created_at
		FROM synthesis_history WHERE id = ?`, id).Scan(&s.ID, &s.Mode, &s.Model, &s.Speaker, &s.Text,
		&s.NumSamples, &s.Chunks, &s.SampleRate, &s.DeclaredRate, &s.Speed, &s.OutputPath, &durationMs, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("查询合成记录失败: %w", err)
	}
	s.Duration = time.Duration(durationMs) * time.Millisecond
	return &s, nil
}

// CountSyntheses 返回记录总数。
func (db *DB) CountSyntheses() (int, error) {
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM synthesis_history").Scan(&n); err != nil {
		return 0, fmt.Errorf("统计合成记录失败: %w", err)
	}
	return n, nil
}
