package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iabetor/pipervoice/internal/audio"
	"github.com/iabetor/pipervoice/internal/config"
	"github.com/iabetor/pipervoice/internal/database"
	"github.com/iabetor/pipervoice/internal/logger"
	"github.com/iabetor/pipervoice/internal/pipeline"
	"github.com/iabetor/pipervoice/internal/piper"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（可选，环境变量优先）")
	play := flag.Bool("play", false, "合成后通过声卡播放")
	speaker := flag.Int("speaker", -1, "说话人序号，-1 表示使用配置")
	gpu := flag.Bool("gpu", false, "使用 CUDA 推理")
	limit := flag.Int("limit", 20, "history 命令显示的记录数")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "version" {
		fmt.Printf("sherpa-onnx-go %s\n", piper.Version())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *play {
		cfg.Output.Play = true
	}
	if *speaker >= 0 {
		cfg.Voice.Speaker = speaker
	}
	if *gpu {
		cfg.Engine.UseGPU = true
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，当前句合成结束后退出
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在停止...", sig)
		cancel()
	}()

	var code int
	switch args[0] {
	case "init":
		code = cmdInit(cfg)
	case "load":
		code = cmdLoad(cfg)
	case "speak":
		code = cmdSynthesize(ctx, cfg, false)
	case "stream":
		code = cmdSynthesize(ctx, cfg, true)
	case "history":
		code = cmdHistory(cfg, *limit)
	default:
		fmt.Fprintf(os.Stderr, "未知命令: %s\n", args[0])
		printUsage()
		code = 1
	}

	logger.Sync()
	os.Exit(code)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "pipervoice 语音合成工具")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "用法: pipervoice [-config <path>] [-play] [-speaker N] [-gpu] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "命令:")
	fmt.Fprintln(os.Stderr, "  version   显示引擎版本")
	fmt.Fprintln(os.Stderr, "  init      初始化并终止引擎")
	fmt.Fprintln(os.Stderr, "  load      加载并释放语音模型")
	fmt.Fprintln(os.Stderr, "  speak     一次性合成 TEXT_TO_SPEAK 并写入 WAV")
	fmt.Fprintln(os.Stderr, "  stream    按句流式合成 TEXT_TO_SPEAK 并写入 WAV")
	fmt.Fprintln(os.Stderr, "  history   列出最近的合成记录")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "环境变量: VOICE_MODEL, VOICE_MODEL_CONFIG, TEXT_TO_SPEAK, TEXT_SPEED (默认 1.0)")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "模型须为 sherpa-onnx 转换过的 piper 语音（ONNX 元数据含 sample_rate 等字段），")
	fmt.Fprintln(os.Stderr, "原版 piper .onnx 会被引擎拒绝。模型目录下的 espeak-ng-data 会被自动使用。")
}

func cmdInit(cfg *config.Config) int {
	p := pipeline.New(cfg, piper.NewSherpaRuntime())
	if err := p.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "初始化引擎失败: %v\n", err)
		return 1
	}
	if err := p.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "终止引擎失败: %v\n", err)
		return 1
	}
	fmt.Println("引擎初始化和终止成功")
	return 0
}

func cmdLoad(cfg *config.Config) int {
	if err := cfg.Validate(false); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	p := pipeline.New(cfg, piper.NewSherpaRuntime())
	if err := p.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "初始化引擎失败: %v\n", err)
		return 1
	}
	defer p.Close()

	v, err := p.LoadVoice()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载语音失败: %v\n", err)
		return 1
	}
	fmt.Println(pipeline.Describe(v))
	if err := v.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "释放语音失败: %v\n", err)
		return 1
	}
	return 0
}

func cmdSynthesize(ctx context.Context, cfg *config.Config, stream bool) int {
	if err := cfg.Validate(true); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	var opts []pipeline.Option

	if cfg.History.Enabled {
		db, err := openHistory(cfg)
		if err != nil {
			// 历史记录不可用时仍然继续合成
			logger.Warnf("[main] 合成历史不可用: %v", err)
		} else {
			defer db.Close()
			opts = append(opts, pipeline.WithHistory(db))
		}
	}

	if cfg.Output.Play {
		player, err := audio.NewPlayer(cfg.Output.Channels)
		if err != nil {
			logger.Warnf("[main] 初始化播放器失败: %v", err)
		} else {
			defer player.Close()
			opts = append(opts, pipeline.WithPlayer(player))
		}
	}

	p := pipeline.New(cfg, piper.NewSherpaRuntime(), opts...)
	if err := p.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "初始化引擎失败: %v\n", err)
		return 1
	}
	defer p.Close()

	var res *pipeline.Result
	var err error
	if stream {
		res, err = p.Stream(ctx)
	} else {
		res, err = p.Speak(ctx)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "合成已取消")
		} else {
			fmt.Fprintf(os.Stderr, "合成失败 (%s): %v\n", piper.KindOf(err), err)
		}
		return 1
	}

	fmt.Printf("合成了 %d 个样本 (%d 个分块)\n", len(res.Samples), res.Chunks)
	if res.WAVErr != nil {
		fmt.Fprintf(os.Stderr, "写入 WAV 失败: %v\n", res.WAVErr)
	} else {
		fmt.Printf("已写入 %s (声明采样率 %d Hz)\n", res.WAV.Path, res.WAV.DeclaredRate)
	}
	return 0
}

func cmdHistory(cfg *config.Config, limit int) int {
	db, err := openHistory(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "打开合成历史失败: %v\n", err)
		return 1
	}
	defer db.Close()

	list, err := db.ListSyntheses(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "查询合成历史失败: %v\n", err)
		return 1
	}
	if len(list) == 0 {
		fmt.Println("当前没有合成记录。")
		return 0
	}

	fmt.Printf("最近 %d 条合成记录:\n", len(list))
	for _, s := range list {
		fmt.Printf("  %s  %-6s %-28s spk=%d samples=%-7d rate=%d/%d  %q\n",
			s.CreatedAt.Local().Format("2006-01-02 15:04:05"), s.Mode, s.Model, s.Speaker,
			s.NumSamples, s.SampleRate, s.DeclaredRate, truncate(s.Text, 40))
	}
	return 0
}

func openHistory(cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(cfg.History.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
