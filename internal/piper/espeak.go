package piper

import (
	"fmt"
	"os"
	"path/filepath"
)

// espeakDataEnv 是 espeak-ng 自身识别的数据目录环境变量。
const espeakDataEnv = "ESPEAK_DATA_PATH"

const espeakDataDirName = "espeak-ng-data"

// 常见发行版中 espeak-ng-data 的安装位置。
var espeakDataCandidates = []string{
	"/usr/share/espeak-ng-data",
	"/usr/lib/x86_64-linux-gnu/espeak-ng-data",
	"/usr/lib/aarch64-linux-gnu/espeak-ng-data",
	"/usr/local/share/espeak-ng-data",
	"/opt/homebrew/share/espeak-ng-data",
}

// resolveEspeakDataDir 确定 espeak-ng-data 目录。
// 显式指定时只检查该目录；否则依次尝试环境变量和常见安装位置。
func resolveEspeakDataDir(explicit string) (string, error) {
	if explicit != "" {
		if !isEspeakDataDir(explicit) {
			return "", fmt.Errorf("%s 不是有效的 espeak-ng-data 目录（缺少 phontab）", explicit)
		}
		return explicit, nil
	}

	var candidates []string
	if env := os.Getenv(espeakDataEnv); env != "" {
		// ESPEAK_DATA_PATH 既可能指向数据目录本身，也可能指向其父目录
		candidates = append(candidates, env, filepath.Join(env, espeakDataDirName))
	}
	candidates = append(candidates, espeakDataCandidates...)

	for _, dir := range candidates {
		if isEspeakDataDir(dir) {
			return dir, nil
		}
	}
	return "", fmt.Errorf("未找到 espeak-ng-data 目录，请设置 %s 或在配置中指定", espeakDataEnv)
}

func isEspeakDataDir(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, "phontab"))
	return err == nil && !info.IsDir()
}
