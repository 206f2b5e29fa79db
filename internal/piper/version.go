package piper

import "runtime/debug"

const sherpaModulePath = "github.com/k2-fsa/sherpa-onnx-go"

// Version 返回链接进当前程序的 sherpa-onnx-go 版本，无法确定时返回 "unknown"。
func Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path != sherpaModulePath {
			continue
		}
		if dep.Replace != nil && dep.Replace.Version != "" {
			return dep.Replace.Version
		}
		if dep.Version != "" {
			return dep.Version
		}
	}
	return "unknown"
}
