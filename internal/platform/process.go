package platform

import (
	"github.com/shirou/gopsutil/v3/process"
)

// processExe 通过 pid 获取可执行文件路径，失败返回空字符串
func processExe(pid int32) string {
	if pid <= 0 {
		return ""
	}
	p, err := process.NewProcess(pid)
	if err != nil {
		return ""
	}
	exe, err := p.Exe()
	if err != nil {
		return ""
	}
	return exe
}
