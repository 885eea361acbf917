//go:build linux

package platform

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// desktopIndex 可执行文件到 .desktop 名称的索引，首次查询时构建
type desktopIndex struct {
	once   sync.Once
	byPath map[string]string
	byBase map[string]string
}

// lookup 按完整路径匹配，其次按文件名匹配
func (i *desktopIndex) lookup(path string) (string, bool) {
	i.once.Do(i.load)

	if name, ok := i.byPath[path]; ok {
		return name, true
	}
	name, ok := i.byBase[filepath.Base(path)]
	return name, ok
}

func (i *desktopIndex) load() {
	i.byPath = make(map[string]string)
	i.byBase = make(map[string]string)

	for _, dir := range desktopDirs() {
		files, _ := filepath.Glob(filepath.Join(dir, "*.desktop"))
		for _, file := range files {
			f, err := os.Open(file)
			if err != nil {
				continue
			}
			name, exec := parseDesktopEntry(f)
			f.Close()

			i.add(name, execBinary(exec))
		}
	}
}

// add 登记一项，先扫描到的目录优先
func (i *desktopIndex) add(name, binary string) {
	if name == "" || binary == "" {
		return
	}
	if filepath.IsAbs(binary) {
		if _, ok := i.byPath[binary]; !ok {
			i.byPath[binary] = name
		}
	}
	base := filepath.Base(binary)
	if _, ok := i.byBase[base]; !ok {
		i.byBase[base] = name
	}
}

// desktopDirs 按 XDG 规范列出 applications 目录，用户目录在前
func desktopDirs() []string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dataHome = filepath.Join(home, ".local", "share")
		}
	}

	dataDirs := os.Getenv("XDG_DATA_DIRS")
	if dataDirs == "" {
		dataDirs = "/usr/local/share:/usr/share"
	}

	var dirs []string
	if dataHome != "" {
		dirs = append(dirs, filepath.Join(dataHome, "applications"))
	}
	for _, dir := range strings.Split(dataDirs, ":") {
		if dir != "" {
			dirs = append(dirs, filepath.Join(dir, "applications"))
		}
	}
	return append(dirs, "/var/lib/flatpak/exports/share/applications")
}

// parseDesktopEntry 读取 [Desktop Entry] 组中的 Name 和 Exec
func parseDesktopEntry(r io.Reader) (name, exec string) {
	inEntry := false
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		if line[0] == '[' {
			inEntry = line == "[Desktop Entry]"
			continue
		}
		if !inEntry {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "Name":
			name = strings.TrimSpace(value)
		case "Exec":
			exec = strings.TrimSpace(value)
		}
	}
	return name, exec
}

// execBinary 取 Exec 命令行中的程序
//
// 跳过 env 和 VAR=value 前缀，去掉引号。
func execBinary(exec string) string {
	for _, field := range strings.Fields(exec) {
		field = strings.Trim(field, `"'`)
		if field == "env" || (strings.Contains(field, "=") && !strings.HasPrefix(field, "/")) {
			continue
		}
		return field
	}
	return ""
}
