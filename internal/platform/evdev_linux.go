//go:build linux

package platform

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"unsafe"

	"github.com/chenyang-zz/shion/pkg/logger"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	procInputDevices = "/proc/bus/input/devices"

	// evRep 位表示设备支持按键自动重复，用来区分真正的键盘和电源键等
	evRep = 0x14
)

// inputEventSize struct input_event 的大小：timeval + type + code + value
var inputEventSize = int(unsafe.Sizeof(syscall.Timeval{})) + 8

// inputDevice /proc/bus/input/devices 中的一个设备
type inputDevice struct {
	Name     string
	Handlers []string
	EV       uint64
}

// eventNode 设备对应的 /dev/input/eventN
func (d inputDevice) eventNode() string {
	for _, h := range d.Handlers {
		if strings.HasPrefix(h, "event") {
			return "/dev/input/" + h
		}
	}
	return ""
}

func (d inputDevice) isKeyboard() bool {
	return d.hasHandler("kbd") && d.EV&(1<<evRep) != 0
}

func (d inputDevice) isMouse() bool {
	for _, h := range d.Handlers {
		if strings.HasPrefix(h, "mouse") {
			return true
		}
	}
	return false
}

func (d inputDevice) hasHandler(name string) bool {
	for _, h := range d.Handlers {
		if h == name {
			return true
		}
	}
	return false
}

// parseInputDevices 解析 /proc/bus/input/devices
func parseInputDevices(r io.Reader) ([]inputDevice, error) {
	var devices []inputDevice
	var cur inputDevice
	var started bool

	flush := func() {
		if started {
			devices = append(devices, cur)
		}
		cur, started = inputDevice{}, false
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		if len(line) < 3 || line[1] != ':' {
			continue
		}
		started = true
		value := strings.TrimSpace(line[2:])

		switch line[0] {
		case 'N':
			cur.Name = strings.Trim(strings.TrimPrefix(value, "Name="), `"`)
		case 'H':
			cur.Handlers = strings.Fields(strings.TrimPrefix(value, "Handlers="))
		case 'B':
			if bits, ok := strings.CutPrefix(value, "EV="); ok {
				cur.EV, _ = strconv.ParseUint(bits, 16, 64)
			}
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse input devices: %w", err)
	}
	return devices, nil
}

// decodeInputEvent 解码一条 input_event，忽略时间戳
func decodeInputEvent(buf []byte) (typ, code uint16, value int32) {
	off := inputEventSize - 8
	typ = binary.NativeEndian.Uint16(buf[off:])
	code = binary.NativeEndian.Uint16(buf[off+2:])
	value = int32(binary.NativeEndian.Uint32(buf[off+4:]))
	return typ, code, value
}

// readInputEvents 持续读取设备直到出错，每条可识别的事件回调一次
func readInputEvents(r io.Reader, fn func(InputEvent)) error {
	buf := make([]byte, inputEventSize*64)
	for {
		n, err := r.Read(buf)
		for off := 0; off+inputEventSize <= n; off += inputEventSize {
			if ev, ok := classifyEvdev(decodeInputEvent(buf[off : off+inputEventSize])); ok {
				fn(ev)
			}
		}
		if err != nil {
			return err
		}
	}
}

// openEvdev 打开所有符合条件的设备并在各自的 goroutine 上读取
//
// Parameters:
//   - match: 设备筛选
//   - accept: 事件筛选
//   - fn: 事件回调，可能在多个 goroutine 上并发调用
func openEvdev(match func(inputDevice) bool, accept func(InputKind) bool, fn func(InputEvent)) (Hook, error) {
	f, err := os.Open(procInputDevices)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHookFailed, err)
	}
	devices, err := parseInputDevices(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHookFailed, err)
	}

	var files []*os.File
	var lastErr error
	for _, device := range devices {
		node := device.eventNode()
		if node == "" || !match(device) {
			continue
		}
		file, err := os.Open(node)
		if err != nil {
			lastErr = err
			continue
		}
		files = append(files, file)
	}

	if len(files) == 0 {
		if lastErr == nil {
			lastErr = errors.New("no matching input device")
		}
		return nil, fmt.Errorf("open evdev: %w: %v", ErrHookFailed, lastErr)
	}

	var wg sync.WaitGroup
	for _, file := range files {
		wg.Add(1)
		go func(file *os.File) {
			defer wg.Done()
			err := readInputEvents(file, func(ev InputEvent) {
				if accept(ev.Kind) {
					fn(ev)
				}
			})
			if !errors.Is(err, os.ErrClosed) {
				logger.Debug("输入设备读取结束", zap.String("device", file.Name()), zap.Error(err))
			}
		}(file)
	}

	return HookFunc(func() error {
		var errs []error
		for _, file := range files {
			errs = append(errs, file.Close())
		}
		wg.Wait()
		return multierr.Combine(errs...)
	}), nil
}
