//go:build windows

package platform

import (
	"errors"
	"fmt"
	"runtime"
	"syscall"
	"time"
	"unsafe"

	"github.com/chenyang-zz/shion/pkg/logger"
	"github.com/go-ole/go-ole"
	"go.uber.org/zap"
)

var (
	clsidMMDeviceEnumerator = ole.NewGUID("{BCDE0395-E52F-467C-8E3D-C4579291692E}")
	iidIMMDeviceEnumerator  = ole.NewGUID("{A95664D2-9614-4F35-A746-DE8DB63617E6}")
	iidAudioSessionManager2 = ole.NewGUID("{77AA99A0-1BD6-484F-8BC7-2C654C9A9B6F}")
	iidAudioSessionControl2 = ole.NewGUID("{bfb7ff88-7239-4fc9-8fa2-07c950be9c6d}")
)

const (
	eRender     = 0
	eMultimedia = 1
	clsctxAll   = 0x17
	sFalse      = 1

	// vtable 下标
	vtblRelease                 = 2
	vtblGetDefaultAudioEndpoint = 4
	vtblActivate                = 3
	vtblGetSessionEnumerator    = 5
	vtblGetCount                = 3
	vtblGetSession              = 4
	vtblGetState                = 3
	vtblGetProcessId            = 14
)

// method 取 COM 对象 vtable 中第 index 个函数指针
func method(obj unsafe.Pointer, index int) uintptr {
	vtbl := *(*uintptr)(obj)
	return *(*uintptr)(unsafe.Pointer(vtbl + uintptr(index)*unsafe.Sizeof(uintptr(0))))
}

func release(obj unsafe.Pointer) {
	if obj != nil {
		syscall.SyscallN(method(obj, vtblRelease), uintptr(obj))
	}
}

func hresult(r uintptr) error {
	if int32(r) < 0 {
		return ole.NewError(r)
	}
	return nil
}

// comInit 在当前线程初始化 COM，返回对应的清理函数
func comInit() func() {
	err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED)
	if err == nil {
		return ole.CoUninitialize
	}
	var oleErr *ole.OleError
	if errors.As(err, &oleErr) && oleErr.Code() == sFalse {
		return ole.CoUninitialize
	}
	// 线程已按其他模式初始化，直接使用
	return func() {}
}

// audioSessions 默认输出设备上的 WASAPI 会话枚举
type audioSessions struct {
	enumerator *ole.IUnknown
}

func openAudioSessions() (*audioSessions, error) {
	enumerator, err := ole.CreateInstance(clsidMMDeviceEnumerator, iidIMMDeviceEnumerator)
	if err != nil {
		return nil, fmt.Errorf("create MMDeviceEnumerator: %w", err)
	}
	return &audioSessions{enumerator: enumerator}, nil
}

func (a *audioSessions) Release() {
	a.enumerator.Release()
}

// snapshot 按可执行文件路径汇总会话状态，同一路径任一会话在播放即为 Active
func (a *audioSessions) snapshot() (map[string]AudioState, error) {
	enumerator := unsafe.Pointer(a.enumerator)

	var device unsafe.Pointer
	r, _, _ := syscall.SyscallN(method(enumerator, vtblGetDefaultAudioEndpoint),
		uintptr(enumerator), eRender, eMultimedia, uintptr(unsafe.Pointer(&device)))
	if err := hresult(r); err != nil {
		return nil, fmt.Errorf("GetDefaultAudioEndpoint: %w", err)
	}
	defer release(device)

	var manager unsafe.Pointer
	r, _, _ = syscall.SyscallN(method(device, vtblActivate),
		uintptr(device), uintptr(unsafe.Pointer(iidAudioSessionManager2)), clsctxAll, 0, uintptr(unsafe.Pointer(&manager)))
	if err := hresult(r); err != nil {
		return nil, fmt.Errorf("activate IAudioSessionManager2: %w", err)
	}
	defer release(manager)

	var sessions unsafe.Pointer
	r, _, _ = syscall.SyscallN(method(manager, vtblGetSessionEnumerator),
		uintptr(manager), uintptr(unsafe.Pointer(&sessions)))
	if err := hresult(r); err != nil {
		return nil, fmt.Errorf("GetSessionEnumerator: %w", err)
	}
	defer release(sessions)

	var count int32
	r, _, _ = syscall.SyscallN(method(sessions, vtblGetCount), uintptr(sessions), uintptr(unsafe.Pointer(&count)))
	if err := hresult(r); err != nil {
		return nil, fmt.Errorf("GetCount: %w", err)
	}

	states := make(map[string]AudioState, count)
	for i := int32(0); i < count; i++ {
		state, pid, ok := sessionInfo(sessions, i)
		if !ok || pid == 0 {
			continue
		}
		path := processExe(int32(pid))
		if path == "" {
			continue
		}
		if prev, seen := states[path]; !seen || prev != AudioActive {
			states[path] = state
		}
	}
	return states, nil
}

// sessionInfo 读取第 i 个会话的状态和进程 ID
func sessionInfo(sessions unsafe.Pointer, i int32) (AudioState, uint32, bool) {
	var control unsafe.Pointer
	r, _, _ := syscall.SyscallN(method(sessions, vtblGetSession), uintptr(sessions), uintptr(i), uintptr(unsafe.Pointer(&control)))
	if hresult(r) != nil || control == nil {
		return 0, 0, false
	}
	defer release(control)

	control2, err := (*ole.IUnknown)(control).QueryInterface(iidAudioSessionControl2)
	if err != nil {
		return 0, 0, false
	}
	defer control2.Release()
	c2 := unsafe.Pointer(control2)

	var state int32
	r, _, _ = syscall.SyscallN(method(c2, vtblGetState), uintptr(c2), uintptr(unsafe.Pointer(&state)))
	if hresult(r) != nil {
		return 0, 0, false
	}

	var pid uint32
	r, _, _ = syscall.SyscallN(method(c2, vtblGetProcessId), uintptr(c2), uintptr(unsafe.Pointer(&pid)))
	// 多进程会话返回 AUDCLNT_S_NO_SINGLE_PROCESS（成功码），pid 仍然可用
	if hresult(r) != nil {
		return 0, 0, false
	}

	return AudioState(state), pid, true
}

// WatchAudio 在独立的 COM 线程上轮询音频会话
func (b *windowsBackend) WatchAudio(fn func(AudioEvent)) (Hook, error) {
	stop := make(chan struct{})
	ready := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		uninit := comInit()
		defer uninit()

		sessions, err := openAudioSessions()
		if err != nil {
			ready <- err
			return
		}
		defer sessions.Release()
		ready <- nil

		ticker := time.NewTicker(b.opts.audioPollInterval())
		defer ticker.Stop()

		var prev map[string]AudioState
		for {
			next, err := sessions.snapshot()
			if err != nil {
				logger.Debug("枚举音频会话失败", zap.Error(err))
			} else {
				for _, change := range diffAudioStates(prev, next) {
					fn(change)
				}
				prev = next
				b.setAudioSnapshot(next)
			}

			select {
			case <-ticker.C:
			case <-stop:
				return
			}
		}
	}()

	if err := <-ready; err != nil {
		<-done
		return nil, fmt.Errorf("watch audio sessions: %w: %v", ErrHookFailed, err)
	}

	return HookFunc(func() error {
		close(stop)
		<-done
		b.setAudioSnapshot(nil)
		return nil
	}), nil
}

// AudioSessionActive 优先使用轮询快照，未在监听时现场枚举
func (b *windowsBackend) AudioSessionActive(path string) bool {
	if states, ok := b.audioSnapshot(); ok {
		return states[path] == AudioActive
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	uninit := comInit()
	defer uninit()

	sessions, err := openAudioSessions()
	if err != nil {
		return false
	}
	defer sessions.Release()

	states, err := sessions.snapshot()
	if err != nil {
		return false
	}
	return states[path] == AudioActive
}
