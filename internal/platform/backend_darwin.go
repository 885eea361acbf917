//go:build darwin

package platform

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreGraphics -framework Cocoa -framework ApplicationServices

#include <CoreFoundation/CoreFoundation.h>
#include <CoreGraphics/CoreGraphics.h>
#include <Cocoa/Cocoa.h>
#include <stdlib.h>
#include <string.h>

void goAppActivated(int pid);
void goInputEvent(int tap, int kind, int code);

// 与 Go 侧 InputKind 保持一致
enum { kindKey = 0, kindMove = 1, kindButton = 2, kindWheel = 3 };

static CFMachPortRef taps[2];

static CGEventRef tapCallback(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *refcon) {
    int tap = (int)(intptr_t)refcon;

    // 回调超时被系统禁用后重新启用
    if (type == kCGEventTapDisabledByTimeout || type == kCGEventTapDisabledByUserInput) {
        if (taps[tap] != NULL) {
            CGEventTapEnable(taps[tap], true);
        }
        return event;
    }

    switch (type) {
    case kCGEventKeyDown:
    case kCGEventKeyUp:
    case kCGEventFlagsChanged:
        goInputEvent(tap, kindKey, (int)CGEventGetIntegerValueField(event, kCGKeyboardEventKeycode));
        break;
    case kCGEventMouseMoved:
    case kCGEventLeftMouseDragged:
    case kCGEventRightMouseDragged:
        goInputEvent(tap, kindMove, (int)type);
        break;
    case kCGEventScrollWheel:
        goInputEvent(tap, kindWheel, (int)type);
        break;
    default:
        goInputEvent(tap, kindButton, (int)type);
        break;
    }
    return event;
}

// createTap 在当前线程的 run loop 上创建只监听的 event tap
// tap: 0 键盘，1 鼠标
static int createTap(int tap) {
    CGEventMask mask;
    if (tap == 0) {
        mask = CGEventMaskBit(kCGEventKeyDown) | CGEventMaskBit(kCGEventKeyUp) | CGEventMaskBit(kCGEventFlagsChanged);
    } else {
        mask = CGEventMaskBit(kCGEventMouseMoved) |
            CGEventMaskBit(kCGEventLeftMouseDown) | CGEventMaskBit(kCGEventLeftMouseUp) |
            CGEventMaskBit(kCGEventRightMouseDown) | CGEventMaskBit(kCGEventRightMouseUp) |
            CGEventMaskBit(kCGEventOtherMouseDown) | CGEventMaskBit(kCGEventOtherMouseUp) |
            CGEventMaskBit(kCGEventLeftMouseDragged) | CGEventMaskBit(kCGEventRightMouseDragged) |
            CGEventMaskBit(kCGEventScrollWheel);
    }

    CFMachPortRef port = CGEventTapCreate(kCGSessionEventTap, kCGHeadInsertEventTap,
        kCGEventTapOptionListenOnly, mask, tapCallback, (void *)(intptr_t)tap);
    if (port == NULL) {
        return 0;
    }

    CFRunLoopSourceRef src = CFMachPortCreateRunLoopSource(NULL, port, 0);
    CFRunLoopAddSource(CFRunLoopGetCurrent(), src, kCFRunLoopCommonModes);
    CFRelease(src);
    CGEventTapEnable(port, true);

    taps[tap] = port;
    return 1;
}

static void destroyTap(int tap) {
    if (taps[tap] != NULL) {
        CGEventTapEnable(taps[tap], false);
        CFMachPortInvalidate(taps[tap]);
        CFRelease(taps[tap]);
        taps[tap] = NULL;
    }
}

static void *addActivationObserver(void) {
    NSNotificationCenter *center = [[NSWorkspace sharedWorkspace] notificationCenter];
    id observer = [center addObserverForName:NSWorkspaceDidActivateApplicationNotification
        object:nil
        queue:nil
        usingBlock:^(NSNotification *note) {
            NSRunningApplication *app = note.userInfo[NSWorkspaceApplicationKey];
            if (app != nil) {
                goAppActivated((int)app.processIdentifier);
            }
        }];
    return (__bridge_retained void *)observer;
}

static void removeActivationObserver(void *observer) {
    if (observer == NULL) {
        return;
    }
    id obs = (__bridge_transfer id)observer;
    [[[NSWorkspace sharedWorkspace] notificationCenter] removeObserver:obs];
}

static void runLoopOnce(void) {
    CFRunLoopRunInMode(kCFRunLoopDefaultMode, 0.1, false);
}

static int frontmostPID(void) {
    NSRunningApplication *app = [NSWorkspace sharedWorkspace].frontmostApplication;
    if (app == nil) {
        return 0;
    }
    return (int)app.processIdentifier;
}

// windowTitle 通过辅助功能 API 读取应用焦点窗口的标题，调用者负责 free
static char *windowTitle(int pid) {
    AXUIElementRef appElement = AXUIElementCreateApplication((pid_t)pid);
    if (appElement == NULL) {
        return NULL;
    }

    AXUIElementRef window = NULL;
    if (AXUIElementCopyAttributeValue(appElement, kAXFocusedWindowAttribute, (CFTypeRef *)&window) != kAXErrorSuccess || window == NULL) {
        CFRelease(appElement);
        return NULL;
    }

    CFStringRef title = NULL;
    AXError err = AXUIElementCopyAttributeValue(window, kAXTitleAttribute, (CFTypeRef *)&title);
    CFRelease(window);
    CFRelease(appElement);
    if (err != kAXErrorSuccess || title == NULL) {
        return NULL;
    }

    char *result = strdup([(__bridge NSString *)title UTF8String]);
    CFRelease(title);
    return result;
}

// displayName 读取 .app 包的显示名称，调用者负责 free
static char *displayName(const char *bundlePath) {
    @autoreleasepool {
        NSString *path = [NSString stringWithUTF8String:bundlePath];
        NSBundle *bundle = [NSBundle bundleWithPath:path];
        NSString *name = [bundle objectForInfoDictionaryKey:@"CFBundleDisplayName"];
        if (name == nil) {
            name = [bundle objectForInfoDictionaryKey:@"CFBundleName"];
        }
        if (name == nil) {
            return NULL;
        }
        return strdup([name UTF8String]);
    }
}

// fileIconPNG 获取文件在 Finder 中显示的图标并编码为 PNG，调用者负责 free
static void *fileIconPNG(const char *filePath, int size, int *length) {
    @autoreleasepool {
        NSString *path = [NSString stringWithUTF8String:filePath];
        NSImage *icon = [[NSWorkspace sharedWorkspace] iconForFile:path];
        if (icon == nil) {
            return NULL;
        }

        NSRect rect = NSMakeRect(0, 0, size, size);
        CGImageRef cg = [icon CGImageForProposedRect:&rect context:nil hints:nil];
        if (cg == NULL) {
            return NULL;
        }
        NSBitmapImageRep *rep = [[NSBitmapImageRep alloc] initWithCGImage:cg];
        NSData *data = [rep representationUsingType:NSBitmapImageFileTypePNG properties:@{}];
        if (data == nil || data.length == 0) {
            return NULL;
        }

        void *buf = malloc(data.length);
        memcpy(buf, data.bytes, data.length);
        *length = (int)data.length;
        return buf;
    }
}
*/
import "C"
import (
	"bytes"
	"fmt"
	"image/png"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"
)

const (
	darwinTapKeyboard = 0
	darwinTapMouse    = 1
)

// darwinBackend NSWorkspace + CGEventTap 实现
//
// macOS 上没有跨进程的窗口事件，前台切换来自 NSWorkspace 的应用激活通知，
// Handle 是被激活应用的 pid。标题变化没有对应通知，因此不会产生 WindowNameChange。
type darwinBackend struct {
	opts Options

	mu       sync.RWMutex
	onWindow func(WindowEvent)
	onInput  [2]func(InputEvent)
}

// activeBackend C 回调转发的目标
var activeBackend atomic.Pointer[darwinBackend]

// New 创建当前平台的后端
func New(opts Options) Backend {
	b := &darwinBackend{opts: opts}
	activeBackend.Store(b)
	return b
}

//export goAppActivated
func goAppActivated(pid C.int) {
	b := activeBackend.Load()
	if b == nil {
		return
	}
	b.mu.RLock()
	fn := b.onWindow
	b.mu.RUnlock()
	if fn != nil {
		fn(WindowEvent{Kind: WindowForeground, Handle: Handle(pid), Object: ObjectWindow})
	}
}

//export goInputEvent
func goInputEvent(tap, kind, code C.int) {
	b := activeBackend.Load()
	if b == nil || tap < 0 || tap > 1 {
		return
	}
	b.mu.RLock()
	fn := b.onInput[tap]
	b.mu.RUnlock()
	if fn != nil {
		fn(InputEvent{Kind: InputKind(kind), Code: uint32(code)})
	}
}

func (b *darwinBackend) WindowTitle(h Handle) (string, bool) {
	cstr := C.windowTitle(C.int(h))
	if cstr == nil {
		return "", false
	}
	defer C.free(unsafe.Pointer(cstr))

	title := C.GoString(cstr)
	return title, title != ""
}

func (b *darwinBackend) ProcessPath(h Handle) (string, bool) {
	path := processExe(int32(h))
	return path, path != ""
}

// Description 读取可执行文件所在 .app 包的显示名称
func (b *darwinBackend) Description(path string) (string, bool) {
	bundle := appBundle(path)
	if bundle == "" {
		return "", false
	}

	cpath := C.CString(bundle)
	defer C.free(unsafe.Pointer(cpath))

	cstr := C.displayName(cpath)
	if cstr == nil {
		return "", false
	}
	defer C.free(unsafe.Pointer(cstr))

	name := C.GoString(cstr)
	return name, name != ""
}

func (b *darwinBackend) Icon(path string, size int) ([]byte, bool) {
	target := path
	if bundle := appBundle(path); bundle != "" {
		target = bundle
	}

	cpath := C.CString(target)
	defer C.free(unsafe.Pointer(cpath))

	var length C.int
	buf := C.fileIconPNG(cpath, C.int(size), &length)
	if buf == nil {
		return nil, false
	}
	defer C.free(buf)

	img, err := png.Decode(bytes.NewReader(C.GoBytes(buf, length)))
	if err != nil {
		return nil, false
	}
	data, err := EncodeIcon(img, size)
	if err != nil {
		return nil, false
	}
	return data, true
}

// AudioSessionActive macOS 没有公开的按进程音频会话接口
func (b *darwinBackend) AudioSessionActive(string) bool {
	return false
}

func (b *darwinBackend) FocusedWindow() (Handle, bool) {
	pid := C.frontmostPID()
	return Handle(pid), pid > 0
}

func (b *darwinBackend) HookWindow(fn func(WindowEvent)) (Hook, error) {
	b.mu.Lock()
	b.onWindow = fn
	b.mu.Unlock()

	observer := C.addActivationObserver()
	if observer == nil {
		b.clearWindow()
		return nil, fmt.Errorf("add activation observer: %w", ErrHookFailed)
	}

	return HookFunc(func() error {
		C.removeActivationObserver(observer)
		b.clearWindow()
		return nil
	}), nil
}

func (b *darwinBackend) clearWindow() {
	b.mu.Lock()
	b.onWindow = nil
	b.mu.Unlock()
}

func (b *darwinBackend) HookKeyboard(fn func(InputEvent)) (Hook, error) {
	return b.installTap(darwinTapKeyboard, fn)
}

func (b *darwinBackend) HookMouse(fn func(InputEvent)) (Hook, error) {
	return b.installTap(darwinTapMouse, fn)
}

// installTap 创建失败通常是因为缺少辅助功能或输入监控权限
func (b *darwinBackend) installTap(tap int, fn func(InputEvent)) (Hook, error) {
	b.mu.Lock()
	b.onInput[tap] = fn
	b.mu.Unlock()

	if C.createTap(C.int(tap)) == 0 {
		b.clearTap(tap)
		return nil, fmt.Errorf("CGEventTapCreate: %w: accessibility permission required", ErrHookFailed)
	}

	return HookFunc(func() error {
		C.destroyTap(C.int(tap))
		b.clearTap(tap)
		return nil
	}), nil
}

func (b *darwinBackend) clearTap(tap int) {
	b.mu.Lock()
	b.onInput[tap] = nil
	b.mu.Unlock()
}

// WatchAudio macOS 不支持音频会话订阅
func (b *darwinBackend) WatchAudio(func(AudioEvent)) (Hook, error) {
	return nil, ErrUnsupported
}

// Pump 在当前线程上运行 run loop，每 100ms 检查一次 stop
func (b *darwinBackend) Pump(stop <-chan struct{}) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-stop:
			return nil
		default:
			C.runLoopOnce()
		}
	}
}

// appBundle 返回可执行文件所属的 .app 目录
func appBundle(path string) string {
	idx := strings.Index(path, ".app/")
	if idx < 0 {
		return ""
	}
	return path[:idx+len(".app")]
}
