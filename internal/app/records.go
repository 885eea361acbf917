package app

import (
	"strings"

	"github.com/chenyang-zz/shion/internal/infrastructure/config"
	"github.com/chenyang-zz/shion/internal/monitor"
	"github.com/chenyang-zz/shion/internal/platform"
	"github.com/chenyang-zz/shion/pkg/events"
	"github.com/chenyang-zz/shion/pkg/logger"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// filters 不需要记录的程序和窗口
type filters struct {
	apps   []string
	titles []string
}

// setFilters 替换当前生效的过滤器
func (a *App) setFilters(cfg config.FilterConfig) {
	titles := lo.FilterMap(cfg.IgnoreWindowTitles, func(t string, _ int) (string, bool) {
		t = strings.ToLower(t)
		return t, t != ""
	})
	a.filters.Store(&filters{
		apps:   lo.Compact(cfg.IgnoreApps),
		titles: titles,
	})
}

// applyFilters 替换过滤器并立即结束新忽略的程序的会话
func (a *App) applyFilters(cfg config.FilterConfig) {
	a.setFilters(cfg)

	f := a.filters.Load()
	for _, s := range a.tracker.Active() {
		if f.ignoreApp(s.Path, s.Description) && a.tracker.Finish(s.Path) {
			logger.Info("程序已被忽略，结束会话",
				zap.String("component", "app"),
				zap.String("path", s.Path),
			)
		}
	}
}

// ignoreApp 按路径、描述或文件名匹配，不区分大小写
func (f *filters) ignoreApp(path, description string) bool {
	stem := platform.FileStem(path)
	return lo.ContainsBy(f.apps, func(app string) bool {
		return strings.EqualFold(app, path) ||
			strings.EqualFold(app, description) ||
			strings.EqualFold(app, stem)
	})
}

// ignoreTitle 标题包含任一关键字时忽略，不区分大小写
func (f *filters) ignoreTitle(title string) bool {
	if title == "" {
		return false
	}
	title = strings.ToLower(title)
	return lo.ContainsBy(f.titles, func(keyword string) bool {
		return strings.Contains(title, keyword)
	})
}

// ToggleFilterProgram 切换程序筛选模式
//
// 开启后每个窗口事件都会先以 filter-program 推送给前端，用于挑选要忽略的程序。
//
// Returns: bool - 切换后的状态
func (a *App) ToggleFilterProgram() bool {
	for {
		old := a.filterProgram.Load()
		if a.filterProgram.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// onProgram 窗口回调，过滤后发布程序事件
func (a *App) onProgram(p monitor.Program) {
	if a.filterProgram.Load() {
		a.emit(a.ctx, EventFilterProgram, p)
	}

	f := a.filters.Load()
	if f.ignoreApp(p.Path, p.Description) || f.ignoreTitle(p.Title) {
		return
	}

	event := events.NewEvent(events.EventTypeProgram, map[string]interface{}{
		"path":        p.Path,
		"description": p.Description,
		"title":       p.Title,
		"icon":        p.Icon,
	}).WithContext(&events.EventContext{
		Application: p.Description,
		WindowTitle: p.Title,
		FilePath:    p.Path,
	})
	a.publish(event)
}

// onActivity 键盘和鼠标回调
func (a *App) onActivity(act monitor.Activity) {
	f := a.filters.Load()
	if f.ignoreApp(act.Path, "") || f.ignoreTitle(act.Title) {
		return
	}

	eventType := events.EventTypeKeyboard
	if act.Kind == monitor.ActivityMouse {
		eventType = events.EventTypeMouse
	}

	event := events.NewEvent(eventType, map[string]interface{}{
		"path":  act.Path,
		"title": act.Title,
		"kind":  string(act.Kind),
		"time":  act.Time,
	}).WithContext(&events.EventContext{
		WindowTitle: act.Title,
		FilePath:    act.Path,
	})
	event.Timestamp = act.Time
	a.publish(event)
}

// onAudio 音频会话回调
func (a *App) onAudio(act monitor.AudioActivity) {
	if a.filters.Load().ignoreApp(act.Path, "") {
		return
	}

	event := events.NewEvent(events.EventTypeAudio, map[string]interface{}{
		"path":  act.Path,
		"state": act.State.String(),
	}).WithContext(&events.EventContext{FilePath: act.Path})
	a.publish(event)
}

func (a *App) publish(event *events.Event) {
	if err := a.eventBus.Publish(string(event.Type), *event); err != nil {
		logger.Debug("发布事件失败",
			zap.String("component", "app"),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}
