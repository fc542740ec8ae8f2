package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher 监听配置文件变化，变更通过回调上报。变更只做重载与校验，
// 不做运行中参数热切换：引擎配置在构造后不可变。
type Watcher struct {
	path     string
	cooldown time.Duration
	watcher  *fsnotify.Watcher

	mu         sync.Mutex
	lastReload time.Time

	stopChan chan struct{}
	doneChan chan struct{}
}

// NewWatcher creates a watcher for path. cooldown <= 0 defaults to 2s.
func NewWatcher(path string, cooldown time.Duration) (*Watcher, error) {
	if cooldown <= 0 {
		cooldown = 2 * time.Second
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	return &Watcher{
		path:     path,
		cooldown: cooldown,
		watcher:  fw,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// Start 后台监听。onUpdate 收到重载成功的配置，onError 收到重载失败的原因；
// 两者都可为 nil。
func (w *Watcher) Start(ctx context.Context, onUpdate func(AppConfig), onError func(error)) {
	go w.watch(ctx, onUpdate, onError)
}

// Stop 停止监听并关闭底层 watcher。
func (w *Watcher) Stop() error {
	select {
	case <-w.stopChan:
	default:
		close(w.stopChan)
	}
	select {
	case <-w.doneChan:
	case <-time.After(time.Second):
	}
	return w.watcher.Close()
}

func (w *Watcher) watch(ctx context.Context, onUpdate func(AppConfig), onError func(error)) {
	defer close(w.doneChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.handleChange(onUpdate, onError)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if onError != nil {
				onError(err)
			}
		}
	}
}

// handleChange 带冷却的重载，编辑器多次写入只触发一次。
func (w *Watcher) handleChange(onUpdate func(AppConfig), onError func(error)) {
	w.mu.Lock()
	if time.Since(w.lastReload) < w.cooldown {
		w.mu.Unlock()
		return
	}
	w.lastReload = time.Now()
	w.mu.Unlock()

	cfg, err := LoadWithEnvOverrides(w.path)
	if err != nil {
		if onError != nil {
			onError(fmt.Errorf("reload config: %w", err))
		}
		return
	}
	if onUpdate != nil {
		onUpdate(cfg)
	}
}

// LastReload 返回最近一次成功触发重载的时间。
func (w *Watcher) LastReload() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastReload
}
