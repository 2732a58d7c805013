package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// WatchSystemConfig watches system.json and emits a freshly loaded SystemConfig
// after every debounced write. The watcher runs until ctx is canceled, then
// closes the returned channel. Only the latest pending config is kept.
func WatchSystemConfig(ctx context.Context, path string) <-chan *SystemConfig {
	out := make(chan *SystemConfig, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create fsnotify watcher", "error", err)
		close(out)
		return out
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	// 監看目錄而非檔案本身，編輯器的 atomic save 會替換 inode
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		slog.Warn("Could not watch config directory", "file", path, "error", err)
		watcher.Close()
		close(out)
		return out
	}
	slog.Debug("Watching system configuration", "file", absPath)

	go func() {
		defer watcher.Close()
		defer close(out)

		var timer *time.Timer
		fire := make(chan struct{}, 1)

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != absPath {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			case <-fire:
				cfg := LoadSystemConfig(absPath)
				slog.Info("System configuration reloaded", "file", absPath, "log_level", cfg.LogLevel)
				// 丟棄尚未被讀取的舊設定
				select {
				case <-out:
				default:
				}
				out <- cfg
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Watcher encountered an error", "error", err)
			}
		}
	}()

	return out
}
