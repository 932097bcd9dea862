package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
	"github.com/spf13/afero"

	"github.com/bolasblack/multihack/internal/project"
)

// DiskSink receives local filesystem changes. Controller implements it.
type DiskSink interface {
	LocalFileChanged(absPath string)
	LocalPathDeleted(absPath string) error
}

// diskWatcher maps fsnotify events onto a DiskSink.
//   - Create, Write → LocalFileChanged (new directories are watched too)
//   - Remove, Rename → LocalPathDeleted (the new name triggers a separate Create)
type diskWatcher struct {
	project *project.Project
	sink    DiskSink
	add     func(dir string) error
}

// WatchProject watches every directory of proj and forwards changes to sink
// until ctx is done or stop is called.
func WatchProject(ctx context.Context, proj *project.Project, sink DiskSink) (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	dw := &diskWatcher{project: proj, sink: sink, add: w.Add}
	if err := dw.addTree(proj.Root(), false); err != nil {
		_ = w.Close()
		return nil, err
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				dw.handle(event)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				glog.Warningf("watcher: %v", err)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			_ = w.Close()
		})
	}, nil
}

func (dw *diskWatcher) handle(event fsnotify.Event) {
	if dw.project.Ignored(event.Name) {
		return
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if err := dw.sink.LocalPathDeleted(event.Name); err != nil {
			glog.Warningf("failed to forward deletion of %s: %v", event.Name, err)
		}
	case event.Has(fsnotify.Create):
		info, err := dw.project.Resolve(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if err := dw.addTree(event.Name, true); err != nil {
				glog.Warningf("%v", err)
			}
			return
		}
		dw.sink.LocalFileChanged(event.Name)
	case event.Has(fsnotify.Write):
		dw.sink.LocalFileChanged(event.Name)
	}
}

// addTree watches dir and its subdirectories. With announce set, files found
// under dir are reported as changed, since their Create events were missed.
func (dw *diskWatcher) addTree(dir string, announce bool) error {
	return afero.Walk(dw.project.Fs(), dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if path != dw.project.Root() && dw.project.Ignored(path) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			if err := dw.add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			return nil
		}
		if announce {
			dw.sink.LocalFileChanged(path)
		}
		return nil
	})
}
