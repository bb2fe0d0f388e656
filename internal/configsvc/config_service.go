// Package configsvc watches configuration files and notifies subscribers of
// changes. Files are YAML on disk and unmarshal through their JSON form.
package configsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/ghodss/yaml"
	"go.uber.org/zap"
)

type subscriber func(event fsnotify.Event)

type Service struct {
	log *zap.Logger

	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	subscribers []subscriber
	ready       chan struct{}
}

func New(log *zap.Logger) *Service {
	return &Service{
		log:   log,
		ready: make(chan struct{}),
	}
}

// Start runs the watcher loop until ctx is cancelled. Register may be
// called before or after Start; subscriptions only fire while running.
func (s *Service) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()
	defer watcher.Close()
	close(s.ready)
	s.log.Info("config service started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			s.mu.Lock()
			subs := append([]subscriber(nil), s.subscribers...)
			s.mu.Unlock()
			for _, sub := range subs {
				sub(event)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Error("watcher error", zap.Error(err))
		}
	}
}

// Ready closes once the watcher loop is accepting subscriptions.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Register reads the configuration at path and watches it for changes,
// calling fn with each re-read result. It returns the initial
// configuration. The service is a parameter instead of the receiver so the
// function can be generic.
func Register[T any](s *Service, path string, def T, fn func(config T, err error)) (T, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return def, fmt.Errorf("absolute path for %s: %w", path, err)
	}
	config, err := ReadFile(absPath, def)
	if err != nil {
		return def, fmt.Errorf("read config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		if err := s.watcher.Add(filepath.Dir(absPath)); err != nil {
			return def, fmt.Errorf("watch %s: %w", path, err)
		}
	}
	s.subscribers = append(s.subscribers, func(event fsnotify.Event) {
		if event.Name == absPath && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
			newConfig, err := ReadFile(absPath, def)
			fn(newConfig, err)
		}
	})
	return config, nil
}

// ReadFile reads a YAML configuration file into a value of type T, starting
// from def.
func ReadFile[T any](path string, def T) (T, error) {
	yamlB, err := os.ReadFile(path)
	if err != nil {
		return def, fmt.Errorf("read config file: %w", err)
	}
	jsonB, err := yaml.YAMLToJSON(yamlB)
	if err != nil {
		return def, fmt.Errorf("convert yaml to json: %w", err)
	}
	if err := json.Unmarshal(jsonB, &def); err != nil {
		return def, fmt.Errorf("unmarshal config: %w", err)
	}
	return def, nil
}

// WriteFile writes config to path as YAML. Used to seed default
// configuration files.
func WriteFile[T any](path string, config T) error {
	jsonB, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	yamlB, err := yaml.JSONToYAML(jsonB)
	if err != nil {
		return fmt.Errorf("convert json to yaml: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, yamlB, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
