// Package presets loads named PID tunings from one JSON file per preset in
// a directory, and watches that directory with fsnotify so edits on disk
// take effect without a daemon restart. Grounded on the nasa-jpl-golaborate
// configuration convention of reading small serialized structs from a known
// folder (cmd/andorhttp3's config.yml load), generalized from a single file
// to a watched directory of many.
package presets

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/eggbot-project/pitctl/eggboterr"
	"github.com/eggbot-project/pitctl/pid"
)

// Preset is a named set of PID gains persisted as its own JSON file.
type Preset struct {
	Name string    `json:"name"`
	Gains pid.Gains `json:"gains"`
}

// rawPreset mirrors the on-disk shape, where gains are a 3-element array
// [kp, ki, kd] rather than an object, matching the format named in the
// configuration section.
type rawPreset struct {
	Name  string     `json:"name"`
	Gains [3]float64 `json:"gains"`
}

// Store holds the set of presets loaded from Dir and keeps them current via
// a filesystem watch.
type Store struct {
	mu      sync.RWMutex
	dir     string
	presets map[string]Preset
	log     *log.Logger
	watcher *fsnotify.Watcher
	doneCh  chan struct{}
}

// Open loads every *.json file in dir as a preset and starts watching dir
// for changes. Callers should defer Close.
func Open(dir string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	s := &Store{dir: dir, presets: make(map[string]Preset), log: logger}
	if err := s.loadAll(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, eggboterr.Wrap(eggboterr.HardwareUnavailable, "preset watcher init failed", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, eggboterr.Wrap(eggboterr.HardwareUnavailable, "preset watcher add failed", err)
	}
	s.watcher = watcher
	s.doneCh = make(chan struct{})
	go s.watch()
	return s, nil
}

func (s *Store) loadAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return eggboterr.Wrap(eggboterr.HardwareUnavailable, "preset directory read failed", err)
	}
	loaded := make(map[string]Preset)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		p, err := loadOne(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.log.Printf("presets: skipping %s: %v", e.Name(), err)
			continue
		}
		loaded[p.Name] = p
	}
	s.mu.Lock()
	s.presets = loaded
	s.mu.Unlock()
	return nil
}

func loadOne(path string) (Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Preset{}, err
	}
	var raw rawPreset
	if err := json.Unmarshal(data, &raw); err != nil {
		return Preset{}, err
	}
	if raw.Name == "" {
		return Preset{}, eggboterr.New(eggboterr.OutOfRange, "preset file missing name field")
	}
	return Preset{
		Name:  raw.Name,
		Gains: pid.Gains{Kp: raw.Gains[0], Ki: raw.Gains[1], Kd: raw.Gains[2]},
	}, nil
}

func (s *Store) watch() {
	defer close(s.doneCh)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				if err := s.loadAll(); err != nil {
					s.log.Printf("presets: reload after %s failed: %v", ev.Name, err)
				} else {
					s.log.Printf("presets: reloaded after change to %s", ev.Name)
				}
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Printf("presets: watcher error: %v", err)
		}
	}
}

// Get returns the named preset.
func (s *Store) Get(name string) (Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presets[name]
	if !ok {
		return Preset{}, eggboterr.New(eggboterr.OutOfRange, "unknown preset: "+name)
	}
	return p, nil
}

// List returns all known preset names.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.presets))
	for n := range s.presets {
		names = append(names, n)
	}
	return names
}

// Close stops the watcher goroutine.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	<-s.doneCh
	return err
}
