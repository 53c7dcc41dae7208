package skills

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/verdict/internal/logging"
	"github.com/ShayCichocki/verdict/pkg/models"
)

// reloadDebounce coalesces bursts of filesystem events from editors that
// write a file in several steps.
const reloadDebounce = 200 * time.Millisecond

// Registry holds the loaded skills. Built-in skills are loaded first and
// definitions in the directory override them by ID.
type Registry struct {
	dir string

	mu     sync.RWMutex
	skills map[string]models.Skill
}

// NewRegistry loads skills from dir (plus built-ins).
func NewRegistry(dir string) (*Registry, error) {
	r := &Registry{dir: dir}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Dir returns the definition directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Reload re-reads every definition. On error the previous set is kept.
func (r *Registry) Reload() error {
	builtin, err := LoadBuiltin()
	if err != nil {
		return fmt.Errorf("load builtin skills: %w", err)
	}
	custom, err := LoadDir(r.dir)
	if err != nil {
		return err
	}

	next := make(map[string]models.Skill, len(builtin)+len(custom))
	for _, s := range builtin {
		next[s.ID] = s
	}
	for _, s := range custom {
		next[s.ID] = s
	}

	r.mu.Lock()
	r.skills = next
	r.mu.Unlock()

	logging.Component("skills").Debug().Str("dir", r.dir).Int("count", len(next)).Msg("skills loaded")
	return nil
}

// Get returns a skill by ID.
func (r *Registry) Get(id string) (models.Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[id]
	return s, ok
}

// List returns all skills sorted by ID.
func (r *Registry) List() []models.Skill {
	r.mu.RLock()
	out := make([]models.Skill, 0, len(r.skills))
	for _, s := range r.skills {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ForAgent returns the skills scoped to agent that run at point, sorted by ID.
func (r *Registry) ForAgent(agent string, point models.ApplyPoint) []models.Skill {
	var out []models.Skill
	for _, s := range r.List() {
		if s.AppliesTo(agent) && s.RunsAt(point) {
			out = append(out, s)
		}
	}
	return out
}

// Watch reloads the registry whenever a definition in the directory changes,
// until ctx is done. It returns once the watcher is installed.
func (r *Registry) Watch(ctx context.Context) error {
	if r.dir == "" {
		return fmt.Errorf("skills: no directory to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", r.dir, err)
	}

	go r.watchLoop(ctx, watcher)
	return nil
}

func (r *Registry) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".md") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(reloadDebounce)
		case <-pending:
			pending = nil
			if err := r.Reload(); err != nil {
				logging.Component("skills").Warn().Err(err).Str("dir", r.dir).Msg("skill reload failed, keeping previous set")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Component("skills").Debug().Err(err).Msg("skill watcher error")
		}
	}
}
