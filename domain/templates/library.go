// Package templates loads the reference images the scanner matches against.
package templates

import (
	"image"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/soocke/prompt-bot-go/domain/capture"
)

// Candidate names a template file and the key it drives. AsGiven lets Name
// resolve as a path of its own before the template directory is searched.
type Candidate struct {
	Name    string
	Key     string
	AsGiven bool
}

// KeyCandidates maps each key to the file pattern "<key>.png", looked up in
// the template directory only.
func KeyCandidates(keys []string) []Candidate {
	out := make([]Candidate, 0, len(keys))
	for _, k := range keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		out = append(out, Candidate{Name: k + ".png", Key: k})
	}
	return out
}

// NamedCandidates binds every file name to the same key. Names are tried as
// given first, then inside the template directory.
func NamedCandidates(names []string, key string) []Candidate {
	out := make([]Candidate, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, Candidate{Name: n, Key: key, AsGiven: true})
		}
	}
	return out
}

// Library holds decoded templates in load order. Loading the same name
// twice replaces the earlier entry in place.
type Library struct {
	mu     sync.RWMutex
	scale  float64
	logger *slog.Logger
	order  []string
	byName map[string]*capture.Template
}

// NewLibrary returns an empty library. Templates are resized by scale at
// load time when 0 < scale < 1, matching frames downsampled by the same
// factor.
func NewLibrary(scale float64, logger *slog.Logger) *Library {
	if scale <= 0 || scale > 1 {
		scale = 1
	}
	return &Library{scale: scale, logger: logger, byName: map[string]*capture.Template{}}
}

// Scale returns the load-time scale factor.
func (l *Library) Scale() float64 { return l.scale }

// Load decodes every candidate it can find and returns how many were
// loaded. Each name is tried as given and then inside dir. Missing or
// undecodable files are skipped; zero is a valid result.
func (l *Library) Load(dir string, candidates []Candidate) int {
	n := 0
	for _, c := range candidates {
		path, ok := resolve(dir, c)
		if !ok {
			if l.logger != nil {
				l.logger.Debug("template missing", "name", c.Name, "dir", dir)
			}
			continue
		}
		img, err := imaging.Open(path)
		if err != nil {
			if l.logger != nil {
				l.logger.Warn("template decode", "path", path, "error", err)
			}
			continue
		}
		l.Add(c.Name, c.Key, img)
		n++
	}
	if l.logger != nil {
		l.logger.Info("templates loaded", "dir", dir, "loaded", n, "candidates", len(candidates))
	}
	return n
}

// Add registers img under name, applying the library scale.
func (l *Library) Add(name, key string, img image.Image) *capture.Template {
	if l.scale < 1 {
		b := img.Bounds()
		w := max(1, int(math.Round(float64(b.Dx())*l.scale)))
		h := max(1, int(math.Round(float64(b.Dy())*l.scale)))
		img = imaging.Resize(img, w, h, imaging.Linear)
	}
	t := capture.NewTemplate(name, key, capture.ToGray(img, 1))
	l.mu.Lock()
	if _, dup := l.byName[name]; !dup {
		l.order = append(l.order, name)
	}
	l.byName[name] = t
	l.mu.Unlock()
	return t
}

func resolve(dir string, c Candidate) (string, bool) {
	var paths []string
	if c.AsGiven || dir == "" {
		paths = append(paths, c.Name)
	}
	if dir != "" && !filepath.IsAbs(c.Name) {
		paths = append(paths, filepath.Join(dir, c.Name))
	}
	for _, p := range paths {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, true
		}
	}
	return "", false
}

// Templates returns the loaded templates in load order.
func (l *Library) Templates() []*capture.Template {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*capture.Template, 0, len(l.order))
	for _, n := range l.order {
		out = append(out, l.byName[n])
	}
	return out
}

// Get returns the template loaded under name.
func (l *Library) Get(name string) (*capture.Template, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.byName[name]
	return t, ok
}

// KeyFor returns the key bound to name.
func (l *Library) KeyFor(name string) (string, bool) {
	t, ok := l.Get(name)
	if !ok {
		return "", false
	}
	return t.Key, true
}

// Len returns the number of loaded templates.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}
