package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/toolsascode/bfm/info/internal/backends"
	"github.com/toolsascode/bfm/info/internal/logger"
	"github.com/toolsascode/bfm/info/internal/registry"
)

// scriptPattern matches {version}_{name} where version is dotted or
// underscore separated digits, e.g. 20250101120000_create_users or 1_2_init
var scriptPattern = regexp.MustCompile(`^(\d+(?:[._]\d+)*)_(.+)$`)

// Loader loads migration scripts from the SFM directory
// Structure: sfm/{backend}/{connection}/{version}_{name}.up.{sql|json}
type Loader struct {
	sfmPath   string
	registry  registry.Registry
	seenFiles map[string]seenFile // up file path -> what was registered from it
	mu        sync.Mutex

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

type seenFile struct {
	modTime     time.Time
	migrationID string
}

// NewLoader creates a new migration loader
func NewLoader(sfmPath string) *Loader {
	return &Loader{
		sfmPath:   sfmPath,
		seenFiles: make(map[string]seenFile),
	}
}

// LoadAll loads all migration scripts from the SFM directory into reg
func (l *Loader) LoadAll(reg registry.Registry) error {
	l.mu.Lock()
	l.registry = reg
	l.mu.Unlock()

	changed, err := l.Scan()
	if err != nil {
		return err
	}
	logger.Infof("Loaded %d migration(s) from %s", changed, l.sfmPath)
	return nil
}

// Scan registers new or modified scripts and unregisters scripts whose files
// disappeared. It returns the number of changes.
func (l *Loader) Scan() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.registry == nil {
		return 0, fmt.Errorf("loader has no registry")
	}

	if _, err := os.Stat(l.sfmPath); os.IsNotExist(err) {
		logger.Warnf("SFM directory does not exist: %s", l.sfmPath)
		return 0, nil
	}

	current := make(map[string]seenFile)
	changed := 0

	err := filepath.Walk(l.sfmPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		upExt := upExtension(path)
		if upExt == "" {
			return nil
		}

		relPath, err := filepath.Rel(l.sfmPath, path)
		if err != nil {
			return err
		}
		parts := strings.Split(relPath, string(filepath.Separator))
		if len(parts) != 3 {
			return nil
		}

		base := strings.TrimSuffix(parts[2], upExt)
		matches := scriptPattern.FindStringSubmatch(base)
		if len(matches) != 3 {
			logger.Debugf("Skipping %s: name does not match {version}_{name}", path)
			return nil
		}

		prev, seen := l.seenFiles[path]
		if seen && !info.ModTime().After(prev.modTime) {
			current[path] = prev
			return nil
		}

		migration, err := readScript(path, parts[0], parts[1], strings.ReplaceAll(matches[1], "_", "."), matches[2], upExt)
		if err != nil {
			logger.Warnf("Failed to load migration from %s: %v", path, err)
			l.keep(current, path, prev, seen)
			return nil
		}
		if err := l.registry.Register(migration); err != nil {
			logger.Warnf("Failed to register migration from %s: %v", path, err)
			l.keep(current, path, prev, seen)
			return nil
		}

		if seen {
			logger.Infof("Migration file modified: %s", path)
		} else {
			logger.Debugf("Registered migration: %s (backend: %s, connection: %s)", migration.ID(), migration.Backend, migration.Connection)
		}
		current[path] = seenFile{modTime: info.ModTime(), migrationID: migration.ID()}
		changed++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("error scanning SFM directory: %w", err)
	}

	for path, prev := range l.seenFiles {
		if _, ok := current[path]; !ok {
			l.registry.Unregister(prev.migrationID)
			logger.Infof("Migration file removed: %s", path)
			changed++
		}
	}
	l.seenFiles = current

	return changed, nil
}

// keep carries a previously loaded file over when reloading it failed, so the
// registered script stays in place until the file is really removed
func (l *Loader) keep(current map[string]seenFile, path string, prev seenFile, seen bool) {
	if seen {
		current[path] = prev
	}
}

// StartWatching rescans the SFM directory every interval and calls onChange
// after a scan that changed the registry
func (l *Loader) StartWatching(interval time.Duration, onChange func()) {
	l.mu.Lock()
	if l.watchCancel != nil {
		l.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.watchCancel = cancel
	l.watchDone = make(chan struct{})
	done := l.watchDone
	l.mu.Unlock()

	logger.Infof("Starting migration file watcher (checking every %s)", interval)

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("Migration file watcher stopped")
				return
			case <-ticker.C:
				changed, err := l.Scan()
				if err != nil {
					logger.Warnf("Error scanning for new migrations: %v", err)
					continue
				}
				if changed > 0 && onChange != nil {
					onChange()
				}
			}
		}
	}()
}

// StopWatching stops the background file watcher and waits for it to exit
func (l *Loader) StopWatching() {
	l.mu.Lock()
	cancel, done := l.watchCancel, l.watchDone
	l.watchCancel, l.watchDone = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func upExtension(path string) string {
	switch {
	case strings.HasSuffix(path, ".up.sql"):
		return ".up.sql"
	case strings.HasSuffix(path, ".up.json"):
		return ".up.json"
	}
	return ""
}

// readScript reads the up script and, when present, the matching down script
func readScript(upFile, backend, connection, version, name, upExt string) (*backends.MigrationScript, error) {
	upSQL, err := os.ReadFile(upFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read up migration file %s: %w", upFile, err)
	}

	downFile := strings.TrimSuffix(upFile, upExt) + strings.Replace(upExt, ".up.", ".down.", 1)
	downSQL, err := os.ReadFile(downFile)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read down migration file %s: %w", downFile, err)
	}

	return &backends.MigrationScript{
		Version:      version,
		Name:         name,
		Connection:   connection,
		Backend:      backend,
		Format:       strings.TrimPrefix(upExt, ".up."),
		UpSQL:        string(upSQL),
		DownSQL:      string(downSQL),
		Location:     upFile,
		Dependencies: parseDependencies(string(upSQL)),
	}, nil
}

// parseDependencies reads "-- depends: a, b" header lines from SQL scripts
func parseDependencies(script string) []string {
	var deps []string
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			break
		}
		body := strings.TrimSpace(strings.TrimPrefix(line, "--"))
		if !strings.HasPrefix(body, "depends:") {
			continue
		}
		for _, dep := range strings.Split(strings.TrimPrefix(body, "depends:"), ",") {
			if dep = strings.TrimSpace(dep); dep != "" {
				deps = append(deps, dep)
			}
		}
	}
	return deps
}
