package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Change reports new endpoint configuration after the env file changed.
type Change struct {
	Endpoint   string
	Credential string
}

// Watcher watches the env file and emits a Change whenever the remote
// endpoint or credential differs from the last observed values. The
// watch is on the parent directory because editors typically replace
// the file instead of writing it in place.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	changes chan Change
	log     zerolog.Logger

	lastEndpoint   string
	lastCredential string
}

// Watch starts watching path (an .env style file). The initial endpoint
// and credential establish the baseline; only differences are emitted.
func Watch(path, endpoint, credential string, log zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:           path,
		watcher:        fw,
		changes:        make(chan Change, 1),
		log:            log,
		lastEndpoint:   endpoint,
		lastCredential: credential,
	}
	go w.loop()
	return w, nil
}

// Changes delivers endpoint configuration changes. The channel closes
// when the watcher stops.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	defer close(w.changes)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("config watcher error")
		}
	}
}

// reload reads the env file directly rather than through the process
// environment, which godotenv only seeds once.
func (w *Watcher) reload() {
	vars, err := godotenv.Read(w.path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", w.path).Msg("config reload failed")
		return
	}

	endpoint := vars["DICTATE_ENDPOINT"]
	credential := vars["DICTATE_CREDENTIAL"]
	if endpoint == w.lastEndpoint && credential == w.lastCredential {
		return
	}
	w.lastEndpoint = endpoint
	w.lastCredential = credential

	w.log.Info().Str("endpoint", endpoint).Msg("endpoint configuration changed")
	change := Change{Endpoint: endpoint, Credential: credential}
	select {
	case w.changes <- change:
	default:
		// The consumer is behind: displace the stale queued change so
		// the latest state wins.
		select {
		case <-w.changes:
		default:
		}
		w.changes <- change
	}
}
