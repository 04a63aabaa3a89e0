package universe

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"newstrader/internal/logger"
)

// Watchlist is a YAML ticker list that reloads when the file changes.
// Both a bare list and a {tickers: [...]} document are accepted.
type Watchlist struct {
	path string

	mu      sync.RWMutex
	tickers []string
}

type watchlistDoc struct {
	Tickers []string `yaml:"tickers"`
}

// LoadWatchlist reads path once. Call Watch to follow later edits.
func LoadWatchlist(path string) (*Watchlist, error) {
	w := &Watchlist{path: path}
	if err := w.reload(); err != nil {
		return nil, err
	}
	return w, nil
}

// Watch reloads the list on every write to the file. A bad edit keeps the
// previous list.
func (w *Watchlist) Watch() {
	v := viper.New()
	v.SetConfigFile(w.path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		logger.Warnf("watchlist %s: %v", w.path, err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := w.reload(); err != nil {
			logger.Errorf("watchlist reload failed (%s): %v", evt.Name, err)
			return
		}
		logger.Infof("watchlist reloaded: %d tickers", len(w.Tickers()))
	})
	v.WatchConfig()
}

func (w *Watchlist) Tickers() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.tickers...)
}

func (w *Watchlist) reload() error {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("read watchlist: %w", err)
	}
	tickers, err := parseWatchlist(raw)
	if err != nil {
		return fmt.Errorf("parse watchlist %s: %w", w.path, err)
	}
	w.mu.Lock()
	w.tickers = tickers
	w.mu.Unlock()
	return nil
}

func parseWatchlist(raw []byte) ([]string, error) {
	var list []string
	if err := yaml.Unmarshal(raw, &list); err == nil {
		return normalize(list), nil
	}
	var doc watchlistDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return normalize(doc.Tickers), nil
}
