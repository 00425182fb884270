// Package history tracks when each host was last served successfully.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/treykane/data-proxy/internal/appconfig"
	"github.com/treykane/data-proxy/internal/model"
)

type store struct {
	LastServed map[string]int64 `json:"last_served"`
}

// Touch records a successful serve start for a host alias.
func Touch(alias string) error {
	st, err := load()
	if err != nil {
		return err
	}
	if st.LastServed == nil {
		st.LastServed = map[string]int64{}
	}
	st.LastServed[alias] = time.Now().Unix()
	return save(st)
}

// LastServed returns last successful serve timestamps by alias.
func LastServed() (map[string]int64, error) {
	st, err := load()
	if err != nil {
		return nil, err
	}
	return st.LastServed, nil
}

// SortHostsRecent returns a new slice sorted by recent activity (desc), then alias.
func SortHostsRecent(hosts []model.HostEntry, lastServed map[string]int64) []model.HostEntry {
	out := append([]model.HostEntry(nil), hosts...)
	sort.Slice(out, func(i, j int) bool {
		ti := lastServed[out[i].Alias]
		tj := lastServed[out[j].Alias]
		if ti != tj {
			return ti > tj
		}
		return out[i].Alias < out[j].Alias
	})
	return out
}

func load() (store, error) {
	path, err := appconfig.HistoryFilePath()
	if err != nil {
		return store{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store{LastServed: map[string]int64{}}, nil
		}
		return store{}, err
	}
	var st store
	if err := json.Unmarshal(b, &st); err != nil {
		return store{LastServed: map[string]int64{}}, nil
	}
	if st.LastServed == nil {
		st.LastServed = map[string]int64{}
	}
	return st, nil
}

func save(st store) error {
	path, err := appconfig.HistoryFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
