package hci

import (
	"io/ioutil"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/btforge/bthost"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type bondRecord struct {
	Addr    string `json:"addr"`
	Name    string `json:"name,omitempty"`
	Class   uint32 `json:"class,omitempty"`
	LinkKey []byte `json:"linkKey"`
	KeyType uint8  `json:"keyType"`
}

type bondFile struct {
	Version int          `json:"version"`
	Bonds   []bondRecord `json:"bonds"`
}

// loadBonds restores bonded devices from the store file. A missing
// file is not an error; the store is created on the first bond.
func (r *Registry) loadBonds(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = path

	raw, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read bond store")
	}

	var bf bondFile
	if err := json.Unmarshal(raw, &bf); err != nil {
		return errors.Wrap(err, "parse bond store")
	}

	for _, b := range bf.Bonds {
		addr, err := bthost.ParseAddr(b.Addr)
		if err != nil {
			logger.Warn("skipping bond with bad address ", b.Addr)
			continue
		}
		if len(b.LinkKey) != 16 {
			logger.Warn("skipping bond with bad link key for ", b.Addr)
			continue
		}
		rec := r.recordLocked(addr)
		rec.name = b.Name
		rec.class = b.Class
		rec.bond = bthost.Bonded
		rec.hasKey = true
		copy(rec.linkKey[:], b.LinkKey)
		rec.keyType = b.KeyType
	}
	return nil
}

// saveLocked rewrites the bond store. Callers hold r.mu. Write
// failures are logged, not returned; the in-memory bond stays valid.
func (r *Registry) saveLocked() {
	if r.path == "" {
		return
	}

	bf := bondFile{Version: 1}
	for _, rec := range r.devices {
		if rec.bond != bthost.Bonded || !rec.hasKey {
			continue
		}
		key := make([]byte, 16)
		copy(key, rec.linkKey[:])
		bf.Bonds = append(bf.Bonds, bondRecord{
			Addr:    rec.addr.String(),
			Name:    rec.name,
			Class:   rec.class,
			LinkKey: key,
			KeyType: rec.keyType,
		})
	}

	raw, err := json.MarshalIndent(&bf, "", "  ")
	if err != nil {
		logger.Error("marshal bond store: ", err)
		return
	}

	tmp := r.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		logger.Error("bond store dir: ", err)
		return
	}
	if err := ioutil.WriteFile(tmp, raw, 0600); err != nil {
		logger.Error("write bond store: ", err)
		return
	}
	if err := os.Rename(tmp, r.path); err != nil {
		logger.Error("replace bond store: ", err)
	}
}
