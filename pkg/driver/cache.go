package driver

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"ecmavm/pkg/source"
	"ecmavm/pkg/vm"
)

// Cache stores compiled scripts on disk, keyed by content and compile
// mode. Entries are CBOR-encoded templates; entries written by another
// wire version miss.
type Cache struct {
	dir string

	hits   int
	misses int
}

// OpenCache creates dir if needed and returns a cache rooted there.
func OpenCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create cache directory %s: %w", dir, err)
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Stats returns the number of lookups that hit and missed.
func (c *Cache) Stats() (hits, misses int) { return c.hits, c.misses }

func (c *Cache) key(src *source.SourceFile, opts Options) string {
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(vm.WireVersion)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatBool(opts.strict())))
	h.Write([]byte{0})
	h.Write([]byte(src.DisplayPath()))
	h.Write([]byte{0})
	h.Write([]byte(src.Content))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key[:2], key+".cbor")
}

// Load returns the cached template for src, or nil on a miss. Corrupt
// entries are removed and count as misses.
func (c *Cache) Load(src *source.SourceFile, opts Options) *vm.FunctionTemplate {
	p := c.path(c.key(src, opts))
	data, err := os.ReadFile(p)
	if err != nil {
		c.misses++
		return nil
	}
	tmpl, err := vm.UnmarshalTemplate(data)
	if err != nil {
		log.Warningf("discarding cache entry %s: %s", p, err)
		os.Remove(p)
		c.misses++
		return nil
	}
	c.hits++
	log.Debugf("cache hit for %s", src.DisplayPath())
	return tmpl
}

// Store writes tmpl as the compiled form of src.
func (c *Cache) Store(src *source.SourceFile, opts Options, tmpl *vm.FunctionTemplate) error {
	data, err := vm.MarshalTemplate(tmpl)
	if err != nil {
		return fmt.Errorf("cannot encode %s: %w", src.DisplayPath(), err)
	}
	p := c.path(c.key(src, opts))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	// Write then rename so a concurrent reader never sees a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(p), "entry-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	log.Debugf("cached %s (%d bytes)", src.DisplayPath(), len(data))
	return nil
}
