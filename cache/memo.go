package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// MemoMode selects where a Memo keeps its hashes
type MemoMode int

const (
	MemoNone MemoMode = iota
	MemoMemory
	MemoFile
)

func (m MemoMode) String() string {
	switch m {
	case MemoNone:
		return "None"
	case MemoMemory:
		return "Memory"
	case MemoFile:
		return "File"
	}
	return fmt.Sprintf("MemoMode(%d)", int(m))
}

func ParseMemoMode(s string) (MemoMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return MemoNone, nil
	case "memory", "":
		return MemoMemory, nil
	case "file":
		return MemoFile, nil
	}
	return MemoNone, fmt.Errorf("unknown generator cache mode %q", s)
}

const (
	EnvMemoMode = "MEDIATOR_GENERATOR_CACHE_MODE"
	EnvMemoFile = "MEDIATOR_GENERATOR_CACHE_FILE"
)

// MemoConfig is the externally supplied configuration of the generation memo
type MemoConfig struct {
	Mode MemoMode
	File string
}

// MemoConfigFromEnv reads the memo configuration from the environment, after loading
// the given dotenv files (or ./.env) when they exist. Variables already set win.
func MemoConfigFromEnv(dotenv ...string) (MemoConfig, error) {
	if len(dotenv) == 0 {
		dotenv = []string{".env"}
	}
	for _, f := range dotenv {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return MemoConfig{}, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	mode, err := ParseMemoMode(os.Getenv(EnvMemoMode))
	if err != nil {
		return MemoConfig{}, err
	}
	return MemoConfig{Mode: mode, File: os.Getenv(EnvMemoFile)}, nil
}

// Hash is the content hash used by the memo and the adaptive cache
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Memo remembers the last content hash emitted per generator name, so an unchanged
// generation run can be skipped. It does no access tracking and never expires.
type Memo struct {
	mode MemoMode
	path string

	mx     sync.Mutex
	loaded bool
	hashes map[string]string
}

func NewMemo(c MemoConfig) *Memo {
	m := &Memo{mode: c.Mode, path: c.File, hashes: make(map[string]string)}
	if m.mode == MemoFile && m.path == "" {
		m.path = filepath.Join(os.TempDir(), "mediator_generator_memo.json")
	}
	return m
}

func (m *Memo) load() error {
	if m.loaded || m.mode != MemoFile {
		return nil
	}
	stored, err := Load[map[string]string](m.path)
	if err != nil {
		return err
	}
	for k, v := range stored {
		m.hashes[k] = v
	}
	m.loaded = true
	return nil
}

// Unchanged reports whether content hashes to what was last stored for name
func (m *Memo) Unchanged(name string, content []byte) bool {
	if m.mode == MemoNone {
		return false
	}
	m.mx.Lock()
	defer m.mx.Unlock()

	if err := m.load(); err != nil {
		return false
	}
	prev, ok := m.hashes[name]
	return ok && prev == Hash(content)
}

// Store records the hash of content for name
func (m *Memo) Store(name string, content []byte) error {
	if m.mode == MemoNone {
		return nil
	}
	m.mx.Lock()
	defer m.mx.Unlock()

	if err := m.load(); err != nil {
		return err
	}
	m.hashes[name] = Hash(content)
	if m.mode == MemoFile {
		return Save(m.path, m.hashes)
	}
	return nil
}
