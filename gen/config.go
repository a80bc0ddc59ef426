// Package gen writes the binding tables of generated modules. It scans the handler
// package's source for Handle and Process methods, works out which bus capability
// each one implements, and emits a Bindings method listing them.
package gen

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// DefaultOutput is the generated file name when a config names none
const DefaultOutput = "mediator_gen.go"

// Config is a generator configuration, usually read from mediator.yml
type Config struct {
	// Name keys the generation memo, the output path by default
	Name string `yaml:"name,omitempty"`
	// Dir is the handler package directory
	Dir    string `yaml:"dir"`
	Output string `yaml:"output"`
	// Module is the type given the Bindings method. Without one, a package level
	// Bindings func is written.
	Module string `yaml:"module,omitempty"`
	// Messages are other packages declaring message types the handlers use
	Messages []MessagePackage `yaml:"messages,omitempty"`
}

// MessagePackage is a package of message types outside the handler package
type MessagePackage struct {
	Dir    string `yaml:"dir"`
	Import string `yaml:"import"`
}

func (c Config) valid() error {
	switch true {
	case c.Dir == "":
		return errors.New("dir must be specified")
	case filepath.Base(c.Output) != c.Output:
		return errors.New("output must be a file name in dir")
	}
	for _, m := range c.Messages {
		if m.Dir == "" || m.Import == "" {
			return errors.New("messages need a dir and an import path")
		}
	}
	return nil
}

// OutputPath is where the generated file is written
func (c Config) OutputPath() string {
	return filepath.Join(c.Dir, c.Output)
}

func (c Config) memoName() string {
	if c.Name != "" {
		return c.Name
	}
	abs, err := filepath.Abs(c.OutputPath())
	if err != nil {
		return c.OutputPath()
	}
	return abs
}

func (c Config) withDefaults() Config {
	if c.Dir == "" {
		c.Dir = "."
	}
	if c.Output == "" {
		c.Output = DefaultOutput
	}
	return c
}

// LoadConfig reads a YAML config. Relative directories are relative to the file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	c := Config{}
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}
	c = c.withDefaults()

	base := filepath.Dir(path)
	rel := func(dir string) string {
		if filepath.IsAbs(dir) {
			return dir
		}
		return filepath.Join(base, dir)
	}
	c.Dir = rel(c.Dir)
	for i := range c.Messages {
		c.Messages[i].Dir = rel(c.Messages[i].Dir)
	}
	return c, c.valid()
}

// WriteConfig writes c as YAML to path, refusing to replace an existing file
func WriteConfig(path string, c Config) error {
	data, err := yaml.Marshal(c.withDefaults())
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
