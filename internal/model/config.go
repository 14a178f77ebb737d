package model

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	_ "embed"
)

const (
	DefaultPollInterval = 200 * time.Millisecond
	DefaultListsTimeout = 5 * time.Second
	DefaultListsURL     = "http://192.168.18.70:5000/6/lists"
	DefaultSettingsPath = "uploader_settings.json"
)

//go:embed config.cue
var cueSource []byte

var (
	cueMu  sync.Mutex // cue.Context is not safe for a concurrent use
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource, cue.Filename("config.cue"))
	if compiled.Err() != nil {
		panic(compiled.Err())
	}
	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version  int      `yaml:"version"` // fixed 0 for now
	Uploader Uploader `yaml:"uploader"`
	Poll     Poll     `yaml:"poll"`
	Lists    Lists    `yaml:"lists"`
	Settings Store    `yaml:"settings"`
	Service  Service  `yaml:"service"`
}

// Uploader describes the external upload executable.
type Uploader struct {
	Interpreter string            `yaml:"interpreter,omitempty"` // e.g. python3, empty runs script directly
	Script      string            `yaml:"script,omitempty"`      // empty => search default locations
	Env         map[string]string `yaml:"env,omitempty"`
}

type Poll struct {
	Interval Duration `yaml:"interval"`
}

// Lists is the remote list-lookup endpoint feeding the list selector.
type Lists struct {
	URL     URL      `yaml:"url,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
}

type Store struct {
	Path string `yaml:"path"`
}

type Service struct {
	Verbose bool    `yaml:"verbose"`
	Metrics TCPAddr `yaml:"metrics,omitempty"` // listen address of /metrics, empty disables
}

// DefaultConfig is written to the user config directory on a first run
func DefaultConfig(_ context.Context) Config {
	return Config{
		Version: 0,
		Uploader: Uploader{
			Interpreter: "python3",
		},
		Poll: Poll{
			Interval: Duration(DefaultPollInterval),
		},
		Lists: Lists{
			URL:     MustParseURL(DefaultListsURL),
			Timeout: Duration(DefaultListsTimeout),
		},
		Settings: Store{
			Path: DefaultSettingsPath,
		},
	}
}

// LoadConfig decodes YAML from r on top of the defaults and validates the result.
func LoadConfig(r io.Reader) (*Config, error) {
	out := DefaultConfig(context.Background())
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// Validate checks the decoded config against the #Config schema. Violations
// are reported as ConfigErrors.
func (c Config) Validate() error {
	cueMu.Lock()
	defer cueMu.Unlock()
	value := cueCtx.Encode(c.document())
	if err := value.Err(); err != nil {
		return err
	}
	err := schema.Unify(value).Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	)
	if err != nil {
		return humanize(err)
	}
	return nil
}

// document is the config as seen by the schema
func (c Config) document() map[string]any {
	env := make(map[string]any, len(c.Uploader.Env))
	for k, v := range c.Uploader.Env {
		env[k] = v
	}
	var listsURL, metrics string
	if !c.Lists.URL.IsZero() {
		listsURL = c.Lists.URL.String()
	}
	if !c.Service.Metrics.IsZero() {
		metrics = c.Service.Metrics.String()
	}
	return map[string]any{
		"version": c.Version,
		"uploader": map[string]any{
			"interpreter": c.Uploader.Interpreter,
			"script":      c.Uploader.Script,
			"env":         env,
		},
		"poll": map[string]any{
			"interval": int64(c.Poll.Interval),
		},
		"lists": map[string]any{
			"url":     listsURL,
			"timeout": int64(c.Lists.Timeout),
		},
		"settings": map[string]any{
			"path": c.Settings.Path,
		},
		"service": map[string]any{
			"verbose": c.Service.Verbose,
			"metrics": metrics,
		},
	}
}
