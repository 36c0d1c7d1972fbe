package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Transcript is a recorded backend session that can be played back
type Transcript struct {
	Name    string `yaml:"name,omitempty"`
	Adapter string `yaml:"adapter,omitempty"`
	Query   string `yaml:"query,omitempty"`
	// Delay is waited before each frame
	Delay  time.Duration `yaml:"delay,omitempty"`
	Frames []Frame       `yaml:"frames"`
	// Close, when set, ends the session with a remote close after the last frame
	Close *Close `yaml:"close,omitempty"`
}

// Frame is one inbound frame. Raw frames are sent verbatim, so malformed
// input can be replayed too.
type Frame struct {
	Raw    string         `yaml:"raw,omitempty"`
	Fields map[string]any `yaml:",inline"`
}

// Close describes how the backend closed the connection
type Close struct {
	Code   int    `yaml:"code"`
	Reason string `yaml:"reason,omitempty"`
}

// Bytes returns the frame as sent on the wire
func (f Frame) Bytes() ([]byte, error) {
	if f.Raw != "" {
		return []byte(f.Raw), nil
	}
	data, err := json.Marshal(f.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

// Parse decodes a YAML transcript
func Parse(data []byte) (*Transcript, error) {
	var t Transcript
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse transcript: %w", err)
	}
	if len(t.Frames) == 0 && t.Close == nil {
		return nil, fmt.Errorf("transcript has no frames")
	}
	return &t, nil
}

// Load reads a YAML transcript from path
func Load(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	return Parse(data)
}

// Save writes t to path as YAML, creating parent directories
func (t *Transcript) Save(path string) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create transcript directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}
