// Package plan loads checkpoint plans from YAML, TOML or JSON documents.
package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/verifyd/internal/session"
)

const maxPlanSize = 1024 * 1024 // 1MB

// Format identifies a plan document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

var (
	// ErrUnknownFormat is returned for unsupported file extensions or format names.
	ErrUnknownFormat = errors.New("unknown plan format")
	// ErrPlanTooLarge is returned when a plan document exceeds maxPlanSize.
	ErrPlanTooLarge = errors.New("plan document too large")
)

// Plan is a feature name plus its ordered checkpoints.
type Plan struct {
	FeatureName string               `json:"feature_name" yaml:"feature_name" toml:"feature_name"`
	Checkpoints []session.Checkpoint `json:"checkpoints" yaml:"checkpoints" toml:"checkpoints"`
}

// Queue validates the checkpoints and returns them as a session queue.
func (p *Plan) Queue() (*session.Queue, error) {
	return session.NewQueue(p.Checkpoints)
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
}

// ParseFormat maps a user-supplied name to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// LoadFile reads and validates the plan at path.
func LoadFile(path string) (*Plan, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat plan: %w", err)
	}
	if info.Size() > maxPlanSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPlanTooLarge, info.Size(), maxPlanSize)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	p, err := Parse(buf.Bytes(), format)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes data in the given format and validates the checkpoints.
// When every checkpoint omits its index, indices are assigned by position.
func Parse(data []byte, format Format) (*Plan, error) {
	if len(data) > maxPlanSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPlanTooLarge, len(data), maxPlanSize)
	}

	var p Plan
	switch format {
	case FormatYAML:
		k := koanf.New(".")
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
		if err := k.UnmarshalWithConf("", &p, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
			return nil, fmt.Errorf("failed to decode yaml: %w", err)
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &p); err != nil {
			return nil, fmt.Errorf("failed to parse toml: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	p.FeatureName = strings.TrimSpace(p.FeatureName)
	assignIndices(p.Checkpoints)
	if _, err := p.Queue(); err != nil {
		return nil, err
	}
	return &p, nil
}

func assignIndices(cps []session.Checkpoint) {
	for _, cp := range cps {
		if cp.Index != 0 {
			return
		}
	}
	for i := range cps {
		cps[i].Index = i + 1
	}
}
