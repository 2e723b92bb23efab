package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// QuickImages selects how asset references are emitted in rewritten pages.
type QuickImages int

const (
	// QuickImagesOff launders every reference back through the proxy.
	QuickImagesOff QuickImages = iota
	// QuickImagesOn points assets straight at the archive replay URL.
	QuickImagesOn
	// QuickImagesAuth carries the snapshot in the URL's userinfo instead.
	QuickImagesAuth
)

func (q QuickImages) String() string {
	switch q {
	case QuickImagesOn:
		return "on"
	case QuickImagesAuth:
		return "auth"
	default:
		return "off"
	}
}

// ParseQuickImages accepts true/false, on/off and auth.
func ParseQuickImages(s string) (QuickImages, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "off", "no", "0":
		return QuickImagesOff, nil
	case "true", "on", "yes", "1":
		return QuickImagesOn, nil
	case "auth":
		return QuickImagesAuth, nil
	}
	return QuickImagesOff, fmt.Errorf("invalid quickImages value %q", s)
}

func (q *QuickImages) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: quickImages must be a scalar", value.Line)
	}
	v, err := ParseQuickImages(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*q = v
	return nil
}

func (q QuickImages) MarshalYAML() (any, error) {
	switch q {
	case QuickImagesOn:
		return true, nil
	case QuickImagesAuth:
		return "auth", nil
	default:
		return false, nil
	}
}
