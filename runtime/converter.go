package runtime

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// decodeInto converts a map[string]any into a struct using mapstructure.
// tagName selects which struct tag drives the field mapping; durations and
// RFC3339 timestamps are decoded from strings.
func decodeInto(m map[string]any, target any, tagName string) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: tagName,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(m); err != nil {
		return fmt.Errorf("failed to decode map to struct: %w", err)
	}

	return nil
}

// decodeNodeConfig decodes a node's free-form config into its typed struct.
func decodeNodeConfig(node *Node, target any) error {
	if node.Config == nil {
		return nil
	}
	if err := decodeInto(node.Config, target, "json"); err != nil {
		return structuralError(ErrorCodeInvalidConfig, node.ID, "invalid %s config: %v", node.Type, err)
	}
	return nil
}
