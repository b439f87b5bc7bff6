package tools

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// decodeArgs copies model-supplied arguments into a typed struct. Models
// sometimes send numbers as strings, so weak typing is on.
func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
