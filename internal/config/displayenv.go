package config

import (
	"errors"
	"io/fs"

	"github.com/jamesprial/srt-streamer-agent/internal/system"
)

// ApplyDisplayEnv overlays the SCREEN_* keys of the appliance's config.env
// onto cfg.Display. The file is a flat KEY=value list; blank lines and lines
// starting with '#' are ignored and values are compared case-insensitively.
//
// Recognized keys: SCREEN (true/false), SCREEN_SIZE (0096/0350), SCREEN_RGB,
// SCREEN_TOUCH. A missing file is not an error and leaves cfg untouched.
func ApplyDisplayEnv(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	env, err := system.ReadKeyValueFile(path, system.KeyValueOptions{Unquote: true, Lower: true})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	if v, ok := env["SCREEN"]; ok {
		cfg.Display.Enabled = v == "true"
	}
	if v, ok := env["SCREEN_SIZE"]; ok && v != "" {
		cfg.Display.Size = v
	}
	if v, ok := env["SCREEN_RGB"]; ok {
		cfg.Display.RGB = v == "true"
	}
	if v, ok := env["SCREEN_TOUCH"]; ok {
		cfg.Display.Touch = v == "true"
	}
	return nil
}
