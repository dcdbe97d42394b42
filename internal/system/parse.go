package system

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// KeyValueOptions controls how ReadKeyValueFile normalizes values.
type KeyValueOptions struct {
	// Unquote strips one layer of surrounding single or double quotes, as
	// written by shell-style env files.
	Unquote bool
	// Lower lowercases values.
	Lower bool
}

// ReadKeyValueFile reads a flat key=value file such as a hostapd
// configuration or the appliance's config.env. Blank lines, '#' comments
// and lines without '=' are skipped. Open errors wrap the fs error, so
// errors.Is(err, fs.ErrNotExist) works on the result.
func ReadKeyValueFile(path string, opts KeyValueOptions) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	result := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		if opts.Unquote {
			val = strings.Trim(val, `"'`)
		}
		if opts.Lower {
			val = strings.ToLower(val)
		}
		result[strings.TrimSpace(key)] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return result, nil
}

// SplitTerse splits one line of `nmcli -t` output into fields. nmcli
// escapes literal colons and backslashes inside values as `\:` and `\\`.
func SplitTerse(line string) []string {
	var (
		fields []string
		cur    strings.Builder
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\\' && i+1 < len(line):
			i++
			cur.WriteByte(line[i])
		case c == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(fields, cur.String())
}

// parseWifiList parses `nmcli -t -f IN-USE,SSID,RATE,SIGNAL,SECURITY device
// wifi list`. Hidden networks (blank SSID) are skipped.
func parseWifiList(out string) ([]WifiNetwork, error) {
	var networks []WifiNetwork
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		f := SplitTerse(line)
		if len(f) < 5 {
			return nil, fmt.Errorf("wifi list line %q: want 5 fields, got %d", line, len(f))
		}
		ssid := strings.TrimSpace(f[1])
		if ssid == "" {
			continue
		}
		signal, err := strconv.Atoi(strings.TrimSpace(f[3]))
		if err != nil {
			return nil, fmt.Errorf("wifi list signal %q: %w", f[3], err)
		}
		security := strings.TrimSpace(f[4])
		if security == "" || security == "--" {
			security = "UNKNOWN"
		}
		networks = append(networks, WifiNetwork{
			SSID:     ssid,
			InUse:    strings.TrimSpace(f[0]) == "*",
			Rate:     strings.TrimSpace(f[2]),
			Signal:   min(max(signal, 0), 100),
			Security: security,
		})
	}
	return networks, nil
}
