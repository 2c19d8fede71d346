// Package ipc implements the atomic file-based protocol used between the
// host and sandboxed containers: write to a dotfile, rename into place, and
// never read a file whose name starts with ".".
package ipc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nanogridbot/nanogridbot/internal/rterr"
)

// WriteAtomic marshals v as JSON and writes it to dir/name via a
// ".tmp-"-prefixed temporary file followed by a rename, so consumers never
// observe a partially written file under the final name.
func WriteAtomic(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return rterr.New(rterr.Other, "create ipc dir", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return rterr.New(rterr.Other, "encode ipc payload", err)
	}

	tmp := filepath.Join(dir, ".tmp-"+name)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return rterr.New(rterr.Other, "write ipc tmp file", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		return rterr.New(rterr.Other, "rename ipc file", err)
	}
	return nil
}

// InputName returns the canonical input-{ms}.json file name for now.
func InputName(now time.Time) string {
	return "input-" + strconv.FormatInt(now.UnixMilli(), 10) + ".json"
}

// OutputName returns the canonical output-{ms}.json file name for now.
func OutputName(now time.Time) string {
	return "output-" + strconv.FormatInt(now.UnixMilli(), 10) + ".json"
}

// ListReady returns the non-dotfile *.json entries in dir sorted ascending
// by name, so monotonic millisecond timestamps yield chronological order.
// A missing dir is treated as empty, not an error.
func ListReady(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, rterr.New(rterr.Other, "list ipc dir", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if strings.HasPrefix(n, ".") {
			continue
		}
		if !strings.HasSuffix(n, ".json") {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// ReadAndRemove reads dir/name, removes the file, and returns its raw bytes
// without decoding them; the file is removed whatever its content, so
// consumption is exactly-once by policy.
func ReadAndRemove(dir, name string) ([]byte, error) {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	removeErr := os.Remove(path)
	if err != nil {
		return nil, rterr.New(rterr.Other, "read ipc file", err)
	}
	if removeErr != nil && !os.IsNotExist(removeErr) {
		return data, rterr.New(rterr.Other, "remove ipc file", removeErr)
	}
	return data, nil
}

// ShutdownSentinelName is the session shutdown marker written under input/.
const ShutdownSentinelName = "_shutdown.json"

// ExtractText pulls a text payload from the first present field of
// {text, result, message, response}, falling back to the raw trimmed content
// if none parse as an object with those fields.
func ExtractText(data []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err == nil {
		for _, key := range []string{"text", "result", "message", "response"} {
			if v, ok := obj[key]; ok {
				if s, ok := v.(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return strings.TrimSpace(string(data))
}
