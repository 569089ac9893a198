package logx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Tail returns the last n lines of the log file at path (all lines if n <= 0)
// together with the file offset after the last line read.
func Tail(path string, n int) ([]string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, 0, err
	}
	off, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, err
	}
	return lines, off, nil
}

// Follow streams lines appended to path after offset until ctx is done.
// Truncation (log rotation in place) restarts reading from the beginning.
func Follow(ctx context.Context, path string, offset int64, fn func(line string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("follow: %w", err)
	}
	defer w.Close()

	// Watch the directory so re-created files are picked up too.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("follow: watch %s: %w", filepath.Dir(path), err)
	}
	base := filepath.Base(path)

	var partial string
	drain := func() error {
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				offset = 0
				return nil
			}
			return err
		}
		defer f.Close()

		st, err := f.Stat()
		if err != nil {
			return err
		}
		if st.Size() < offset {
			offset = 0
			partial = ""
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return err
		}
		b, err := io.ReadAll(f)
		if err != nil {
			return err
		}
		offset += int64(len(b))

		chunk := partial + string(b)
		parts := strings.Split(chunk, "\n")
		partial = parts[len(parts)-1]
		for _, line := range parts[:len(parts)-1] {
			if strings.TrimSpace(line) != "" {
				fn(line)
			}
		}
		return nil
	}

	if err := drain(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("follow: watcher closed")
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := drain(); err != nil {
					return err
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("follow: watcher closed")
			}
			if err != nil {
				return fmt.Errorf("follow: %w", err)
			}
		}
	}
}

type logField struct{ key, value string }

type logEvent struct {
	time, level, message string
	fields               []logField // sorted by key, caller omitted
}

func decodeLine(line string) (logEvent, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		return logEvent{}, false
	}
	ev := logEvent{}
	ev.time, _ = m["time"].(string)
	ev.level, _ = m["level"].(string)
	ev.message, _ = m["message"].(string)
	for k, v := range m {
		switch k {
		case "time", "level", "message", "caller":
			continue
		}
		ev.fields = append(ev.fields, logField{key: k, value: fmt.Sprint(v)})
	}
	sort.Slice(ev.fields, func(i, j int) bool { return ev.fields[i].key < ev.fields[j].key })
	return ev, true
}

// FormatLine renders one JSON log line as "time LEVEL message k=v ...".
// Lines that are not JSON are returned unchanged.
func FormatLine(line string) string {
	ev, ok := decodeLine(line)
	if !ok {
		return line
	}
	var b strings.Builder
	b.WriteString(ev.time + " " + strings.ToUpper(ev.level) + " " + ev.message)
	for _, kv := range ev.fields {
		b.WriteString(" " + kv.key + "=" + kv.value)
	}
	return b.String()
}
