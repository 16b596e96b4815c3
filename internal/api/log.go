package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"wikimap/pkg/logging"
)

// Matches key=value and key="quoted value" pairs of the slog text format.
var logAttrRe = regexp.MustCompile(`([\w\-.]+)=(?:"((?:[^"\\]|\\.)*)"|(\S+))`)

// maxAttrLen drops attributes too long for a status line.
const maxAttrLen = 20

// logLine is a parsed slog text record.
type logLine struct {
	Time  string `json:"time,omitempty"` // HH:MM:SS
	Level string `json:"level,omitempty"`
	Msg   string `json:"msg"`
	Text  string `json:"text"`
}

func parseLogLine(raw string) logLine {
	var l logLine
	var attrs []string

	for _, m := range logAttrRe.FindAllStringSubmatch(raw, -1) {
		key, val := m[1], m[2]
		if val == "" {
			val = m[3]
		}
		val = strings.TrimSpace(val)

		switch key {
		case "time":
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				l.Time = t.Format("15:04:05")
			}
		case "level":
			l.Level = val
		case "msg":
			l.Msg = val
		default:
			if len(val) <= maxAttrLen {
				attrs = append(attrs, key+"="+val)
			}
		}
	}

	if l.Msg == "" {
		l.Msg = raw
		l.Text = raw
		return l
	}

	sort.Strings(attrs)
	var b strings.Builder
	if l.Time != "" {
		b.WriteString(l.Time)
		b.WriteByte(' ')
	}
	b.WriteString(l.Msg)
	if len(attrs) > 0 {
		b.WriteString(" (" + strings.Join(attrs, ", ") + ")")
	}
	l.Text = b.String()
	return l
}

// handleLatestLog serves GET /api/log/latest, the last server log line.
func handleLatestLog(w http.ResponseWriter, r *http.Request) {
	writeLogJSON(w, parseLogLine(logging.GlobalLogCapture.LastLine()))
}

// handleRecentLogs serves GET /api/log?n=.., the n most recent lines (default 20), oldest first.
func handleRecentLogs(w http.ResponseWriter, r *http.Request) {
	n := 20
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			http.Error(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		n = parsed
	}

	raw := logging.GlobalLogCapture.Lines(n)
	lines := make([]logLine, 0, len(raw))
	for _, l := range raw {
		lines = append(lines, parseLogLine(l))
	}
	writeLogJSON(w, lines)
}

func writeLogJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write log response", "error", err)
	}
}
