package webserver

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ichi0g0y/prize-wheel/internal/shared/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultLogLimit   = 100
	streamBacklogSize = 50
)

// logFilter は /api/logs と /api/logs/stream 共通の絞り込み条件
type logFilter struct {
	minLevel  zapcore.Level
	sessionID string
}

func parseLogFilter(r *http.Request) (logFilter, error) {
	f := logFilter{minLevel: zapcore.DebugLevel}
	if level := strings.TrimSpace(r.URL.Query().Get("level")); level != "" {
		if err := f.minLevel.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return f, fmt.Errorf("invalid level %q", level)
		}
	}
	f.sessionID = strings.TrimSpace(r.URL.Query().Get("session_id"))
	return f, nil
}

// match はminLevel以上かつ（指定時）同じsession_idのエントリだけを通す
func (f logFilter) match(entry logger.LogEntry) bool {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(entry.Level))); err == nil && lvl < f.minLevel {
		return false
	}
	if f.sessionID != "" {
		v, ok := entry.Fields["session_id"]
		if !ok || fmt.Sprint(v) != f.sessionID {
			return false
		}
	}
	return true
}

type logSubscriber struct {
	conn   *websocket.Conn
	filter logFilter
	send   chan logger.LogEntry
}

// logStream はログの購読者集合
type logStream struct {
	mu          sync.RWMutex
	subscribers map[*logSubscriber]struct{}
}

var (
	logSubscribers = &logStream{subscribers: make(map[*logSubscriber]struct{})}
	logStreamsOnce sync.Once
)

// startLogStreamer はロガーからの配信コールバックを一度だけ登録する
func startLogStreamer() {
	logStreamsOnce.Do(func() {
		logger.SetBroadcastCallback(logSubscribers.publish)
	})
}

func (s *logStream) add(sub *logSubscriber) {
	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()
}

func (s *logStream) remove(sub *logSubscriber) {
	s.mu.Lock()
	if _, ok := s.subscribers[sub]; ok {
		delete(s.subscribers, sub)
		close(sub.send)
	}
	s.mu.Unlock()
}

// publish はロガーのコア内から呼ばれるため、ここでログを出してはいけない
func (s *logStream) publish(entry logger.LogEntry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for sub := range s.subscribers {
		if !sub.filter.match(entry) {
			continue
		}
		select {
		case sub.send <- entry:
		default:
			// 遅い購読者は取りこぼす
		}
	}
}

func (s *logStream) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

func recentLogs(f logFilter, limit int) []logger.LogEntry {
	all := logger.GetLogBuffer().GetRecent(0)
	out := make([]logger.LogEntry, 0, limit)
	// 新しい方から集めて時系列順に戻す
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if f.match(all[i]) {
			out = append(out, all[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// handleLogs returns recent log entries, filtered by minimum level and spin session.
func handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter, err := parseLogFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := defaultLogLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	entries := recentLogs(filter, limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":      entries,
		"count":     len(entries),
		"streaming": logSubscribers.count(),
		"timestamp": time.Now(),
	})
}

func handleLogsDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	buffer := logger.GetLogBuffer()
	name := "prize-wheel-logs-" + time.Now().Format("20060102-150405")

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		data, err := buffer.ToJSON()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to encode logs")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", "attachment; filename="+name+".json")
		_, _ = w.Write(data)
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename="+name+".txt")
		_, _ = w.Write([]byte(buffer.ToText()))
	default:
		writeError(w, http.StatusBadRequest, "format must be json or text")
	}
}

// handleLogsStream streams matching log entries over a WebSocket.
func handleLogsStream(w http.ResponseWriter, r *http.Request) {
	filter, err := parseLogFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade log stream", zap.Error(err))
		return
	}

	sub := &logSubscriber{
		conn:   conn,
		filter: filter,
		send:   make(chan logger.LogEntry, 256),
	}
	for _, entry := range recentLogs(filter, streamBacklogSize) {
		sub.send <- entry
	}
	logSubscribers.add(sub)
	go sub.writeLoop()

	// 切断検知のために読み続ける
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	logSubscribers.remove(sub)
}

func (s *logSubscriber) writeLoop() {
	defer s.conn.Close()
	for entry := range s.send {
		_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := s.conn.WriteJSON(entry); err != nil {
			return
		}
	}
}

func handleLogsClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	logger.GetLogBuffer().Clear()
	logger.Info("Log buffer cleared")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}
