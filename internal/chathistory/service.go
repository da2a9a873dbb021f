package chathistory

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lorebook/lorebook/internal/cache"
	"github.com/lorebook/lorebook/internal/knowledge"
)

// HistoryAPI is what the sync needs from the chat platform: backwards-paged
// group history and the bot's own identity. cursor 0 means the most recent
// page.
type HistoryAPI interface {
	GroupMessageHistory(ctx context.Context, groupID, cursor int64) ([]Message, error)
	SelfID(ctx context.Context) (int64, error)
}

// historyCache is the slice of the cache layer the service uses.
type historyCache interface {
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration)
}

// Config tunes the sync loops.
type Config struct {
	// MaxPages bounds the server drain so one request can never backfill
	// a group's entire history.
	MaxPages int
	// MaxFailures ends the server drain after that many consecutive
	// request failures. Exhausting retries is non-fatal.
	MaxFailures    int
	FailureBackoff time.Duration
	PagePause      time.Duration
	LocalBatch     int
	CacheTTL       time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxPages <= 0 {
		c.MaxPages = 20
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 3
	}
	if c.FailureBackoff <= 0 {
		c.FailureBackoff = time.Second
	}
	if c.PagePause <= 0 {
		c.PagePause = 100 * time.Millisecond
	}
	if c.LocalBatch <= 0 {
		c.LocalBatch = 20
	}
	return c
}

// Service syncs group chat history in three stages: one cold-start page from
// the server, a drain of the previously cached list, then backwards paging
// of the server for whatever is still missing. Every stage merges by message
// id, so re-running a sync never duplicates or loses a message.
type Service struct {
	api    HistoryAPI
	cache  historyCache
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	selfID    int64
	selfKnown bool
}

func New(api HistoryAPI, store historyCache, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, cache: store, cfg: cfg.withDefaults(), logger: logger}
}

// Messages syncs the group's history and returns the filtered, formatted
// lines, oldest first.
func (s *Service) Messages(ctx context.Context, groupID int64, req knowledge.HistoryRequest) ([]string, error) {
	selfID := s.resolveSelfID(ctx)

	state := newSyncState(req)
	key := cache.HistoryKey(strconv.FormatInt(groupID, 10))
	var cached []Message
	if s.cache != nil && s.cache.Get(ctx, key, &cached) {
		state.mergeCached(cached)
		s.logger.Debug("history cache primed", "group", groupID, "messages", len(cached))
	}

	s.coldStart(ctx, groupID, state)
	if !state.done() {
		s.localDrain(state)
	}
	if !state.done() {
		s.serverDrain(ctx, groupID, state)
	}

	sorted := state.sorted()
	if s.cache != nil {
		s.cache.Set(ctx, key, sorted, s.cfg.CacheTTL)
	}

	filtered := filterMessages(sorted, req)
	lines := make([]string, 0, len(filtered))
	for _, msg := range filtered {
		lines = append(lines, FormatMessage(msg, selfID))
	}
	s.logger.Info("history sync finished",
		"group", groupID, "merged", len(sorted), "returned", len(lines))
	return lines, nil
}

// resolveSelfID fetches the bot's own id once. A failed lookup sticks as -1
// so every message renders as a group member rather than failing the sync.
func (s *Service) resolveSelfID(ctx context.Context) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selfKnown {
		return s.selfID
	}
	id, err := s.api.SelfID(ctx)
	if err != nil {
		s.logger.Error("self id lookup failed", "error", err)
		id = -1
	}
	s.selfID = id
	s.selfKnown = true
	return id
}

func (s *Service) coldStart(ctx context.Context, groupID int64, state *syncState) {
	batch, err := s.api.GroupMessageHistory(ctx, groupID, 0)
	if err != nil {
		// Continue with the local stages; the cache may still satisfy
		// the request.
		s.logger.Error("cold start fetch failed", "group", groupID, "error", err)
		return
	}
	if len(batch) == 0 {
		s.logger.Debug("cold start returned no messages", "group", groupID)
		return
	}
	added := state.merge(batch)
	if added > 0 {
		state.cursor = batch[0].MessageID
	}
	s.logger.Debug("cold start merged", "group", groupID, "new", added, "cursor", state.cursor)
}

func (s *Service) localDrain(state *syncState) {
	for {
		idx, ok := state.index[state.cursor]
		if !ok {
			return
		}
		start := idx - s.cfg.LocalBatch
		if start < 0 {
			start = 0
		}
		batch := reversed(state.cached[start:idx])
		if len(batch) == 0 {
			return
		}
		added := state.merge(batch)
		if state.done() || added == 0 {
			return
		}
		state.cursor = batch[0].MessageID
	}
}

func (s *Service) serverDrain(ctx context.Context, groupID int64, state *syncState) {
	failures := 0
	pages := 0
	for {
		batch, err := s.api.GroupMessageHistory(ctx, groupID, state.cursor)
		if err != nil {
			failures++
			s.logger.Warn("server drain fetch failed",
				"group", groupID, "failures", failures, "error", err)
			if failures >= s.cfg.MaxFailures {
				return
			}
			if !sleep(ctx, s.cfg.FailureBackoff) {
				return
			}
			continue
		}
		failures = 0
		pages++
		if len(batch) == 0 {
			return
		}
		added := state.merge(batch)
		if state.done() || pages >= s.cfg.MaxPages || added == 0 {
			return
		}
		state.cursor = batch[0].MessageID
		if !sleep(ctx, s.cfg.PagePause) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// syncState is the running merge of one sync call.
type syncState struct {
	messages []Message
	seen     map[int64]struct{}
	cursor   int64

	cached []Message
	index  map[int64]int

	wantCount int
	cutoff    int64 // oldest acceptable unix time, 0 when unbounded
	oldest    int64
}

func newSyncState(req knowledge.HistoryRequest) *syncState {
	state := &syncState{
		seen:  make(map[int64]struct{}),
		index: make(map[int64]int),
	}
	if req.Count > 0 {
		state.wantCount = req.Count
	}
	if req.Hours > 0 {
		state.cutoff = time.Now().Add(-time.Duration(req.Hours) * time.Hour).Unix()
	}
	return state
}

// mergeCached seeds the running set from the previous sync's cache and keeps
// the id→index map the local drain navigates by.
func (st *syncState) mergeCached(cached []Message) {
	st.cached = cached
	for i, msg := range cached {
		st.index[msg.MessageID] = i
	}
	st.merge(cached)
}

// merge adds the batch's unseen messages and returns how many were new.
func (st *syncState) merge(batch []Message) int {
	added := 0
	for _, msg := range batch {
		if _, ok := st.seen[msg.MessageID]; ok {
			continue
		}
		st.seen[msg.MessageID] = struct{}{}
		st.messages = append(st.messages, msg)
		if st.oldest == 0 || msg.Time < st.oldest {
			st.oldest = msg.Time
		}
		added++
	}
	return added
}

// done reports whether a stopping condition fired: enough messages, or the
// accumulated set already reaches past the requested time window.
func (st *syncState) done() bool {
	if st.wantCount > 0 && len(st.messages) >= st.wantCount {
		return true
	}
	if st.cutoff > 0 && len(st.messages) > 0 && st.oldest < st.cutoff {
		return true
	}
	return false
}

func (st *syncState) sorted() []Message {
	out := make([]Message, len(st.messages))
	copy(out, st.messages)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

func reversed(in []Message) []Message {
	out := make([]Message, len(in))
	for i, msg := range in {
		out[len(in)-1-i] = msg
	}
	return out
}

// filterMessages applies the request's time window, sender and keyword
// filters to the merged set.
func filterMessages(messages []Message, req knowledge.HistoryRequest) []Message {
	var cutoff int64
	if req.Hours > 0 {
		cutoff = time.Now().Add(-time.Duration(req.Hours) * time.Hour).Unix()
	}
	senders := make(map[string]struct{}, len(req.SenderIDs))
	for _, id := range req.SenderIDs {
		if id = strings.TrimSpace(id); id != "" {
			senders[id] = struct{}{}
		}
	}

	var out []Message
	for _, msg := range messages {
		if cutoff > 0 && msg.Time < cutoff {
			continue
		}
		if len(senders) > 0 {
			if _, ok := senders[strconv.FormatInt(msg.Sender.UserID, 10)]; !ok {
				continue
			}
		}
		if len(req.Keywords) > 0 && !matchesKeyword(RenderContent(msg), req.Keywords) {
			continue
		}
		out = append(out, msg)
	}
	return out
}

func matchesKeyword(content string, keywords []string) bool {
	for _, keyword := range keywords {
		if keyword != "" && strings.Contains(content, keyword) {
			return true
		}
	}
	return false
}
