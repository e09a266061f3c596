package app

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/crooner-live/crooner/internal/catalog"
	"github.com/crooner-live/crooner/internal/session"
)

// apiError is the JSON error body for all API endpoints.
type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, apiError{Error: err.Error()})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnknownSession), errors.Is(err, catalog.ErrUnknownSong):
		return http.StatusNotFound
	case errors.Is(err, session.ErrBadPreset), errors.Is(err, session.ErrNotIdle):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// registerRoutes attaches the REST and WebSocket API to mux.
func (a *App) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", a.handleCreateSession)
	mux.HandleFunc("GET /api/sessions", a.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", a.handleGetSession)
	mux.HandleFunc("GET /api/sessions/{id}/events", a.handleSessionEvents)
	mux.HandleFunc("POST /api/sessions/{id}/cancel", a.handleCancelSession)
	mux.HandleFunc("POST /api/sessions/{id}/sync", a.handleAdjustSync)
	mux.HandleFunc("DELETE /api/sessions/{id}", a.handleRemoveSession)

	mux.HandleFunc("GET /api/leaderboard", a.handleLeaderboard)

	mux.HandleFunc("GET /api/songs", a.handleListSongs)
	mux.HandleFunc("POST /api/songs", a.handlePutSong)
	mux.HandleFunc("POST /api/songs/{id}/sync", a.handleSyncSong)
}

// createSessionRequest is the POST /api/sessions body.
type createSessionRequest struct {
	PlayerName string `json:"player_name"`
	SongID     string `json:"song_id"`

	// DurationSeconds selects a recording preset (10, 20, 30 or 60).
	// Zero or absent means full-song mode.
	DurationSeconds int  `json:"duration_seconds"`
	SkipIntro       bool `json:"skip_intro"`
}

// sessionResponse describes a session over the wire.
type sessionResponse struct {
	ID         string    `json:"id"`
	PlayerName string    `json:"player_name"`
	SongID     string    `json:"song_id"`
	StartedAt  time.Time `json:"started_at"`
	State      string    `json:"state"`

	SyncOffsetMS int64 `json:"sync_offset_ms"`

	// Result is present once the session is complete.
	Result *resultResponse `json:"result,omitempty"`
}

type resultResponse struct {
	Score       float64 `json:"score"`
	Exact       int     `json:"exact"`
	Close       int     `json:"close"`
	Wrong       int     `json:"wrong"`
	Missing     int     `json:"missing"`
	VibeBoosted bool    `json:"vibe_boosted"`
	DurationMS  int64   `json:"duration_ms"`
}

func sessionToResponse(info SessionInfo, s *session.Session) sessionResponse {
	resp := sessionResponse{
		ID:           info.ID,
		PlayerName:   info.PlayerName,
		SongID:       info.SongID,
		StartedAt:    info.StartedAt,
		State:        s.State().String(),
		SyncOffsetMS: s.SyncOffset().Milliseconds(),
	}
	if res, ok := s.Result(); ok {
		resp.Result = &resultResponse{
			Score:       res.Score.Aggregate,
			Exact:       res.Score.Exact,
			Close:       res.Score.Close,
			Wrong:       res.Score.Wrong,
			Missing:     res.Score.Missing,
			VibeBoosted: res.Score.VibeBoosted,
			DurationMS:  res.Duration.Milliseconds(),
		}
	}
	return resp
}

func (a *App) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	info, err := a.manager.Create(r.Context(), CreateRequest{
		PlayerName: req.PlayerName,
		SongID:     req.SongID,
		Duration:   time.Duration(req.DurationSeconds) * time.Second,
		SkipIntro:  req.SkipIntro,
	})
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}

	_, s, _ := a.manager.Get(info.ID)
	writeJSON(w, http.StatusCreated, sessionToResponse(info, s))
}

func (a *App) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	infos := a.manager.List()
	out := make([]sessionResponse, 0, len(infos))
	for _, info := range infos {
		if _, s, err := a.manager.Get(info.ID); err == nil {
			out = append(out, sessionToResponse(info, s))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, s, err := a.manager.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sessionToResponse(info, s))
}

func (a *App) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	if err := a.manager.Cancel(r.PathValue("id")); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleRemoveSession(w http.ResponseWriter, r *http.Request) {
	if err := a.manager.Remove(r.PathValue("id")); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// adjustSyncRequest is the POST /api/sessions/{id}/sync body. Direction is
// +1 or -1; the step size is fixed server-side.
type adjustSyncRequest struct {
	Direction int `json:"direction"`
}

func (a *App) handleAdjustSync(w http.ResponseWriter, r *http.Request) {
	var req adjustSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	offset, err := a.manager.AdjustSync(r.PathValue("id"), req.Direction)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"sync_offset_ms": offset.Milliseconds()})
}

// eventJSON is the wire form of one session event.
type eventJSON struct {
	Kind string    `json:"kind"`
	At   time.Time `json:"at"`

	// State transitions.
	State string `json:"state,omitempty"`

	// Word classifications.
	TokenIndex     int     `json:"token_index,omitempty"`
	Classification string  `json:"classification,omitempty"`
	Similarity     float64 `json:"similarity,omitempty"`
}

func eventToJSON(ev session.Event) eventJSON {
	out := eventJSON{At: ev.At}
	switch ev.Kind {
	case session.KindState:
		out.Kind = "state"
		out.State = ev.State.String()
	case session.KindWord:
		out.Kind = "word"
		out.TokenIndex = ev.Word.Index
		out.Classification = ev.Word.Classification.String()
		out.Similarity = ev.Word.Similarity
	}
	return out
}

// handleSessionEvents streams the session's event sequence over a WebSocket.
// History is replayed first so late-connecting renderers catch up; the socket
// closes normally when the session ends.
func (a *App) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	events, stop, err := a.manager.Subscribe(r.PathValue("id"))
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	defer stop()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	ctx := r.Context()
	for ev := range events {
		data, err := json.Marshal(eventToJSON(ev))
		if err != nil {
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "session ended")
}

func (a *App) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	n := a.cfg.Leaderboard.TopN
	entries, err := a.board.Top(r.Context(), n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// songResponse describes a catalog entry over the wire.
type songResponse struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Artist          string  `json:"artist"`
	DurationSeconds float64 `json:"duration_seconds"`
	HasSynced       bool    `json:"has_synced_lyrics"`
	HasPlain        bool    `json:"has_plain_lyrics"`
}

func songToResponse(s catalog.Song) songResponse {
	return songResponse{
		ID:              s.ID,
		Title:           s.Title,
		Artist:          s.Artist,
		DurationSeconds: s.Duration.Seconds(),
		HasSynced:       s.SyncedLyrics != "",
		HasPlain:        s.PlainLyrics != "",
	}
}

func (a *App) handleListSongs(w http.ResponseWriter, _ *http.Request) {
	songs := a.catalog.List()
	out := make([]songResponse, 0, len(songs))
	for _, s := range songs {
		out = append(out, songToResponse(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// putSongRequest is the POST /api/songs body.
type putSongRequest struct {
	Title           string  `json:"title"`
	Artist          string  `json:"artist"`
	DurationSeconds float64 `json:"duration_seconds"`
	AudioPath       string  `json:"audio_path"`
}

func (a *App) handlePutSong(w http.ResponseWriter, r *http.Request) {
	var req putSongRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Title == "" || req.Artist == "" {
		writeError(w, http.StatusBadRequest, errors.New("title and artist are required"))
		return
	}

	s, err := a.catalog.Put(catalog.Song{
		Title:     req.Title,
		Artist:    req.Artist,
		Duration:  time.Duration(req.DurationSeconds * float64(time.Second)),
		AudioPath: req.AudioPath,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, songToResponse(s))
}

func (a *App) handleSyncSong(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s, err := a.catalog.Sync(r.Context(), a.lyricsync, r.PathValue("id"))
	a.metrics.LyricSyncDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, songToResponse(s))
}
