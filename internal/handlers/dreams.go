package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"dreamlog/backend/internal/auth"
	"dreamlog/backend/internal/dream"
	"dreamlog/backend/internal/llm"
	"dreamlog/backend/internal/models"
)

const (
	modePersonal = "personal"
	modeLibrary  = "library"
	modeSaved    = "saved"
)

var errLoginRequired = errors.New("login required")

type dreamRequest struct {
	Content        string `json:"content"`
	MoodLevel      int    `json:"mood_level"`
	RealityContext string `json:"reality_context"`
	IsPublic       bool   `json:"is_public"`
	IsAnonymous    bool   `json:"is_anonymous"`
}

type dreamFilter struct {
	Mode   string
	Viewer int64
	Search string
	Mood   int
	Limit  int
	Offset int
}

const dreamColumns = `
	d.id, d.user_id, u.username, d.content, d.mood_level, d.reality_context,
	d.is_public, d.is_anonymous, d.analysis, d.narrative, d.keywords, d.radar,
	d.backend, d.degraded, d.created_at, d.updated_at,
	EXISTS (SELECT 1 FROM saved_dreams s WHERE s.dream_id = d.id AND s.user_id = $1) AS is_saved`

// buildDreamQuery assembles the list query for a mode. $1 is always the
// viewer, so saved flags resolve for every mode.
func buildDreamQuery(filter dreamFilter) (string, []any, error) {
	args := []any{filter.Viewer}
	var where []string

	switch filter.Mode {
	case modePersonal:
		if filter.Viewer == 0 {
			return "", nil, errLoginRequired
		}
		where = append(where, "d.user_id = $1")
	case modeLibrary:
		where = append(where, "d.is_public")
	case modeSaved:
		if filter.Viewer == 0 {
			return "", nil, errLoginRequired
		}
		where = append(where, "EXISTS (SELECT 1 FROM saved_dreams sv WHERE sv.dream_id = d.id AND sv.user_id = $1)")
	default:
		return "", nil, fmt.Errorf("unknown mode %q", filter.Mode)
	}

	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(d.content ILIKE $%d OR d.narrative ILIKE $%d OR array_to_string(d.keywords, ' ') ILIKE $%d)", n, n, n))
	}
	if filter.Mood != 0 {
		args = append(args, filter.Mood)
		where = append(where, fmt.Sprintf("d.mood_level = $%d", len(args)))
	}

	args = append(args, filter.Limit, filter.Offset)
	query := "SELECT " + dreamColumns + `
	FROM dreams d
	JOIN users u ON u.id = d.user_id
	WHERE ` + strings.Join(where, " AND ") + fmt.Sprintf(`
	ORDER BY d.created_at DESC, d.id DESC
	LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	return query, args, nil
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

func scanDream(row pgx.Row, viewer int64) (models.Dream, error) {
	var item models.Dream
	var radar []byte
	if err := row.Scan(
		&item.ID, &item.UserID, &item.Author, &item.Content, &item.MoodLevel, &item.RealityContext,
		&item.IsPublic, &item.IsAnonymous, &item.Analysis, &item.Narrative, &item.Keywords, &radar,
		&item.Backend, &item.Degraded, &item.CreatedAt, &item.UpdatedAt, &item.IsSaved,
	); err != nil {
		return item, err
	}
	if len(radar) > 0 {
		var profile dream.RadarProfile
		if err := json.Unmarshal(radar, &profile); err == nil {
			item.Radar = &profile
		}
	}
	item.IsOwner = viewer != 0 && item.UserID == viewer
	if item.Keywords == nil {
		item.Keywords = []string{}
	}
	item.Hydrate()
	return item, nil
}

func (a *API) ListDreams(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, limit := parsePagination(r)
	filter := dreamFilter{
		Mode:   query.Get("mode"),
		Viewer: viewerID(r),
		Search: query.Get("q"),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if filter.Mode == "" {
		filter.Mode = modePersonal
	}
	if value := query.Get("mood"); value != "" {
		mood, err := strconv.Atoi(value)
		if err != nil || !validMood(mood) {
			writeError(w, http.StatusBadRequest, "mood must be between 1 and 5")
			return
		}
		filter.Mood = mood
	}

	sql, args, err := buildDreamQuery(filter)
	if errors.Is(err, errLoginRequired) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items := []models.Dream{}
	if err := a.Store.WithUserConn(ctx, filter.Viewer, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			item, err := scanDream(rows, filter.Viewer)
			if err != nil {
				return err
			}
			if item.IsAnonymous && filter.Mode == modeLibrary {
				item.Author = models.AnonymousAuthor
			}
			items = append(items, item)
		}
		return rows.Err()
	}); err != nil {
		a.log(r).Error("list dreams failed", zap.String("mode", filter.Mode), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list dreams")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": items, "page": page, "limit": limit})
}

func (a *API) CreateDream(w http.ResponseWriter, r *http.Request) {
	userID := viewerID(r)
	if userID == 0 {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req dreamRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.MoodLevel == 0 {
		req.MoodLevel = 3
	}
	if !validMood(req.MoodLevel) {
		writeError(w, http.StatusBadRequest, "mood_level must be between 1 and 5")
		return
	}

	result, report := a.Engine.AnalyzeWithReport(r.Context(), dream.DreamInput{
		Content:        req.Content,
		MoodLevel:      req.MoodLevel,
		RealityContext: req.RealityContext,
	})

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	radar, err := json.Marshal(result.Radar)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode analysis")
		return
	}
	user, _ := auth.UserFromContext(r.Context())
	item := models.Dream{
		UserID:         userID,
		Author:         user.Username,
		Content:        req.Content,
		MoodLevel:      req.MoodLevel,
		RealityContext: req.RealityContext,
		IsPublic:       req.IsPublic,
		IsAnonymous:    req.IsAnonymous,
		IsOwner:        true,
		Analysis:       result.Packed(),
		Narrative:      result.Narrative,
		Keywords:       result.Keywords,
		Radar:          &result.Radar,
		Backend:        report.Backend,
		Degraded:       report.Degraded,
	}
	if err := a.Store.WithUserConn(ctx, userID, func(conn *pgxpool.Conn) error {
		now := time.Now().UTC()
		return conn.QueryRow(ctx, `
			INSERT INTO dreams (user_id, content, mood_level, reality_context, is_public, is_anonymous,
			                    analysis, narrative, keywords, radar, backend, degraded, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
			RETURNING id, created_at, updated_at`,
			userID, item.Content, item.MoodLevel, item.RealityContext, item.IsPublic, item.IsAnonymous,
			item.Analysis, item.Narrative, item.Keywords, radar, item.Backend, item.Degraded, now).Scan(
			&item.ID, &item.CreatedAt, &item.UpdatedAt,
		)
	}); err != nil {
		a.log(r).Error("store dream failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save dream")
		return
	}

	a.recordAttempts(ctx, r, &item.ID, report)
	if report.Degraded && a.Queue != nil {
		if err := a.Queue.Enqueue(ctx, llm.QueueMessage{
			UserID:         userID,
			DreamID:        item.ID,
			Content:        req.Content,
			MoodLevel:      req.MoodLevel,
			RealityContext: req.RealityContext,
		}); err != nil {
			a.log(r).Warn("queue reanalysis failed", zap.Int64("dream_id", item.ID), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"dream":    item,
		"analysis": result,
	})
}

func (a *API) DeleteDream(w http.ResponseWriter, r *http.Request, dreamID int64) {
	userID := viewerID(r)
	if userID == 0 {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := a.Store.WithUserConn(ctx, userID, func(conn *pgxpool.Conn) error {
		command, err := conn.Exec(ctx, `DELETE FROM dreams WHERE id=$1 AND user_id=$2`, dreamID, userID)
		if err != nil {
			return err
		}
		if command.RowsAffected() == 0 {
			return errNotFound
		}
		return nil
	}); err != nil {
		writeError(w, http.StatusNotFound, "dream not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ToggleSave flips the viewer's bookmark on a dream they can see.
func (a *API) ToggleSave(w http.ResponseWriter, r *http.Request, dreamID int64) {
	userID := viewerID(r)
	if userID == 0 {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	saved := false
	if err := a.Store.WithUserConn(ctx, userID, func(conn *pgxpool.Conn) error {
		command, err := conn.Exec(ctx, `DELETE FROM saved_dreams WHERE user_id=$1 AND dream_id=$2`, userID, dreamID)
		if err != nil {
			return err
		}
		if command.RowsAffected() > 0 {
			return nil
		}
		command, err = conn.Exec(ctx, `
			INSERT INTO saved_dreams (user_id, dream_id, created_at)
			SELECT $1, d.id, $3 FROM dreams d
			WHERE d.id=$2 AND (d.is_public OR d.user_id=$1)
			ON CONFLICT DO NOTHING`, userID, dreamID, time.Now().UTC())
		if err != nil {
			return err
		}
		if command.RowsAffected() == 0 {
			return errNotFound
		}
		saved = true
		return nil
	}); err != nil {
		if errors.Is(err, errNotFound) {
			writeError(w, http.StatusNotFound, "dream not found")
			return
		}
		a.log(r).Error("toggle save failed", zap.Int64("dream_id", dreamID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update saved dreams")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_saved": saved})
}

func (a *API) recordAttempts(ctx context.Context, r *http.Request, dreamID *int64, report dream.Report) {
	if a.Attempts == nil {
		return
	}
	if err := a.Attempts.InsertAttempts(ctx, dreamID, report.Attempts); err != nil {
		a.log(r).Warn("record backend attempts failed", zap.Error(err))
	}
}
