package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"dreamlog/backend/internal/dream"
)

type analyzeRequest struct {
	Content        string `json:"content"`
	MoodLevel      int    `json:"mood_level"`
	RealityContext string `json:"reality_context"`
}

// Analyze runs the engine without storing anything.
func (a *API) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
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
	if report.Degraded {
		a.log(r).Info("analysis served by fallback", zap.Int("attempts", len(report.Attempts)))
	}
	a.recordAttempts(r.Context(), r, nil, report)

	writeJSON(w, http.StatusOK, map[string]any{
		"analysis": result,
		"packed":   result.Packed(),
		"backend":  report.Backend,
		"degraded": report.Degraded,
	})
}
