package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"dreamlog/backend/internal/dream"
	"dreamlog/backend/internal/llm"
	"dreamlog/backend/internal/realtime"
)

// Reanalyze is the queue handler for dreams first stored with a fallback
// analysis. It asks for a retry while every real backend is still failing,
// and returns the context error when the job was cut short.
func (a *API) Reanalyze(ctx context.Context, msg llm.QueueMessage) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}
	result, report := a.Engine.AnalyzeWithReport(ctx, dream.DreamInput{
		Content:        msg.Content,
		MoodLevel:      msg.MoodLevel,
		RealityContext: msg.RealityContext,
	})
	if err := ctx.Err(); err != nil {
		return true, err
	}
	if report.Degraded {
		return true, nil
	}
	if err := a.storeAnalysis(ctx, msg.UserID, msg.DreamID, result, report); err != nil {
		return false, err
	}
	if a.Attempts != nil {
		if err := a.Attempts.InsertAttempts(ctx, &msg.DreamID, report.Attempts); err != nil {
			a.Logger.Warn("record backend attempts failed", zap.Int64("dream_id", msg.DreamID), zap.Error(err))
		}
	}
	if a.Hub != nil {
		a.Hub.Broadcast(msg.UserID, map[string]any{
			"type":     realtime.EventDreamAnalysis,
			"dream_id": msg.DreamID,
			"analysis": result,
			"backend":  report.Backend,
		})
	}
	return false, nil
}

func (a *API) storeAnalysis(ctx context.Context, userID, dreamID int64, result *dream.AnalysisResult, report dream.Report) error {
	radar, err := json.Marshal(result.Radar)
	if err != nil {
		return err
	}
	return a.Store.WithUserConn(ctx, userID, func(conn *pgxpool.Conn) error {
		command, err := conn.Exec(ctx, `
			UPDATE dreams
			SET analysis=$1, narrative=$2, keywords=$3, radar=$4, backend=$5, degraded=$6, updated_at=$7
			WHERE id=$8 AND user_id=$9`,
			result.Packed(), result.Narrative, result.Keywords, radar, report.Backend, report.Degraded,
			time.Now().UTC(), dreamID, userID)
		if err != nil {
			return err
		}
		if command.RowsAffected() == 0 {
			return errNotFound
		}
		return nil
	})
}
