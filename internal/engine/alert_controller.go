package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bedwatch-engine/internal/models"
	"bedwatch-engine/internal/repository"
)

// AlertController 报警生命周期：创建（含静默窗口去重）与确认
type AlertController struct {
	store       repository.Store
	quietWindow time.Duration
	severity    map[models.AlertType]models.AlertStatus
	logger      *zap.Logger
}

// NewAlertController 创建报警控制器
func NewAlertController(store repository.Store, quietWindow time.Duration, severity map[models.AlertType]models.AlertStatus, logger *zap.Logger) *AlertController {
	return &AlertController{
		store:       store,
		quietWindow: quietWindow,
		severity:    severity,
		logger:      logger,
	}
}

// RaiseResult 一次越界的处理结果
// 被静默去重时 Alert 为 nil、Suppressed 为 true，
// 但 Severity 仍参与读数 alert_status 的聚合
type RaiseResult struct {
	Alert      *models.Alert
	Suppressed bool
	Severity   models.AlertStatus
}

// SeverityFor 报警类型对应的严重度（未配置的类型按 warning 处理）
func (c *AlertController) SeverityFor(alertType models.AlertType) models.AlertStatus {
	if severity, ok := c.severity[alertType]; ok {
		return severity
	}
	return models.AlertStatusWarning
}

// Raise 在摄取事务内处理一次越界
// 静默窗口锚定在同类型最近一条未确认报警：窗口内不再新建，
// 确认后窗口立即失效，下一次越界重新建报警
func (c *AlertController) Raise(ctx context.Context, tx repository.IngestTx, sessionID, readingID string, breach models.Breach, at time.Time) (RaiseResult, error) {
	severity := c.SeverityFor(breach.AlertType)

	latest, err := tx.LatestUnacknowledgedAlert(ctx, sessionID, breach.AlertType)
	if err != nil {
		return RaiseResult{}, fmt.Errorf("failed to check quiet window: %w", err)
	}
	if latest != nil && at.Sub(latest.TriggeredAt) < c.quietWindow {
		c.logger.Debug("Alert suppressed by quiet window",
			zap.String("session_id", sessionID),
			zap.String("alert_type", string(breach.AlertType)),
			zap.String("anchor_alert_id", latest.AlertID),
		)
		return RaiseResult{Suppressed: true, Severity: severity}, nil
	}

	alert := &models.Alert{
		AlertID:        uuid.New().String(),
		SessionID:      sessionID,
		ReadingID:      readingID,
		AlertType:      breach.AlertType,
		ThresholdValue: breach.ThresholdValue,
		ActualValue:    breach.ActualValue,
		TriggeredAt:    at,
		Acknowledged:   false,
		CreatedAt:      time.Now(),
	}

	if err := tx.InsertAlert(ctx, alert); err != nil {
		return RaiseResult{}, err
	}

	return RaiseResult{Alert: alert, Severity: severity}, nil
}

// Acknowledge 确认报警（一次性操作）
func (c *AlertController) Acknowledge(ctx context.Context, alertID, actor string, at time.Time) (*models.Alert, error) {
	if actor == "" {
		return nil, fmt.Errorf("actor is required")
	}
	if at.IsZero() {
		at = time.Now()
	}

	if err := c.store.AcknowledgeAlert(ctx, alertID, actor, at); err != nil {
		return nil, err
	}

	c.logger.Info("Alert acknowledged",
		zap.String("alert_id", alertID),
		zap.String("actor", actor),
	)

	return c.store.GetAlert(ctx, alertID)
}

// GetAlert 按 id 获取报警
func (c *AlertController) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	return c.store.GetAlert(ctx, alertID)
}
