package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AnishVcode/senior-launcher/internal/models"

	"go.uber.org/zap"
)

// AlarmEventsRepository 报警事件仓库（alarm_events 表）
type AlarmEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlarmEventsRepository 创建报警事件仓库
func NewAlarmEventsRepository(db *sql.DB, logger *zap.Logger) *AlarmEventsRepository {
	return &AlarmEventsRepository{
		db:     db,
		logger: logger,
	}
}

// AlarmEventFilters 列表查询过滤条件
type AlarmEventFilters struct {
	DeviceID    *string
	EventType   *string
	AlarmStatus *string
	StartTime   *time.Time
	EndTime     *time.Time
}

const alarmEventColumns = `
			event_id,
			tenant_id,
			device_id,
			event_type,
			category,
			alarm_level,
			alarm_status,
			triggered_at,
			hand_time,
			trigger_data,
			handler,
			operation,
			notes,
			notified_users,
			metadata,
			created_at,
			updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAlarmEvent 扫描一行并处理可空字段 / JSONB 默认值
func scanAlarmEvent(row rowScanner) (*models.AlarmEvent, error) {
	var event models.AlarmEvent
	var handTime sql.NullTime
	var handler, operation, notes sql.NullString
	var triggerData, notifiedUsers, metadata []byte

	if err := row.Scan(
		&event.EventID,
		&event.TenantID,
		&event.DeviceID,
		&event.EventType,
		&event.Category,
		&event.AlarmLevel,
		&event.AlarmStatus,
		&event.TriggeredAt,
		&handTime,
		&triggerData,
		&handler,
		&operation,
		&notes,
		&notifiedUsers,
		&metadata,
		&event.CreatedAt,
		&event.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if handTime.Valid {
		event.HandTime = &handTime.Time
	}
	if handler.Valid {
		event.Handler = &handler.String
	}
	if operation.Valid {
		event.Operation = &operation.String
	}
	if notes.Valid {
		event.Notes = &notes.String
	}

	event.TriggerData = jsonOrDefault(triggerData, "{}")
	event.NotifiedUsers = jsonOrDefault(notifiedUsers, "[]")
	event.Metadata = jsonOrDefault(metadata, "{}")

	return &event, nil
}

func jsonOrDefault(b []byte, def string) json.RawMessage {
	if len(b) > 0 {
		return json.RawMessage(b)
	}
	return json.RawMessage(def)
}

// GetAlarmEvent 根据 event_id 获取单个报警事件（需验证 tenant_id）
func (r *AlarmEventsRepository) GetAlarmEvent(ctx context.Context, tenantID, eventID string) (*models.AlarmEvent, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if eventID == "" {
		return nil, fmt.Errorf("event_id is required")
	}

	query := `
		SELECT ` + alarmEventColumns + `
		FROM alarm_events
		WHERE event_id = $1
		  AND tenant_id = $2
	`

	event, err := scanAlarmEvent(r.db.QueryRowContext(ctx, query, eventID, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("alarm event not found: event_id=%s, tenant_id=%s", eventID, tenantID)
		}
		return nil, fmt.Errorf("failed to get alarm event: %w", err)
	}
	return event, nil
}

// CreateAlarmEvent 创建报警事件（需验证 tenant_id）
func (r *AlarmEventsRepository) CreateAlarmEvent(ctx context.Context, tenantID string, event *models.AlarmEvent) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if event.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	event.TenantID = tenantID

	if len(event.TriggerData) == 0 {
		event.TriggerData = json.RawMessage("{}")
	}
	if len(event.NotifiedUsers) == 0 {
		event.NotifiedUsers = json.RawMessage("[]")
	}
	if len(event.Metadata) == 0 {
		event.Metadata = json.RawMessage("{}")
	}

	query := `
		INSERT INTO alarm_events (
			event_id, tenant_id, device_id, event_type, category,
			alarm_level, alarm_status, triggered_at, trigger_data,
			notified_users, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.EventID,
		event.TenantID,
		event.DeviceID,
		event.EventType,
		event.Category,
		event.AlarmLevel,
		event.AlarmStatus,
		event.TriggeredAt,
		[]byte(event.TriggerData),
		[]byte(event.NotifiedUsers),
		[]byte(event.Metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to create alarm event: %w", err)
	}

	r.logger.Debug("Alarm event created",
		zap.String("event_id", event.EventID),
		zap.String("device_id", event.DeviceID),
		zap.String("event_type", event.EventType),
	)
	return nil
}

// UpdateAlarmEvent 更新报警事件（动态 SET）
func (r *AlarmEventsRepository) UpdateAlarmEvent(ctx context.Context, tenantID, eventID string, updates map[string]interface{}) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if eventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if len(updates) == 0 {
		return nil
	}

	// 允许更新的字段（固定顺序，保证占位符稳定）
	allowed := []string{"alarm_status", "hand_time", "handler", "operation", "notes"}

	setClauses := []string{}
	args := []interface{}{}
	argN := 1
	for _, field := range allowed {
		value, ok := updates[field]
		if !ok {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", field, argN))
		args = append(args, value)
		argN++
	}
	if len(setClauses) == 0 {
		return fmt.Errorf("no updatable fields in update")
	}
	setClauses = append(setClauses, "updated_at = NOW()")

	query := fmt.Sprintf(`
		UPDATE alarm_events
		SET %s
		WHERE event_id = $%d AND tenant_id = $%d
	`, strings.Join(setClauses, ", "), argN, argN+1)
	args = append(args, eventID, tenantID)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update alarm event: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("alarm event not found: event_id=%s, tenant_id=%s", eventID, tenantID)
	}
	return nil
}

func (r *AlarmEventsRepository) buildWhereClause(tenantID string, filters AlarmEventFilters, args *[]interface{}, argN *int) []string {
	where := []string{fmt.Sprintf("tenant_id = $%d", *argN)}
	*args = append(*args, tenantID)
	*argN++

	if filters.DeviceID != nil {
		where = append(where, fmt.Sprintf("device_id = $%d", *argN))
		*args = append(*args, *filters.DeviceID)
		*argN++
	}
	if filters.EventType != nil {
		where = append(where, fmt.Sprintf("event_type = $%d", *argN))
		*args = append(*args, *filters.EventType)
		*argN++
	}
	if filters.AlarmStatus != nil {
		where = append(where, fmt.Sprintf("alarm_status = $%d", *argN))
		*args = append(*args, *filters.AlarmStatus)
		*argN++
	}
	if filters.StartTime != nil {
		where = append(where, fmt.Sprintf("triggered_at >= $%d", *argN))
		*args = append(*args, *filters.StartTime)
		*argN++
	}
	if filters.EndTime != nil {
		where = append(where, fmt.Sprintf("triggered_at <= $%d", *argN))
		*args = append(*args, *filters.EndTime)
		*argN++
	}
	return where
}

// ListAlarmEvents 列表查询（过滤 + 分页），返回当前页和总数
func (r *AlarmEventsRepository) ListAlarmEvents(ctx context.Context, tenantID string, filters AlarmEventFilters, page, size int) ([]*models.AlarmEvent, int, error) {
	if tenantID == "" {
		return []*models.AlarmEvent{}, 0, nil
	}
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 500 {
		size = 50
	}

	args := []interface{}{}
	argN := 1
	where := r.buildWhereClause(tenantID, filters, &args, &argN)
	whereClause := "WHERE " + strings.Join(where, " AND ")

	// 1. 总数
	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM alarm_events %s`, whereClause)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alarm events: %w", err)
	}
	if total == 0 {
		return []*models.AlarmEvent{}, 0, nil
	}

	// 2. 当前页
	query := fmt.Sprintf(`
		SELECT %s
		FROM alarm_events
		%s
		ORDER BY triggered_at DESC
		LIMIT $%d OFFSET $%d
	`, alarmEventColumns, whereClause, argN, argN+1)
	args = append(args, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alarm events: %w", err)
	}
	defer rows.Close()

	events := []*models.AlarmEvent{}
	for rows.Next() {
		event, err := scanAlarmEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan alarm event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate alarm events: %w", err)
	}

	return events, total, nil
}

// GetRecentAlarmEvent 查询设备最近的活跃报警（用于去重），没有则返回 nil, nil
func (r *AlarmEventsRepository) GetRecentAlarmEvent(ctx context.Context, tenantID, deviceID, eventType string, within time.Duration) (*models.AlarmEvent, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if eventType == "" {
		return nil, fmt.Errorf("event_type is required")
	}

	threshold := time.Now().Add(-within)

	query := `
		SELECT ` + alarmEventColumns + `
		FROM alarm_events
		WHERE tenant_id = $1
		  AND device_id = $2
		  AND event_type = $3
		  AND triggered_at > $4
		  AND alarm_status = 'active'
		ORDER BY triggered_at DESC
		LIMIT 1
	`

	event, err := scanAlarmEvent(r.db.QueryRowContext(ctx, query, tenantID, deviceID, eventType, threshold))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query recent alarm event: %w", err)
	}
	return event, nil
}

// AcknowledgeAlarmEvent 用户确认 "I'm OK"：状态 acknowledged，操作结果 false_alarm
func (r *AlarmEventsRepository) AcknowledgeAlarmEvent(ctx context.Context, tenantID, eventID, handlerID string) error {
	if handlerID == "" {
		return fmt.Errorf("handler_id is required")
	}

	updates := map[string]interface{}{
		"alarm_status": models.AlarmStatusAcknowledged,
		"operation":    models.OperationFalseAlarm,
		"hand_time":    time.Now(),
		"handler":      handlerID,
	}
	return r.UpdateAlarmEvent(ctx, tenantID, eventID, updates)
}

// EscalateAlarmEvent 用户请求帮助：状态 acknowledged，操作结果 escalated
// 之后的 "I'm OK" 不能再把它改成 false_alarm
func (r *AlarmEventsRepository) EscalateAlarmEvent(ctx context.Context, tenantID, eventID, handlerID, notes string) error {
	if handlerID == "" {
		return fmt.Errorf("handler_id is required")
	}

	updates := map[string]interface{}{
		"alarm_status": models.AlarmStatusAcknowledged,
		"operation":    models.OperationEscalated,
		"hand_time":    time.Now(),
		"handler":      handlerID,
	}
	if notes != "" {
		updates["notes"] = notes
	}
	return r.UpdateAlarmEvent(ctx, tenantID, eventID, updates)
}
