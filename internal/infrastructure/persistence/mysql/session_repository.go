package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"checkout-server/internal/domain/session"
)

// SessionRepository MySQL実装のSessionRepository
type SessionRepository struct {
	db     *DB
	tracer trace.Tracer
}

// NewSessionRepository 新しいSessionRepositoryを作成
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{
		db:     db,
		tracer: otel.Tracer("session-repository"),
	}
}

// Save Sessionを保存（既存の場合は上書き）
func (r *SessionRepository) Save(ctx context.Context, sess *session.Session) error {
	ctx, span := r.tracer.Start(ctx, "SessionRepository.Save")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.session_id", sess.SessionID()),
		attribute.String("db.state", sess.State().String()),
		attribute.String("db.operation", "UPSERT"),
		attribute.String("db.table", "checkout_sessions"),
	)

	query := `
		INSERT INTO checkout_sessions (
			session_id, purchase_ref, method, amount, currency, payer,
			state, provider_ref, error_detail, result, version,
			started_at, resolved_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			state = VALUES(state),
			provider_ref = VALUES(provider_ref),
			error_detail = VALUES(error_detail),
			result = VALUES(result),
			version = VALUES(version),
			started_at = VALUES(started_at),
			resolved_at = VALUES(resolved_at),
			updated_at = VALUES(updated_at)
	`

	payerJSON, err := json.Marshal(sess.Payer())
	if err != nil {
		return fmt.Errorf("failed to marshal payer: %w", err)
	}

	var errorDetailJSON sql.NullString
	if detail := sess.ErrorDetail(); detail != nil {
		data, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("failed to marshal error_detail: %w", err)
		}
		errorDetailJSON = sql.NullString{String: string(data), Valid: true}
	}

	var resultJSON sql.NullString
	if result := sess.Result(); result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		resultJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, query,
		sess.SessionID(),
		sess.PurchaseRef(),
		sess.Method().String(),
		sess.Amount(),
		sess.Currency(),
		string(payerJSON),
		sess.State().String(),
		sess.ProviderRef(),
		errorDetailJSON,
		resultJSON,
		sess.Version(),
		nullableTime(sess.StartedAt()),
		nullableTime(sess.ResolvedAt()),
		sess.CreatedAt(),
		sess.UpdatedAt(),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to save session: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "session saved")
	return nil
}

// FindBySessionID セッションIDでSessionを取得
func (r *SessionRepository) FindBySessionID(ctx context.Context, sessionID string) (*session.Session, error) {
	ctx, span := r.tracer.Start(ctx, "SessionRepository.FindBySessionID")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.session_id", sessionID),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "checkout_sessions"),
	)

	query := selectSessionQuery + ` WHERE session_id = ?`
	sess, err := r.scanSession(r.db.QueryRowContext(ctx, query, sessionID))
	if err == session.ErrSessionNotFound {
		span.SetStatus(otelcodes.Ok, "session not found")
		return nil, err
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(otelcodes.Ok, "session found")
	return sess, nil
}

// FindActiveByPurchaseRef 購入参照で非終端のSessionを取得
func (r *SessionRepository) FindActiveByPurchaseRef(ctx context.Context, purchaseRef string) (*session.Session, error) {
	ctx, span := r.tracer.Start(ctx, "SessionRepository.FindActiveByPurchaseRef")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.purchase_ref", purchaseRef),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "checkout_sessions"),
	)

	query := selectSessionQuery + `
		WHERE purchase_ref = ?
		  AND state NOT IN ('succeeded', 'failed', 'cancelled')
		ORDER BY created_at DESC
		LIMIT 1
	`
	sess, err := r.scanSession(r.db.QueryRowContext(ctx, query, purchaseRef))
	if err == session.ErrSessionNotFound {
		span.SetStatus(otelcodes.Ok, "active session not found")
		return nil, err
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(otelcodes.Ok, "active session found")
	return sess, nil
}

const selectSessionQuery = `
		SELECT
			session_id, purchase_ref, method, amount, currency, payer,
			state, provider_ref, error_detail, result, version,
			started_at, resolved_at, created_at, updated_at
		FROM checkout_sessions
`

// scanSession 1行をSessionエンティティへ復元
func (r *SessionRepository) scanSession(row *sql.Row) (*session.Session, error) {
	var dbSessionID, dbPurchaseRef, dbMethod, dbCurrency, dbState, dbProviderRef string
	var amount int64
	var version int
	var payerJSON string
	var errorDetailJSON, resultJSON sql.NullString
	var startedAt, resolvedAt sql.NullTime
	var createdAt, updatedAt time.Time

	err := row.Scan(
		&dbSessionID,
		&dbPurchaseRef,
		&dbMethod,
		&amount,
		&dbCurrency,
		&payerJSON,
		&dbState,
		&dbProviderRef,
		&errorDetailJSON,
		&resultJSON,
		&version,
		&startedAt,
		&resolvedAt,
		&createdAt,
		&updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	method, err := session.NewPaymentMethod(dbMethod)
	if err != nil {
		return nil, fmt.Errorf("invalid payment method: %w", err)
	}
	state, err := session.NewSessionState(dbState)
	if err != nil {
		return nil, fmt.Errorf("invalid session state: %w", err)
	}

	var payer session.Payer
	if err := json.Unmarshal([]byte(payerJSON), &payer); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payer: %w", err)
	}

	var errorDetail *session.ErrorDetail
	if errorDetailJSON.Valid && errorDetailJSON.String != "" {
		var detail session.ErrorDetail
		if err := json.Unmarshal([]byte(errorDetailJSON.String), &detail); err != nil {
			return nil, fmt.Errorf("failed to unmarshal error_detail: %w", err)
		}
		errorDetail = &detail
	}

	var result *session.Result
	if resultJSON.Valid && resultJSON.String != "" {
		var res session.Result
		if err := json.Unmarshal([]byte(resultJSON.String), &res); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		result = &res
	}

	return session.RehydrateSession(
		dbSessionID,
		dbPurchaseRef,
		method,
		amount,
		dbCurrency,
		payer,
		state,
		dbProviderRef,
		errorDetail,
		result,
		version,
		timeOrZero(startedAt),
		timeOrZero(resolvedAt),
		createdAt,
		updatedAt,
	), nil
}

// nullableTime ゼロ値の時刻をNULLへ変換
func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// timeOrZero NULLの時刻をゼロ値へ変換
func timeOrZero(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}
