package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"checkout-server/internal/domain/provider"
	"checkout-server/internal/domain/session"
	otelinfra "checkout-server/internal/infrastructure/observability/otel"
)

// Listener セッション状態変化の通知を受け取るコールバック
type Listener func(resp *SessionResponse)

// sessionRuntime アクティブなセッションのインメモリ状態
// generationはキャンセルや終端遷移のたびにインクリメントされ、
// 古い世代のプロバイダー応答を破棄するためのガードとして使う
type sessionRuntime struct {
	sess        *session.Session
	generation  int
	pollCancel  context.CancelFunc
	approvalURL string
	listeners   []Listener
}

// CheckoutApplicationService 決済セッションアプリケーションサービス
type CheckoutApplicationService struct {
	sessionRepo    session.SessionRepository
	draftStore     session.DraftStore
	adapters       map[session.PaymentMethod]provider.Adapter
	logger         *otelinfra.Logger
	metrics        *otelinfra.Metrics
	tracer         trace.Tracer
	pollInterval   time.Duration
	pollTimeout    time.Duration
	requestTimeout time.Duration

	mu     sync.Mutex
	active map[string]*sessionRuntime
}

// NewCheckoutApplicationService 新しいCheckoutApplicationServiceを作成
func NewCheckoutApplicationService(
	sessionRepo session.SessionRepository,
	draftStore session.DraftStore,
	adapters map[session.PaymentMethod]provider.Adapter,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	requestTimeout time.Duration,
) *CheckoutApplicationService {
	return &CheckoutApplicationService{
		sessionRepo:    sessionRepo,
		draftStore:     draftStore,
		adapters:       adapters,
		logger:         logger,
		metrics:        metrics,
		tracer:         otel.Tracer("checkout-service"),
		pollInterval:   pollInterval,
		pollTimeout:    pollTimeout,
		requestTimeout: requestTimeout,
		active:         make(map[string]*sessionRuntime),
	}
}

// CreateSession 新しいセッションを作成
// 同じ購入参照のアクティブなセッションが存在する場合は先にキャンセルする
func (s *CheckoutApplicationService) CreateSession(ctx context.Context, req *CreateSessionRequest) (*SessionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "CheckoutApplicationService.CreateSession")
	defer span.End()

	span.SetAttributes(
		attribute.String("purchase_ref", req.PurchaseRef),
		attribute.String("method", req.Method),
		attribute.Int64("amount", req.Amount),
	)

	method, err := session.NewPaymentMethod(req.Method)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	if err := s.cancelActiveForPurchase(ctx, req.PurchaseRef); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	payer := session.Payer{
		Name:       req.Payer.Name,
		Email:      req.Payer.Email,
		Phone:      req.Payer.Phone,
		Street:     req.Payer.Street,
		City:       req.Payer.City,
		Region:     req.Payer.Region,
		PostalCode: req.Payer.PostalCode,
	}

	sessionID := "cs_" + uuid.NewString()
	sess, err := session.NewSession(sessionID, req.PurchaseRef, method, req.Amount, req.Currency, payer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	if err := s.sessionRepo.Save(ctx, sess); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	draft := &session.Draft{
		PurchaseRef: req.PurchaseRef,
		Method:      method,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Payer:       payer,
	}
	if err := s.draftStore.Save(ctx, sessionID, draft); err != nil {
		s.logger.Warn(ctx, "Failed to save checkout draft", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}

	s.mu.Lock()
	s.active[sessionID] = &sessionRuntime{sess: sess}
	resp := newSessionResponse(sess, "")
	s.mu.Unlock()

	s.metrics.RecordSessionStarted(ctx, method.String())
	s.logger.Info(ctx, "Checkout session created", map[string]interface{}{
		"session_id":   sessionID,
		"purchase_ref": req.PurchaseRef,
		"method":       method.String(),
	})

	return resp, nil
}

// Start セッションの検証とプロバイダー呼び出しを実行
// 検証失敗時はプロバイダーを一切呼ばずにFAILEDへ遷移する
func (s *CheckoutApplicationService) Start(ctx context.Context, sessionID string) (*SessionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "CheckoutApplicationService.Start")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", sessionID))

	s.mu.Lock()
	rt, err := s.runtimeLocked(ctx, sessionID)
	if err != nil {
		s.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	if err := rt.sess.BeginValidation(); err != nil {
		s.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	if validationErr := rt.sess.Validate(); validationErr != nil {
		detail := session.NewErrorDetail(session.ErrorKindInvalidInput, validationErr.Error())
		resp, listeners := s.resolveLocked(ctx, rt, func(sess *session.Session) error {
			return sess.Fail(detail)
		})
		s.mu.Unlock()
		s.fire(resp, listeners)
		return resp, nil
	}

	if err := rt.sess.BeginInitiation(); err != nil {
		s.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}
	if err := s.sessionRepo.Save(ctx, rt.sess); err != nil {
		s.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	adapter, ok := s.adapters[rt.sess.Method()]
	if !ok {
		err := fmt.Errorf("no adapter configured for method %s", rt.sess.Method())
		s.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}
	generation := rt.generation
	initiateReq := &provider.InitiateRequest{
		Amount:         rt.sess.Amount(),
		Currency:       rt.sess.Currency(),
		Payer:          rt.sess.Payer(),
		IdempotencyKey: rt.sess.SessionID(),
	}
	s.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	result, initiateErr := adapter.Initiate(callCtx, initiateReq)
	cancel()

	s.mu.Lock()
	if s.active[sessionID] != rt || rt.generation != generation || rt.sess.State() != session.SessionStateInitiating {
		// キャンセル等で世代が進んでいる。遅れて届いた応答は破棄する
		resp := newSessionResponse(rt.sess, rt.approvalURL)
		s.mu.Unlock()
		s.logger.Info(ctx, "Discarding stale initiation response", map[string]interface{}{
			"session_id": sessionID,
		})
		return resp, nil
	}

	if initiateErr != nil {
		detail := provider.NormalizeError(initiateErr)
		resp, listeners := s.resolveLocked(ctx, rt, func(sess *session.Session) error {
			return sess.Fail(detail)
		})
		s.mu.Unlock()
		s.fire(resp, listeners)
		s.logger.Error(ctx, "Payment initiation failed", initiateErr, map[string]interface{}{
			"session_id": sessionID,
			"provider":   adapter.Name(),
			"error_kind": detail.Kind.String(),
		})
		return resp, nil
	}

	var resp *SessionResponse
	var listeners []Listener
	switch adapter.Mode() {
	case provider.ConfirmationModeSync:
		confirmedAt := result.ConfirmedAt
		if confirmedAt.IsZero() {
			confirmedAt = time.Now()
		}
		resp, listeners = s.resolveLocked(ctx, rt, func(sess *session.Session) error {
			return sess.Succeed(result.ProviderRef, confirmedAt)
		})
	default:
		if err := rt.sess.AwaitConfirmation(result.ProviderRef); err != nil {
			s.mu.Unlock()
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, err
		}
		rt.approvalURL = result.ApprovalURL
		if err := s.sessionRepo.Save(ctx, rt.sess); err != nil {
			s.mu.Unlock()
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, fmt.Errorf("failed to save session: %w", err)
		}
		resp = newSessionResponse(rt.sess, rt.approvalURL)
		listeners = append([]Listener(nil), rt.listeners...)
	}
	s.mu.Unlock()
	s.fire(resp, listeners)

	s.logger.Info(ctx, "Payment initiated", map[string]interface{}{
		"session_id":   sessionID,
		"provider":     adapter.Name(),
		"provider_ref": result.ProviderRef,
		"state":        resp.State,
	})

	return resp, nil
}

// Confirm 外部操作の完了を受けてポーリングを開始（ポーリング方式のみ）
func (s *CheckoutApplicationService) Confirm(ctx context.Context, sessionID string) (*SessionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "CheckoutApplicationService.Confirm")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", sessionID))

	s.mu.Lock()
	rt, err := s.runtimeLocked(ctx, sessionID)
	if err != nil {
		s.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	adapter, ok := s.adapters[rt.sess.Method()]
	if !ok || adapter.Mode() != provider.ConfirmationModePoll {
		s.mu.Unlock()
		span.RecordError(provider.ErrUnsupportedOperation)
		span.SetStatus(otelcodes.Error, provider.ErrUnsupportedOperation.Error())
		return nil, provider.ErrUnsupportedOperation
	}

	if err := rt.sess.BeginPolling(); err != nil {
		s.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}
	if err := s.sessionRepo.Save(ctx, rt.sess); err != nil {
		s.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	pollCtx, pollCancel := context.WithCancel(context.Background())
	rt.pollCancel = pollCancel
	generation := rt.generation
	providerRef := rt.sess.ProviderRef()
	resp := newSessionResponse(rt.sess, rt.approvalURL)
	listeners := append([]Listener(nil), rt.listeners...)
	s.mu.Unlock()

	go s.runPollLoop(pollCtx, rt, generation, adapter, providerRef)

	s.fire(resp, listeners)
	s.logger.Info(ctx, "Polling started", map[string]interface{}{
		"session_id":   sessionID,
		"provider_ref": providerRef,
	})

	return resp, nil
}

// runPollLoop プロバイダーのステータスを定期確認する
// ティッカー駆動の単一ゴルーチンで実行するため、前回の確認が終わるまで
// 次の確認は始まらない（確認中に来たティックはまとめて1回に潰される）
func (s *CheckoutApplicationService) runPollLoop(ctx context.Context, rt *sessionRuntime, generation int, adapter provider.Adapter, providerRef string) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(s.pollTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			message := fmt.Sprintf("payment confirmation timed out after %s (provider ref: %s)", s.pollTimeout, providerRef)
			detail := session.NewErrorDetail(session.ErrorKindTimeout, message)
			s.applyPollResolution(rt, generation, func(sess *session.Session) error {
				return sess.Fail(detail)
			})
			return
		case <-ticker.C:
			callCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
			outcome, err := adapter.Poll(callCtx, providerRef)
			cancel()

			if err != nil {
				// 1回の確認失敗は未確定として扱い、上限時間まで継続する
				s.metrics.RecordPoll(context.Background(), adapter.Name(), "error")
				s.logger.Warn(context.Background(), "Poll attempt failed", map[string]interface{}{
					"session_id":   rt.sess.SessionID(),
					"provider_ref": providerRef,
					"error":        err.Error(),
				})
				continue
			}

			s.metrics.RecordPoll(context.Background(), adapter.Name(), string(outcome.Status))

			switch outcome.Status {
			case provider.PollStatusSuccess:
				confirmedAt := outcome.ConfirmedAt
				if confirmedAt.IsZero() {
					confirmedAt = time.Now()
				}
				s.applyPollResolution(rt, generation, func(sess *session.Session) error {
					return sess.Succeed(providerRef, confirmedAt)
				})
				return
			case provider.PollStatusFailure:
				detail := provider.NormalizeFailure(outcome.FailureCode, outcome.FailureReason)
				s.applyPollResolution(rt, generation, func(sess *session.Session) error {
					return sess.Fail(detail)
				})
				return
			default:
				// 未確定。次のティックまで待つ
			}
		}
	}
}

// applyPollResolution ポーリング結果を世代ガード付きで適用する
// キャンセル等で世代が進んでいた場合、遅延応答は黙って破棄される
func (s *CheckoutApplicationService) applyPollResolution(rt *sessionRuntime, generation int, resolve func(*session.Session) error) {
	ctx := context.Background()

	s.mu.Lock()
	if s.active[rt.sess.SessionID()] != rt || rt.generation != generation || rt.sess.IsTerminal() {
		s.mu.Unlock()
		return
	}
	resp, listeners := s.resolveLocked(ctx, rt, resolve)
	s.mu.Unlock()
	s.fire(resp, listeners)
}

// Capture ユーザー承認後にリダイレクト方式の決済を確定する
func (s *CheckoutApplicationService) Capture(ctx context.Context, sessionID string, req *CaptureRequest) (*SessionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "CheckoutApplicationService.Capture")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", sessionID))

	s.mu.Lock()
	rt, err := s.runtimeLocked(ctx, sessionID)
	if err != nil {
		s.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	adapter, ok := s.adapters[rt.sess.Method()]
	if !ok || adapter.Mode() != provider.ConfirmationModeCapture {
		s.mu.Unlock()
		span.RecordError(provider.ErrUnsupportedOperation)
		span.SetStatus(otelcodes.Error, provider.ErrUnsupportedOperation.Error())
		return nil, provider.ErrUnsupportedOperation
	}
	if rt.sess.State() != session.SessionStateAwaitingConfirmation {
		s.mu.Unlock()
		span.RecordError(session.ErrInvalidTransition)
		span.SetStatus(otelcodes.Error, session.ErrInvalidTransition.Error())
		return nil, session.ErrInvalidTransition
	}
	generation := rt.generation
	providerRef := rt.sess.ProviderRef()
	s.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	details, captureErr := adapter.Capture(callCtx, providerRef, req.Approval)
	cancel()

	s.mu.Lock()
	if s.active[sessionID] != rt || rt.generation != generation || rt.sess.IsTerminal() {
		resp := newSessionResponse(rt.sess, rt.approvalURL)
		s.mu.Unlock()
		s.logger.Info(ctx, "Discarding stale capture response", map[string]interface{}{
			"session_id": sessionID,
		})
		return resp, nil
	}

	var resp *SessionResponse
	var listeners []Listener
	if captureErr != nil {
		detail := provider.NormalizeError(captureErr)
		resp, listeners = s.resolveLocked(ctx, rt, func(sess *session.Session) error {
			return sess.Fail(detail)
		})
	} else {
		confirmedAt := details.ConfirmedAt
		if confirmedAt.IsZero() {
			confirmedAt = time.Now()
		}
		resp, listeners = s.resolveLocked(ctx, rt, func(sess *session.Session) error {
			return sess.Succeed(details.ProviderRef, confirmedAt)
		})
	}
	s.mu.Unlock()
	s.fire(resp, listeners)

	return resp, nil
}

// Cancel セッションをキャンセルする（冪等）
// 実行中のポーリングは停止し、以後に届くプロバイダー応答は破棄される
func (s *CheckoutApplicationService) Cancel(ctx context.Context, sessionID string) (*SessionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "CheckoutApplicationService.Cancel")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", sessionID))

	s.mu.Lock()
	rt, err := s.runtimeLocked(ctx, sessionID)
	if err != nil {
		s.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	if rt.sess.State() == session.SessionStateCancelled {
		resp := newSessionResponse(rt.sess, rt.approvalURL)
		s.mu.Unlock()
		return resp, nil
	}

	resp, listeners := s.resolveLocked(ctx, rt, func(sess *session.Session) error {
		return sess.Cancel()
	})
	if resp == nil {
		err := session.ErrSessionAlreadyTerminal
		s.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}
	s.mu.Unlock()
	s.fire(resp, listeners)

	s.logger.Info(ctx, "Checkout session cancelled", map[string]interface{}{
		"session_id": sessionID,
	})

	return resp, nil
}

// GetSession セッションの現在状態を取得
func (s *CheckoutApplicationService) GetSession(ctx context.Context, sessionID string) (*SessionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "CheckoutApplicationService.GetSession")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", sessionID))

	s.mu.Lock()
	if rt, ok := s.active[sessionID]; ok {
		resp := newSessionResponse(rt.sess, rt.approvalURL)
		s.mu.Unlock()
		return resp, nil
	}
	s.mu.Unlock()

	sess, err := s.sessionRepo.FindBySessionID(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}
	return newSessionResponse(sess, ""), nil
}

// Subscribe セッションの状態変化の通知を購読する
// 終端状態に達したセッションは購読できない
func (s *CheckoutApplicationService) Subscribe(sessionID string, listener Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.active[sessionID]
	if !ok {
		return session.ErrSessionNotFound
	}
	rt.listeners = append(rt.listeners, listener)
	return nil
}

// Shutdown 実行中のポーリングをすべて停止する
func (s *CheckoutApplicationService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rt := range s.active {
		rt.generation++
		if rt.pollCancel != nil {
			rt.pollCancel()
			rt.pollCancel = nil
		}
	}
}

// runtimeLocked アクティブマップまたはリポジトリからセッションランタイムを取得
// s.muを保持した状態で呼ぶこと
func (s *CheckoutApplicationService) runtimeLocked(ctx context.Context, sessionID string) (*sessionRuntime, error) {
	if rt, ok := s.active[sessionID]; ok {
		return rt, nil
	}
	sess, err := s.sessionRepo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rt := &sessionRuntime{sess: sess}
	if !sess.IsTerminal() {
		s.active[sessionID] = rt
	}
	return rt, nil
}

// resolveLocked セッションを終端状態へ遷移させ、永続化・ドラフト破棄・メトリクス記録を行う
// s.muを保持した状態で呼ぶこと。戻り値のリスナーはロック解放後に呼ぶ
func (s *CheckoutApplicationService) resolveLocked(ctx context.Context, rt *sessionRuntime, resolve func(*session.Session) error) (*SessionResponse, []Listener) {
	if err := resolve(rt.sess); err != nil {
		return nil, nil
	}
	rt.generation++
	if rt.pollCancel != nil {
		rt.pollCancel()
		rt.pollCancel = nil
	}

	sessionID := rt.sess.SessionID()
	if err := s.sessionRepo.Save(ctx, rt.sess); err != nil {
		s.logger.Error(ctx, "Failed to persist resolved session", err, map[string]interface{}{
			"session_id": sessionID,
		})
	}
	if err := s.draftStore.Clear(ctx, sessionID); err != nil {
		s.logger.Warn(ctx, "Failed to clear checkout draft", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
	delete(s.active, sessionID)

	duration := 0.0
	if !rt.sess.StartedAt().IsZero() && !rt.sess.ResolvedAt().IsZero() {
		duration = rt.sess.ResolvedAt().Sub(rt.sess.StartedAt()).Seconds()
	}
	s.metrics.RecordSessionResolved(ctx, rt.sess.Method().String(), rt.sess.State().String(), duration)

	resp := newSessionResponse(rt.sess, rt.approvalURL)
	listeners := append([]Listener(nil), rt.listeners...)
	return resp, listeners
}

// cancelActiveForPurchase 同じ購入参照のアクティブなセッションをキャンセルする
func (s *CheckoutApplicationService) cancelActiveForPurchase(ctx context.Context, purchaseRef string) error {
	s.mu.Lock()
	var matched []*sessionRuntime
	for _, rt := range s.active {
		if rt.sess.PurchaseRef() == purchaseRef && !rt.sess.IsTerminal() {
			matched = append(matched, rt)
		}
	}
	for _, rt := range matched {
		resp, listeners := s.resolveLocked(ctx, rt, func(sess *session.Session) error {
			return sess.Cancel()
		})
		s.mu.Unlock()
		s.fire(resp, listeners)
		s.logger.Info(ctx, "Cancelled previous session for purchase", map[string]interface{}{
			"session_id":   rt.sess.SessionID(),
			"purchase_ref": purchaseRef,
		})
		s.mu.Lock()
	}
	s.mu.Unlock()

	// サーバー再起動等でメモリ上に存在しないアクティブセッションも潰す
	prev, err := s.sessionRepo.FindActiveByPurchaseRef(ctx, purchaseRef)
	if err != nil {
		if err == session.ErrSessionNotFound {
			return nil
		}
		return fmt.Errorf("failed to find active session: %w", err)
	}
	if prev.IsTerminal() {
		return nil
	}
	if err := prev.Cancel(); err != nil {
		return err
	}
	if err := s.sessionRepo.Save(ctx, prev); err != nil {
		return fmt.Errorf("failed to save cancelled session: %w", err)
	}
	if err := s.draftStore.Clear(ctx, prev.SessionID()); err != nil {
		s.logger.Warn(ctx, "Failed to clear checkout draft", map[string]interface{}{
			"session_id": prev.SessionID(),
			"error":      err.Error(),
		})
	}
	return nil
}

// fire リスナーへ状態変化を通知する
func (s *CheckoutApplicationService) fire(resp *SessionResponse, listeners []Listener) {
	if resp == nil {
		return
	}
	for _, listener := range listeners {
		listener(resp)
	}
}
