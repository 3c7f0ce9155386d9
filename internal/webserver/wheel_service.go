package webserver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ichi0g0y/prize-wheel/internal/cooldown"
	"github.com/ichi0g0y/prize-wheel/internal/eligibility"
	"github.com/ichi0g0y/prize-wheel/internal/localdb"
	"github.com/ichi0g0y/prize-wheel/internal/lottery"
	"github.com/ichi0g0y/prize-wheel/internal/shared/logger"
	"github.com/ichi0g0y/prize-wheel/internal/types"
	"github.com/ichi0g0y/prize-wheel/internal/wheel"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const (
	spinCodeAlphabet      = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	defaultSpinCodeLength = 8
	outcomeStoreTimeout   = 5 * time.Second
)

var (
	errNoAvailablePrizes = errors.New("no available prizes")
	errWheelBusy         = errors.New("wheel is busy")
	errDuplicateTrigger  = errors.New("duplicate trigger")
	errWheelNotReady     = errors.New("wheel not initialized")
)

// WheelConfig はホイールサービスの初期設定
type WheelConfig struct {
	DurationMs int
	Turns      int
	Reversed   bool
	Weighted   bool
	CodeLength int

	Gate    *cooldown.Gate
	Checker eligibility.Checker
	Clock   wheel.Clock
}

// wheelOutcomeEvent は wheel_outcome で配信される確定結果
type wheelOutcomeEvent struct {
	wheel.Outcome
	Code      string    `json:"code"`
	Used      int       `json:"used"`
	HistoryID int64     `json:"history_id,omitempty"`
	SpunAt    time.Time `json:"spun_at"`
}

// wheelStateSnapshot は wheel_state と /api/wheel/state のレスポンス
type wheelStateSnapshot struct {
	State          string             `json:"state"`
	Rotation       float64            `json:"rotation"`
	Baseline       float64            `json:"baseline"`
	Disabled       bool               `json:"disabled"`
	Reversed       bool               `json:"reversed"`
	Weighted       bool               `json:"weighted"`
	Session        *wheel.Session     `json:"session,omitempty"`
	LastOutcome    *wheelOutcomeEvent `json:"last_outcome,omitempty"`
	PrizeCount     int                `json:"prize_count"`
	AvailableCount int                `json:"available_count"`
}

type wheelService struct {
	driver  *wheel.Driver
	checker eligibility.Checker

	mu          sync.RWMutex
	gate        *cooldown.Gate
	reversed    bool
	weighted    bool
	codeLength  int
	lastOutcome *wheelOutcomeEvent
}

var (
	wheelMu  sync.RWMutex
	wheelSvc *wheelService
)

var generateSpinCode = func(length int) (string, error) {
	return gonanoid.Generate(spinCodeAlphabet, length)
}

// InitWheel creates the process-wide wheel service. A previous service is closed.
func InitWheel(cfg WheelConfig) {
	if cfg.Gate == nil {
		cfg.Gate = cooldown.NewGate(cooldown.NewMemoryStore(), cooldown.DefaultDays)
	}
	if cfg.Checker == nil {
		cfg.Checker = eligibility.AllowAll{}
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = defaultSpinCodeLength
	}

	svc := &wheelService{
		checker:    cfg.Checker,
		gate:       cfg.Gate,
		reversed:   cfg.Reversed,
		weighted:   cfg.Weighted,
		codeLength: cfg.CodeLength,
	}
	svc.driver = wheel.NewDriver(wheel.Options{
		DurationMs: cfg.DurationMs,
		Turns:      cfg.Turns,
		Clock:      cfg.Clock,
		OnProgress: func(p wheel.Progress) {
			BroadcastWSMessage("wheel_progress", p)
		},
		OnTick: func(t wheel.Tick) {
			BroadcastWSMessage("wheel_tick", t)
		},
		OnOutcome: svc.handleOutcome,
		OnSettled: func(wheel.Outcome) {
			BroadcastWSMessage("wheel_state", svc.snapshot())
		},
	})

	wheelMu.Lock()
	previous := wheelSvc
	wheelSvc = svc
	wheelMu.Unlock()

	if previous != nil {
		previous.driver.Close()
	}

	svc.refreshAvailability()
	logger.Info("Wheel service initialized",
		zap.Int("duration_ms", cfg.DurationMs),
		zap.Int("turns", cfg.Turns),
		zap.Bool("reversed", cfg.Reversed),
		zap.Bool("weighted", cfg.Weighted),
		zap.Int("cooldown_days", cfg.Gate.Days()))
}

// CloseWheel cancels any in-flight spin and stops the wheel service.
func CloseWheel() {
	wheelMu.Lock()
	svc := wheelSvc
	wheelSvc = nil
	wheelMu.Unlock()

	if svc != nil {
		svc.driver.Close()
	}
}

func getWheel() *wheelService {
	wheelMu.RLock()
	defer wheelMu.RUnlock()
	return wheelSvc
}

func currentWheelState() (wheelStateSnapshot, bool) {
	svc := getWheel()
	if svc == nil {
		return wheelStateSnapshot{}, false
	}
	return svc.snapshot(), true
}

func (s *wheelService) cooldownGate() *cooldown.Gate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gate
}

// applyConfig は設定変更を次のスピンから反映する
func (s *wheelService) applyConfig(durationMs, turns int, reversed, weighted bool, codeLength, cooldownDays int) {
	s.driver.Configure(durationMs, turns)

	s.mu.Lock()
	s.reversed = reversed
	s.weighted = weighted
	if codeLength > 0 {
		s.codeLength = codeLength
	}
	if cooldownDays > 0 && cooldownDays != s.gate.Days() {
		s.gate = s.gate.WithDays(cooldownDays)
	}
	s.mu.Unlock()

	BroadcastWSMessage("wheel_state", s.snapshot())
}

// loadAvailability は景品リストと使用回数から残りのある景品を求める
func loadAvailability() ([]types.Prize, []int, map[string]int, error) {
	prizes, err := localdb.GetPrizes()
	if err != nil {
		return nil, nil, nil, err
	}
	usage, err := localdb.GetPrizeUsage()
	if err != nil {
		return nil, nil, nil, err
	}
	return prizes, wheel.AvailableIndices(prizes, usage), usage, nil
}

// refreshAvailability は残りの景品が無い場合にスピンを無効化する
func (s *wheelService) refreshAvailability() {
	s.updateAvailability()
	BroadcastWSMessage("wheel_state", s.snapshot())
}

// updateAvailability は景品在庫に合わせて無効化フラグだけを更新する
func (s *wheelService) updateAvailability() {
	_, available, _, err := loadAvailability()
	if err != nil {
		logger.Warn("Failed to load prize availability", zap.Error(err))
		return
	}
	disabled := len(available) == 0
	if disabled != s.driver.Disabled() {
		s.driver.SetDisabled(disabled)
		logger.Info("Wheel availability changed", zap.Bool("disabled", disabled))
	}
}

func (s *wheelService) snapshot() wheelStateSnapshot {
	s.mu.RLock()
	snap := wheelStateSnapshot{
		Reversed:    s.reversed,
		Weighted:    s.weighted,
		LastOutcome: s.lastOutcome,
	}
	s.mu.RUnlock()

	snap.State = s.driver.State().String()
	snap.Rotation = s.driver.Rotation()
	snap.Baseline = s.driver.Baseline()
	snap.Disabled = s.driver.Disabled()
	if session, ok := s.driver.Active(); ok {
		snap.Session = &session
	}

	if prizes, available, _, err := loadAvailability(); err == nil {
		snap.PrizeCount = len(prizes)
		snap.AvailableCount = len(available)
	}
	return snap
}

// spinInput はスピン要求の内容
type spinInput struct {
	Identity    string
	Trigger     *int64
	ForcedIndex *int
}

// startSpin は空き状況の確認・割り当て方針の適用・ドライバの起動を行う。
// クールダウンと資格チェックは呼び出し側で済ませておく。
func (s *wheelService) startSpin(in spinInput) (wheel.Session, error) {
	if in.Trigger != nil {
		if last, ok := s.driver.LastTrigger(); ok && last == *in.Trigger {
			return wheel.Session{}, errDuplicateTrigger
		}
	}
	if _, busy := s.driver.Active(); busy {
		return wheel.Session{}, errWheelBusy
	}

	prizes, available, _, err := loadAvailability()
	if err != nil {
		return wheel.Session{}, err
	}
	if len(available) == 0 {
		s.driver.SetDisabled(true)
		return wheel.Session{}, errNoAvailablePrizes
	}
	s.driver.SetDisabled(false)

	s.mu.RLock()
	reversed := s.reversed
	weighted := s.weighted
	s.mu.RUnlock()

	forced := wheel.NoForcedIndex
	if in.ForcedIndex != nil {
		forced = *in.ForcedIndex
	}
	// weightedモードではサーバー側の抽選が呼び出し側の指定より優先される
	if weighted {
		result, err := lottery.DrawPrize(prizes, available)
		if err != nil {
			// 重みが無い場合は呼び出し側の指定か一様抽選にフォールバック
			logger.Warn("Weighted allocation failed, falling back to uniform", zap.Error(err))
		} else {
			if in.ForcedIndex != nil && *in.ForcedIndex != result.Index {
				logger.Info("Ignoring forced_index in weighted mode",
					zap.Int("requested", *in.ForcedIndex),
					zap.Int("drawn", result.Index))
			}
			forced = result.Index
		}
	}

	req := wheel.SpinRequest{
		Prizes:      prizes,
		Available:   available,
		ForcedIndex: forced,
		Reversed:    reversed,
		Owner:       in.Identity,
	}

	var (
		session  wheel.Session
		accepted bool
	)
	if in.Trigger != nil {
		session, accepted = s.driver.Trigger(*in.Trigger, req)
	} else {
		session, accepted = s.driver.Spin(req)
	}
	if !accepted {
		return wheel.Session{}, errWheelBusy
	}

	logger.Info("Spin accepted",
		zap.Uint64("session_id", session.ID),
		zap.String("identity", in.Identity),
		zap.Int("winner_index", session.WinnerIndex),
		zap.Int("segments", session.SegmentCount),
		zap.Float64("target_rotation", session.TargetRotation))

	BroadcastWSMessage("wheel_state", s.snapshot())
	return session, nil
}

// handleOutcome はドライバのセッションgoroutineから呼ばれる
func (s *wheelService) handleOutcome(o wheel.Outcome) {
	if !o.Verified {
		logger.Error("Resolved segment does not match planned winner",
			zap.Uint64("session_id", o.SessionID),
			zap.Int("winner_index", o.WinnerIndex),
			zap.Int("resolved_index", o.Index),
			zap.Float64("rotation", o.Rotation))
	}

	s.mu.RLock()
	codeLength := s.codeLength
	gate := s.gate
	s.mu.RUnlock()

	code, err := generateSpinCode(codeLength)
	if err != nil {
		logger.Error("Failed to generate spin code", zap.Error(err))
		code = ""
	}

	used, err := localdb.IncrementPrizeUsage(o.Prize.ID)
	if err != nil {
		logger.Error("Failed to increment prize usage", zap.Error(err), zap.String("prize_id", o.Prize.ID))
	}

	if o.Owner != "" {
		ctx, cancel := context.WithTimeout(context.Background(), outcomeStoreTimeout)
		if err := gate.RecordSpin(ctx, o.Owner, o.Prize.Label, code); err != nil {
			logger.Error("Failed to record cooldown", zap.Error(err), zap.String("identity", o.Owner))
		}
		cancel()
	}

	event := wheelOutcomeEvent{
		Outcome: o,
		Code:    code,
		Used:    used,
		SpunAt:  time.Now(),
	}

	historyID, err := localdb.SaveSpinHistory(types.SpinHistory{
		Identity:    o.Owner,
		PrizeID:     o.Prize.ID,
		PrizeLabel:  o.Prize.Label,
		Code:        code,
		WinnerIndex: o.Index,
		Rotation:    o.Rotation,
		SpunAt:      event.SpunAt,
	})
	if err != nil {
		logger.Error("Failed to save spin history", zap.Error(err))
	}
	event.HistoryID = historyID

	s.mu.Lock()
	s.lastOutcome = &event
	s.mu.Unlock()

	logger.Info("Spin finished",
		zap.Uint64("session_id", o.SessionID),
		zap.String("identity", o.Owner),
		zap.String("prize_id", o.Prize.ID),
		zap.Int("index", o.Index),
		zap.Float64("rotation", o.Rotation),
		zap.Int("used", used))

	BroadcastWSMessage("wheel_outcome", event)
	// wheel_state はドライバーがIdleに戻った後 OnSettled で送る
	s.updateAvailability()
}
