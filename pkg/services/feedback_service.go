package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/contract-nlq/pkg/apperrors"
	"github.com/ekaya-inc/contract-nlq/pkg/config"
	"github.com/ekaya-inc/contract-nlq/pkg/models"
	"github.com/ekaya-inc/contract-nlq/pkg/planner"
)

// Notifier receives escalations when the corrective loop gives up on a
// request. Implementations are external (chat, ticketing); tests use a stub.
type Notifier interface {
	Escalate(ctx context.Context, requestID uuid.UUID, question string, rating int) error
}

// FeedbackService drives the rating loop per request id:
//
//	answered --rating >= threshold--> closed
//	answered --rating <  threshold--> retried   (one corrective re-plan)
//	retried  --rating >= threshold--> closed
//	retried  --rating <  threshold--> escalated (notifier fires)
//
// Closed and escalated are terminal; further ratings return
// apperrors.ErrFeedbackClosed.
type FeedbackService interface {
	// Rate applies a rating and optional correction comment. On a corrective
	// retry the returned answer is the superseding plan; otherwise it is nil.
	Rate(ctx context.Context, requestID uuid.UUID, rating int, comment string) (*Answer, models.FeedbackState, error)

	// State reports the loop state for a request id.
	State(requestID uuid.UUID) models.FeedbackState
}

type feedbackService struct {
	hints     planner.HintParser
	assembler planner.Assembler
	store     SnapshotStore
	notifier  Notifier
	threshold int
	now       func() time.Time
	logger    *zap.Logger

	mu     sync.Mutex
	states map[uuid.UUID]models.FeedbackState
}

var _ FeedbackService = (*feedbackService)(nil)

// NewFeedbackService wires the corrective loop. notifier may be nil, in which
// case escalation is log-only.
func NewFeedbackService(
	cfg config.FeedbackConfig,
	hints planner.HintParser,
	assembler planner.Assembler,
	store SnapshotStore,
	notifier Notifier,
	now func() time.Time,
	logger *zap.Logger,
) FeedbackService {
	if now == nil {
		now = time.Now
	}
	threshold := cfg.RatingThreshold
	if threshold <= 0 {
		threshold = 3
	}
	return &feedbackService{
		hints:     hints,
		assembler: assembler,
		store:     store,
		notifier:  notifier,
		threshold: threshold,
		now:       now,
		logger:    logger.Named("feedback"),
		states:    make(map[uuid.UUID]models.FeedbackState),
	}
}

func (s *feedbackService) State(requestID uuid.UUID) models.FeedbackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[requestID]; ok {
		return state
	}
	return models.FeedbackAnswered
}

func (s *feedbackService) Rate(ctx context.Context, requestID uuid.UUID, rating int, comment string) (*Answer, models.FeedbackState, error) {
	state := s.State(requestID)
	if state.Terminal() {
		return nil, state, fmt.Errorf("failed to rate request %s: %w", requestID, apperrors.ErrFeedbackClosed)
	}

	if rating >= s.threshold {
		s.setState(requestID, models.FeedbackClosed)
		s.logger.Info("feedback closed",
			zap.String("request_id", requestID.String()),
			zap.Int("rating", rating))
		return nil, models.FeedbackClosed, nil
	}

	snap, err := s.store.Latest(ctx, requestID)
	if err != nil {
		return nil, state, fmt.Errorf("failed to rate request %s: %w", requestID, err)
	}

	if state == models.FeedbackRetried {
		return nil, s.escalate(ctx, requestID, snap, rating), nil
	}

	answer, err := s.retry(ctx, requestID, snap, comment)
	if err != nil {
		return nil, state, err
	}
	s.setState(requestID, models.FeedbackRetried)
	return answer, models.FeedbackRetried, nil
}

// retry re-plans the snapshot with the correction overlay and the
// conservative measure strategy, then supersedes the stored snapshot.
func (s *feedbackService) retry(ctx context.Context, requestID uuid.UUID, snap *models.Snapshot, comment string) (*Answer, error) {
	h := s.hints.Parse(comment)
	intent := s.hints.Overlay(snap.Intent, h)

	// One deliberate strategy change per retry: fall back to the net value
	// unless the comment pinned the measure itself.
	if h.Gross == nil && intent.Measure.Kind != models.MeasureCustom {
		intent.Measure = models.Measure{Kind: models.MeasureNet}
		intent.Note("retry_strategy", "conservative net measure")
	}

	sql, binds, err := s.assembler.Assemble(intent)
	if err != nil {
		return nil, fmt.Errorf("failed to re-plan request %s: %w", requestID, err)
	}

	next := &models.Snapshot{
		RequestID: requestID,
		Question:  snap.Question,
		Intent:    intent,
		SQL:       sql,
		Binds:     binds,
		CreatedAt: s.now(),
	}
	if err := s.store.Supersede(ctx, requestID, next); err != nil {
		return nil, fmt.Errorf("failed to re-plan request %s: %w", requestID, err)
	}

	s.logger.Info("replanned after low rating",
		zap.String("request_id", requestID.String()),
		zap.Int("hinted_filters", len(h.Filters)),
		zap.Bool("hinted_fts", h.FullText != nil))

	return &Answer{
		RequestID:   requestID,
		Question:    snap.Question,
		Intent:      intent,
		SQL:         sql,
		Binds:       binds,
		Explanation: planner.Explain(intent),
	}, nil
}

func (s *feedbackService) escalate(ctx context.Context, requestID uuid.UUID, snap *models.Snapshot, rating int) models.FeedbackState {
	s.setState(requestID, models.FeedbackEscalated)
	if s.notifier != nil {
		if err := s.notifier.Escalate(ctx, requestID, snap.Question, rating); err != nil {
			s.logger.Error("failed to notify escalation",
				zap.String("request_id", requestID.String()),
				zap.Error(err))
		}
	} else {
		s.logger.Warn("escalating without notifier",
			zap.String("request_id", requestID.String()),
			zap.Int("rating", rating))
	}
	return models.FeedbackEscalated
}

func (s *feedbackService) setState(requestID uuid.UUID, state models.FeedbackState) {
	s.mu.Lock()
	s.states[requestID] = state
	s.mu.Unlock()
}
