package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/contract-nlq/pkg/logging"
	"github.com/ekaya-inc/contract-nlq/pkg/models"
	"github.com/ekaya-inc/contract-nlq/pkg/planner"
)

// Answer is one produced plan: the SQL, its binds and the rationale, keyed by
// a request id the feedback loop can reference later.
type Answer struct {
	RequestID   uuid.UUID      `json:"request_id"`
	Question    string         `json:"question"`
	Intent      *models.Intent `json:"intent"`
	SQL         string         `json:"sql"`
	Binds       map[string]any `json:"binds"`
	Explanation string         `json:"explanation"`
}

// Fallback is the seam for a non-deterministic planner consulted when the
// deterministic pipeline extracts no signal from a question. The core never
// provides an implementation; callers may.
type Fallback interface {
	Plan(ctx context.Context, question string) (*models.Intent, error)
}

// AnswerService runs the question pipeline end to end: parse, assemble,
// snapshot, explain.
type AnswerService interface {
	Answer(ctx context.Context, question string) (*Answer, error)

	// DebugDump renders the answer as stable JSON for golden comparisons.
	DebugDump(a *Answer) (string, error)
}

type answerService struct {
	parser    planner.Parser
	assembler planner.Assembler
	store     SnapshotStore
	fallback  Fallback
	now       func() time.Time
	logger    *zap.Logger
}

var _ AnswerService = (*answerService)(nil)

// NewAnswerService wires the pipeline. now is the reference-date source
// (injectable for tests); fallback may be nil.
func NewAnswerService(
	parser planner.Parser,
	assembler planner.Assembler,
	store SnapshotStore,
	fallback Fallback,
	now func() time.Time,
	logger *zap.Logger,
) AnswerService {
	if now == nil {
		now = time.Now
	}
	return &answerService{
		parser:    parser,
		assembler: assembler,
		store:     store,
		fallback:  fallback,
		now:       now,
		logger:    logger.Named("answers"),
	}
}

func (s *answerService) Answer(ctx context.Context, question string) (*Answer, error) {
	intent, err := s.parser.Parse(question, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to plan question: %w", err)
	}

	if s.fallback != nil && vacuous(intent) {
		if fb, fbErr := s.fallback.Plan(ctx, question); fbErr == nil && fb != nil {
			intent = fb
			intent.Note("planner", "fallback")
		} else if fbErr != nil {
			s.logger.Warn("fallback planner failed, keeping deterministic plan", zap.Error(fbErr))
		}
	}

	sql, binds, err := s.assembler.Assemble(intent)
	if err != nil {
		return nil, fmt.Errorf("failed to plan question: %w", err)
	}

	answer := &Answer{
		RequestID:   uuid.New(),
		Question:    intent.Question,
		Intent:      intent,
		SQL:         sql,
		Binds:       binds,
		Explanation: planner.Explain(intent),
	}

	snap := &models.Snapshot{
		RequestID: answer.RequestID,
		Question:  answer.Question,
		Intent:    intent,
		SQL:       sql,
		Binds:     binds,
		CreatedAt: s.now(),
	}
	if err := s.store.Save(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to snapshot answer: %w", err)
	}

	s.logger.Info("planned question",
		zap.String("request_id", answer.RequestID.String()),
		zap.String("question", logging.TruncateString(question, logging.MaxQueryLogLength)),
		zap.String("sql", logging.SanitizeQuery(sql)),
		zap.Int("binds", len(binds)))
	return answer, nil
}

func (s *answerService) DebugDump(a *Answer) (string, error) {
	out, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to dump answer: %w", err)
	}
	return string(out), nil
}

// vacuous reports whether the deterministic pipeline extracted nothing from
// the question beyond defaults.
func vacuous(intent *models.Intent) bool {
	return intent.Window == nil &&
		len(intent.EqualityFilters) == 0 &&
		intent.FullText == nil &&
		intent.GroupBy == "" &&
		intent.Aggregation == models.AggNone &&
		intent.TopN == nil &&
		len(intent.Projection) == 0
}
