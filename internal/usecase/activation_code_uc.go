package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"game-activation-ledger/internal/domain"
	"game-activation-ledger/internal/domain/model"
	"game-activation-ledger/internal/domain/ports/adapter"
	"game-activation-ledger/internal/domain/ports/repository"
	"game-activation-ledger/internal/infra/logging"
	"game-activation-ledger/internal/infra/metrics"
)

// Compile-time check
var _ CodeUseCase = (*codeUC)(nil)

// maxDeleteIDs bounds an explicit id list in DeleteMany.
const maxDeleteIDs = 1000

// Per-slot failure reasons reported in a GenerationResult.
const (
	ReasonCollisionsExhausted = "COLLISION_RETRIES_EXHAUSTED"
	ReasonStorageError        = "STORAGE_ERROR"
	ReasonCancelled           = "CANCELLED"
)

var errCollisionsExhausted = errors.New("code collisions exhausted retry budget")

// CodeUseCase covers bulk generation and administrative removal of activation codes.
type CodeUseCase interface {
	Generate(ctx context.Context, req model.GenerateRequest) (*model.GenerationResult, error)
	List(ctx context.Context, f model.CodeFilter, p model.PageRequest) (*model.CodePage, error)
	// Delete removes one code. An ACTIVATED code is only removed with force,
	// and its entitlement is never touched.
	Delete(ctx context.Context, codeID string, force bool, actorID string) error
	// DeleteBatch removes the UNUSED codes of a batch and reports the ACTIVATED ones it skipped.
	DeleteBatch(ctx context.Context, batchTag, actorID string) (*model.BatchDeleteResult, error)
	DeleteMany(ctx context.Context, ids []string, actorID string) (*model.BatchDeleteResult, error)
}

// CodeOptions tunes generation. Zero values fall back to defaults.
type CodeOptions struct {
	MaxPerGame   int
	MaxAttempts  int
	RetryBackoff time.Duration
	Groups       int
	GroupSize    int
	// Random feeds the generator; nil means crypto/rand.
	Random io.Reader
}

func (o CodeOptions) withDefaults() CodeOptions {
	if o.MaxPerGame <= 0 {
		o.MaxPerGame = 1000
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.RetryBackoff < 0 {
		o.RetryBackoff = 0
	}
	return o
}

type codeUC struct {
	codes repository.ActivationCodeRepository
	games repository.GameRepository
	tm    repository.TransactionManager
	audit adapter.AuditEmitter
	gen   *codeGenerator
	opts  CodeOptions
	log   *zerolog.Logger
}

func NewCodeUseCase(
	codes repository.ActivationCodeRepository,
	games repository.GameRepository,
	tm repository.TransactionManager,
	audit adapter.AuditEmitter,
	opts CodeOptions,
	logger *zerolog.Logger,
) *codeUC {
	if audit == nil {
		audit = adapter.NoopAuditEmitter{}
	}
	opts = opts.withDefaults()
	l := logger.With().Str("component", "CodeUC").Logger()
	return &codeUC{
		codes: codes,
		games: games,
		tm:    tm,
		audit: audit,
		gen:   newCodeGenerator(opts.Random, opts.Groups, opts.GroupSize),
		opts:  opts,
		log:   &l,
	}
}

func (uc *codeUC) Generate(ctx context.Context, req model.GenerateRequest) (*model.GenerationResult, error) {
	defer logging.TraceDuration(uc.log, "CodeUC.Generate")()

	gameIDs := dedupeNonEmpty(req.GameIDs)
	if len(gameIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one game id is required", domain.ErrInvalidArgument)
	}
	if req.Count < 1 || req.Count > uc.opts.MaxPerGame {
		return nil, fmt.Errorf("%w: count must be between 1 and %d", domain.ErrBatchTooLarge, uc.opts.MaxPerGame)
	}
	pattern, err := model.ParseCodePattern(string(req.Pattern))
	if err != nil {
		return nil, fmt.Errorf("%w: unknown pattern %q", domain.ErrInvalidArgument, req.Pattern)
	}
	prefix := ""
	if pattern == model.PatternPrefix {
		if prefix, err = model.NormalizePrefix(req.Prefix); err != nil {
			return nil, fmt.Errorf("%w: prefix must be 1-16 characters of A-Z0-9", domain.ErrInvalidArgument)
		}
	} else if strings.TrimSpace(req.Prefix) != "" {
		return nil, fmt.Errorf("%w: prefix is only valid with the PREFIX pattern", domain.ErrInvalidArgument)
	}

	missing, err := uc.games.MissingIDs(ctx, nil, gameIDs)
	if err != nil {
		return nil, fmt.Errorf("check games: %w", err)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrGameNotFound, strings.Join(missing, ", "))
	}

	res := &model.GenerationResult{
		BatchTag:  ulid.Make().String(),
		Succeeded: make([]model.GeneratedCode, 0, len(gameIDs)*req.Count),
		Failed:    []model.GenerationFailure{},
	}
	log := logging.With(ctx, uc.log).With().Str("batch_tag", res.BatchTag).Logger()

	var ctxErr error
	for _, gameID := range gameIDs {
		for slot := 1; slot <= req.Count; slot++ {
			if ctxErr = ctx.Err(); ctxErr != nil {
				res.Failed = append(res.Failed, model.GenerationFailure{GameID: gameID, Slot: slot, Reason: ReasonCancelled})
				continue
			}
			code, err := uc.createWithRetry(ctx, gameID, res.BatchTag, pattern, prefix)
			if err != nil {
				reason := ReasonStorageError
				switch {
				case errors.Is(err, errCollisionsExhausted):
					reason = ReasonCollisionsExhausted
				case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
					reason = ReasonCancelled
				}
				log.Warn().Err(err).Str("game_id", gameID).Int("slot", slot).Msg("code slot failed")
				res.Failed = append(res.Failed, model.GenerationFailure{GameID: gameID, Slot: slot, Reason: reason})
				continue
			}
			res.Succeeded = append(res.Succeeded, model.GeneratedCode{GameID: gameID, Code: code.Code})

			ev := model.NewAuditEvent(model.EventCodeGenerated)
			ev.ActorID, ev.GameID, ev.CodeID, ev.Code, ev.BatchTag = req.ActorID, gameID, code.ID, code.Code, res.BatchTag
			uc.audit.Emit(ctx, ev)
		}
	}

	metrics.AddCodesGenerated("created", len(res.Succeeded))
	metrics.AddCodesGenerated("failed", len(res.Failed))
	log.Info().
		Strs("games", gameIDs).
		Int("requested", len(gameIDs)*req.Count).
		Int("succeeded", len(res.Succeeded)).
		Int("failed", len(res.Failed)).
		Msg("code batch generated")

	if ctxErr != nil {
		return res, ctxErr
	}
	return res, nil
}

// createWithRetry persists one code, regenerating on a uniqueness collision.
// Each attempt is its own small transaction.
func (uc *codeUC) createWithRetry(ctx context.Context, gameID, batchTag string, pattern model.CodePattern, prefix string) (*model.ActivationCode, error) {
	for attempt := 1; attempt <= uc.opts.MaxAttempts; attempt++ {
		candidate, err := uc.gen.Candidate(pattern, prefix)
		if err != nil {
			return nil, fmt.Errorf("render candidate: %w", err)
		}
		code, err := model.NewActivationCode(candidate, gameID, batchTag)
		if err != nil {
			return nil, err
		}
		err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			return uc.codes.Create(ctx, tx, code)
		})
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, err
		}

		metrics.IncGenerationRetry()
		uc.log.Debug().Int("attempt", attempt).Str("game_id", gameID).Msg("code collision, regenerating")
		if attempt < uc.opts.MaxAttempts && uc.opts.RetryBackoff > 0 {
			t := time.NewTimer(time.Duration(attempt) * uc.opts.RetryBackoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}
	}
	return nil, errCollisionsExhausted
}

func (uc *codeUC) List(ctx context.Context, f model.CodeFilter, p model.PageRequest) (*model.CodePage, error) {
	defer logging.TraceDuration(uc.log, "CodeUC.List")()

	p = p.Normalize()
	f.Keyword = strings.ToUpper(strings.TrimSpace(f.Keyword))
	f.GameID = strings.TrimSpace(f.GameID)
	items, total, err := uc.codes.List(ctx, nil, f, p)
	if err != nil {
		return nil, err
	}
	return model.NewCodePage(items, total, p), nil
}

func (uc *codeUC) Delete(ctx context.Context, codeID string, force bool, actorID string) error {
	defer logging.TraceDuration(uc.log, "CodeUC.Delete")()

	if _, err := uuid.Parse(codeID); err != nil {
		return fmt.Errorf("%w: code id must be a uuid", domain.ErrInvalidArgument)
	}

	var deleted *model.ActivationCode
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		c, err := uc.codes.FindByID(ctx, tx, codeID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrCodeNotFound
			}
			return err
		}
		if !c.IsUnused() && !force {
			return domain.ErrCodeAlreadyUsed
		}
		if err := uc.codes.Delete(ctx, tx, c.ID); err != nil {
			return err
		}
		deleted = c
		return nil
	})
	if err != nil {
		return err
	}

	metrics.AddCodesDeleted(string(deleted.Status), 1)
	ev := model.NewAuditEvent(model.EventCodeDeleted)
	ev.ActorID, ev.GameID, ev.CodeID, ev.Code, ev.BatchTag = actorID, deleted.GameID, deleted.ID, deleted.Code, deleted.BatchTag
	ev.Metadata = map[string]string{"status": string(deleted.Status), "forced": strconv.FormatBool(force)}
	if deleted.UserID != nil {
		ev.UserID = *deleted.UserID
	}
	uc.audit.Emit(ctx, ev)

	logging.With(ctx, uc.log).Info().
		Str("code_id", deleted.ID).
		Str("status", string(deleted.Status)).
		Bool("forced", force).
		Msg("activation code deleted")
	return nil
}

func (uc *codeUC) DeleteBatch(ctx context.Context, batchTag, actorID string) (*model.BatchDeleteResult, error) {
	defer logging.TraceDuration(uc.log, "CodeUC.DeleteBatch")()

	batchTag = strings.TrimSpace(batchTag)
	if batchTag == "" {
		return nil, fmt.Errorf("%w: batch tag is required", domain.ErrInvalidArgument)
	}
	res, err := uc.deleteSelected(ctx, model.CodeSelector{BatchTag: batchTag}, actorID)
	if err != nil {
		return nil, err
	}
	if res.Matched == 0 {
		return nil, domain.ErrNotFound
	}
	return res, nil
}

func (uc *codeUC) DeleteMany(ctx context.Context, ids []string, actorID string) (*model.BatchDeleteResult, error) {
	defer logging.TraceDuration(uc.log, "CodeUC.DeleteMany")()

	ids = dedupeNonEmpty(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one code id is required", domain.ErrInvalidArgument)
	}
	if len(ids) > maxDeleteIDs {
		return nil, fmt.Errorf("%w: at most %d ids per call", domain.ErrBatchTooLarge, maxDeleteIDs)
	}
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("%w: %q is not a uuid", domain.ErrInvalidArgument, id)
		}
	}
	return uc.deleteSelected(ctx, model.CodeSelector{IDs: ids}, actorID)
}

// deleteSelected applies the partial-success policy: UNUSED members are removed,
// ACTIVATED members stay and are counted. A code activated between the count and
// the delete is simply skipped.
func (uc *codeUC) deleteSelected(ctx context.Context, sel model.CodeSelector, actorID string) (*model.BatchDeleteResult, error) {
	res := &model.BatchDeleteResult{}
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		total, _, err := uc.codes.CountSelected(ctx, tx, sel)
		if err != nil {
			return err
		}
		if total == 0 {
			return nil
		}
		n, err := uc.codes.DeleteUnused(ctx, tx, sel)
		if err != nil {
			return err
		}
		res.Matched, res.Deleted, res.SkippedActivated = total, n, total-n
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Matched == 0 {
		return res, nil
	}

	metrics.AddCodesDeleted(string(model.CodeStatusUnused), res.Deleted)
	ev := model.NewAuditEvent(model.EventBatchDeleted)
	ev.ActorID, ev.BatchTag = actorID, sel.BatchTag
	ev.Metadata = map[string]string{
		"matched":           strconv.Itoa(res.Matched),
		"deleted":           strconv.Itoa(res.Deleted),
		"skipped_activated": strconv.Itoa(res.SkippedActivated),
	}
	if len(sel.IDs) > 0 {
		ev.Metadata["ids"] = strconv.Itoa(len(sel.IDs))
	}
	uc.audit.Emit(ctx, ev)

	logging.With(ctx, uc.log).Info().
		Str("batch_tag", sel.BatchTag).
		Int("matched", res.Matched).
		Int("deleted", res.Deleted).
		Int("skipped_activated", res.SkippedActivated).
		Msg("codes batch deleted")
	return res, nil
}

// dedupeNonEmpty trims, drops blanks and keeps first-seen order.
func dedupeNonEmpty(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
