// Package session is the conversation actor: it serializes every operation
// against a conversation, enforces access and phase rules, and commits each
// mutation atomically with its sync event.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/harborlaw/intake/internal/intake/access"
	"github.com/harborlaw/intake/internal/intake/conflict"
	"github.com/harborlaw/intake/internal/intake/domain"
	"github.com/harborlaw/intake/internal/intake/goal"
	"github.com/harborlaw/intake/internal/intake/storage"
	intakesync "github.com/harborlaw/intake/internal/intake/sync"
	"github.com/harborlaw/intake/internal/intake/token"
	apperrors "github.com/harborlaw/intake/internal/platform/errors"
	"github.com/harborlaw/intake/internal/platform/id"
)

var tracer = otel.Tracer("github.com/harborlaw/intake/internal/intake/session")

// startSpan opens a span for one conversation operation.
func startSpan(ctx context.Context, name string, conversationID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("conversation_id", conversationID),
	))
}

const (
	// resumeTranscriptLimit is how many trailing messages a resume returns.
	resumeTranscriptLimit = 20

	// conflictCheckTimeout bounds each external checker call.
	conflictCheckTimeout = 5 * time.Second

	// conflictCheckMaxAttempts bounds out-of-band checker retries.
	conflictCheckMaxAttempts = 3

	// conflictCheckRetryDelay is the base delay between checker retries.
	conflictCheckRetryDelay = 2 * time.Second
)

// Config assembles the service's collaborators.
type Config struct {
	Store        storage.ConversationStore
	Checker      conflict.Checker
	LoginBaseURL string
	Logger       zerolog.Logger
	Now          func() time.Time
	IDGenerator  func() (string, error)
}

// Service owns all conversation mutations. Every public operation locks the
// conversation, loads fresh state, applies the change, and commits it with
// exactly one version bump.
type Service struct {
	store        storage.ConversationStore
	checker      conflict.Checker
	loginBaseURL string
	logger       zerolog.Logger
	now          func() time.Time
	idGenerator  func() (string, error)

	locks *lockTable

	inflightMu sync.Mutex
	inflight   map[string]bool

	background sync.WaitGroup
}

// NewService builds a session service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("conversation store is required")
	}
	if cfg.Checker == nil {
		return nil, fmt.Errorf("conflict checker is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	idGenerator := cfg.IDGenerator
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	return &Service{
		store:        cfg.Store,
		checker:      cfg.Checker,
		loginBaseURL: strings.TrimRight(cfg.LoginBaseURL, "/"),
		logger:       cfg.Logger,
		now:          now,
		idGenerator:  idGenerator,
		locks:        newLockTable(),
		inflight:     make(map[string]bool),
	}, nil
}

// Wait blocks until background conflict-check work has drained. Intended
// for shutdown and tests.
func (s *Service) Wait() {
	s.background.Wait()
}

// CreateResult is the outcome of starting a new conversation.
type CreateResult struct {
	Conversation domain.Conversation
	ResumeToken  string
	Greeting     domain.Message
}

// View is a read of one conversation plus transcript.
type View struct {
	Conversation domain.Conversation
	Messages     []domain.Message
}

// Reply is the agent's response to a visitor message.
type Reply struct {
	Conversation domain.Conversation
	AgentMessage domain.Message
	LoginURL     string
}

// Create starts a new anonymous conversation for a firm and returns the
// resume token exactly once.
func (s *Service) Create(ctx context.Context, firmID string) (CreateResult, error) {
	ctx, span := tracer.Start(ctx, "session.Create", trace.WithAttributes(
		attribute.String("firm_id", firmID),
	))
	defer span.End()

	rawToken, tokenHash, err := token.Issue()
	if err != nil {
		return CreateResult{}, err
	}

	conv, err := domain.CreateConversation(domain.CreateConversationInput{
		FirmID:          firmID,
		ResumeTokenHash: tokenHash,
	}, s.now, s.idGenerator)
	if err != nil {
		return CreateResult{}, err
	}

	greeting := domain.Message{
		Role:      domain.MessageRoleAgent,
		Content:   "Welcome. Tell us what happened and how we can help.",
		CreatedAt: conv.CreatedAt,
	}

	event, err := s.encodeEvent(conv, 1)
	if err != nil {
		return CreateResult{}, err
	}
	if err := s.store.CreateConversation(ctx, conv, []domain.Message{greeting}, event); err != nil {
		return CreateResult{}, commitFailed(err)
	}

	s.logger.Info().
		Str("conversation_id", conv.ID).
		Str("firm_id", conv.FirmID).
		Msg("conversation created")

	return CreateResult{Conversation: conv, ResumeToken: rawToken, Greeting: greeting}, nil
}

// Resume reattaches a visitor to an unsecured conversation by resume token.
func (s *Service) Resume(ctx context.Context, firmID string, rawToken string) (View, error) {
	ctx, span := tracer.Start(ctx, "session.Resume", trace.WithAttributes(
		attribute.String("firm_id", firmID),
	))
	defer span.End()

	if strings.TrimSpace(rawToken) == "" {
		return View{}, apperrors.New(apperrors.CodeIntakeResumeTokenInvalid, "resume token is invalid")
	}

	conv, err := s.store.GetConversationByTokenHash(ctx, firmID, token.Hash(rawToken))
	if errors.Is(err, storage.ErrNotFound) {
		return View{}, apperrors.New(apperrors.CodeIntakeResumeTokenInvalid, "resume token is invalid")
	}
	if err != nil {
		return View{}, err
	}

	if err := access.Authorize(conv, access.Caller{FirmID: firmID, ResumeToken: rawToken}); err != nil {
		return View{}, err
	}

	release := s.locks.acquire(conv.ID)
	defer release()

	messages, err := s.store.ListRecentMessages(ctx, conv.ID, resumeTranscriptLimit)
	if err != nil {
		return View{}, err
	}
	return View{Conversation: conv, Messages: messages}, nil
}

// Get returns a conversation and its full transcript for an authorized caller.
func (s *Service) Get(ctx context.Context, caller access.Caller, conversationID string) (View, error) {
	ctx, span := startSpan(ctx, "session.Get", conversationID)
	defer span.End()

	release := s.locks.acquire(conversationID)
	defer release()

	conv, err := s.load(ctx, caller, conversationID)
	if err != nil {
		return View{}, err
	}
	messages, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return View{}, err
	}
	return View{Conversation: conv, Messages: messages}, nil
}

// AddMessageInput carries a visitor message plus any identity fields the
// intake agent extracted from it.
type AddMessageInput struct {
	Content        string
	IdentityFields map[string]string
	// CompletedGoals lists goal IDs the agent judged satisfied by this message.
	CompletedGoals []string
}

// AddMessage appends a visitor message, evaluates goals and phase, and
// replies. It may kick off an out-of-band conflict check; that never delays
// or fails this call.
func (s *Service) AddMessage(ctx context.Context, caller access.Caller, conversationID string, input AddMessageInput) (Reply, error) {
	ctx, span := startSpan(ctx, "session.AddMessage", conversationID)
	defer span.End()

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return Reply{}, apperrors.New(apperrors.CodeIntakeValidation, "message content is required")
	}

	release := s.locks.acquire(conversationID)
	defer release()

	conv, err := s.loadMutable(ctx, caller, conversationID)
	if err != nil {
		return Reply{}, err
	}

	now := s.now().UTC()
	conv.Identity.Merge(input.IdentityFields)
	for _, goalID := range input.CompletedGoals {
		updated, err := goal.Complete(conv.Goals, goalID, now)
		if err != nil {
			if apperrors.CodeOf(err) == apperrors.CodeIntakeConflictUnknownGoal {
				// The agent referenced a goal this conversation never had.
				// Ignore it rather than lose the visitor's message.
				continue
			}
			return Reply{}, err
		}
		conv.Goals = updated
	}
	s.advancePhases(&conv)

	reply := s.composeReply(conv, now)
	visitorMsg := domain.Message{Role: domain.MessageRoleVisitor, Content: content, CreatedAt: now}

	if err := s.commit(ctx, &conv, []domain.Message{visitorMsg, reply.AgentMessage}); err != nil {
		return Reply{}, err
	}
	reply.Conversation = conv

	if s.shouldRequestConflictCheck(conv) {
		s.spawnConflictCheck(ctx, conv.ID)
	}
	return reply, nil
}

// Secure binds the conversation to the verified caller identity. Only valid
// from login_suggested and only once, ever.
func (s *Service) Secure(ctx context.Context, caller access.Caller, conversationID string) (domain.Conversation, error) {
	ctx, span := startSpan(ctx, "session.Secure", conversationID)
	defer span.End()

	if strings.TrimSpace(caller.UserID) == "" {
		return domain.Conversation{}, apperrors.New(apperrors.CodeIntakeIdentityRequired, "a verified identity is required to secure a conversation")
	}

	release := s.locks.acquire(conversationID)
	defer release()

	conv, err := s.loadMutable(ctx, caller, conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}

	if err := conv.Bind(caller.UserID); err != nil {
		return domain.Conversation{}, err
	}
	s.advancePhases(&conv)

	if err := s.commit(ctx, &conv, nil); err != nil {
		return domain.Conversation{}, err
	}

	s.logger.Info().
		Str("conversation_id", conv.ID).
		Msg("conversation secured")

	if s.shouldRequestConflictCheck(conv) {
		s.spawnConflictCheck(ctx, conv.ID)
	}
	return conv, nil
}

// CompleteGoal marks one goal complete and recomputes phase readiness.
func (s *Service) CompleteGoal(ctx context.Context, caller access.Caller, conversationID string, goalID string) (domain.Conversation, error) {
	ctx, span := startSpan(ctx, "session.CompleteGoal", conversationID)
	defer span.End()

	release := s.locks.acquire(conversationID)
	defer release()

	conv, err := s.loadMutable(ctx, caller, conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}

	updated, err := goal.Complete(conv.Goals, goalID, s.now().UTC())
	if err != nil {
		return domain.Conversation{}, err
	}
	conv.Goals = updated
	s.advancePhases(&conv)

	if err := s.commit(ctx, &conv, nil); err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// Complete moves a conversation to its successful terminal phase. All
// critical and required goals must be done and the conversation must have
// reached data gathering.
func (s *Service) Complete(ctx context.Context, caller access.Caller, conversationID string) (domain.Conversation, error) {
	ctx, span := startSpan(ctx, "session.Complete", conversationID)
	defer span.End()

	release := s.locks.acquire(conversationID)
	defer release()

	conv, err := s.loadMutable(ctx, caller, conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}

	if err := conv.AdvancePhase(domain.PhaseCompleted); err != nil {
		return domain.Conversation{}, err
	}

	if err := s.commit(ctx, &conv, nil); err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// Terminate moves a conversation to terminated from any non-terminal phase.
func (s *Service) Terminate(ctx context.Context, caller access.Caller, conversationID string, reason string) (domain.Conversation, error) {
	ctx, span := startSpan(ctx, "session.Terminate", conversationID)
	defer span.End()

	release := s.locks.acquire(conversationID)
	defer release()

	conv, err := s.loadMutable(ctx, caller, conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}

	if err := conv.AdvancePhase(domain.PhaseTerminated); err != nil {
		return domain.Conversation{}, err
	}
	conv.TerminateReason = strings.TrimSpace(reason)

	if err := s.commit(ctx, &conv, nil); err != nil {
		return domain.Conversation{}, err
	}

	s.logger.Info().
		Str("conversation_id", conv.ID).
		Str("reason", conv.TerminateReason).
		Msg("conversation terminated")
	return conv, nil
}

// Delete soft-deletes a conversation on behalf of firm staff. It works in
// any phase, retains the full history, and permanently stops all further
// operations. Deleting twice is a no-op.
func (s *Service) Delete(ctx context.Context, firmID string, conversationID string) (domain.Conversation, error) {
	ctx, span := startSpan(ctx, "session.Delete", conversationID)
	defer span.End()

	release := s.locks.acquire(conversationID)
	defer release()

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if conv.FirmID != firmID {
		return domain.Conversation{}, apperrors.New(apperrors.CodeIntakeAccessDenied, "conversation belongs to a different firm")
	}
	if conv.Deleted {
		return conv, nil
	}
	conv.Deleted = true

	if err := s.commit(ctx, &conv, nil); err != nil {
		return domain.Conversation{}, err
	}

	s.logger.Info().
		Str("conversation_id", conv.ID).
		Msg("conversation soft-deleted")
	return conv, nil
}

// RequestConflictCheck runs one conflict check synchronously under the
// conversation lock. Degraded checker calls leave the verdict pending and
// flag the conversation for follow-up; they are reported, not fatal.
func (s *Service) RequestConflictCheck(ctx context.Context, conversationID string) error {
	ctx, span := startSpan(ctx, "session.RequestConflictCheck", conversationID)
	defer span.End()

	release := s.locks.acquire(conversationID)
	defer release()
	return s.runConflictCheck(ctx, conversationID)
}

func (s *Service) runConflictCheck(ctx context.Context, conversationID string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if err != nil {
		return err
	}
	if !conv.CanMutate() {
		return nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, conflictCheckTimeout)
	defer cancel()

	snapshot := conv.Identity.Clone()
	result, checkErr := s.checker.Check(checkCtx, conflict.Request{
		ConversationID: conv.ID,
		FirmID:         conv.FirmID,
		Identity:       snapshot,
	})
	if checkErr != nil {
		if apperrors.CodeOf(checkErr) != apperrors.CodeIntakeConflictCheckDegraded {
			return checkErr
		}
		s.logger.Warn().
			Err(checkErr).
			Str("conversation_id", conv.ID).
			Msg("conflict check degraded")
		if conv.ConflictCheck.NeedsFollowUp {
			return checkErr
		}
		conv.ConflictCheck.NeedsFollowUp = true
		if err := s.commit(ctx, &conv, nil); err != nil {
			return err
		}
		return checkErr
	}

	// Every field in the sent snapshot counts as checked, even when the
	// checker reports a narrower set; the verdict covered all of them.
	conv.MergeConflictResult(result.Status, result.Confidence, append(snapshot.Fields(), result.CheckedFields...), result.Details)
	conv.Goals = goal.Merge(conv.Goals, result.AdditionalGoals)

	var closing []domain.Message
	if result.Stop {
		// A stop instruction overrides everything else in flight.
		if err := conv.AdvancePhase(domain.PhaseTerminated); err == nil {
			conv.TerminateReason = result.StopReason
			if conv.TerminateReason == "" {
				conv.TerminateReason = "conflict checker requested stop"
			}
			conv.HandoffRequired = true
			closing = append(closing, domain.Message{
				Role:      domain.MessageRoleSystem,
				Content:   "This conversation has been closed pending review by our staff.",
				CreatedAt: s.now().UTC(),
			})
		}
	} else {
		s.advancePhases(&conv)
	}

	if err := s.commit(ctx, &conv, closing); err != nil {
		return err
	}

	s.logger.Info().
		Str("conversation_id", conv.ID).
		Str("status", domain.ConflictStatusLabel(conv.ConflictCheck.Status)).
		Bool("stop", result.Stop).
		Msg("conflict check merged")
	return nil
}

// spawnConflictCheck runs the conflict check out of band with bounded
// retries. The caller's request never waits on it.
func (s *Service) spawnConflictCheck(ctx context.Context, conversationID string) {
	s.inflightMu.Lock()
	if s.inflight[conversationID] {
		s.inflightMu.Unlock()
		return
	}
	s.inflight[conversationID] = true
	s.inflightMu.Unlock()

	background := context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer func() {
			s.inflightMu.Lock()
			delete(s.inflight, conversationID)
			s.inflightMu.Unlock()
		}()

		for attempt := 1; attempt <= conflictCheckMaxAttempts; attempt++ {
			err := s.RequestConflictCheck(background, conversationID)
			if err == nil {
				return
			}
			if apperrors.CodeOf(err) != apperrors.CodeIntakeConflictCheckDegraded {
				s.logger.Error().
					Err(err).
					Str("conversation_id", conversationID).
					Msg("conflict check failed")
				return
			}
			if attempt < conflictCheckMaxAttempts {
				time.Sleep(time.Duration(attempt) * conflictCheckRetryDelay)
			}
		}
		s.logger.Warn().
			Str("conversation_id", conversationID).
			Msg("conflict check exhausted retries, left pending for follow-up")
	}()
}

// shouldRequestConflictCheck reports whether a check needs scheduling: the
// conversation is still open, no conflict is on record yet, a full name is on
// file, and the snapshot holds at least one field no completed check has seen.
// A clear verdict only covers the fields it actually checked, so a late
// disclosure re-opens the question.
func (s *Service) shouldRequestConflictCheck(conv domain.Conversation) bool {
	if !conv.CanMutate() {
		return false
	}
	if conv.ConflictCheck.Status == domain.ConflictStatusConflictDetected {
		return false
	}
	if conv.Identity[domain.FieldFullName] == "" {
		return false
	}
	checked := make(map[string]struct{}, len(conv.ConflictCheck.CheckedFields))
	for _, field := range conv.ConflictCheck.CheckedFields {
		checked[field] = struct{}{}
	}
	for field := range conv.Identity {
		if _, done := checked[field]; !done {
			return true
		}
	}
	return false
}

// advancePhases applies every phase advancement the current state supports.
func (s *Service) advancePhases(conv *domain.Conversation) {
	for {
		switch conv.Phase {
		case domain.PhasePreLogin:
			if !goal.PreLoginComplete(conv.Goals) {
				return
			}
			conv.Phase = domain.PhaseLoginSuggested
		case domain.PhaseSecured:
			if conv.ConflictCheck.Status == domain.ConflictStatusPending {
				return
			}
			conv.Phase = domain.PhaseConflictCheckComplete
		case domain.PhaseConflictCheckComplete:
			if !goal.BlockingComplete(conv.Goals) {
				return
			}
			conv.Phase = domain.PhaseDataGathering
		default:
			return
		}
	}
}

func (s *Service) composeReply(conv domain.Conversation, now time.Time) Reply {
	reply := Reply{AgentMessage: domain.Message{Role: domain.MessageRoleAgent, CreatedAt: now}}

	if conv.Phase == domain.PhaseLoginSuggested {
		reply.LoginURL = s.loginURL(conv.ID)
		reply.AgentMessage.Content = "Thanks. To continue securely, please log in so we can verify who you are."
		return reply
	}

	if blocking := goal.FirstBlocking(conv.Goals); blocking != nil {
		reply.AgentMessage.Content = blocking.Description
		return reply
	}

	reply.AgentMessage.Content = "Thank you. We have everything we need for now."
	return reply
}

func (s *Service) loginURL(conversationID string) string {
	if s.loginBaseURL == "" {
		return ""
	}
	return s.loginBaseURL + "/login?conversation=" + conversationID
}

// load fetches a conversation and authorizes the caller against it.
func (s *Service) load(ctx context.Context, caller access.Caller, conversationID string) (domain.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if err := access.Authorize(conv, caller); err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

func (s *Service) loadMutable(ctx context.Context, caller access.Caller, conversationID string) (domain.Conversation, error) {
	conv, err := s.load(ctx, caller, conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !conv.CanMutate() {
		return domain.Conversation{}, apperrors.WithMetadata(
			apperrors.CodeIntakeConversationClosed,
			"conversation no longer accepts changes",
			map[string]string{"Phase": conv.Phase.Label()},
		)
	}
	return conv, nil
}

// commit bumps the version by exactly one and writes state, messages, and
// the sync event atomically.
func (s *Service) commit(ctx context.Context, conv *domain.Conversation, newMessages []domain.Message) error {
	expected := conv.DoVersion
	conv.DoVersion++
	conv.UpdatedAt = s.now().UTC()

	count, err := s.store.CountMessages(ctx, conv.ID)
	if err != nil {
		conv.DoVersion = expected
		return err
	}
	event, err := s.encodeEvent(*conv, count+len(newMessages))
	if err != nil {
		conv.DoVersion = expected
		return err
	}

	commitErr := s.store.CommitConversation(ctx, storage.Commit{
		Conversation:    *conv,
		ExpectedVersion: expected,
		NewMessages:     newMessages,
		Event:           &event,
	})
	if commitErr != nil {
		conv.DoVersion = expected
		if errors.Is(commitErr, storage.ErrVersionConflict) || errors.Is(commitErr, storage.ErrNotFound) {
			return commitErr
		}
		return commitFailed(commitErr)
	}
	return nil
}

func (s *Service) encodeEvent(conv domain.Conversation, messageCount int) (storage.OutboxEvent, error) {
	payload, err := intakesync.NewEvent(conv, messageCount).Encode()
	if err != nil {
		return storage.OutboxEvent{}, err
	}
	return storage.OutboxEvent{
		ConversationID: conv.ID,
		Version:        conv.DoVersion,
		Payload:        payload,
		EnqueuedAt:     s.now().UTC(),
	}, nil
}

func commitFailed(err error) error {
	return apperrors.Wrap(apperrors.CodeIntakeCommitFailed, "conversation commit failed", err)
}
