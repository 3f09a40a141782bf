package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	domain "user-records-service/internal/domain/user"
	pkgerrors "user-records-service/pkg/errors"
	"user-records-service/pkg/logger"
	"user-records-service/pkg/security"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

var errNotesChanged = errors.New("notes changed during analysis")

// Options tunes optional Usecase behaviour.
type Options struct {
	// EnrichmentTimeout bounds each Analyzer call. Zero means no extra bound.
	EnrichmentTimeout time.Duration
	// ReanalyzeOnUpdate queues background analysis when an update changes notes.
	ReanalyzeOnUpdate bool
}

// Option configures a Usecase.
type Option func(*Usecase)

// WithAnalyzer enables enrichment of new users' notes.
func WithAnalyzer(a Analyzer) Option {
	return func(uc *Usecase) { uc.analyzer = a }
}

// WithReanalysisQueue enables background re-analysis.
func WithReanalysisQueue(q ReanalysisQueue) Option {
	return func(uc *Usecase) { uc.queue = q }
}

// WithOptions sets timeouts and feature switches.
func WithOptions(o Options) Option {
	return func(uc *Usecase) { uc.opts = o }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(uc *Usecase) { uc.now = now }
}

// Usecase implements the business logic for user management operations.
// It provides a clean separation between the transport layer and data layer.
type Usecase struct {
	repo     Repository          // Repository for data access
	analyzer Analyzer            // Analyzer is nil when enrichment is disabled
	queue    ReanalysisQueue     // Queue is nil when background analysis is disabled
	opts     Options             // Timeouts and feature switches
	now      func() time.Time    // Time source
	log      *zap.Logger         // Logger for structured logging
	validate *validator.Validate // Validator for request validation
}

var _ UserUsecase = (*Usecase)(nil)

// New creates a new instance of Usecase with the provided repository and logger.
func New(r Repository, log *zap.Logger, opts ...Option) *Usecase {
	uc := &Usecase{
		repo:     r,
		log:      log,
		now:      time.Now,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// formatValidationError converts validator.ValidationErrors into a human-readable error.
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	var messages []string
	for _, e := range validationErrors {
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", e.Field()))
		case "email":
			messages = append(messages, fmt.Sprintf("%s must be a valid email", e.Field()))
		case "min":
			messages = append(messages, fmt.Sprintf("%s must be at least %s characters", e.Field(), e.Param()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s characters", e.Field(), e.Param()))
		case "gte", "lte":
			messages = append(messages, fmt.Sprintf("%s must be between -1 and 1", e.Field()))
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid", e.Field()))
		}
	}

	field := ""
	if len(validationErrors) == 1 {
		field = validationErrors[0].Field()
	}
	return pkgerrors.NewValidationError(field, strings.Join(messages, ", "))
}

// ListAll returns every user in store order.
func (uc *Usecase) ListAll(ctx context.Context) ([]domain.User, error) {
	users, err := uc.repo.List(ctx)
	if err != nil {
		logger.WithContext(ctx, uc.log).Error("failed to list users", zap.Error(err))
		return nil, err
	}
	return users, nil
}

// ListUsers filters users by a case-insensitive substring of name or email
// and optionally paginates the result.
func (uc *Usecase) ListUsers(ctx context.Context, in ListUsersRequest) (*ListUsersResponse, error) {
	log := logger.WithContext(ctx, uc.log)

	query, err := security.ValidateSearchQuery(in.Query)
	if err != nil {
		log.Warn("invalid search query", zap.String("query", in.Query), zap.Error(err))
		return nil, pkgerrors.NewValidationError("query", err.Error())
	}
	if in.Page <= 0 {
		in.Page = 1
	}
	if in.Limit < 0 {
		in.Limit = defaultListLimit
	}
	if in.Limit > maxListLimit {
		in.Limit = maxListLimit
	}

	log.Debug("listing users", zap.String("query", query), zap.Int64("page", in.Page), zap.Int64("limit", in.Limit))

	all, err := uc.repo.List(ctx)
	if err != nil {
		log.Error("failed to list users", zap.Error(err))
		return nil, err
	}

	matches := all
	if query != "" {
		q := strings.ToLower(query)
		matches = make([]domain.User, 0, len(all))
		for _, u := range all {
			if strings.Contains(strings.ToLower(u.FirstName+" "+u.LastName), q) ||
				strings.Contains(u.Email, q) {
				matches = append(matches, u)
			}
		}
	}

	if in.Limit == 0 {
		return &ListUsersResponse{Users: matches}, nil
	}

	p := domain.NewPagination(int64(len(matches)), in.Page, in.Limit)
	start, end := p.Bounds()
	return &ListUsersResponse{
		Users:      matches[start:end],
		Pagination: p,
	}, nil
}

// GetUser returns the user with id, or nil when there is none.
func (uc *Usecase) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		logger.WithContext(ctx, uc.log).Error("failed to get user", zap.String("id", id.String()), zap.Error(err))
		return nil, err
	}
	return u, nil
}

// CreateUser normalizes and validates the request, rejects duplicate emails,
// enriches the notes when an Analyzer is configured and stores the user.
// Enrichment failures never fail the request.
func (uc *Usecase) CreateUser(ctx context.Context, in CreateUserRequest) (*domain.User, error) {
	log := logger.WithContext(ctx, uc.log)

	in = CreateUserRequest{
		FirstName: normalizeName(in.FirstName),
		LastName:  normalizeName(in.LastName),
		Email:     NormalizeEmail(in.Email),
		Notes:     normalizeNotes(in.Notes),
	}
	log.Info("creating user", zap.String("email", in.Email))

	if err := uc.validate.Struct(in); err != nil {
		log.Warn("validate failed", zap.Error(err))
		return nil, formatValidationError(err)
	}

	existing, err := uc.repo.GetByEmail(ctx, in.Email)
	if err != nil {
		log.Error("failed to check existing email", zap.String("email", in.Email), zap.Error(err))
		return nil, fmt.Errorf("failed to validate email uniqueness: %w", err)
	}
	if existing != nil {
		log.Warn("email already exists", zap.String("email", in.Email))
		return nil, pkgerrors.NewDuplicateEmailError(in.Email)
	}

	candidate := &domain.User{
		ID:        uuid.New(),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Notes:     in.Notes,
	}

	if candidate.HasNotes() {
		if insights := uc.enrich(ctx, *candidate.Notes); insights != nil {
			candidate.ApplyInsights(*insights, uc.now())
		}
	}

	created, err := uc.repo.Create(ctx, candidate)
	if errors.Is(err, domain.ErrEmailTaken) {
		log.Warn("email taken by a concurrent create", zap.String("email", in.Email))
		return nil, pkgerrors.NewDuplicateEmailError(in.Email)
	}
	if err != nil {
		log.Error("failed to create user", zap.Error(err))
		return nil, err
	}

	log.Info("user created", zap.String("id", created.ID.String()), zap.Bool("analyzed", created.IsAnalyzed()))
	return created, nil
}

// UpdateUser applies the fields present in the request to an existing user.
// Setting any enrichment field refreshes LastAnalyzedAt.
func (uc *Usecase) UpdateUser(ctx context.Context, id uuid.UUID, in UpdateUserRequest) (*domain.User, error) {
	log := logger.WithContext(ctx, uc.log).With(zap.String("id", id.String()))

	in.FirstName = normalizeOptional(in.FirstName, normalizeName)
	in.LastName = normalizeOptional(in.LastName, normalizeName)
	in.Email = normalizeOptional(in.Email, NormalizeEmail)
	notesPresent := in.Notes != nil
	in.Notes = normalizeNotes(in.Notes)

	log.Info("updating user")

	if err := uc.validate.Struct(in); err != nil {
		log.Warn("validate failed", zap.Error(err))
		return nil, formatValidationError(err)
	}
	if in.EngagementLevel != nil && !in.EngagementLevel.Valid() {
		return nil, pkgerrors.NewValidationError("EngagementLevel", "must be one of Low, Medium, High, VeryHigh")
	}

	existing, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		log.Error("failed to load user", zap.Error(err))
		return nil, err
	}
	if existing == nil {
		log.Warn("user not found")
		return nil, pkgerrors.NewNotFoundError("user", id.String())
	}

	if in.Email != nil && !strings.EqualFold(*in.Email, existing.Email) {
		other, err := uc.repo.GetByEmail(ctx, *in.Email)
		if err != nil {
			log.Error("failed to check existing email", zap.String("email", *in.Email), zap.Error(err))
			return nil, fmt.Errorf("failed to validate email uniqueness: %w", err)
		}
		if other != nil && other.ID != id {
			log.Warn("email already exists", zap.String("email", *in.Email), zap.String("existing_id", other.ID.String()))
			return nil, pkgerrors.NewDuplicateEmailError(*in.Email)
		}
	}

	merged := existing.Clone()
	if in.FirstName != nil {
		merged.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		merged.LastName = *in.LastName
	}
	if in.Email != nil {
		merged.Email = *in.Email
	}
	if notesPresent {
		merged.Notes = in.Notes
	}
	if in.SentimentScore != nil {
		score := *in.SentimentScore
		merged.SentimentScore = &score
	}
	if in.ExtractedTags != nil {
		merged.ExtractedTags = append([]string{}, in.ExtractedTags...)
	}
	if in.EngagementLevel != nil {
		merged.EngagementLevel = in.EngagementLevel.Ptr()
	}
	if in.HasEnrichment() {
		ts := uc.now().UTC()
		merged.LastAnalyzedAt = &ts
	}

	ok, err := uc.repo.Update(ctx, &merged)
	if errors.Is(err, domain.ErrEmailTaken) {
		log.Warn("email taken by a concurrent write", zap.String("email", merged.Email))
		return nil, pkgerrors.NewDuplicateEmailError(merged.Email)
	}
	if err != nil {
		log.Error("failed to update user", zap.Error(err))
		return nil, err
	}
	if !ok {
		log.Warn("store reported no user to update")
		return nil, pkgerrors.NewUpdateFailedError("user", id.String())
	}

	if notesPresent && !sameNotes(existing.Notes, merged.Notes) && !in.HasEnrichment() {
		uc.scheduleReanalysis(log, merged)
	}

	log.Info("user updated")
	return &merged, nil
}

// DeleteUser removes the user with id and reports whether it existed.
func (uc *Usecase) DeleteUser(ctx context.Context, id uuid.UUID) (bool, error) {
	log := logger.WithContext(ctx, uc.log)
	log.Info("deleting user", zap.String("id", id.String()))

	deleted, err := uc.repo.Delete(ctx, id)
	if err != nil {
		log.Error("failed to delete user", zap.String("id", id.String()), zap.Error(err))
		return false, err
	}
	return deleted, nil
}

// ReanalyzeUser runs enrichment for a stored user's current notes and saves
// the result unless the notes changed in the meantime.
func (uc *Usecase) ReanalyzeUser(ctx context.Context, id uuid.UUID) error {
	if uc.analyzer == nil {
		return nil
	}
	log := logger.WithContext(ctx, uc.log).With(zap.String("id", id.String()))

	u, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		log.Debug("user gone before re-analysis")
		return nil
	}
	if !u.HasNotes() {
		return nil
	}

	insights := uc.enrich(ctx, *u.Notes)
	if insights == nil {
		return nil
	}

	_, found, err := uc.repo.Modify(ctx, id, func(cur *domain.User) error {
		if !sameNotes(cur.Notes, u.Notes) {
			return errNotesChanged
		}
		cur.ApplyInsights(*insights, uc.now())
		return nil
	})
	switch {
	case errors.Is(err, errNotesChanged):
		log.Debug("notes changed during re-analysis, discarding insights")
		return nil
	case err != nil:
		return fmt.Errorf("save insights: %w", err)
	case !found:
		log.Debug("user gone before insights were saved")
		return nil
	}

	log.Info("user re-analyzed")
	return nil
}

// enrich calls the Analyzer with a bounded deadline. Any failure is logged
// and reported as nil insights.
func (uc *Usecase) enrich(ctx context.Context, text string) *domain.Insights {
	if uc.analyzer == nil || text == "" {
		return nil
	}
	log := logger.WithContext(ctx, uc.log)

	if uc.opts.EnrichmentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.opts.EnrichmentTimeout)
		defer cancel()
	}

	start := uc.now()
	insights, err := uc.analyzer.Analyze(ctx, text)
	if err != nil {
		log.Warn("enrichment failed, continuing without insights",
			zap.Duration("elapsed", uc.now().Sub(start)),
			zap.Error(err),
		)
		return nil
	}
	if insights == nil {
		log.Warn("enrichment returned no insights")
		return nil
	}
	return insights
}

func (uc *Usecase) scheduleReanalysis(log *zap.Logger, u domain.User) {
	if !uc.opts.ReanalyzeOnUpdate || uc.queue == nil || uc.analyzer == nil || !u.HasNotes() {
		return
	}
	if !uc.queue.Enqueue(u.ID) {
		log.Warn("re-analysis queue full, dropping request")
	}
}
