package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"ai-news-digest/internal/domain"
	"ai-news-digest/internal/infra/metrics"
)

// ErrInvalidTimezone возвращается, если указан некорректный часовой пояс.
var ErrInvalidTimezone = errors.New("invalid timezone")

// Service ставит фоновые задачи в очередь по расписанию.
type Service struct {
	cron   *cron.Cron
	loc    *time.Location
	feeds  domain.FeedRepo
	queue  domain.JobQueue
	chatID int64
	log    zerolog.Logger
	now    func() time.Time
}

// NewService создаёт планировщик в часовом поясе timezone.
func NewService(timezone string, feeds domain.FeedRepo, queue domain.JobQueue, chatID int64, logger zerolog.Logger) (*Service, error) {
	normalized, err := normalizeTimezone(timezone)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(normalized)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", normalized, err)
	}
	return &Service{
		cron:   cron.New(cron.WithLocation(loc)),
		loc:    loc,
		feeds:  feeds,
		queue:  queue,
		chatID: chatID,
		log:    logger,
		now:    time.Now,
	}, nil
}

// Register добавляет задания сбора и еженедельного дайджеста. Пустое выражение пропускается.
func (s *Service) Register(ctx context.Context, collectSpec, digestSpec string) error {
	if strings.TrimSpace(collectSpec) != "" {
		if _, err := s.cron.AddFunc(collectSpec, func() {
			if err := s.EnqueueRefresh(ctx); err != nil {
				s.log.Error().Err(err).Msg("scheduler: не удалось поставить сбор лент")
			}
		}); err != nil {
			return fmt.Errorf("collect cron %q: %w", collectSpec, err)
		}
	}
	if strings.TrimSpace(digestSpec) != "" {
		if _, err := s.cron.AddFunc(digestSpec, func() {
			if err := s.EnqueueDigest(ctx, domain.JobCauseScheduled); err != nil {
				s.log.Error().Err(err).Msg("scheduler: не удалось поставить дайджест")
			}
		}); err != nil {
			return fmt.Errorf("digest cron %q: %w", digestSpec, err)
		}
	}
	return nil
}

// Run запускает cron и блокируется до отмены ctx.
func (s *Service) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

// Entries возвращает число зарегистрированных заданий.
func (s *Service) Entries() int {
	return len(s.cron.Entries())
}

// EnqueueRefresh ставит задачу обновления для каждой включённой ленты.
func (s *Service) EnqueueRefresh(ctx context.Context) error {
	feeds, err := s.feeds.ListFeeds(ctx, true)
	if err != nil {
		return fmt.Errorf("список лент: %w", err)
	}
	now := s.now().In(s.loc)
	for _, feed := range feeds {
		job := domain.Job{
			ID:          refreshJobID(feed.ID, now),
			Kind:        domain.JobRefreshFeed,
			FeedID:      feed.ID,
			Date:        now,
			RequestedAt: now,
			Cause:       domain.JobCauseScheduled,
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("постановка ленты %d: %w", feed.ID, err)
		}
	}
	s.log.Info().Int("feeds", len(feeds)).Msg("scheduler: сбор лент поставлен в очередь")
	return nil
}

// EnqueueDigest ставит задачу еженедельного дайджеста.
func (s *Service) EnqueueDigest(ctx context.Context, cause domain.JobCause) error {
	now := s.now().In(s.loc)
	job := domain.Job{
		ID:          digestJobID(now, cause),
		Kind:        domain.JobWeeklyDigest,
		ChatID:      s.chatID,
		Date:        now,
		RequestedAt: now,
		Cause:       cause,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("постановка дайджеста: %w", err)
	}
	metrics.IncDigest(string(cause))
	s.log.Info().Str("job_id", job.ID).Msg("scheduler: дайджест поставлен в очередь")
	return nil
}

// Плановые задачи получают детерминированный ID, чтобы повторная постановка
// в ту же минуту схлопывалась воркером.
func refreshJobID(feedID int64, at time.Time) string {
	return fmt.Sprintf("refresh:%d:%s", feedID, at.UTC().Format("200601021504"))
}

func digestJobID(at time.Time, cause domain.JobCause) string {
	if cause == domain.JobCauseScheduled {
		return "digest:" + at.UTC().Format("2006-01-02")
	}
	return uuid.NewString()
}

func normalizeTimezone(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", ErrInvalidTimezone
	}
	candidate = strings.ReplaceAll(candidate, " ", "_")
	if _, err := time.LoadLocation(candidate); err == nil {
		return candidate, nil
	}

	lower := strings.ToLower(candidate)
	parts := strings.Split(lower, "/")
	for i, part := range parts {
		segments := strings.Split(part, "_")
		for j, segment := range segments {
			pieces := strings.Split(segment, "-")
			for k, piece := range pieces {
				if piece == "" {
					continue
				}
				pieces[k] = strings.ToUpper(piece[:1]) + piece[1:]
			}
			segments[j] = strings.Join(pieces, "-")
		}
		parts[i] = strings.Join(segments, "_")
	}
	normalized := strings.Join(parts, "/")
	if _, err := time.LoadLocation(normalized); err == nil {
		return normalized, nil
	}
	return "", ErrInvalidTimezone
}
