package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"ai-news-digest/internal/domain"
	"ai-news-digest/internal/infra/metrics"
	digestusecase "ai-news-digest/internal/usecase/digest"
	"ai-news-digest/internal/usecase/ingest"
)

const (
	maxDeliveryAttempts = 5
	maxRetryDelay       = time.Minute
)

type feedCollector interface {
	CollectFeed(ctx context.Context, feedID int64) (int, error)
}

type digestBuilder interface {
	BuildWeekly(ctx context.Context, now time.Time) (domain.Digest, error)
	SendWeekly(ctx context.Context, chatID int64, now time.Time) (bool, error)
}

type jobWorker struct {
	log        zerolog.Logger
	queue      domain.JobQueue
	statuses   domain.JobStatusRepo
	locks      domain.Cache
	ingest     feedCollector
	digests    digestBuilder
	notifier   domain.Notifier
	chatID     int64
	lockTTL    time.Duration
	retryDelay time.Duration
	now        func() time.Time
	pause      func(ctx context.Context, d time.Duration)
}

type jobOutcome int

const (
	jobOutcomeCompleted jobOutcome = iota
	jobOutcomeRetry
)

func (w *jobWorker) Run(ctx context.Context) {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("collector: ошибка чтения очереди")
			w.sleep(ctx)
			continue
		}
		w.process(ctx, job, ack)
	}
}

func (w *jobWorker) process(ctx context.Context, job domain.Job, ack domain.AckFunc) {
	jobLog := w.log.With().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Str("cause", string(job.Cause)).
		Int64("feed", job.FeedID).
		Logger()

	if job.ID == "" {
		jobLog.Error().Msg("collector: получена задача без идентификатора, подтверждаем и пропускаем")
		w.ack(ack, true, jobLog)
		return
	}

	done, attempt, err := w.statuses.EnsureJob(ctx, job.ID)
	if err != nil {
		jobLog.Error().Err(err).Msg("collector: не удалось зарегистрировать задачу")
		w.ack(ack, false, jobLog)
		w.sleep(ctx)
		return
	}
	jobLog = jobLog.With().Int("attempt", attempt).Logger()

	if done {
		jobLog.Info().Msg("collector: задача уже обработана, подтверждаем")
		w.ack(ack, true, jobLog)
		return
	}

	ran, outcome := w.runLocked(ctx, job, jobLog)
	if !ran {
		jobLog.Info().Msg("collector: задача уже выполняется, дубликат пропущен")
		w.ack(ack, true, jobLog)
		return
	}
	metrics.ObserveJob(string(job.Kind), outcome == jobOutcomeCompleted)

	if outcome == jobOutcomeRetry && attempt < maxDeliveryAttempts {
		jobLog.Warn().Msg("collector: задача завершилась ошибкой, повторим позже")
		w.backoff(ctx, attempt)
		w.ack(ack, false, jobLog)
		return
	}
	if outcome == jobOutcomeRetry {
		jobLog.Error().Msg("collector: достигнут предел попыток, помечаем задачу как завершённую")
	}

	if err := w.statuses.MarkJobDone(ctx, job.ID); err != nil {
		jobLog.Error().Err(err).Msg("collector: не удалось пометить задачу завершённой")
		w.ack(ack, false, jobLog)
		w.sleep(ctx)
		return
	}
	w.ack(ack, true, jobLog)
}

// runLocked выполняет задачу под ключом job:<id>. ran=false, если ключ уже занят.
func (w *jobWorker) runLocked(ctx context.Context, job domain.Job, jobLog zerolog.Logger) (bool, jobOutcome) {
	if w.locks == nil {
		return true, w.handleJob(ctx, job, jobLog)
	}
	var (
		ran     bool
		outcome jobOutcome
	)
	errRetry := errors.New("retry")
	err := w.locks.Once(ctx, "job:"+job.ID, w.lockTTL, func() error {
		ran = true
		outcome = w.handleJob(ctx, job, jobLog)
		if outcome == jobOutcomeRetry {
			return errRetry
		}
		return nil
	})
	if err != nil && !errors.Is(err, errRetry) {
		jobLog.Error().Err(err).Msg("collector: не удалось захватить задачу")
		return true, jobOutcomeRetry
	}
	return ran, outcome
}

func (w *jobWorker) handleJob(ctx context.Context, job domain.Job, jobLog zerolog.Logger) jobOutcome {
	switch job.Kind {
	case domain.JobRefreshFeed:
		return w.handleRefresh(ctx, job, jobLog)
	case domain.JobWeeklyDigest:
		return w.handleDigest(ctx, job, jobLog)
	default:
		jobLog.Error().Msg("collector: неизвестный тип задачи")
		return jobOutcomeCompleted
	}
}

func (w *jobWorker) handleRefresh(ctx context.Context, job domain.Job, jobLog zerolog.Logger) jobOutcome {
	saved, err := w.ingest.CollectFeed(ctx, job.FeedID)
	switch {
	case err == nil:
		jobLog.Info().Int("saved", saved).Msg("collector: лента обновлена")
		return jobOutcomeCompleted
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, ingest.ErrFeedDisabled):
		jobLog.Warn().Err(err).Msg("collector: лента недоступна, задача пропущена")
		return jobOutcomeCompleted
	default:
		jobLog.Error().Err(err).Msg("collector: ошибка загрузки ленты")
		return jobOutcomeRetry
	}
}

func (w *jobWorker) handleDigest(ctx context.Context, job domain.Job, jobLog zerolog.Logger) jobOutcome {
	chatID := job.ChatID
	if chatID == 0 {
		chatID = w.chatID
	}
	if chatID == 0 {
		jobLog.Error().Msg("collector: не указан чат для дайджеста (TG_DIGEST_CHAT_ID)")
		return jobOutcomeCompleted
	}
	now := job.Date
	if now.IsZero() {
		now = w.now()
	}

	if job.Cause == domain.JobCauseManual {
		return w.sendManualDigest(ctx, chatID, now, jobLog)
	}

	sent, err := w.digests.SendWeekly(ctx, chatID, now)
	switch {
	case errors.Is(err, digestusecase.ErrNoArticles):
		jobLog.Info().Msg("collector: за неделю нет статей, дайджест не отправлен")
		return jobOutcomeCompleted
	case err != nil && sent:
		jobLog.Error().Err(err).Msg("collector: дайджест отправлен, но отметка доставки не сохранена")
		return jobOutcomeCompleted
	case err != nil:
		jobLog.Error().Err(err).Msg("collector: отправка дайджеста")
		return jobOutcomeRetry
	case !sent:
		jobLog.Info().Msg("collector: дайджест за неделю уже доставлен")
	default:
		jobLog.Info().Int64("chat_id", chatID).Msg("collector: дайджест отправлен")
	}
	return jobOutcomeCompleted
}

// sendManualDigest собирает дайджест по запросу из бота без сохранения и отметки доставки.
func (w *jobWorker) sendManualDigest(ctx context.Context, chatID int64, now time.Time, jobLog zerolog.Logger) jobOutcome {
	d, err := w.digests.BuildWeekly(ctx, now)
	if errors.Is(err, digestusecase.ErrNoArticles) {
		if err := w.notifier.SendDigest(ctx, chatID, "За последние семь дней статей не найдено."); err != nil {
			jobLog.Error().Err(err).Msg("collector: не удалось отправить сообщение")
		}
		return jobOutcomeCompleted
	}
	if err != nil {
		jobLog.Error().Err(err).Msg("collector: ошибка построения дайджеста")
		return jobOutcomeRetry
	}
	if err := w.notifier.SendDigest(ctx, chatID, digestusecase.FormatDigest(d)); err != nil {
		jobLog.Error().Err(err).Msg("collector: отправка дайджеста")
		return jobOutcomeRetry
	}
	jobLog.Info().Int64("chat_id", chatID).Msg("collector: дайджест по запросу отправлен")
	return jobOutcomeCompleted
}

func (w *jobWorker) ack(ack domain.AckFunc, success bool, jobLog zerolog.Logger) {
	if err := ack(success); err != nil {
		jobLog.Error().Err(err).Bool("success", success).Msg("collector: не удалось подтвердить задачу")
	}
}

func (w *jobWorker) sleep(ctx context.Context) {
	w.wait(ctx, w.baseDelay())
}

// backoff растягивает паузу перед повтором пропорционально номеру попытки.
func (w *jobWorker) backoff(ctx context.Context, attempt int) {
	if attempt < 1 {
		attempt = 1
	}
	delay := w.baseDelay() * time.Duration(attempt)
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	w.wait(ctx, delay)
}

func (w *jobWorker) baseDelay() time.Duration {
	if w.retryDelay <= 0 {
		return time.Second
	}
	return w.retryDelay
}

func (w *jobWorker) wait(ctx context.Context, d time.Duration) {
	if w.pause != nil {
		w.pause(ctx, d)
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
