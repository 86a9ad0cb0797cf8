package domain

import (
	"context"
	"time"
)

// JobKind определяет тип фоновой задачи.
type JobKind string

const (
	// JobRefreshFeed — загрузить свежие статьи ленты.
	JobRefreshFeed JobKind = "refresh"
	// JobWeeklyDigest — собрать и разослать еженедельный дайджест.
	JobWeeklyDigest JobKind = "digest"
)

// JobCause описывает источник запроса.
type JobCause string

const (
	// JobCauseManual — задача поставлена вручную (API или бот).
	JobCauseManual JobCause = "manual"
	// JobCauseScheduled — задача запланирована по расписанию.
	JobCauseScheduled JobCause = "scheduled"
)

// Job содержит информацию о фоновой задаче.
type Job struct {
	ID          string    `json:"job_id,omitempty"`
	Kind        JobKind   `json:"kind"`
	FeedID      int64     `json:"feed_id,omitempty"`
	ChatID      int64     `json:"chat_id,omitempty"`
	Date        time.Time `json:"date"`
	RequestedAt time.Time `json:"requested_at"`
	Cause       JobCause  `json:"cause"`
}

// JobQueue описывает очередь фоновых задач.
type JobQueue interface {
	Enqueue(ctx context.Context, job Job) error
	Receive(ctx context.Context) (Job, AckFunc, error)
}

// AckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type AckFunc func(success bool) error

// JobStatusRepo отвечает за отслеживание попыток обработки задач.
type JobStatusRepo interface {
	// EnsureJob регистрирует попытку обработки и возвращает признак завершения
	// и номер текущей попытки.
	EnsureJob(ctx context.Context, jobID string) (done bool, attempt int, err error)
	// MarkJobDone помечает задачу как окончательно обработанную.
	MarkJobDone(ctx context.Context, jobID string) error
}
