package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-news-digest/internal/adapters/ranker"
	"ai-news-digest/internal/adapters/telegram"
	"ai-news-digest/internal/domain"
	"ai-news-digest/internal/infra/metrics"
	"ai-news-digest/internal/usecase/digest"
)

// maxListLimit ограничивает длину списков, которые бот отправляет в чат.
const maxListLimit = 30

// Digests — запросы к обогащённым статьям, которые нужны боту.
type Digests interface {
	Top(ctx context.Context, n, days int) ([]domain.EnrichedArticle, error)
	Stats(ctx context.Context, days int) ([]domain.ClusterStat, error)
	Query(ctx context.Context, q digest.Query) ([]domain.EnrichedArticle, error)
	Highlights(ctx context.Context, profile string, n, days int) ([]domain.EnrichedArticle, error)
}

// Handler обслуживает вебхук бота.
type Handler struct {
	bot       telegram.Sender
	log       zerolog.Logger
	digests   Digests
	jobs      domain.JobQueue
	maxDigest int
	now       func() time.Time
}

// NewHandler создаёт обработчик.
func NewHandler(bot telegram.Sender, log zerolog.Logger, digests Digests, jobs domain.JobQueue, maxDigest int) *Handler {
	if maxDigest <= 0 {
		maxDigest = 10
	}
	return &Handler{
		bot:       bot,
		log:       log,
		digests:   digests,
		jobs:      jobs,
		maxDigest: maxDigest,
		now:       time.Now,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	cmd, args := parseCommand(msg.Text)
	switch cmd {
	case "start":
		h.reply(chatID, buildStartMessage(), mainKeyboard())
	case "help":
		h.reply(chatID, buildHelpMessage(), mainKeyboard())
	case "top":
		n, err := parseLimit(args, h.maxDigest)
		if err != nil {
			h.reply(chatID, "Укажите число статей, например /top 5", nil)
			return
		}
		h.handleTop(ctx, chatID, n)
	case "clusters":
		h.handleClusters(ctx, chatID)
	case "search":
		h.handleSearch(ctx, chatID, args)
	case "cluster":
		h.handleCluster(ctx, chatID, args)
	case "students":
		h.handleStudents(ctx, chatID)
	case "digest":
		h.handleDigest(ctx, chatID)
	case "":
		h.reply(chatID, "Отправьте команду, например /top или /help", nil)
	default:
		h.reply(chatID, "Неизвестная команда. Используйте /help", nil)
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	h.answerCallback(cb.ID)
	switch cb.Data {
	case "top":
		h.handleTop(ctx, chatID, h.maxDigest)
	case "clusters":
		h.handleClusters(ctx, chatID)
	case "students":
		h.handleStudents(ctx, chatID)
	case "digest":
		h.handleDigest(ctx, chatID)
	case "help":
		h.reply(chatID, buildHelpMessage(), mainKeyboard())
	default:
		if label, ok := strings.CutPrefix(cb.Data, "cluster:"); ok {
			h.handleCluster(ctx, chatID, label)
			return
		}
		h.log.Warn().Str("data", cb.Data).Msg("неизвестный callback")
	}
}

func (h *Handler) handleTop(ctx context.Context, chatID int64, n int) {
	items, err := h.digests.Top(ctx, n, 0)
	if err != nil {
		h.replyError(chatID, "Не удалось получить статьи", err)
		return
	}
	h.reply(chatID, digest.FormatArticles(fmt.Sprintf("🔥 Топ-%d статей", n), items), nil)
}

func (h *Handler) handleClusters(ctx context.Context, chatID int64) {
	stats, err := h.digests.Stats(ctx, 0)
	if err != nil {
		h.replyError(chatID, "Не удалось посчитать статистику", err)
		return
	}
	if len(stats) == 0 {
		h.reply(chatID, "За последние дни статей нет.", nil)
		return
	}
	blocks := make([]string, 0, len(stats)+1)
	blocks = append(blocks, "🗂 <b>Темы</b>")
	for _, stat := range stats {
		blocks = append(blocks, digest.FormatStat(stat))
	}
	h.reply(chatID, strings.Join(blocks, "\n\n"), clusterKeyboard(stats))
}

func (h *Handler) handleCluster(ctx context.Context, chatID int64, label string) {
	label = strings.TrimSpace(label)
	if label == "" {
		h.reply(chatID, "Укажите тему, например /cluster Research", nil)
		return
	}
	items, err := h.digests.Query(ctx, digest.Query{
		Filter: ranker.Filter{Cluster: label},
		Sort:   ranker.SortCluster,
		Limit:  h.maxDigest,
	})
	if err != nil {
		h.replyError(chatID, "Не удалось получить статьи", err)
		return
	}
	h.reply(chatID, digest.FormatArticles("🗂 "+label, items), nil)
}

func (h *Handler) handleSearch(ctx context.Context, chatID int64, query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		h.reply(chatID, "Отправьте /search и текст запроса, например /search AI Act", nil)
		return
	}
	items, err := h.digests.Query(ctx, digest.Query{
		Filter: ranker.Filter{Query: query},
		Sort:   ranker.SortRelevance,
		Limit:  h.maxDigest,
	})
	if err != nil {
		h.replyError(chatID, "Не удалось выполнить поиск", err)
		return
	}
	h.reply(chatID, digest.FormatArticles("🔎 "+query, items), nil)
}

func (h *Handler) handleStudents(ctx context.Context, chatID int64) {
	items, err := h.digests.Highlights(ctx, ranker.StudentsProfile, h.maxDigest, 0)
	if err != nil {
		h.replyError(chatID, "Не удалось подобрать статьи", err)
		return
	}
	h.reply(chatID, digest.FormatArticles("🎓 Для студентов", items), nil)
}

func (h *Handler) handleDigest(ctx context.Context, chatID int64) {
	now := h.now()
	job := domain.Job{
		ID:          uuid.NewString(),
		Kind:        domain.JobWeeklyDigest,
		ChatID:      chatID,
		Date:        now,
		RequestedAt: now,
		Cause:       domain.JobCauseManual,
	}
	if err := h.jobs.Enqueue(ctx, job); err != nil {
		h.replyError(chatID, "Не удалось поставить дайджест в очередь", err)
		return
	}
	metrics.IncDigest(string(domain.JobCauseManual))
	h.log.Info().Int64("chat_id", chatID).Str("job_id", job.ID).Msg("дайджест поставлен в очередь")
	h.reply(chatID, "⏳ Собираю дайджест, он придёт отдельным сообщением.", nil)
}

func (h *Handler) answerCallback(id string) {
	if id == "" {
		return
	}
	start := time.Now()
	_, err := h.bot.Send(tgbotapi.NewCallback(id, ""))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", "callback", start, err)
	if err != nil {
		h.log.Debug().Err(err).Msg("не удалось ответить на callback")
	}
}

func (h *Handler) replyError(chatID int64, text string, err error) {
	h.log.Error().Err(err).Int64("chat_id", chatID).Msg(text)
	if errors.Is(err, digest.ErrUnknownProfile) {
		text = "Профиль отбора не настроен"
	}
	h.reply(chatID, text+". Попробуйте позже.", nil)
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := telegram.SplitMessage(text)
	for i, part := range parts {
		msg := telegram.NewHTMLMessage(chatID, part)
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

// parseCommand выделяет имя команды без слэша и суффикса @bot и её аргументы.
// Для текста без слэша возвращается пустая команда.
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	head, args, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(args)
}

// parseLimit разбирает число статей; пустая строка даёт def, значение ограничено maxListLimit.
func parseLimit(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return min(n, maxListLimit), nil
}

func mainKeyboard() *tgbotapi.InlineKeyboardMarkup {
	buttons := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔥 Топ", "top"),
			tgbotapi.NewInlineKeyboardButtonData("🗂 Темы", "clusters"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎓 Для студентов", "students"),
			tgbotapi.NewInlineKeyboardButtonData("📰 Дайджест", "digest"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("ℹ️ Помощь", "help"),
		),
	)
	return &buttons
}

// clusterKeyboard строит кнопки по кластерам. Telegram ограничивает callback_data 64 байтами.
func clusterKeyboard(stats []domain.ClusterStat) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, stat := range stats {
		data := "cluster:" + stat.Cluster
		if len(data) > 64 {
			continue
		}
		label := fmt.Sprintf("%s (%d)", stat.Cluster, stat.Count)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, data)))
	}
	if len(rows) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func buildStartMessage() string {
	lines := []string{
		"👋 Добро пожаловать в AI News Digest!",
		"",
		"Бот собирает новости об искусственном интеллекте из RSS-лент,",
		"оценивает их релевантность и раскладывает по темам.",
		"",
		"Как пользоваться ботом:",
		"1. 🔥 Самые релевантные статьи — кнопка \"Топ\" или команда /top.",
		"2. 🗂 Статистика по темам — кнопка \"Темы\" или команда /clusters.",
		"3. 🔎 Поиск по заголовкам и тегам — /search AI Act.",
		"4. 📰 Дайджест за неделю — кнопка \"Дайджест\" или команда /digest.",
		"",
		"Под кнопкой \"ℹ️ Помощь\" вы найдёте полный список команд.",
	}
	return strings.Join(lines, "\n")
}

func buildHelpMessage() string {
	sections := []string{
		"📖 Основные команды и примеры:",
		"",
		"Статьи:",
		"• /top — самые релевантные статьи за неделю.",
		"• /top 5 — только пять статей.",
		"• /search regulation — поиск по заголовку, описанию и тегам.",
		"• /students — подборка для студентов.",
		"",
		"Темы:",
		"• /clusters — статистика по темам.",
		"• /cluster Research — статьи одной темы.",
		"",
		"Дайджест:",
		"• /digest — собрать дайджест за последние семь дней.",
	}
	return strings.Join(sections, "\n")
}
