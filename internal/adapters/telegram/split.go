package telegram

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageLen — лимит Telegram на длину текста сообщения в рунах.
const MaxMessageLen = 4096

// SplitMessage режет текст на части не длиннее MaxMessageLen.
// Блоки статей разделены пустой строкой, поэтому сначала текст режется по абзацам,
// затем по строкам и только в крайнем случае посреди строки.
func SplitMessage(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= MaxMessageLen {
		return []string{text}
	}
	var blocks []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.Trim(para, "\n")
		if para == "" {
			continue
		}
		blocks = append(blocks, pack(splitLines(para), "\n")...)
	}
	return pack(blocks, "\n\n")
}

// splitLines возвращает абзац целиком, если он влезает, иначе его строки,
// слишком длинные строки режутся по рунам.
func splitLines(para string) []string {
	if utf8.RuneCountInString(para) <= MaxMessageLen {
		return []string{para}
	}
	var out []string
	for _, line := range strings.Split(para, "\n") {
		runes := []rune(line)
		for len(runes) > MaxMessageLen {
			out = append(out, string(runes[:MaxMessageLen]))
			runes = runes[MaxMessageLen:]
		}
		if len(runes) > 0 {
			out = append(out, string(runes))
		}
	}
	return out
}

// pack жадно склеивает куски через sep, пока часть не превышает лимит.
func pack(pieces []string, sep string) []string {
	var (
		out    []string
		cur    strings.Builder
		curLen int
	)
	sepLen := utf8.RuneCountInString(sep)
	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if curLen > 0 && curLen+sepLen+n > MaxMessageLen {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteString(sep)
			curLen += sepLen
		}
		cur.WriteString(p)
		curLen += n
	}
	if curLen > 0 {
		out = append(out, cur.String())
	}
	return out
}
