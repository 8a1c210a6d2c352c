package telegram

import (
	"strings"
	"unicode/utf8"
)

const messageLimit = 4096

// SplitMessage делит HTML-текст ответа на части не длиннее лимита Telegram.
// Разрез никогда не проходит внутри тега или HTML-сущности. Теги, открытые на
// месте разреза, закрываются в конце части и открываются заново в следующей.
// По возможности текст режется по переводу строки. Короткий текст возвращается как есть.
func SplitMessage(text string) []string {
	return split(text, true)
}

// SplitPlain делит обычный текст без разметки.
func SplitPlain(text string) []string {
	return split(text, false)
}

func split(text string, html bool) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= messageLimit {
		return []string{text}
	}
	var s splitter
	for _, tok := range tokenize(text, html) {
		s.add(tok)
	}
	s.emit(s.buf, s.stack)
	return s.parts
}

type token struct {
	text  string
	size  int
	open  string
	close string
}

type openTag struct {
	name string
	raw  string
}

type splitter struct {
	parts []string

	prefix     string
	prefixSize int
	buf        []token
	size       int
	stack      []openTag

	// cut указывает на позицию в buf сразу после последнего перевода строки.
	cut      int
	cutStack []openTag
}

func (s *splitter) add(tok token) {
	next := applyTag(s.stack, tok)
	for len(s.buf) > 0 && s.prefixSize+s.size+tok.size+closersSize(next) > messageLimit {
		s.flush()
		next = applyTag(s.stack, tok)
	}
	s.buf = append(s.buf, tok)
	s.size += tok.size
	s.stack = next
	if tok.text == "\n" {
		s.cut = len(s.buf)
		s.cutStack = s.stack
	}
}

func (s *splitter) flush() {
	if s.cut == 0 {
		s.emit(s.buf, s.stack)
		s.restart(s.stack, nil)
		return
	}
	head, tail := s.buf[:s.cut], s.buf[s.cut:]
	for len(head) > 0 && head[len(head)-1].text == "\n" {
		head = head[:len(head)-1]
	}
	for len(tail) > 0 && tail[0].text == "\n" {
		tail = tail[1:]
	}
	s.emit(head, s.cutStack)
	s.restart(s.cutStack, tail)
}

func (s *splitter) restart(reopen []openTag, tail []token) {
	var b strings.Builder
	for _, tag := range reopen {
		b.WriteString(tag.raw)
	}
	s.prefix = b.String()
	s.prefixSize = utf8.RuneCountInString(s.prefix)
	s.buf = append([]token(nil), tail...)
	s.size = 0
	for _, tok := range s.buf {
		s.size += tok.size
	}
	s.cut = 0
	s.cutStack = nil
}

func (s *splitter) emit(tokens []token, stack []openTag) {
	if len(tokens) == 0 {
		return
	}
	var b strings.Builder
	b.WriteString(s.prefix)
	for _, tok := range tokens {
		b.WriteString(tok.text)
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteString("</" + stack[i].name + ">")
	}
	s.parts = append(s.parts, b.String())
}

func closersSize(stack []openTag) int {
	n := 0
	for _, tag := range stack {
		n += len(tag.name) + 3
	}
	return n
}

func applyTag(stack []openTag, tok token) []openTag {
	switch {
	case tok.open != "":
		return append(stack[:len(stack):len(stack)], openTag{name: tok.open, raw: tok.text})
	case tok.close != "":
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].name == tok.close {
				return stack[:i:i]
			}
		}
	}
	return stack
}

func tokenize(text string, html bool) []token {
	runes := []rune(text)
	tokens := make([]token, 0, len(runes))
	for i := 0; i < len(runes); {
		if html {
			switch runes[i] {
			case '<':
				if j := indexAfter(runes, i, '>', len(runes)); j > 0 {
					tok := token{text: string(runes[i : j+1]), size: j + 1 - i}
					if tok.open, tok.close = tagName(runes[i+1 : j]); tok.open != "" || tok.close != "" {
						tokens = append(tokens, tok)
						i = j + 1
						continue
					}
				}
			case '&':
				if j := indexAfter(runes, i, ';', i+10); j > 0 && !containsSpace(runes[i:j]) {
					tokens = append(tokens, token{text: string(runes[i : j+1]), size: j + 1 - i})
					i = j + 1
					continue
				}
			}
		}
		tokens = append(tokens, token{text: string(runes[i]), size: 1})
		i++
	}
	return tokens
}

// tagName разбирает содержимое между < и >. Для текста, похожего на тег лишь внешне, оба имени пусты.
func tagName(inner []rune) (open, closing string) {
	isClose := len(inner) > 0 && inner[0] == '/'
	if isClose {
		inner = inner[1:]
	}
	if len(inner) == 0 || !isLetter(inner[0]) || inner[len(inner)-1] == '/' {
		return "", ""
	}
	end := 0
	for end < len(inner) && (isLetter(inner[end]) || inner[end] == '-' || (inner[end] >= '0' && inner[end] <= '9')) {
		end++
	}
	if end < len(inner) && inner[end] != ' ' {
		return "", ""
	}
	name := strings.ToLower(string(inner[:end]))
	if isClose {
		return "", name
	}
	return name, ""
}

func indexAfter(runes []rune, from int, r rune, limit int) int {
	if limit > len(runes) {
		limit = len(runes)
	}
	for j := from + 1; j < limit; j++ {
		if runes[j] == r {
			return j
		}
	}
	return -1
}

func containsSpace(runes []rune) bool {
	for _, r := range runes {
		if r == ' ' || r == '\n' || r == '\t' {
			return true
		}
	}
	return false
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
