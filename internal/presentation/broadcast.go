package presentation

import (
	"log"
	"strings"
	"sync"
)

// broadcaster fans the latest value out to subscribers. Each subscriber has a
// one-slot buffer, so a slow reader skips intermediate values and always
// sees the newest one. Late subscribers get the latest value immediately.
type broadcaster[T any] struct {
	mu     sync.Mutex
	latest T
	has    bool
	subs   map[int]chan T
	nextID int
}

func (b *broadcaster[T]) publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.latest = v
	b.has = true
	for _, ch := range b.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

func (b *broadcaster[T]) subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs == nil {
		b.subs = make(map[int]chan T)
	}
	id := b.nextID
	b.nextID++
	ch := make(chan T, 1)
	if b.has {
		ch <- b.latest
	}
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		// closeAll may have closed the channel already
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
}

func (b *broadcaster[T]) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// events is a queue of one-shot events. Events are not replayed; when no
// one reads and the queue is full, new events are dropped.
type events struct {
	ch chan string
}

func newEvents(size int) *events {
	return &events{ch: make(chan string, size)}
}

func (e *events) emit(v string) {
	select {
	case e.ch <- v:
	default:
		log.Printf("Dropping event %q: no reader", v)
	}
}

// errorLog aggregates user-visible errors, one per line. Lines tagged with a
// book ID can be withdrawn when a newer event for that book arrives.
type errorLog struct {
	lines []errorLine
}

type errorLine struct {
	bookID int
	text   string
}

func (l *errorLog) add(text string) {
	l.addForBook(0, text)
}

func (l *errorLog) addForBook(bookID int, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	l.lines = append(l.lines, errorLine{bookID: bookID, text: text})
}

func (l *errorLog) removeBook(bookID int) {
	kept := l.lines[:0]
	for _, line := range l.lines {
		if line.bookID != bookID {
			kept = append(kept, line)
		}
	}
	l.lines = kept
}

func (l *errorLog) clear() {
	l.lines = nil
}

func (l *errorLog) String() string {
	texts := make([]string, len(l.lines))
	for i, line := range l.lines {
		texts[i] = line.text
	}
	return strings.Join(texts, "\n")
}
