package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cart/internal/cart"
	"github.com/vladislavdragonenkov/cart/internal/domain"
)

// Причины уничтожения сессии для логов и метрик.
const (
	ReasonClosed   = "closed"
	ReasonExpired  = "expired"
	ReasonShutdown = "shutdown"
)

// Observer получает изменения корзины вместе с идентификатором сессии.
type Observer func(sessionID string, change cart.Change)

// Recorder учитывает жизненный цикл сессий (см. metrics.CartMetrics).
type Recorder interface {
	RecordSessionMounted()
	RecordSessionUnmounted(reason string)
}

// Session: смонтированная корзина и её идентификатор.
type Session struct {
	ID        string
	Store     *cart.Store
	MountedAt time.Time
}

type entry struct {
	session  Session
	lastSeen time.Time
	// holds: число активных удержаний (Hold), такие сессии не истекают.
	holds int
}

// Options задаёт параметры реестра.
type Options struct {
	Logger    *log.Entry
	Recorder  Recorder
	Observers []Observer
	Now       func() time.Time
	NewID     func() string
}

// Option настраивает Registry.
type Option func(*Options)

// WithLogger задаёт logger реестра.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithRecorder задаёт получателя метрик жизненного цикла.
func WithRecorder(recorder Recorder) Option {
	return func(opts *Options) {
		opts.Recorder = recorder
	}
}

// WithObserver подписывает observer на каждую новую корзину.
func WithObserver(observer Observer) Option {
	return func(opts *Options) {
		if observer != nil {
			opts.Observers = append(opts.Observers, observer)
		}
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}

// WithIDGenerator подменяет генератор идентификаторов сессий.
func WithIDGenerator(newID func() string) Option {
	return func(opts *Options) {
		opts.NewID = newID
	}
}

// Registry владеет корзинами: одна корзина на смонтированную сессию.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	closed   bool

	logger    *log.Entry
	recorder  Recorder
	observers []Observer
	now       func() time.Time
	newID     func() string
}

// NewRegistry создаёт пустой реестр.
func NewRegistry(options ...Option) *Registry {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cart-sessions")
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	return &Registry{
		sessions:  make(map[string]*entry),
		logger:    logger,
		recorder:  opts.Recorder,
		observers: opts.Observers,
		now:       opts.Now,
		newID:     opts.NewID,
	}
}

// Mount создаёт новую пустую корзину под новым идентификатором сессии.
func (r *Registry) Mount() (Session, error) {
	now := r.now()
	store := cart.NewStore()
	session := Session{ID: r.newID(), Store: store, MountedAt: now}

	for _, observer := range r.observers {
		store.Subscribe(func(change cart.Change) {
			observer(session.ID, change)
		})
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Session{}, domain.ErrRegistryClosed
	}
	if _, exists := r.sessions[session.ID]; exists {
		r.mu.Unlock()
		return Session{}, fmt.Errorf("session %q already mounted", session.ID)
	}
	r.sessions[session.ID] = &entry{session: session, lastSeen: now}
	r.mu.Unlock()

	if r.recorder != nil {
		r.recorder.RecordSessionMounted()
	}
	r.logger.WithField("session_id", session.ID).Debug("cart session mounted")

	return session, nil
}

// Lookup возвращает корзину сессии и обновляет время последнего обращения.
// Для пустого или несмонтированного id возвращает domain.ErrNoCartScope.
func (r *Registry) Lookup(id string) (*cart.Store, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: %w", domain.ErrNoCartScope, domain.ErrSessionIDRequired)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, domain.ErrNoCartScope)
	}
	e.lastSeen = r.now()
	return e.session.Store, nil
}

// Establish возвращает ctx, в котором установлена корзина сессии id.
func (r *Registry) Establish(ctx context.Context, id string) (context.Context, error) {
	store, err := r.Lookup(id)
	if err != nil {
		return ctx, err
	}
	return cart.NewContext(ctx, store), nil
}

// Hold удерживает смонтированную сессию от истечения по простою, пока не вызвана release.
// release идемпотентна и обновляет время последнего обращения.
func (r *Registry) Hold(id string) (release func(), err error) {
	if id == "" {
		return nil, fmt.Errorf("%w: %w", domain.ErrNoCartScope, domain.ErrSessionIDRequired)
	}

	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("session %q: %w", id, domain.ErrNoCartScope)
	}
	e.lastSeen = r.now()
	e.holds++
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if current, ok := r.sessions[id]; ok && current == e {
				e.holds--
				e.lastSeen = r.now()
			}
		})
	}, nil
}

// Subscribe подписывает fn на корзину смонтированной сессии.
func (r *Registry) Subscribe(id string, fn cart.Observer) (func(), error) {
	store, err := r.Lookup(id)
	if err != nil {
		return nil, err
	}
	return store.Subscribe(fn), nil
}

// Unmount уничтожает сессию: корзина очищается, наблюдатели получают
// CartOpClose и отписываются. Неизвестный id игнорируется, возвращает false.
func (r *Registry) Unmount(id string) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.destroy(e.session, ReasonClosed)
	return true
}

// ExpireIdle уничтожает сессии, к которым не обращались с момента before.
// Удерживаемые через Hold сессии пропускаются.
func (r *Registry) ExpireIdle(before time.Time) int {
	var expired []Session

	r.mu.Lock()
	for id, e := range r.sessions {
		if e.holds == 0 && e.lastSeen.Before(before) {
			expired = append(expired, e.session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, session := range expired {
		r.destroy(session, ReasonExpired)
	}
	return len(expired)
}

// Count возвращает количество смонтированных сессий.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Closed сообщает, остановлен ли реестр.
func (r *Registry) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Close уничтожает все сессии и запрещает новые.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	sessions := make([]Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		sessions = append(sessions, e.session)
	}
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	for _, session := range sessions {
		r.destroy(session, ReasonShutdown)
	}
}

func (r *Registry) destroy(session Session, reason string) {
	session.Store.Close()

	if r.recorder != nil {
		r.recorder.RecordSessionUnmounted(reason)
	}
	r.logger.WithFields(log.Fields{
		"session_id": session.ID,
		"reason":     reason,
	}).Debug("cart session unmounted")
}
