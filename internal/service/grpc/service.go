package grpcsvc

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/cart/internal/cart"
	"github.com/vladislavdragonenkov/cart/internal/domain"
	"github.com/vladislavdragonenkov/cart/internal/session"
)

const defaultWatchBuffer = 16

// CartService реализует cart.v1.CartService поверх реестра сессий.
// Мутации получают корзину через cart.FromContext (см. ScopeUnaryInterceptor).
type CartService struct {
	registry    *session.Registry
	logger      *log.Entry
	watchBuffer int
}

// NewCartService конструирует сервис с зависимостями.
func NewCartService(registry *session.Registry, logger *log.Entry) *CartService {
	if logger == nil {
		logger = log.New().WithField("component", "cart-service")
	}
	return &CartService{
		registry:    registry,
		logger:      logger,
		watchBuffer: defaultWatchBuffer,
	}
}

// OpenSession монтирует новую пустую корзину.
func (s *CartService) OpenSession(_ context.Context, _ *OpenSessionRequest) (*OpenSessionResponse, error) {
	opened, err := s.registry.Mount()
	if err != nil {
		s.logger.WithError(err).Warn("failed to mount cart session")
		return nil, status.Error(codes.Unavailable, err.Error())
	}

	s.logger.WithField("session_id", opened.ID).Info("cart session opened")
	return &OpenSessionResponse{
		SessionID: opened.ID,
		Cart:      *toCartResponse(opened.ID, "", opened.Store.Snapshot()),
	}, nil
}

// CloseSession уничтожает корзину сессии; повторное закрытие не ошибка.
func (s *CartService) CloseSession(ctx context.Context, _ *CloseSessionRequest) (*CloseSessionResponse, error) {
	id := sessionIDFromContext(ctx)
	if id == "" {
		return nil, status.Error(codes.FailedPrecondition, domain.ErrSessionIDRequired.Error())
	}

	closed := s.registry.Unmount(id)
	s.logger.WithFields(log.Fields{
		"session_id": id,
		"closed":     closed,
	}).Info("cart session close requested")

	return &CloseSessionResponse{SessionID: id, Closed: closed}, nil
}

// AddItem добавляет позицию или увеличивает количество существующей.
func (s *CartService) AddItem(ctx context.Context, req *AddItemRequest) (*CartResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	return s.apply(ctx, "AddItem", domain.CartOpAdd, func(store *cart.Store) domain.Snapshot {
		return store.Add(req.Line)
	})
}

// UpdateQuantity выставляет количество; <= 0 удаляет позицию.
func (s *CartService) UpdateQuantity(ctx context.Context, req *UpdateQuantityRequest) (*CartResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	return s.apply(ctx, "UpdateQuantity", domain.CartOpUpdateQuantity, func(store *cart.Store) domain.Snapshot {
		return store.UpdateQuantity(req.ID, req.Quantity)
	})
}

// RemoveItem удаляет позицию.
func (s *CartService) RemoveItem(ctx context.Context, req *RemoveItemRequest) (*CartResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	return s.apply(ctx, "RemoveItem", domain.CartOpRemove, func(store *cart.Store) domain.Snapshot {
		return store.Remove(req.ID)
	})
}

// ClearCart очищает корзину.
func (s *CartService) ClearCart(ctx context.Context, _ *ClearCartRequest) (*CartResponse, error) {
	return s.apply(ctx, "ClearCart", domain.CartOpClear, func(store *cart.Store) domain.Snapshot {
		return store.Clear()
	})
}

// GetCart возвращает текущий snapshot.
func (s *CartService) GetCart(ctx context.Context, _ *GetCartRequest) (*CartResponse, error) {
	store, err := s.scope(ctx, "GetCart")
	if err != nil {
		return nil, err
	}
	return toCartResponse(sessionIDFromContext(ctx), "", store.Snapshot()), nil
}

// Watch отправляет текущий snapshot и затем каждое изменение корзины.
// Поток завершается, когда клиент уходит или сессия уничтожена.
func (s *CartService) Watch(_ *WatchRequest, stream WatchServer) error {
	ctx := stream.Context()
	store, err := s.scope(ctx, "Watch")
	if err != nil {
		return err
	}
	sessionID := sessionIDFromContext(ctx)

	updates := make(chan cart.Change, s.watchBuffer)
	unsubscribe := store.Subscribe(func(change cart.Change) {
		offerLatest(updates, change)
	})
	defer unsubscribe()

	// Сессия могла быть уничтожена между interceptor и подпиской.
	release, err := s.registry.Hold(sessionID)
	if err != nil {
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	defer release()

	current := store.Snapshot()
	if err := stream.Send(toCartResponse(sessionID, "", current)); err != nil {
		return err
	}
	lastVersion := current.Version

	for {
		select {
		case <-ctx.Done():
			return nil
		case change := <-updates:
			// close мог попасть в начальный snapshot, но поток всё равно завершается им.
			if change.Op == domain.CartOpClose {
				return stream.Send(toCartResponse(sessionID, change.Op, change.Snapshot))
			}
			if change.Snapshot.Version <= lastVersion {
				continue
			}
			if err := stream.Send(toCartResponse(sessionID, change.Op, change.Snapshot)); err != nil {
				return err
			}
			lastVersion = change.Snapshot.Version
		}
	}
}

func (s *CartService) apply(ctx context.Context, method string, op domain.CartOp, mutate func(*cart.Store) domain.Snapshot) (*CartResponse, error) {
	store, err := s.scope(ctx, method)
	if err != nil {
		return nil, err
	}

	snapshot := mutate(store)
	logger := s.logger.WithFields(log.Fields{
		"method":     method,
		"session_id": sessionIDFromContext(ctx),
		"version":    snapshot.Version,
		"lines":      snapshot.Len(),
	})
	// Add не валидирует количество, поэтому такие позиции только логируются.
	if errs := snapshot.ValidateInvariants(); len(errs) > 0 {
		logger.WithError(errors.Join(errs...)).Warn("cart holds invalid lines")
	}
	logger.Debug("cart mutated")

	return toCartResponse(sessionIDFromContext(ctx), op, snapshot), nil
}

func (s *CartService) scope(ctx context.Context, method string) (*cart.Store, error) {
	store, err := cart.FromContext(ctx)
	if err == nil {
		return store, nil
	}

	logger := s.logger.WithError(err).WithFields(log.Fields{
		"method":     method,
		"session_id": sessionIDFromContext(ctx),
	})
	if domain.IsScopeError(err) {
		logger.Warn("cart requested outside of a mounted session")
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	logger.Error("failed to resolve cart scope")
	return nil, status.Error(codes.Internal, err.Error())
}

// offerLatest кладёт change в канал, вытесняя самое старое изменение при переполнении.
// Каждое изменение несёт полный snapshot.
func offerLatest(ch chan cart.Change, change cart.Change) {
	for {
		select {
		case ch <- change:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
