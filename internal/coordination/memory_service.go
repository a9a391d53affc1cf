package coordination

import (
	"context"
	"time"

	"github.com/aiswarm/swarmd/internal/clock"
	"github.com/aiswarm/swarmd/internal/events"
	"github.com/aiswarm/swarmd/internal/notify"
	"github.com/aiswarm/swarmd/internal/persistence"
)

// DefaultMemoryWait is the default wait_for_memory_key long-poll timeout.
const DefaultMemoryWait = 30 * time.Second

const defaultNamespace = "default"
const defaultMemoryType = "json"

// MemoryService implements spec §4.7.
type MemoryService struct {
	store  *persistence.Store
	notify *notify.MemoryNotifications
	logger *EventLogger
	clock  clock.Clock
}

// NewMemoryService wires a MemoryService.
func NewMemoryService(store *persistence.Store, bus *events.MemoryBus, logger *EventLogger, c clock.Clock) *MemoryService {
	return &MemoryService{store: store, notify: notify.NewMemoryNotifications(bus), logger: logger, clock: c}
}

// SaveRequest carries the arguments for Save.
type SaveRequest struct {
	Key       string
	Value     string
	Namespace string
	Type      string
	Metadata  *string
}

// Save upserts a memory entry and announces MemorySaved/MemoryUpdated.
func (s *MemoryService) Save(ctx context.Context, req SaveRequest) (persistence.MemoryEntry, error) {
	if blank(req.Key) {
		return persistence.MemoryEntry{}, newErr(KindInvalidInput, "key must not be blank", nil)
	}
	if blank(req.Value) {
		return persistence.MemoryEntry{}, newErr(KindInvalidInput, "value must not be blank", nil)
	}
	namespace := req.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}
	typ := req.Type
	if typ == "" {
		typ = defaultMemoryType
	}

	op := s.store.BeginOperation(ctx)
	defer op.Close()
	w, err := op.Write()
	if err != nil {
		return persistence.MemoryEntry{}, wrapStoreErr("begin save memory", err)
	}

	_, peekErr := persistence.PeekMemory(w.asRead(), namespace, req.Key)
	alreadyExisted := peekErr == nil

	entry, err := persistence.SaveMemory(w, namespace, req.Key, req.Value, typ, req.Metadata, s.clock.Now())
	if err != nil {
		return persistence.MemoryEntry{}, wrapStoreErr("save memory", err)
	}
	eventType := "MemorySaved"
	kind := events.MemorySaved
	if alreadyExisted {
		eventType, kind = "MemoryUpdated", events.MemoryUpdated
	}
	s.logger.logWithin(w, eventType, persistence.SeverityInformation, &entry.ID, strPtr("memory"), nil)
	if err := op.Complete(); err != nil {
		return persistence.MemoryEntry{}, wrapStoreErr("commit save memory", err)
	}

	_ = s.notify.Publish(ctx, kind, events.MemoryPayload{Namespace: namespace, Key: req.Key}, "")
	return entry, nil
}

// Read loads one entry and bumps its access bookkeeping. Returns
// ok=false (not an error) if the key is missing, per spec §4.7.
func (s *MemoryService) Read(ctx context.Context, namespace, key string) (persistence.MemoryEntry, bool, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	op := s.store.BeginOperation(ctx)
	defer op.Close()
	w, err := op.Write()
	if err != nil {
		return persistence.MemoryEntry{}, false, wrapStoreErr("begin read memory", err)
	}
	entry, err := persistence.ReadMemory(w, namespace, key, s.clock.Now())
	if err == persistence.ErrNotFound {
		return persistence.MemoryEntry{}, false, nil
	}
	if err != nil {
		return persistence.MemoryEntry{}, false, wrapStoreErr("read memory", err)
	}
	if err := op.Complete(); err != nil {
		return persistence.MemoryEntry{}, false, wrapStoreErr("commit read memory", err)
	}
	return entry, true, nil
}

// List returns a read-only snapshot of a namespace.
func (s *MemoryService) List(ctx context.Context, namespace string) ([]persistence.MemoryEntry, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	op := s.store.BeginOperation(ctx)
	defer op.Close()
	entries, err := persistence.ListMemory(op.Read(), namespace)
	if err != nil {
		return nil, wrapStoreErr("list memory", err)
	}
	return entries, nil
}

// WaitForKey subscribes first, then reads, so a write landing between the
// subscribe call and the initial read is still caught by the subscription
// rather than missed until timeout. If the key is already present it
// returns immediately without ever blocking on the subscription. A wakeup
// always re-reads the store — bus events carry no data of their own.
func (s *MemoryService) WaitForKey(ctx context.Context, namespace, key string, timeout time.Duration) (persistence.MemoryEntry, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if timeout <= 0 {
		timeout = DefaultMemoryWait
	}

	sub, err := s.notify.SubscribeForKey(ctx, namespace, key)
	if err != nil {
		return persistence.MemoryEntry{}, wrapStoreErr("subscribe for memory key", err)
	}
	defer sub.Close()

	if entry, ok, err := s.Read(ctx, namespace, key); err != nil {
		return persistence.MemoryEntry{}, err
	} else if ok {
		return entry, nil
	}

	deadline := s.clock.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return persistence.MemoryEntry{}, newErr(KindCancelled, "wait_for_memory_key cancelled", ctx.Err())
		case <-deadline.C():
			return persistence.MemoryEntry{}, newErr(KindTimeout, "timed out waiting for memory key", nil)
		case _, ok := <-sub.Events():
			if !ok {
				return persistence.MemoryEntry{}, newErr(KindBusDisposed, "memory bus disposed while waiting", nil)
			}
		}

		if entry, ok, err := s.Read(ctx, namespace, key); err != nil {
			return persistence.MemoryEntry{}, err
		} else if ok {
			return entry, nil
		}
	}
}
