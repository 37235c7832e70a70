package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTurnLockTTL bounds how long a crashed turn can keep a Redis lock.
const DefaultTurnLockTTL = 5 * time.Minute

const turnLockPrefix = "querygate:turn:"

// TurnLocker serializes chat turns per session. Locks are try-locks:
// a second turn on a busy session fails immediately instead of queueing.
type TurnLocker interface {
	// TryLock acquires the session's lock. ok is false when a turn is already running.
	TryLock(ctx context.Context, sessionID uuid.UUID) (release func(), ok bool, err error)
	// Busy reports whether a turn currently holds the session's lock.
	Busy(ctx context.Context, sessionID uuid.UUID) bool
}

type memoryTurnLocker struct {
	mu   sync.Mutex
	held map[uuid.UUID]string
}

// NewMemoryTurnLocker returns a process-local TurnLocker.
func NewMemoryTurnLocker() TurnLocker {
	return &memoryTurnLocker{held: make(map[uuid.UUID]string)}
}

func (l *memoryTurnLocker) TryLock(_ context.Context, sessionID uuid.UUID) (func(), bool, error) {
	token, err := newLockToken()
	if err != nil {
		return nil, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[sessionID]; busy {
		return nil, false, nil
	}
	l.held[sessionID] = token

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[sessionID] == token {
			delete(l.held, sessionID)
		}
	}, true, nil
}

func (l *memoryTurnLocker) Busy(_ context.Context, sessionID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.held[sessionID]
	return busy
}

// releaseScript deletes the lock only if it still holds our token, so an
// expired lock re-acquired by another turn is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type redisTurnLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisTurnLocker returns a TurnLocker shared by every instance using client.
func NewRedisTurnLocker(client redis.UniversalClient, ttl time.Duration) TurnLocker {
	if ttl <= 0 {
		ttl = DefaultTurnLockTTL
	}
	return &redisTurnLocker{client: client, ttl: ttl}
}

func (l *redisTurnLocker) TryLock(ctx context.Context, sessionID uuid.UUID) (func(), bool, error) {
	token, err := newLockToken()
	if err != nil {
		return nil, false, err
	}

	key := turnLockPrefix + sessionID.String()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire turn lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}, true, nil
}

func (l *redisTurnLocker) Busy(ctx context.Context, sessionID uuid.UUID) bool {
	n, err := l.client.Exists(ctx, turnLockPrefix+sessionID.String()).Result()
	return err == nil && n > 0
}

func newLockToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
