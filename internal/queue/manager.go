package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aequitas/internal/interfaces"
	"github.com/ternarybob/aequitas/internal/models"
)

// envelope wraps a stage message with queue bookkeeping inside Badger
type envelope struct {
	ID           string              `json:"id"`
	Body         models.StageMessage `json:"body"`
	DedupID      string              `json:"dedup_id,omitempty"`
	EnqueuedAt   time.Time           `json:"enqueued_at"`
	VisibleAt    time.Time           `json:"visible_at"`
	ReceiveCount int                 `json:"receive_count"`
}

// BadgerManager implements a persistent visibility-timeout queue on Badger.
// Messages live under queue:{name}:msg:{id}; a time-ordered index under
// queue:{name}:index:{visibleAt}:{id} drives delivery order, and optional
// dedup keys under queue:{name}:dedup:{dedupID} suppress duplicate enqueues
// while a message is in flight.
type BadgerManager struct {
	db         *badger.DB
	queueName  string
	visibility time.Duration
	maxReceive int
	logger     arbor.ILogger
}

// NewBadgerManager creates a new Badger-backed queue manager
func NewBadgerManager(db *badger.DB, config Config, logger arbor.ILogger) (interfaces.QueueManager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if config.QueueName == "" {
		return nil, errors.New("queue name is required")
	}
	visibility := config.VisibilityTimeout
	if visibility <= 0 {
		visibility = 2 * time.Minute
	}
	maxReceive := config.MaxReceive
	if maxReceive <= 0 {
		maxReceive = 3
	}

	return &BadgerManager{
		db:         db,
		queueName:  config.QueueName,
		visibility: visibility,
		maxReceive: maxReceive,
		logger:     logger,
	}, nil
}

// Enqueue adds a stage message to the queue. A non-empty dedupID suppresses
// re-enqueueing while an identical message is still pending or in flight.
func (m *BadgerManager) Enqueue(ctx context.Context, msg *models.StageMessage, dedupID string) error {
	id := uuid.New().String()
	now := time.Now()

	env := envelope{
		ID:         id,
		Body:       *msg,
		DedupID:    dedupID,
		EnqueuedAt: now,
		VisibleAt:  now, // Immediately visible
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		if dedupID != "" {
			dedupKey := m.dedupKey(dedupID)
			if _, err := txn.Get(dedupKey); err == nil {
				// Identical message already queued
				return nil
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Set(dedupKey, []byte(id)); err != nil {
				return err
			}
		}

		if err := txn.Set(m.msgKey(id), data); err != nil {
			return err
		}
		return txn.Set(m.indexKey(env.VisibleAt, id), []byte{})
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}

	m.logger.Debug().
		Str("job_id", msg.JobID).
		Str("stage", string(msg.Stage)).
		Msg("Stage message enqueued")
	return nil
}

// Receive pulls the next visible message. The returned delete function
// removes the message and its dedup key after successful processing; an
// unprocessed message becomes visible again after the visibility timeout.
func (m *BadgerManager) Receive(ctx context.Context) (*models.StageMessage, func() error, error) {
	var env envelope
	var msgID string

	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", m.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		found := false
		var oldIndexKey []byte

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)

			ts, id, err := m.parseIndexKey(key)
			if err != nil {
				continue
			}
			if ts.After(now) {
				// Index keys sort by timestamp; nothing later is ready either
				break
			}

			item, err := txn.Get(m.msgKey(id))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					// Orphaned index entry, clean it up
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}

			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &env)
			}); err != nil {
				return err
			}

			if env.ReceiveCount >= m.maxReceive {
				// Poison pill: drop it so it cannot loop forever
				m.logger.Warn().
					Str("job_id", env.Body.JobID).
					Str("stage", string(env.Body.Stage)).
					Int("receive_count", env.ReceiveCount).
					Msg("Dropping message after max receives")
				if err := m.deleteInTxn(txn, key, id, env.DedupID); err != nil {
					return err
				}
				continue
			}

			found = true
			msgID = id
			oldIndexKey = key
			break
		}

		if !found {
			return models.ErrNoMessage
		}

		// Claim: bump receive count and push visibility out
		env.ReceiveCount++
		env.VisibleAt = time.Now().Add(m.visibility)

		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		if err := txn.Set(m.msgKey(msgID), data); err != nil {
			return err
		}
		if err := txn.Delete(oldIndexKey); err != nil {
			return err
		}
		return txn.Set(m.indexKey(env.VisibleAt, msgID), []byte{})
	})
	if err != nil {
		return nil, nil, err
	}

	deleteFn := func() error {
		return m.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(m.msgKey(msgID))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return nil // Already deleted
				}
				return err
			}

			var current envelope
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &current)
			}); err != nil {
				return err
			}

			return m.deleteInTxn(txn, m.indexKey(current.VisibleAt, msgID), msgID, current.DedupID)
		})
	}

	body := env.Body
	return &body, deleteFn, nil
}

// Extend pushes out the visibility timeout for an in-flight message
func (m *BadgerManager) Extend(ctx context.Context, messageID string, duration time.Duration) error {
	return m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(m.msgKey(messageID))
		if err != nil {
			return err
		}

		var env envelope
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		}); err != nil {
			return err
		}

		oldVisibleAt := env.VisibleAt
		env.VisibleAt = time.Now().Add(duration)

		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		if err := txn.Set(m.msgKey(messageID), data); err != nil {
			return err
		}

		if err := txn.Delete(m.indexKey(oldVisibleAt, messageID)); err != nil {
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return txn.Set(m.indexKey(env.VisibleAt, messageID), []byte{})
	})
}

// Length returns the number of messages currently stored
func (m *BadgerManager) Length(ctx context.Context) (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:msg:", m.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close closes the queue manager (no-op, the DB is managed externally)
func (m *BadgerManager) Close() error {
	return nil
}

func (m *BadgerManager) deleteInTxn(txn *badger.Txn, indexKey []byte, id, dedupID string) error {
	if err := txn.Delete(indexKey); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	if err := txn.Delete(m.msgKey(id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	if dedupID != "" {
		if err := txn.Delete(m.dedupKey(dedupID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
	}
	return nil
}

func (m *BadgerManager) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", m.queueName, id))
}

func (m *BadgerManager) dedupKey(dedupID string) []byte {
	return []byte(fmt.Sprintf("queue:%s:dedup:%s", m.queueName, dedupID))
}

func (m *BadgerManager) indexKey(visibleAt time.Time, id string) []byte {
	ts := visibleAt.UnixNano()
	// Zero pad to 20 digits so string ordering matches numeric ordering
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", m.queueName, ts, id))
}

func (m *BadgerManager) parseIndexKey(key []byte) (time.Time, string, error) {
	prefixStr := fmt.Sprintf("queue:%s:index:", m.queueName)
	if len(key) <= len(prefixStr) {
		return time.Time{}, "", fmt.Errorf("invalid key length")
	}

	suffix := string(key[len(prefixStr):])
	// Suffix is "{20-digit-ts}:{id}"
	if len(suffix) < 22 {
		return time.Time{}, "", fmt.Errorf("invalid suffix length")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%020d", &ts); err != nil {
		return time.Time{}, "", fmt.Errorf("invalid timestamp: %w", err)
	}

	return time.Unix(0, ts), suffix[21:], nil
}
