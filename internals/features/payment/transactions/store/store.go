package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// Document is one transaction record as stored on disk. Records are schemaless
// on purpose: each gateway appends its own sub-document and Merge works over
// the whole tree.
type Document = map[string]any

const (
	// SettlementKey is the sub-document that holds the IngresarPago
	// reporting state. It is only mutated inside the per-key lock.
	SettlementKey = "ingresar_pago"

	generationAttempts = 5
)

/*
	========================================================
	  Storage
========================================================
*/

// Storage persists one JSON file per transaction under dir. The on-disk name
// is sha256(key), never the raw key. provider names the sub-document where
// gateway responses are appended (e.g. "webpay"). All writes replace the whole
// document; only TryBeginProcessing / ResetProcessing / MarkProcessed run
// under the per-key lock, plain Merge / AppendHistory are best-effort
// read-modify-write.
type Storage struct {
	dir      string
	provider string
	prefix   string
	ttl      time.Duration

	now func() time.Time

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

func New(dir, provider, orderPrefix string, ttlSeconds int) *Storage {
	if ttlSeconds <= 0 {
		ttlSeconds = 600
	}
	return &Storage{
		dir:      dir,
		provider: provider,
		prefix:   orderPrefix,
		ttl:      time.Duration(ttlSeconds) * time.Second,
		now:      time.Now,
		keyLocks: make(map[string]*sync.Mutex),
	}
}

// Create writes a fresh record with a generated order id. attrs override the
// defaults (order_id, created_at, empty history).
func (s *Storage) Create(attrs Document) (Document, error) {
	orderID, err := s.generateOrderID()
	if err != nil {
		return nil, err
	}

	record := Document{
		"order_id":   orderID,
		"created_at": s.now().Unix(),
		"history":    []any{},
	}
	for k, v := range attrs {
		record[k] = v
	}

	if err := s.write(orderID, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Get reads and decodes the record for key. An unknown key or an unreadable /
// corrupt document is reported as absent, not as an error.
func (s *Storage) Get(key string) (Document, bool) {
	contents, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		return nil, false
	}

	var decoded Document
	if err := sonic.Unmarshal(contents, &decoded); err != nil {
		return nil, false
	}
	return decoded, true
}

// Merge loads the current record, applies a recursive structural merge and
// writes the result. Maps merge key by key; any other value (lists included)
// replaces the stored one wholesale. Returns ErrNotFound for unknown keys.
func (s *Storage) Merge(key string, attrs Document) (Document, error) {
	current, ok := s.Get(key)
	if !ok {
		return nil, ErrNotFound
	}

	merged := recursiveMerge(current, attrs)
	if err := s.write(key, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// AppendHistory appends an audit-trail entry, lazily creating the record when
// the key is unknown. entry.timestamp defaults to now.
func (s *Storage) AppendHistory(key string, entry Document) error {
	if entry == nil {
		entry = Document{}
	}
	if _, ok := entry["timestamp"]; !ok {
		entry["timestamp"] = s.now().Unix()
	}

	record, ok := s.Get(key)
	if !ok {
		record = s.emptyRecord(key)
	}

	history, _ := record["history"].([]any)
	record["history"] = append(history, any(entry))
	return s.write(key, record)
}

// AppendResponse appends a gateway response to <provider>.responses, lazily
// creating the record when the key is unknown. Responses are append-only; the
// latest response is the last element by insertion order.
func (s *Storage) AppendResponse(key string, response Document) (Document, error) {
	record, ok := s.Get(key)
	if !ok {
		record = s.emptyRecord(key)
	}

	meta := normalizeProviderMeta(record[s.provider])
	responses, _ := meta["responses"].([]any)
	meta["responses"] = append(responses, any(response))
	record[s.provider] = meta

	if err := s.write(key, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Provider returns the sub-document name gateway responses are appended to.
func (s *Storage) Provider() string { return s.provider }

// LatestResponse returns the last appended gateway response of record, by
// insertion order. A delayed redelivery that appends an older response after a
// newer one will be picked up here; that matches the upstream contract.
func (s *Storage) LatestResponse(record Document) (Document, bool) {
	meta, ok := asDocument(record[s.provider])
	if !ok {
		return nil, false
	}
	responses, _ := meta["responses"].([]any)
	if len(responses) == 0 {
		return nil, false
	}
	return asDocument(responses[len(responses)-1])
}

/*
	========================================================
	  Processing lock (IngresarPago critical section)
========================================================
*/

// TryBeginProcessing claims the settlement critical section for key. It
// returns false when the record is already processed or another worker holds
// a claim younger than the TTL. A claim older than the TTL is reclaimed so a
// crashed worker cannot block the transaction forever.
func (s *Storage) TryBeginProcessing(key string) (bool, error) {
	granted := false
	err := s.withProcessingLock(key, func() error {
		record, ok := s.Get(key)
		if !ok {
			return ErrNotFound
		}

		meta := NormalizeSettlementMeta(record[SettlementKey])
		if AsBool(meta["processed"]) {
			return nil
		}

		if AsBool(meta["processing"]) {
			startedAt, _ := AsInt64(meta["processing_started_at"])
			if startedAt > 0 && s.now().Unix()-startedAt <= int64(s.ttl.Seconds()) {
				return nil
			}
		}

		meta["processing"] = true
		meta["processing_started_at"] = s.now().Unix()
		record[SettlementKey] = meta
		if err := s.write(key, record); err != nil {
			return err
		}

		granted = true
		return nil
	})
	return granted, err
}

// ResetProcessing releases a claim without touching processed, so a failed
// report can be retried before the TTL expires. Unknown keys are a no-op.
func (s *Storage) ResetProcessing(key string) error {
	return s.withProcessingLock(key, func() error {
		record, ok := s.Get(key)
		if !ok {
			return nil
		}

		meta := NormalizeSettlementMeta(record[SettlementKey])
		meta["processing"] = false
		delete(meta, "processing_started_at")
		record[SettlementKey] = meta
		return s.write(key, record)
	})
}

// MarkProcessed merges meta into the settlement sub-document and sets the
// terminal processed flag. processed is monotone: once true it is never reset.
// The caller is expected to have validated existence; an unknown key is
// ErrNotFound.
func (s *Storage) MarkProcessed(key string, meta Document) error {
	return s.withProcessingLock(key, func() error {
		record, ok := s.Get(key)
		if !ok {
			return fmt.Errorf("%w: cannot mark %q as processed", ErrNotFound, key)
		}

		settlement := NormalizeSettlementMeta(record[SettlementKey])
		settlement = recursiveMerge(settlement, meta)
		settlement = recursiveMerge(settlement, Document{
			"processed":              true,
			"processed_at":           s.now().Unix(),
			"processing":             false,
			"processing_finished_at": s.now().Unix(),
		})
		delete(settlement, "processing_started_at")

		record[SettlementKey] = settlement
		return s.write(key, record)
	})
}

// withProcessingLock runs fn while holding both the in-process keyed mutex and
// the sibling .lock file, so the read-check-write sequence is exclusive per
// key even across processes sharing the storage directory.
func (s *Storage) withProcessingLock(key string, fn func() error) error {
	s.mu.Lock()
	keyLock, ok := s.keyLocks[key]
	if !ok {
		keyLock = &sync.Mutex{}
		s.keyLocks[key] = keyLock
	}
	s.mu.Unlock()

	keyLock.Lock()
	defer keyLock.Unlock()

	if err := s.ensureDir(); err != nil {
		return err
	}

	fileLock := flock.New(s.pathFor(key) + ".lock")
	if err := fileLock.Lock(); err != nil {
		return fmt.Errorf("could not lock transaction %q: %w", key, err)
	}
	defer fileLock.Unlock()

	return fn()
}

/*
	========================================================
	  Internals
========================================================
*/

func (s *Storage) generateOrderID() (string, error) {
	var id string
	for attempt := 0; attempt < generationAttempts; attempt++ {
		suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
		id = fmt.Sprintf("%s-%s-%s", s.prefix, s.now().Format("20060102150405"), suffix)
		if _, err := os.Stat(s.pathFor(id)); os.IsNotExist(err) {
			return id, nil
		}
	}

	if _, err := os.Stat(s.pathFor(id)); err == nil {
		return "", ErrGeneration
	}
	return id, nil
}

// write replaces the whole document: encode, write to a temp file in the same
// directory, then rename over the target so readers never observe a partial
// document.
func (s *Storage) write(key string, record Document) error {
	if err := s.ensureDir(); err != nil {
		return err
	}

	encoded, err := sonic.ConfigDefault.MarshalIndent(record, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tx-*.tmp")
	if err != nil {
		return fmt.Errorf("could not stage transaction %q: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("could not write transaction %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("could not write transaction %q: %w", key, err)
	}

	if err := os.Rename(tmpName, s.pathFor(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("could not store transaction %q: %w", key, err)
	}
	return nil
}

func (s *Storage) ensureDir() error {
	return os.MkdirAll(s.dir, 0o775)
}

// pathFor hashes the key so filenames never leak tokens or order ids.
func (s *Storage) pathFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".json")
}

func (s *Storage) emptyRecord(key string) Document {
	return Document{
		"order_id":    key,
		"created_at":  s.now().Unix(),
		"history":     []any{},
		s.provider:    normalizeProviderMeta(nil),
		SettlementKey: NormalizeSettlementMeta(nil),
	}
}

// recursiveMerge merges right into left: when both sides hold a map the merge
// recurses, otherwise the right value replaces the left one (lists are
// replaced wholesale, never concatenated).
func recursiveMerge(left, right Document) Document {
	for key, value := range right {
		rightMap, rightIsMap := asDocument(value)
		leftMap, leftIsMap := asDocument(left[key])
		if rightIsMap && leftIsMap {
			left[key] = recursiveMerge(leftMap, rightMap)
			continue
		}
		left[key] = value
	}
	return left
}

func normalizeProviderMeta(value any) Document {
	meta, ok := asDocument(value)
	if !ok {
		meta = Document{}
	}
	if _, ok := meta["responses"].([]any); !ok {
		meta["responses"] = []any{}
	}
	return meta
}

// NormalizeSettlementMeta defaults the settlement sub-document so callers can
// rely on its shape regardless of how the record was created.
func NormalizeSettlementMeta(value any) Document {
	meta, ok := asDocument(value)
	if !ok {
		meta = Document{}
	}
	if _, ok := meta["processed"]; !ok {
		meta["processed"] = false
	}
	if _, ok := meta["processing"]; !ok {
		meta["processing"] = false
	}
	if _, ok := meta["attempts"].([]any); !ok {
		meta["attempts"] = []any{}
	}
	if _, ok := meta["responses"].([]any); !ok {
		meta["responses"] = []any{}
	}
	return meta
}

func asDocument(value any) (Document, bool) {
	v, ok := value.(map[string]any)
	return v, ok
}

/*
	========================================================
	  Loose-typed accessors
========================================================
*/

// Decoded JSON carries numbers as float64 and sub-documents as map[string]any;
// these helpers keep that coercion in one place.

func AsBool(value any) bool {
	b, ok := value.(bool)
	return ok && b
}

func AsInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func AsString(value any) string {
	s, _ := value.(string)
	return s
}

func AsSlice(value any) []any {
	s, _ := value.([]any)
	return s
}

func AsDocument(value any) (Document, bool) {
	return asDocument(value)
}
