package tokenstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/tokenkeeper/encryption"
	"github.com/kbukum/tokenkeeper/errors"
	"github.com/kbukum/tokenkeeper/logger"
	"github.com/kbukum/tokenkeeper/provider"
	"github.com/kbukum/tokenkeeper/storage"
	"github.com/kbukum/tokenkeeper/storage/local"
)

// Store persists token records through a storage backend.
type Store struct {
	backend storage.Storage
	sealer  encryption.Sealer
	now     func() time.Time
	log     *logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithSealer encrypts refresh tokens and client secrets before they are written.
func WithSealer(s encryption.Sealer) Option {
	return func(st *Store) { st.sealer = s }
}

// WithClock overrides the time source used for identifiers and stamps.
func WithClock(now func() time.Time) Option {
	return func(st *Store) { st.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(st *Store) { st.log = l.WithComponent("tokenstore") }
}

// New creates a store over backend.
func New(backend storage.Storage, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
		log:     logger.WithComponent("tokenstore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewLocal creates a store writing one file per record under dir.
func NewLocal(dir string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.Configuration("store.dir", "token directory is required")
	}
	backend, err := local.NewStorage(dir)
	if err != nil {
		return nil, errors.Storage("open token directory", err)
	}
	return New(backend, opts...), nil
}

// SaveResult identifies a saved record.
type SaveResult struct {
	ID       string
	Location string
	// Record is the persisted view, including the stamped fields.
	Record *Record
}

// Entry is one listed record. Exactly one of Record and Err is set.
type Entry struct {
	ID       string
	Location string
	Record   *Record
	Err      error
	Size     int64
	ModTime  time.Time
}

// Save validates r, derives a fresh identifier and writes the record.
// A record with any violation is never written.
func (s *Store) Save(ctx context.Context, r *Record) (*SaveResult, error) {
	if err := validator(r).Validate("token record is invalid"); err != nil {
		return nil, err
	}

	now := s.now()
	persisted := r.Clone()
	label := persisted.AccountName
	if label == "" {
		if email := AccountLabel(persisted.IDToken); email != "" {
			persisted.AccountName = email
			label = email
		}
	}
	if label == "" {
		label = fmt.Sprintf("account_%d", now.UnixMilli())
	}

	id, err := s.freeID(ctx, persisted, label, now.UnixMilli())
	if err != nil {
		return nil, err
	}
	if err := s.write(ctx, id, persisted, now); err != nil {
		return nil, err
	}

	s.log.Info("token saved", logger.Fields(
		logger.FieldTokenID, id,
		logger.FieldProvider, persisted.Provider,
		logger.FieldAuthMethod, persisted.AuthMethod,
	))
	return &SaveResult{ID: id, Location: s.backend.Location(id), Record: persisted}, nil
}

// freeID picks the first unused identifier starting at millis.
func (s *Store) freeID(ctx context.Context, r *Record, label string, millis int64) (string, error) {
	for i := 0; i < 1000; i++ {
		id := Identifier(r.Provider, r.AuthMethod, label, millis+int64(i))
		exists, err := s.backend.Exists(ctx, id)
		if err != nil {
			return "", errors.Storage("check identifier", err)
		}
		if !exists {
			return id, nil
		}
	}
	return "", errors.Internal("no free token identifier for "+label, nil)
}

// write stamps r and puts it under id. r stays unsealed.
func (s *Store) write(ctx context.Context, id string, r *Record, now time.Time) error {
	r.SavedAt = FormatTime(now)
	r.Version = SchemaVersion
	r.ProviderID = string(r.Provider)
	r.Sealed = false

	doc, err := s.seal(r)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Internal("encode token record", err)
	}
	if err := s.backend.Put(ctx, id, data); err != nil {
		return errors.Storage("write token "+id, err)
	}
	return nil
}

// Read returns the record stored under id.
func (s *Store) Read(ctx context.Context, id string) (*Record, error) {
	key, ok := normalizeID(id)
	if !ok {
		return nil, errors.Configuration("id", "invalid token identifier: "+id)
	}
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("token", key)
		}
		return nil, errors.Storage("read token "+key, err)
	}
	return s.decode(key, data)
}

func (s *Store) decode(id string, data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Parse(id, err)
	}
	if err := s.open(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

// List returns every stored record. A record that cannot be read or parsed
// is reported in its Entry and does not stop the listing.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	objects, err := s.backend.List(ctx, "")
	if err != nil {
		return nil, errors.Storage("list tokens", err)
	}

	entries := make([]Entry, 0, len(objects))
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, idSuffix) {
			continue
		}
		e := Entry{
			ID:       obj.Key,
			Location: s.backend.Location(obj.Key),
			Size:     obj.Size,
			ModTime:  obj.LastModified,
		}
		data, err := s.backend.Get(ctx, obj.Key)
		switch {
		case stderrors.Is(err, storage.ErrNotFound):
			// deleted while listing
			continue
		case err != nil:
			e.Err = errors.Storage("read token "+obj.Key, err)
		default:
			e.Record, e.Err = s.decode(obj.Key, data)
		}
		if e.Err != nil {
			s.log.Warn("unreadable token record", logger.ErrorFields("list", e.Err))
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Delete removes the record under id. Deleting an absent record, including a
// second delete, returns a NotFound error.
func (s *Store) Delete(ctx context.Context, id string) error {
	key, ok := normalizeID(id)
	if !ok {
		return errors.Configuration("id", "invalid token identifier: "+id)
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("token", key)
		}
		return errors.Storage("delete token "+key, err)
	}
	s.log.Info("token deleted", logger.Fields(logger.FieldTokenID, key))
	return nil
}

// Update replaces the record under id in place. The identifier and the auth
// method never change.
func (s *Store) Update(ctx context.Context, id string, r *Record) (*Record, error) {
	if err := validator(r).Validate("token record is invalid"); err != nil {
		return nil, err
	}
	current, err := s.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.AuthMethod != r.AuthMethod {
		return nil, errors.Validation("token record is invalid: authMethod cannot change",
			[]errors.FieldViolation{{Field: "authMethod", Message: "cannot change from " + string(current.AuthMethod)}})
	}

	key, _ := normalizeID(id)
	updated := r.Clone()
	if err := s.write(ctx, key, updated, s.now()); err != nil {
		return nil, err
	}
	s.log.Debug("token updated", logger.Fields(logger.FieldTokenID, key))
	return updated, nil
}

// Import saves a token document produced by another tool under a fresh
// identifier. Documents without authMethod get the one registered for their provider.
func (s *Store) Import(ctx context.Context, raw []byte) (*SaveResult, error) {
	var f flatRecord
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errors.Parse("import", err)
	}
	if f.AuthMethod == "" {
		if p, err := provider.Lookup(f.Provider); err == nil {
			f.AuthMethod = p.AuthMethod
		}
	}
	r := f.record()
	if err := s.open(&r); err != nil {
		return nil, err
	}
	r.SavedAt, r.Version, r.ProviderID = "", "", ""
	return s.Save(ctx, &r)
}

func (s *Store) seal(r *Record) (*Record, error) {
	if s.sealer == nil {
		return r, nil
	}
	doc := r.Clone()
	var err error
	if doc.RefreshToken, err = s.sealer.Seal(doc.RefreshToken); err != nil {
		return nil, err
	}
	if doc.IdC != nil {
		if doc.IdC.ClientSecret, err = s.sealer.Seal(doc.IdC.ClientSecret); err != nil {
			return nil, err
		}
	}
	doc.Sealed = true
	return doc, nil
}

func (s *Store) open(r *Record) error {
	if !r.Sealed {
		return nil
	}
	if s.sealer == nil {
		return errors.Configuration("store.encryption_key", "token record is sealed; configure an encryption key to read it")
	}
	var err error
	if r.RefreshToken, err = s.sealer.Open(r.RefreshToken); err != nil {
		return err
	}
	if r.IdC != nil {
		if r.IdC.ClientSecret, err = s.sealer.Open(r.IdC.ClientSecret); err != nil {
			return err
		}
	}
	r.Sealed = false
	return nil
}
