// Package access implements the object lifecycle: creation, token-checked
// reads with expiry, TOTP gating, toggle-on-read and one-time deletion.
package access

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"secure.vault/internal/crypto"
	"secure.vault/internal/models"
	"secure.vault/internal/store"
)

const msPerHour = float64(time.Hour / time.Millisecond)

// Engine is stateless between calls; every object lives in the store. Two
// concurrent reads of the same object race on its read-modify-write and the
// last write wins. A read that saves after a concurrent Delete brings the
// object back.
type Engine struct {
	store  store.Store
	codec  *crypto.Codec
	logger *slog.Logger
	now    func() time.Time
	issuer string
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIssuer sets the issuer shown by authenticator apps. An empty issuer
// keeps the default.
func WithIssuer(issuer string) Option {
	return func(e *Engine) {
		if issuer != "" {
			e.issuer = issuer
		}
	}
}

func New(st store.Store, codec *crypto.Codec, opts ...Option) *Engine {
	e := &Engine{
		store:  st,
		codec:  codec,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
		issuer: "secure.vault",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type CreateInput struct {
	Name          string
	Type          models.ObjectType
	Content       json.RawMessage
	TTLHours      float64
	OwnerEmail    string
	OwnerName     string
	OneTimeAccess bool
	EnableMFA     bool
}

type Created struct {
	Object *models.Object
	// TOTPURI and TOTPQR are set when MFA was enabled.
	TOTPURI string
	TOTPQR  string
}

// Reading is the result of a successful content read or toggle.
type Reading struct {
	Name    string
	Type    models.ObjectType
	Content models.Content
	Hits    int
}

// Patch lists the fields Update may change. Nil fields are left alone.
type Patch struct {
	Name          *string            `json:"name"`
	Type          *models.ObjectType `json:"type"`
	Content       json.RawMessage    `json:"content"`
	TTL           *int64             `json:"ttl"`
	OwnerEmail    *string            `json:"ownerEmail"`
	OwnerName     *string            `json:"ownerName"`
	OneTimeAccess *bool              `json:"oneTimeAccess"`
	TOTPSecret    *string            `json:"totpSecret"`
}

func (e *Engine) Create(ctx context.Context, in CreateInput) (*Created, error) {
	if in.Name == "" {
		return nil, validationError("name is required")
	}
	if !in.Type.Valid() {
		return nil, validationError("type must be one of string, boolean, toggle")
	}
	if isAbsent(in.Content) {
		return nil, validationError("content is required")
	}
	if math.IsNaN(in.TTLHours) || math.IsInf(in.TTLHours, 0) || in.TTLHours < 0 {
		return nil, validationError("ttlHours must be a non-negative number")
	}
	now := e.now()
	ttl := math.Round(in.TTLHours * msPerHour)
	if ttl >= float64(math.MaxInt64-now.UnixMilli()) {
		return nil, validationError("ttlHours is too large")
	}

	content, err := models.ParseContent(in.Type, in.Content)
	if err != nil {
		return nil, validationError("%v", err)
	}

	encrypted, err := e.codec.Encrypt(content)
	if err != nil {
		return nil, err
	}

	owner := in.OwnerEmail
	if owner == "" {
		owner = models.AnonymousOwner
	}

	obj := &models.Object{
		ID:            crypto.GenerateID(now),
		Name:          in.Name,
		Type:          in.Type,
		Content:       encrypted,
		Token:         crypto.GenerateToken(),
		TTL:           now.UnixMilli() + int64(ttl),
		CreatedAt:     now.UnixMilli(),
		OwnerEmail:    owner,
		OwnerName:     in.OwnerName,
		OneTimeAccess: in.OneTimeAccess,
	}

	created := &Created{Object: obj}
	if in.EnableMFA {
		key, err := crypto.NewTOTPKey(obj.Name, e.issuer)
		if err != nil {
			return nil, err
		}
		obj.TOTPSecret = key.Secret()
		created.TOTPURI = key.URL()
		created.TOTPQR = e.qr(ctx, created.TOTPURI)
	}

	if err := e.store.Save(ctx, obj); err != nil {
		return nil, storageError("saving object", err)
	}

	e.logger.InfoContext(ctx, "object created",
		"id", obj.ID,
		"type", obj.Type,
		"owner", obj.OwnerEmail,
		"oneTimeAccess", obj.OneTimeAccess,
		"mfa", obj.MFAEnabled(),
		"expiresAt", obj.ExpiresAt(),
	)
	return created, nil
}

// Fetch reads the object matching both name and token.
func (e *Engine) Fetch(ctx context.Context, name, token, totpCode string) (*Reading, error) {
	if name == "" || token == "" {
		return nil, validationError("name and token are required")
	}
	obj, err := e.lookupByName(ctx, name, token)
	if err != nil {
		return nil, err
	}
	return e.read(ctx, obj, totpCode)
}

// FetchByToken reads the object identified by token alone.
func (e *Engine) FetchByToken(ctx context.Context, token, totpCode string) (*Reading, error) {
	if token == "" {
		return nil, validationError("token is required")
	}
	obj, err := e.lookupByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return e.read(ctx, obj, totpCode)
}

// Toggle flips a boolean object and returns the new value. Unlike reads of
// toggle objects it does not ask for a TOTP code.
func (e *Engine) Toggle(ctx context.Context, name, token string) (*Reading, error) {
	if name == "" || token == "" {
		return nil, validationError("name and token are required")
	}
	obj, err := e.lookupByName(ctx, name, token)
	if err != nil {
		return nil, err
	}

	now := e.now()
	if obj.Expired(now) {
		return nil, e.expire(ctx, obj)
	}
	if obj.Type != models.TypeBoolean {
		return nil, fmt.Errorf("%w: only boolean objects can be toggled", ErrInvalidOperation)
	}

	pt := e.decrypt(ctx, obj)
	current, ok := pt.Value.Bool()
	if !ok {
		return nil, fmt.Errorf("%w: stored content is not a boolean", ErrInvalidOperation)
	}

	next := models.BoolContent(!current)
	obj.RecordHit(now)
	reading := &Reading{Name: obj.Name, Type: obj.Type, Content: next, Hits: obj.HitCount}

	if obj.OneTimeAccess {
		if err := e.consume(ctx, obj); err != nil {
			return nil, err
		}
		return reading, nil
	}

	if obj.Content, err = e.codec.Encrypt(next); err != nil {
		return nil, err
	}
	if err := e.store.Save(ctx, obj); err != nil {
		return nil, storageError("saving object", err)
	}
	return reading, nil
}

// Update applies patch to the stored object as-is. Content in the patch is
// written without passing through the codec.
func (e *Engine) Update(ctx context.Context, id string, patch Patch) (*models.Object, error) {
	if id == "" {
		return nil, validationError("id is required")
	}

	obj, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError("loading object", err)
	}

	if patch.Type != nil && !patch.Type.Valid() {
		return nil, validationError("type must be one of string, boolean, toggle")
	}

	if patch.Name != nil {
		obj.Name = *patch.Name
	}
	if patch.Type != nil {
		obj.Type = *patch.Type
	}
	if !isAbsent(patch.Content) {
		obj.Content = rawContent(patch.Content)
	}
	if patch.TTL != nil {
		obj.TTL = *patch.TTL
	}
	if patch.OwnerEmail != nil {
		obj.OwnerEmail = *patch.OwnerEmail
	}
	if patch.OwnerName != nil {
		obj.OwnerName = *patch.OwnerName
	}
	if patch.OneTimeAccess != nil {
		obj.OneTimeAccess = *patch.OneTimeAccess
	}
	if patch.TOTPSecret != nil {
		obj.TOTPSecret = *patch.TOTPSecret
	}

	if err := e.store.Save(ctx, obj); err != nil {
		return nil, storageError("saving object", err)
	}
	return obj, nil
}

// Delete removes the object. Unknown ids are not an error.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if id == "" {
		return validationError("id is required")
	}
	if err := e.store.Delete(ctx, id); err != nil {
		return storageError("deleting object", err)
	}
	e.logger.InfoContext(ctx, "object deleted", "id", id)
	return nil
}

// ListByOwner returns every object of the owner, expired or not.
func (e *Engine) ListByOwner(ctx context.Context, ownerEmail string) ([]*models.Object, error) {
	if ownerEmail == "" {
		return nil, validationError("email is required")
	}
	objs, err := e.store.ListByOwner(ctx, ownerEmail)
	if err != nil {
		return nil, storageError("listing objects", err)
	}
	return objs, nil
}

func (e *Engine) ListAll(ctx context.Context) ([]*models.Object, error) {
	objs, err := e.store.ListAll(ctx)
	if err != nil {
		return nil, storageError("listing objects", err)
	}
	return objs, nil
}

// Sweep deletes every expired object and reports how many were removed. On
// a storage error the count covers the deletions made before it.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	objs, err := e.store.ListAll(ctx)
	if err != nil {
		return 0, storageError("listing objects", err)
	}

	now := e.now()
	deleted := 0
	for _, obj := range objs {
		if !obj.Expired(now) {
			continue
		}
		if err := e.store.Delete(ctx, obj.ID); err != nil {
			return deleted, storageError("deleting expired object", err)
		}
		deleted++
	}

	e.logger.InfoContext(ctx, "expired objects swept", "scanned", len(objs), "deleted", deleted)
	return deleted, nil
}

// read runs the expiry check, TOTP gate, decryption and post-read mutation
// for a located object.
func (e *Engine) read(ctx context.Context, obj *models.Object, totpCode string) (*Reading, error) {
	now := e.now()
	if obj.Expired(now) {
		return nil, e.expire(ctx, obj)
	}

	if obj.MFAEnabled() {
		if totpCode == "" {
			mfaErr := &MFAError{}
			if obj.HitCount == 0 {
				mfaErr.QR = e.provisioningQR(ctx, obj)
			}
			return nil, mfaErr
		}
		if !crypto.VerifyTOTP(obj.TOTPSecret, totpCode, now) {
			e.logger.WarnContext(ctx, "rejected TOTP code", "id", obj.ID)
			return nil, ErrMFAInvalid
		}
	}

	value := e.decrypt(ctx, obj).Value

	obj.RecordHit(now)
	reading := &Reading{Name: obj.Name, Type: obj.Type, Content: value, Hits: obj.HitCount}

	if obj.OneTimeAccess {
		if err := e.consume(ctx, obj); err != nil {
			return nil, err
		}
		return reading, nil
	}

	if obj.Type == models.TypeToggle {
		if current, ok := value.Bool(); ok {
			next, err := e.codec.Encrypt(models.BoolContent(!current))
			if err != nil {
				return nil, err
			}
			obj.Content = next
		} else {
			e.logger.WarnContext(ctx, "toggle object holds non-boolean content, not flipping", "id", obj.ID)
		}
	}

	if err := e.store.Save(ctx, obj); err != nil {
		return nil, storageError("saving object", err)
	}
	return reading, nil
}

func (e *Engine) lookupByName(ctx context.Context, name, token string) (*models.Object, error) {
	objs, err := e.store.FindByName(ctx, name)
	if err != nil {
		return nil, storageError("finding objects by name", err)
	}
	for _, obj := range objs {
		if tokensEqual(obj.Token, token) {
			return obj, nil
		}
	}
	return nil, ErrNotFound
}

func (e *Engine) lookupByToken(ctx context.Context, token string) (*models.Object, error) {
	obj, err := e.store.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError("finding object by token", err)
	}
	if !tokensEqual(obj.Token, token) {
		return nil, ErrNotFound
	}
	return obj, nil
}

// expire deletes a dead object and returns the error to report for it.
func (e *Engine) expire(ctx context.Context, obj *models.Object) error {
	if err := e.store.Delete(ctx, obj.ID); err != nil {
		return storageError("deleting expired object", err)
	}
	e.logger.InfoContext(ctx, "expired object deleted on access", "id", obj.ID, "expiredAt", obj.ExpiresAt())
	return ErrExpired
}

// consume deletes a one-time object after its read.
func (e *Engine) consume(ctx context.Context, obj *models.Object) error {
	if err := e.store.Delete(ctx, obj.ID); err != nil {
		return storageError("deleting one-time object", err)
	}
	e.logger.InfoContext(ctx, "one-time object consumed", "id", obj.ID)
	return nil
}

func (e *Engine) decrypt(ctx context.Context, obj *models.Object) crypto.Plaintext {
	pt := e.codec.Decrypt(obj.Content)
	if pt.Degraded() {
		e.logger.WarnContext(ctx, "content could not be decrypted, returning stored value", "id", obj.ID)
	}
	return pt
}

func (e *Engine) provisioningQR(ctx context.Context, obj *models.Object) string {
	uri, err := crypto.ProvisioningURI(obj.TOTPSecret, obj.Name, e.issuer)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to build TOTP provisioning uri", "id", obj.ID, "error", err)
		return ""
	}
	return e.qr(ctx, uri)
}

func (e *Engine) qr(ctx context.Context, uri string) string {
	qr, err := crypto.ProvisioningQR(uri)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to render TOTP QR code", "error", err)
		return ""
	}
	return qr
}

func tokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func isAbsent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// rawContent turns a patch value into the stored content string: JSON
// strings are unquoted, anything else is kept as JSON text.
func rawContent(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
