package access

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure.vault/internal/crypto"
	"secure.vault/internal/models"
	"secure.vault/internal/store"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	engine *Engine
	store  store.Store
	codec  *crypto.Codec
	clock  *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, store.NewMemoryStore())
}

func newFixtureWithStore(t *testing.T, st store.Store) *fixture {
	t.Helper()
	codec, err := crypto.NewCodec("engine-test-secret")
	require.NoError(t, err)

	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return &fixture{
		engine: New(st, codec, WithClock(clock.Now)),
		store:  st,
		codec:  codec,
		clock:  clock,
	}
}

func (f *fixture) create(t *testing.T, in CreateInput) *models.Object {
	t.Helper()
	created, err := f.engine.Create(context.Background(), in)
	require.NoError(t, err)
	return created.Object
}

func input(name string, typ models.ObjectType, content string, ttlHours float64) CreateInput {
	return CreateInput{Name: name, Type: typ, Content: json.RawMessage(content), TTLHours: ttlHours}
}

func boolOf(t *testing.T, c models.Content) bool {
	t.Helper()
	b, ok := c.Bool()
	require.True(t, ok, "content %q is not a boolean", c.String())
	return b
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)

	cases := map[string]CreateInput{
		"missing name":       input("", models.TypeString, `"x"`, 1),
		"unknown type":       input("n", "number", `"x"`, 1),
		"missing content":    {Name: "n", Type: models.TypeString, TTLHours: 1},
		"null content":       input("n", models.TypeString, `null`, 1),
		"negative ttl":       input("n", models.TypeString, `"x"`, -1),
		"string for boolean": input("n", models.TypeBoolean, `"yes"`, 1),
		"object for string":  input("n", models.TypeString, `{"a":1}`, 1),
		"number for boolean": input("n", models.TypeBoolean, `0`, 1),
		"number for toggle":  input("n", models.TypeToggle, `1`, 1),
		"ttl overflows":      input("n", models.TypeString, `"x"`, 1e300),
		"ttl at int64 limit": input("n", models.TypeString, `"x"`, float64(math.MaxInt64)/msPerHour),
	}

	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.engine.Create(context.Background(), in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	all, err := f.store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateLongTTLStaysReadable(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	obj := f.create(t, input("archive", models.TypeString, `"kept"`, 1e9))
	assert.Equal(t, now.UnixMilli()+int64(1e9*msPerHour), obj.TTL)

	reading, err := f.engine.Fetch(context.Background(), "archive", obj.Token, "")
	require.NoError(t, err)
	assert.Equal(t, "kept", reading.Content.String())
}

func TestCreateDefaults(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	obj := f.create(t, input("greeting", models.TypeString, `"hello"`, 1.5))

	assert.NotEmpty(t, obj.ID)
	assert.Len(t, obj.Token, 43)
	assert.Equal(t, models.AnonymousOwner, obj.OwnerEmail)
	assert.Equal(t, now.UnixMilli(), obj.CreatedAt)
	assert.Equal(t, now.Add(90*time.Minute).UnixMilli(), obj.TTL)
	assert.Zero(t, obj.HitCount)
	assert.Nil(t, obj.LastHit)
	assert.False(t, obj.MFAEnabled())
	assert.NotContains(t, obj.Content, "hello")

	stored, err := f.store.Get(context.Background(), obj.ID)
	require.NoError(t, err)
	assert.Equal(t, obj, stored)
	assert.Equal(t, "hello", f.codec.Decrypt(stored.Content).Value.String())
}

func TestCreateAcceptsZeroValues(t *testing.T) {
	f := newFixture(t)

	obj := f.create(t, input("zero", models.TypeString, `0`, 0))
	assert.Equal(t, obj.CreatedAt, obj.TTL)
	assert.Equal(t, "0", f.codec.Decrypt(obj.Content).Value.String())

	obj = f.create(t, input("off", models.TypeBoolean, `false`, 1))
	assert.False(t, boolOf(t, f.codec.Decrypt(obj.Content).Value))
}

func TestCreateWithMFA(t *testing.T) {
	f := newFixture(t)

	in := input("guarded", models.TypeString, `"s3cret"`, 1)
	in.EnableMFA = true
	in.OwnerEmail = "owner@example.com"
	in.OwnerName = "Owner"

	created, err := f.engine.Create(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, created.Object.MFAEnabled())
	assert.Contains(t, created.TOTPURI, "secret="+created.Object.TOTPSecret)
	assert.Contains(t, created.TOTPQR, "data:image/png;base64,")
	assert.Equal(t, "owner@example.com", created.Object.OwnerEmail)
	assert.Equal(t, "Owner", created.Object.OwnerName)
}

func TestFetchString(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	obj := f.create(t, input("greeting", models.TypeString, `"hello"`, 1))

	r, err := f.engine.Fetch(ctx, "greeting", obj.Token, "")
	require.NoError(t, err)
	assert.Equal(t, "hello", r.Content.String())
	assert.Equal(t, 1, r.Hits)

	r, err = f.engine.FetchByToken(ctx, obj.Token, "")
	require.NoError(t, err)
	assert.Equal(t, "greeting", r.Name)
	assert.Equal(t, models.TypeString, r.Type)
	assert.Equal(t, "hello", r.Content.String())
	assert.Equal(t, 2, r.Hits)

	stored, err := f.store.Get(ctx, obj.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.HitCount)
	require.NotNil(t, stored.LastHit)
	assert.Equal(t, f.clock.Now().UnixMilli(), *stored.LastHit)
}

func TestFetchRequiresMatchingToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	obj := f.create(t, input("greeting", models.TypeString, `"hello"`, 1))

	_, err := f.engine.Fetch(ctx, "greeting", "wrong", "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.Fetch(ctx, "other-name", obj.Token, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.FetchByToken(ctx, "wrong", "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.Fetch(ctx, "", obj.Token, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.engine.FetchByToken(ctx, "", "")
	assert.ErrorIs(t, err, ErrValidation)

	stored, err := f.store.Get(ctx, obj.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.HitCount)
}

func TestSharedNamesResolveByToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, input("shared", models.TypeString, `"first"`, 1))
	b := f.create(t, input("shared", models.TypeString, `"second"`, 1))

	r, err := f.engine.Fetch(ctx, "shared", a.Token, "")
	require.NoError(t, err)
	assert.Equal(t, "first", r.Content.String())

	r, err = f.engine.Fetch(ctx, "shared", b.Token, "")
	require.NoError(t, err)
	assert.Equal(t, "second", r.Content.String())
}

func TestExpiredReadDeletesObject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := input("short", models.TypeString, `"soon gone"`, 1)
	in.EnableMFA = true
	obj := f.create(t, in)

	f.clock.Advance(time.Hour)
	code, err := crypto.TOTPCode(obj.TOTPSecret, f.clock.Now())
	require.NoError(t, err)

	_, err = f.engine.Fetch(ctx, "short", obj.Token, code)
	assert.ErrorIs(t, err, ErrExpired)

	_, err = f.store.Get(ctx, obj.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.engine.Fetch(ctx, "short", obj.Token, code)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestZeroTTLExpiresImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	obj := f.create(t, input("instant", models.TypeBoolean, `true`, 0))
	assert.Equal(t, obj.CreatedAt, obj.TTL)

	_, err := f.engine.FetchByToken(ctx, obj.Token, "")
	assert.ErrorIs(t, err, ErrExpired)

	_, err = f.store.Get(ctx, obj.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestToggleObjectAlternatesOnRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	obj := f.create(t, input("switch", models.TypeToggle, `true`, 1))

	want := true
	for i := 1; i <= 5; i++ {
		r, err := f.engine.Fetch(ctx, "switch", obj.Token, "")
		require.NoError(t, err)
		assert.Equal(t, want, boolOf(t, r.Content), "read %d", i)
		assert.Equal(t, i, r.Hits)

		stored, err := f.store.Get(ctx, obj.ID)
		require.NoError(t, err)
		assert.Equal(t, !want, boolOf(t, f.codec.Decrypt(stored.Content).Value))

		want = !want
	}
}

func TestOneTimeAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := input("burn", models.TypeString, `"read me once"`, 1)
	in.OneTimeAccess = true
	obj := f.create(t, in)

	r, err := f.engine.FetchByToken(ctx, obj.Token, "")
	require.NoError(t, err)
	assert.Equal(t, "read me once", r.Content.String())
	assert.Equal(t, 1, r.Hits)

	_, err = f.engine.FetchByToken(ctx, obj.Token, "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.engine.Fetch(ctx, "burn", obj.Token, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOneTimeToggleIsDeletedNotFlipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := input("burn-switch", models.TypeToggle, `true`, 1)
	in.OneTimeAccess = true
	obj := f.create(t, in)

	r, err := f.engine.Fetch(ctx, "burn-switch", obj.Token, "")
	require.NoError(t, err)
	assert.True(t, boolOf(t, r.Content))

	_, err = f.store.Get(ctx, obj.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMFAGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := input("guarded", models.TypeString, `"behind totp"`, 1)
	in.EnableMFA = true
	obj := f.create(t, in)

	_, err := f.engine.Fetch(ctx, "guarded", obj.Token, "")
	require.ErrorIs(t, err, ErrMFARequired)
	var mfaErr *MFAError
	require.True(t, errors.As(err, &mfaErr))
	assert.Contains(t, mfaErr.QR, "data:image/png;base64,")

	_, err = f.engine.Fetch(ctx, "guarded", obj.Token, "000000")
	if code, _ := crypto.TOTPCode(obj.TOTPSecret, f.clock.Now()); code != "000000" {
		assert.ErrorIs(t, err, ErrMFAInvalid)
	}

	stored, err := f.store.Get(ctx, obj.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.HitCount)

	now := f.clock.Now()
	for i, offset := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		code, err := crypto.TOTPCode(obj.TOTPSecret, now.Add(offset))
		require.NoError(t, err)

		r, err := f.engine.Fetch(ctx, "guarded", obj.Token, code)
		require.NoError(t, err, "offset %s", offset)
		assert.Equal(t, "behind totp", r.Content.String())
		assert.Equal(t, i+1, r.Hits)
	}

	stale, err := crypto.TOTPCode(obj.TOTPSecret, now.Add(-2*time.Minute))
	require.NoError(t, err)
	valid := map[string]bool{}
	for _, offset := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		c, _ := crypto.TOTPCode(obj.TOTPSecret, now.Add(offset))
		valid[c] = true
	}
	if !valid[stale] {
		_, err = f.engine.FetchByToken(ctx, obj.Token, stale)
		assert.ErrorIs(t, err, ErrMFAInvalid)
	}

	// After the first successful read the QR code is no longer offered.
	_, err = f.engine.FetchByToken(ctx, obj.Token, "")
	require.True(t, errors.As(err, &mfaErr))
	assert.Empty(t, mfaErr.QR)
}

func TestFlagScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	obj := f.create(t, input("flag", models.TypeBoolean, `true`, 1))

	r, err := f.engine.Fetch(ctx, "flag", obj.Token, "")
	require.NoError(t, err)
	assert.True(t, boolOf(t, r.Content))
	assert.Equal(t, 1, r.Hits)

	r, err = f.engine.Toggle(ctx, "flag", obj.Token)
	require.NoError(t, err)
	assert.False(t, boolOf(t, r.Content))
	assert.Equal(t, 2, r.Hits)

	stored, err := f.store.Get(ctx, obj.ID)
	require.NoError(t, err)
	assert.False(t, boolOf(t, f.codec.Decrypt(stored.Content).Value))

	_, err = f.engine.Fetch(ctx, "flag", "not-the-token", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToggleRejectsNonBooleanObjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	str := f.create(t, input("text", models.TypeString, `"x"`, 1))
	_, err := f.engine.Toggle(ctx, "text", str.Token)
	assert.ErrorIs(t, err, ErrInvalidOperation)

	tgl := f.create(t, input("auto", models.TypeToggle, `true`, 1))
	_, err = f.engine.Toggle(ctx, "auto", tgl.Token)
	assert.ErrorIs(t, err, ErrInvalidOperation)

	stored, err := f.store.Get(ctx, str.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.HitCount)
}

func TestToggleDoesNotRequireTOTP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := input("guarded-flag", models.TypeBoolean, `false`, 1)
	in.EnableMFA = true
	obj := f.create(t, in)

	r, err := f.engine.Toggle(ctx, "guarded-flag", obj.Token)
	require.NoError(t, err)
	assert.True(t, boolOf(t, r.Content))
	assert.Equal(t, 1, r.Hits)
}

func TestToggleExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	obj := f.create(t, input("flag", models.TypeBoolean, `true`, 1))

	f.clock.Advance(2 * time.Hour)

	_, err := f.engine.Toggle(ctx, "flag", obj.Token)
	assert.ErrorIs(t, err, ErrExpired)

	_, err = f.store.Get(ctx, obj.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestToggleWrongToken(t *testing.T) {
	f := newFixture(t)
	f.create(t, input("flag", models.TypeBoolean, `true`, 1))

	_, err := f.engine.Toggle(context.Background(), "flag", "wrong")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateWritesPatchVerbatim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	obj := f.create(t, input("note", models.TypeString, `"original"`, 1))

	name := "renamed"
	ttl := f.clock.Now().Add(48 * time.Hour).UnixMilli()
	oneTime := true
	updated, err := f.engine.Update(ctx, obj.ID, Patch{
		Name:          &name,
		Content:       json.RawMessage(`"unencrypted text"`),
		TTL:           &ttl,
		OneTimeAccess: &oneTime,
	})
	require.NoError(t, err)

	assert.Equal(t, obj.ID, updated.ID)
	assert.Equal(t, obj.Token, updated.Token)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, "unencrypted text", updated.Content)
	assert.Equal(t, ttl, updated.TTL)
	assert.True(t, updated.OneTimeAccess)

	// The patched content was never encrypted, so it reads back raw.
	r, err := f.engine.Fetch(ctx, "renamed", obj.Token, "")
	require.NoError(t, err)
	assert.Equal(t, "unencrypted text", r.Content.String())
}

func TestUpdateWithNonStringContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	obj := f.create(t, input("flag", models.TypeBoolean, `true`, 1))

	updated, err := f.engine.Update(ctx, obj.ID, Patch{Content: json.RawMessage(`false`)})
	require.NoError(t, err)
	assert.Equal(t, "false", updated.Content)

	r, err := f.engine.Toggle(ctx, "flag", obj.Token)
	require.NoError(t, err)
	assert.True(t, boolOf(t, r.Content))
}

func TestUpdateErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	obj := f.create(t, input("note", models.TypeString, `"x"`, 1))

	_, err := f.engine.Update(ctx, "missing", Patch{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.Update(ctx, "", Patch{})
	assert.ErrorIs(t, err, ErrValidation)

	bad := models.ObjectType("number")
	_, err = f.engine.Update(ctx, obj.ID, Patch{Type: &bad})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDegradedContentIsReturnedRaw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	obj := f.create(t, input("broken", models.TypeString, `"x"`, 1))

	_, err := f.engine.Update(ctx, obj.ID, Patch{Content: json.RawMessage(`"00ff:abcd"`)})
	require.NoError(t, err)

	r, err := f.engine.FetchByToken(ctx, obj.Token, "")
	require.NoError(t, err)
	assert.Equal(t, "00ff:abcd", r.Content.String())
	assert.Equal(t, 1, r.Hits)
}

func TestDeleteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	obj := f.create(t, input("note", models.TypeString, `"x"`, 1))

	require.NoError(t, f.engine.Delete(ctx, obj.ID))
	require.NoError(t, f.engine.Delete(ctx, obj.ID))

	_, err := f.engine.FetchByToken(ctx, obj.Token, "")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, f.engine.Delete(ctx, ""), ErrValidation)
}

func TestListByOwnerIncludesExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, ttl := range []float64{0, 1} {
		in := input("mine", models.TypeString, `"x"`, ttl)
		in.OwnerEmail = "me@example.com"
		f.create(t, in)
	}
	f.create(t, input("anon", models.TypeString, `"x"`, 1))

	objs, err := f.engine.ListByOwner(ctx, "me@example.com")
	require.NoError(t, err)
	assert.Len(t, objs, 2)

	objs, err = f.engine.ListByOwner(ctx, models.AnonymousOwner)
	require.NoError(t, err)
	assert.Len(t, objs, 1)

	_, err = f.engine.ListByOwner(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.create(t, input("a", models.TypeString, `"x"`, 0))
	f.create(t, input("b", models.TypeString, `"x"`, 1))
	keep := f.create(t, input("c", models.TypeString, `"x"`, 3))

	f.clock.Advance(2 * time.Hour)

	n, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := f.engine.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, keep.ID, all[0].ID)

	n, err = f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConcurrentTogglesLastWriterWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	obj := f.create(t, input("busy", models.TypeToggle, `true`, 1))

	const readers = 16
	var wg sync.WaitGroup
	errs := make(chan error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.engine.Fetch(ctx, "busy", obj.Token, ""); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent read failed: %v", err)
	}

	stored, err := f.store.Get(ctx, obj.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stored.HitCount, 1)
	assert.LessOrEqual(t, stored.HitCount, readers)
}

type failingStore struct {
	store.Store
	failSave   bool
	failDelete bool
	failFind   bool
	// afterFind runs between a successful FindByName and the caller's
	// next store call.
	afterFind func()
}

var errBackend = errors.New("backend down")

func (s *failingStore) Save(ctx context.Context, obj *models.Object) error {
	if s.failSave {
		return errBackend
	}
	return s.Store.Save(ctx, obj)
}

func (s *failingStore) Delete(ctx context.Context, id string) error {
	if s.failDelete {
		return errBackend
	}
	return s.Store.Delete(ctx, id)
}

func (s *failingStore) FindByName(ctx context.Context, name string) ([]*models.Object, error) {
	if s.failFind {
		return nil, errBackend
	}
	objs, err := s.Store.FindByName(ctx, name)
	if err == nil && s.afterFind != nil {
		s.afterFind()
	}
	return objs, err
}

func TestReadAfterConcurrentDeleteRestoresObject(t *testing.T) {
	ctx := context.Background()
	fs := &failingStore{Store: store.NewMemoryStore()}
	f := newFixtureWithStore(t, fs)

	obj := f.create(t, input("flag", models.TypeToggle, `true`, 1))
	fs.afterFind = func() {
		require.NoError(t, fs.Store.Delete(ctx, obj.ID))
	}

	reading, err := f.engine.Fetch(ctx, "flag", obj.Token, "")
	require.NoError(t, err)
	assert.Equal(t, models.BoolContent(true), reading.Content)

	restored, err := fs.Store.Get(ctx, obj.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, restored.HitCount)
	assert.Equal(t, models.BoolContent(false), f.codec.Decrypt(restored.Content).Value)
}

func TestStorageFailures(t *testing.T) {
	ctx := context.Background()
	fs := &failingStore{Store: store.NewMemoryStore()}
	f := newFixtureWithStore(t, fs)

	fs.failSave = true
	_, err := f.engine.Create(ctx, input("n", models.TypeString, `"x"`, 1))
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, errBackend)
	fs.failSave = false

	once := input("once", models.TypeString, `"x"`, 1)
	once.OneTimeAccess = true
	obj := f.create(t, once)

	fs.failFind = true
	_, err = f.engine.Fetch(ctx, "once", obj.Token, "")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	fs.failFind = false

	// A failed one-time delete must not hand out the content.
	fs.failDelete = true
	r, err := f.engine.Fetch(ctx, "once", obj.Token, "")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Nil(t, r)
	fs.failDelete = false

	r, err = f.engine.Fetch(ctx, "once", obj.Token, "")
	require.NoError(t, err)
	assert.Equal(t, "x", r.Content.String())
}
