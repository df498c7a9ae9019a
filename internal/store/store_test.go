package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure.vault/internal/models"
)

func newObject(id, name, owner string) *models.Object {
	now := time.Now()
	return &models.Object{
		ID:         id,
		Name:       name,
		Type:       models.TypeString,
		Content:    "ciphertext-" + id,
		Token:      "token-" + id,
		TTL:        now.Add(time.Hour).UnixMilli(),
		CreatedAt:  now.UnixMilli(),
		OwnerEmail: owner,
	}
}

func ids(objs []*models.Object) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.ID
	}
	return out
}

// runStoreSuite exercises the Store contract against any backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("save and get", func(t *testing.T) {
		s := newStore(t)
		obj := newObject("1", "flag", "a@example.com")
		hit := int64(42)
		obj.LastHit = &hit
		obj.TOTPSecret = "JBSWY3DPEHPK3PXP"

		require.NoError(t, s.Save(ctx, obj))

		got, err := s.Get(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, obj, got)
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("returned objects are copies", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, newObject("1", "flag", "a@example.com")))

		got, err := s.Get(ctx, "1")
		require.NoError(t, err)
		got.HitCount = 99

		again, err := s.Get(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, 0, again.HitCount)
	})

	t.Run("names are not unique", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, newObject("1", "flag", "a@example.com")))
		require.NoError(t, s.Save(ctx, newObject("2", "flag", "b@example.com")))
		require.NoError(t, s.Save(ctx, newObject("3", "other", "a@example.com")))

		got, err := s.FindByName(ctx, "flag")
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2"}, ids(got))

		got, err = s.FindByName(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("find by token", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, newObject("1", "flag", "a@example.com")))

		got, err := s.FindByToken(ctx, "token-1")
		require.NoError(t, err)
		assert.Equal(t, "1", got.ID)

		_, err = s.FindByToken(ctx, "token-2")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list by owner and all", func(t *testing.T) {
		s := newStore(t)
		for i := 1; i <= 4; i++ {
			owner := "a@example.com"
			if i%2 == 0 {
				owner = "b@example.com"
			}
			require.NoError(t, s.Save(ctx, newObject(fmt.Sprint(i), "n", owner)))
		}

		got, err := s.ListByOwner(ctx, "b@example.com")
		require.NoError(t, err)
		assert.Equal(t, []string{"2", "4"}, ids(got))

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2", "3", "4"}, ids(all))
	})

	t.Run("replace moves indexes", func(t *testing.T) {
		s := newStore(t)
		obj := newObject("1", "flag", "a@example.com")
		require.NoError(t, s.Save(ctx, obj))

		obj.Name = "renamed"
		obj.OwnerEmail = "b@example.com"
		obj.HitCount = 3
		require.NoError(t, s.Save(ctx, obj))

		byOld, err := s.FindByName(ctx, "flag")
		require.NoError(t, err)
		assert.Empty(t, byOld)

		byNew, err := s.FindByName(ctx, "renamed")
		require.NoError(t, err)
		require.Len(t, byNew, 1)
		assert.Equal(t, 3, byNew[0].HitCount)

		oldOwner, err := s.ListByOwner(ctx, "a@example.com")
		require.NoError(t, err)
		assert.Empty(t, oldOwner)

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("delete is idempotent and clears indexes", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, newObject("1", "flag", "a@example.com")))

		require.NoError(t, s.Delete(ctx, "1"))
		require.NoError(t, s.Delete(ctx, "1"))
		require.NoError(t, s.Delete(ctx, "never-existed"))

		_, err := s.Get(ctx, "1")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.FindByToken(ctx, "token-1")
		assert.ErrorIs(t, err, ErrNotFound)

		byName, err := s.FindByName(ctx, "flag")
		require.NoError(t, err)
		assert.Empty(t, byName)

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(ctx))
	})
}
