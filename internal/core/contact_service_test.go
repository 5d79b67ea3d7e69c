package core

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gwi.com/agenda/internal/store"
)

func newTestContacts(t *testing.T) (*ContactService, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "database.json")
	return NewContactService(store.NewFileStore(path)), path
}

func TestCreateAssignsMaxPlusOne(t *testing.T) {
	svc, _ := newTestContacts(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		c, err := svc.Create(ctx, map[string]any{"nombre": "Ana", "telefono": "555", "id": 99})
		require.NoError(t, err)
		assert.Equal(t, want, c.ID)
	}

	require.NoError(t, svc.Delete(ctx, 2))
	c, err := svc.Create(ctx, map[string]any{"name": "Luis", "phone": "556"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), c.ID)
	assert.Equal(t, "Luis", c.Name)

	require.NoError(t, svc.Delete(ctx, 4))
	c, err = svc.Create(ctx, map[string]any{"nombre": "Eva", "telefono": "557"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), c.ID)
}

func TestCreateRejectsInvalidContact(t *testing.T) {
	svc, path := newTestContacts(t)

	_, err := svc.Create(context.Background(), map[string]any{"telefono": "555", "apodo": "x"})
	var invalid *store.ValidationError
	require.ErrorAs(t, err, &invalid)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "nothing should be written")
}

func TestReplaceIsIdempotentAndKeepsPathID(t *testing.T) {
	svc, path := newTestContacts(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, map[string]any{"nombre": "Ana", "telefono": "555-1"})
	require.NoError(t, err)

	payload := map[string]any{"id": 7, "nombre": "Ana B", "telefono": "555-1", "ciudad": "Lima"}
	first, err := svc.Replace(ctx, 1, payload)
	require.NoError(t, err)
	afterFirst, err := os.ReadFile(path)
	require.NoError(t, err)

	second, err := svc.Replace(ctx, 1, payload)
	require.NoError(t, err)
	afterSecond, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, first, second)
	assert.Equal(t, afterFirst, afterSecond)
	assert.Equal(t, 7, payload["id"], "caller's map is not modified")
}

func TestReplaceMissingContact(t *testing.T) {
	svc, _ := newTestContacts(t)
	_, err := svc.Replace(context.Background(), 5, map[string]any{"nombre": "Ana", "telefono": "1"})
	var notFound *store.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, int64(5), notFound.ID)
}

func TestDeleteRemovesExactlyOne(t *testing.T) {
	svc, _ := newTestContacts(t)
	ctx := context.Background()
	for _, name := range []string{"Ana", "Luis", "Eva"} {
		_, err := svc.Create(ctx, map[string]any{"nombre": name, "telefono": "1"})
		require.NoError(t, err)
	}

	var notFound *store.NotFoundError
	require.ErrorAs(t, svc.Delete(ctx, 42), &notFound)
	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, svc.Delete(ctx, 2))
	all, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Ana", all[0].Name)
	assert.Equal(t, "Eva", all[1].Name)
}

func TestMerge(t *testing.T) {
	svc, path := newTestContacts(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, map[string]any{"nombre": "Ana", "telefono": "555"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, map[string]any{"nombre": "Luis", "telefono": "556"})
	require.NoError(t, err)

	updated, err := svc.Merge(ctx, 1, map[string]any{"ciudad": "Madrid", "email": "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Ana", updated.Name)
	require.NotNil(t, updated.City)
	assert.Equal(t, "Madrid", *updated.City)

	other, err := svc.Get(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, other.City)

	before, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, patch := range []map[string]any{
		{"telefono": 12345},
		{"apodo": "Anita"},
		{"fecha_nacimiento": "31/12/1990"},
		{"id": 3},
	} {
		_, err := svc.Merge(ctx, 1, patch)
		var invalid *store.ValidationError
		assert.ErrorAs(t, err, &invalid, "patch %v", patch)
	}
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = svc.Merge(ctx, 9, map[string]any{"ciudad": "Lima"})
	var notFound *store.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestConcurrentCreatesGetDistinctIDs(t *testing.T) {
	svc, _ := newTestContacts(t)
	ctx := context.Background()
	const n = 20

	ids := make(chan int64, n)
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := svc.Create(ctx, map[string]any{"nombre": "Ana", "telefono": "1"})
			if err != nil {
				errs <- err
				return
			}
			ids <- c.ID
		}()
	}
	wg.Wait()
	close(ids)
	close(errs)

	for err := range errs {
		t.Fatalf("create failed: %v", err)
	}
	seen := make(map[int64]bool, n)
	for id := range ids {
		assert.False(t, seen[id], "id %d assigned twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	for id := int64(1); id <= n; id++ {
		assert.True(t, seen[id], "missing id %d", id)
	}

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, n)
}

func TestLegacyBirthDateDoesNotBlockTheStore(t *testing.T) {
	svc, path := newTestContacts(t)
	ctx := context.Background()
	doc := `[
    {"id": 1, "nombre": "Ana", "telefono": "555-1", "fecha_nacimiento": "15/03/1990"},
    {"id": 2, "nombre": "Luis", "telefono": "555-2"}
]`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	luis, err := svc.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Luis", luis.Name)

	ana, err := svc.Merge(ctx, 1, map[string]any{"ciudad": "Quito"})
	require.NoError(t, err)
	assert.Equal(t, "15/03/1990", *ana.BirthDate)

	_, err = svc.Merge(ctx, 1, map[string]any{"fecha_nacimiento": "31/12/1990"})
	var invalid *store.ValidationError
	assert.ErrorAs(t, err, &invalid)

	created, err := svc.Create(ctx, map[string]any{"nombre": "Eva", "telefono": "555-3"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), created.ID)
	require.NoError(t, svc.Delete(ctx, 1))
}
