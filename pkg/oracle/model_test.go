package oracle

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeModelStore struct {
	active      map[ModelType]*Model
	inserted    []*Model
	activateErr error
}

func newFakeModelStore() *fakeModelStore {
	return &fakeModelStore{active: make(map[ModelType]*Model)}
}

func (f *fakeModelStore) GetActiveModel(_ context.Context, t ModelType) (*Model, error) {
	m, ok := f.active[t]
	if !ok {
		return nil, NewError(CodeNoActiveModel, "no active model for %s", t)
	}
	return m, nil
}

func (f *fakeModelStore) InsertModel(_ context.Context, m *Model) error {
	cp := *m
	f.inserted = append(f.inserted, &cp)
	return nil
}

func (f *fakeModelStore) ActivateModel(_ context.Context, m *Model) error {
	if f.activateErr != nil {
		return f.activateErr
	}
	f.active[m.Type] = m
	return nil
}

func TestActiveModelCacheGetCachesAfterFirstMiss(t *testing.T) {
	store := newFakeModelStore()
	store.active[ModelPoisson] = &Model{ID: "m1", Type: ModelPoisson, Status: ModelActive}
	cache := NewActiveModelCache(store)

	m1, err := cache.Get(context.Background(), ModelPoisson)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	delete(store.active, ModelPoisson) // prove the second Get comes from cache, not the store

	m2, err := cache.Get(context.Background(), ModelPoisson)
	if err != nil {
		t.Fatalf("unexpected error on cached get: %v", err)
	}
	if m1.ID != m2.ID {
		t.Errorf("expected cached get to return the same model, got %s and %s", m1.ID, m2.ID)
	}
}

func TestActiveModelCacheInvalidateForcesRequery(t *testing.T) {
	store := newFakeModelStore()
	store.active[ModelPoisson] = &Model{ID: "m1", Type: ModelPoisson, Status: ModelActive}
	cache := NewActiveModelCache(store)

	if _, err := cache.Get(context.Background(), ModelPoisson); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.active[ModelPoisson] = &Model{ID: "m2", Type: ModelPoisson, Status: ModelActive}
	cache.Invalidate(ModelPoisson)

	m, err := cache.Get(context.Background(), ModelPoisson)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ID != "m2" {
		t.Errorf("expected invalidation to force a re-query returning m2, got %s", m.ID)
	}
}

func TestActiveModelCacheActivateInsertsThenFlips(t *testing.T) {
	store := newFakeModelStore()
	cache := NewActiveModelCache(store)
	m := &Model{ID: "m1", Type: ModelBlending}

	if err := cache.Activate(context.Background(), m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.inserted) != 1 || store.inserted[0].Status != ModelTraining {
		t.Errorf("expected Activate to insert the model with training status first, got %+v", store.inserted)
	}
	if store.active[ModelBlending].Status != ModelActive {
		t.Errorf("expected Activate to flip the model to active in the store")
	}
}

func TestActiveModelCacheActivateWrapsStoreErrorAsConflict(t *testing.T) {
	store := newFakeModelStore()
	store.activateErr = errors.New("unique constraint violation")
	cache := NewActiveModelCache(store)

	err := cache.Activate(context.Background(), &Model{ID: "m1", Type: ModelCalibration})
	if err == nil {
		t.Fatal("expected an error from a failing activation")
	}
	oe, ok := AsOracleError(err)
	if !ok || oe.Code != CodeConflictActivation {
		t.Errorf("expected CodeConflictActivation, got %v", err)
	}
}

func TestNewModelVersionFormat(t *testing.T) {
	at := time.Date(2026, 3, 5, 10, 30, 0, 0, time.UTC)
	got := NewModelVersion(ModelPoisson, at)
	want := "poisson-20260305T103000Z"
	if got != want {
		t.Errorf("NewModelVersion = %q, want %q", got, want)
	}
}
