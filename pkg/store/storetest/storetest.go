// Package storetest holds the behaviour every store.Backend must share.
package storetest

import (
	"context"
	"testing"

	"github.com/linem-davton/graphdraw/pkg/model"
	"github.com/linem-davton/graphdraw/pkg/store"
)

func sample(wcet float64) model.CombinedModel {
	m := model.NewCombinedModel()
	m.Application.Tasks = []model.Task{{ID: 0, WCET: wcet, MCET: 1, Deadline: 100}}
	m.Platform.Nodes = []model.PlatformNode{{ID: 0, Type: model.NodeRouter}}
	return m
}

// RunBackendTests exercises b through the ModelStore and Preferences
// wrappers.
func RunBackendTests(t *testing.T, b store.Backend) {
	ctx := context.Background()
	models := store.NewModels(b)

	t.Run("Load missing key", func(t *testing.T) {
		_, ok, err := models.Load(ctx, "never-written")
		if err != nil || ok {
			t.Fatalf("Load(missing) = ok %v, err %v", ok, err)
		}
	})

	t.Run("Save and Load", func(t *testing.T) {
		want := sample(10)
		if err := models.Save(ctx, store.DefaultKey, want); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, ok, err := models.Load(ctx, store.DefaultKey)
		if err != nil || !ok {
			t.Fatalf("Load = ok %v, err %v", ok, err)
		}
		if len(got.Application.Tasks) != 1 || got.Application.Tasks[0].WCET != 10 {
			t.Errorf("Load returned %+v", got)
		}
		if got.Application.Messages == nil || got.Platform.Links == nil {
			t.Error("empty collections must load as empty slices")
		}
	})

	t.Run("Last write wins", func(t *testing.T) {
		for _, wcet := range []float64{1, 2, 3} {
			if err := models.Save(ctx, "lww", sample(wcet)); err != nil {
				t.Fatalf("Save: %v", err)
			}
		}
		got, _, err := models.Load(ctx, "lww")
		if err != nil {
			t.Fatal(err)
		}
		if got.Application.Tasks[0].WCET != 3 {
			t.Errorf("expected the last write, got wcet %v", got.Application.Tasks[0].WCET)
		}
	})

	t.Run("Keys are independent", func(t *testing.T) {
		models.Save(ctx, "a", sample(5))
		models.Save(ctx, "b", sample(6))
		a, _, _ := models.Load(ctx, "a")
		b, _, _ := models.Load(ctx, "b")
		if a.Application.Tasks[0].WCET != 5 || b.Application.Tasks[0].WCET != 6 {
			t.Errorf("keys interfere: a=%v b=%v", a.Application.Tasks, b.Application.Tasks)
		}
	})

	t.Run("Empty key rejected", func(t *testing.T) {
		if err := models.Save(ctx, " ", sample(1)); err == nil {
			t.Error("expected error for empty key")
		}
	})

	t.Run("Server mode preference", func(t *testing.T) {
		prefs := store.NewPreferences(b)
		mode, err := prefs.ServerMode(ctx, "remote")
		if err != nil || mode != "remote" {
			t.Fatalf("default mode = %q, %v", mode, err)
		}
		if err := prefs.SaveServerMode(ctx, "local"); err != nil {
			t.Fatal(err)
		}
		mode, err = prefs.ServerMode(ctx, "remote")
		if err != nil || mode != "local" {
			t.Errorf("mode = %q, %v", mode, err)
		}
	})
}
