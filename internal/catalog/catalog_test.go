package catalog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ioustamora/datamesh/internal/errors"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func sampleRecord(name string) Record {
	return Record{
		Name:         name,
		FK:           "deadbeef",
		OriginalName: "greeting.txt",
		Size:         11,
		UploadedAt:   time.Now(),
		OwnerFP:      "fp123",
		Health:       100,
		Tags:         []string{"greeting", "demo"},
		DataShards:   4,
		ParityShards: 2,
		ShardSize:    64,
		CipherSize:   256,
	}
}

func TestStoreAndLookupByName(t *testing.T) {
	c := openTestCatalog(t)

	if _, err := c.Store(sampleRecord("greeting")); err != nil {
		t.Fatalf("Store: %v", err)
	}

	rec, err := c.LookupByName("greeting")
	if err != nil {
		t.Fatalf("LookupByName: %v", err)
	}
	if rec.FK != "deadbeef" || rec.Health != 100 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(rec.Tags) != 2 {
		t.Fatalf("expected 2 tags, got %d", len(rec.Tags))
	}
}

func TestStoreNameCollisionReturnsConflict(t *testing.T) {
	c := openTestCatalog(t)

	if _, err := c.Store(sampleRecord("f")); err != nil {
		t.Fatalf("Store first: %v", err)
	}
	_, err := c.Store(sampleRecord("f"))
	if !errors.Is(err, errors.KindNameConflict) {
		t.Fatalf("expected KindNameConflict, got %v", err)
	}
}

func TestStoreWithSuffixResolvesCollision(t *testing.T) {
	c := openTestCatalog(t)

	name1, _, err := c.StoreWithSuffix(sampleRecord("f"), 5)
	if err != nil {
		t.Fatalf("StoreWithSuffix 1: %v", err)
	}
	name2, _, err := c.StoreWithSuffix(sampleRecord("f"), 5)
	if err != nil {
		t.Fatalf("StoreWithSuffix 2: %v", err)
	}

	if name1 == name2 {
		t.Fatalf("expected distinct names, got %q and %q", name1, name2)
	}
	if name2 != "f_1" {
		t.Fatalf("expected second name to be f_1, got %q", name2)
	}

	if _, err := c.LookupByName(name1); err != nil {
		t.Fatalf("lookup name1: %v", err)
	}
	if _, err := c.LookupByName(name2); err != nil {
		t.Fatalf("lookup name2: %v", err)
	}
}

func TestLookupByNameNotFound(t *testing.T) {
	c := openTestCatalog(t)
	if _, err := c.LookupByName("nope"); err != errors.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLookupByKeyReturnsMultipleNames(t *testing.T) {
	c := openTestCatalog(t)

	r1 := sampleRecord("a")
	r2 := sampleRecord("b")
	if _, err := c.Store(r1); err != nil {
		t.Fatalf("Store a: %v", err)
	}
	if _, err := c.Store(r2); err != nil {
		t.Fatalf("Store b: %v", err)
	}

	recs, err := c.LookupByKey("deadbeef")
	if err != nil {
		t.Fatalf("LookupByKey: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records sharing a file key, got %d", len(recs))
	}
}

func TestListFiltersByTag(t *testing.T) {
	c := openTestCatalog(t)

	r1 := sampleRecord("a")
	r1.Tags = []string{"photos"}
	r2 := sampleRecord("b")
	r2.Tags = []string{"documents"}

	if _, err := c.Store(r1); err != nil {
		t.Fatalf("Store a: %v", err)
	}
	if _, err := c.Store(r2); err != nil {
		t.Fatalf("Store b: %v", err)
	}

	photos, err := c.List("photos")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(photos) != 1 || photos[0].Name != "a" {
		t.Fatalf("unexpected filtered list: %+v", photos)
	}

	all, err := c.List("")
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 records total, got %d", len(all))
	}
}

func TestDelete(t *testing.T) {
	c := openTestCatalog(t)

	if _, err := c.Store(sampleRecord("gone")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := c.Delete("gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.LookupByName("gone"); err != errors.ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := c.Delete("gone"); err != errors.ErrNotFound {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestUpdateHealth(t *testing.T) {
	c := openTestCatalog(t)

	if _, err := c.Store(sampleRecord("f")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := c.UpdateHealth("f", 67); err != nil {
		t.Fatalf("UpdateHealth: %v", err)
	}
	rec, err := c.LookupByName("f")
	if err != nil {
		t.Fatalf("LookupByName: %v", err)
	}
	if rec.Health != 67 {
		t.Fatalf("expected health 67, got %d", rec.Health)
	}
}
