package collection_test

import (
	"errors"
	"testing"

	"github.com/elektrikmusik/linkedin-scraper/internal/collection"
)

func TestDefault_ContainsCoreCollections(t *testing.T) {
	r := collection.Default()
	for _, name := range []string{"recommended", "top-applicant", "easy-apply", "remote-jobs"} {
		if !r.Has(name) {
			t.Errorf("Default() missing collection %q", name)
		}
	}
}

func TestGet_CaseInsensitive(t *testing.T) {
	r := collection.Default()
	c, err := r.Get("  Top-Applicant ")
	if err != nil {
		t.Fatalf("Get returned unexpected error: %v", err)
	}
	if c.Name != "top-applicant" {
		t.Errorf("Name = %q, want top-applicant", c.Name)
	}
	if c.Path != "/jobs/collections/top-applicant/" {
		t.Errorf("Path = %q", c.Path)
	}
	if c.PageSize != 25 || c.MaxPages != 10 {
		t.Errorf("PageSize/MaxPages = %d/%d, want 25/10", c.PageSize, c.MaxPages)
	}
}

func TestGet_Unknown(t *testing.T) {
	_, err := collection.Default().Get("nonexistent")
	if !errors.Is(err, collection.ErrNotFound) {
		t.Errorf("Get(nonexistent) err = %v, want ErrNotFound", err)
	}
}

func TestList_KeepsOrderAndLabels(t *testing.T) {
	r := collection.NewRegistry(
		collection.Config{Name: "b", Label: "Bee"},
		collection.Config{Name: "a", Label: "Ay"},
		collection.Config{Name: "b", Label: "Bee 2"},
		collection.Config{Name: " "},
	)
	got := r.List()
	if len(got) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(got))
	}
	if got[0] != (collection.Entry{Name: "b", Label: "Bee 2"}) {
		t.Errorf("List()[0] = %+v", got[0])
	}
	if got[1] != (collection.Entry{Name: "a", Label: "Ay"}) {
		t.Errorf("List()[1] = %+v", got[1])
	}
}

func TestNewRegistry_KeepsExplicitPaging(t *testing.T) {
	r := collection.NewRegistry(collection.Config{Name: "custom", Path: "/x/", PageSize: 7, MaxPages: 2})
	c, err := r.Get("custom")
	if err != nil {
		t.Fatal(err)
	}
	if c.Path != "/x/" || c.PageSize != 7 || c.MaxPages != 2 {
		t.Errorf("got %+v", c)
	}
}
