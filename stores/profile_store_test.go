package stores

import (
	"context"
	"fmt"
	"testing"

	"github.com/jakekinchen/TrailMates-sub002/models"
)

func TestHashChunks(t *testing.T) {
	hashes := func(n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = fmt.Sprintf("hash-%02d", i)
		}
		return out
	}

	cases := []struct {
		name      string
		in        []string
		wantSizes []int
	}{
		{"empty", nil, nil},
		{"all blank", []string{"", "", ""}, nil},
		{"under one chunk", hashes(3), []int{3}},
		{"exactly one chunk", hashes(10), []int{10}},
		{"one over", hashes(11), []int{10, 1}},
		{"several chunks", hashes(25), []int{10, 10, 5}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			chunks := hashChunks(c.in)
			if len(chunks) != len(c.wantSizes) {
				t.Fatalf("got %d chunks, want %d", len(chunks), len(c.wantSizes))
			}
			for i, chunk := range chunks {
				if len(chunk) != c.wantSizes[i] {
					t.Errorf("chunk %d has %d hashes, want %d", i, len(chunk), c.wantSizes[i])
				}
			}
		})
	}
}

func TestHashChunksDropBlanksKeepOrder(t *testing.T) {
	chunks := hashChunks([]string{"a", "", "b", "", "c"})
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	want := []string{"a", "b", "c"}
	for i, h := range chunks[0] {
		if h != want[i] {
			t.Errorf("chunk[0][%d] = %q, want %q", i, h, want[i])
		}
	}
}

func TestMemoryFindByHashedPhonesAcrossChunks(t *testing.T) {
	store := NewMemoryProfileStore()
	ctx := context.Background()

	var hashes []string
	for i := 0; i < 25; i++ {
		h := fmt.Sprintf("digest-%02d", i)
		id := models.ProfileID(fmt.Sprintf("user-%02d", i))
		if err := store.Create(ctx, models.Profile{ID: id, HashedPhoneNumber: h}); err != nil {
			t.Fatal(err)
		}
		hashes = append(hashes, h)
	}
	// Blanks are dropped before batching, same as the Mongo path.
	hashes = append(hashes, "", "unknown-digest")

	out, err := store.FindByHashedPhones(ctx, hashes)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 25 {
		t.Errorf("expected all 25 profiles across 3 batches, got %d", len(out))
	}
}
