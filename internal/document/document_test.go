package document

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

func TestReplaceAndGet(t *testing.T) {
	r := New()
	if _, ok := r.Get("header"); ok {
		t.Fatal("unknown region should not exist")
	}

	r.Replace("header", "<table></table>")
	got, ok := r.Get("header")
	if !ok || got != "<table></table>" {
		t.Errorf("Get = %q, %v", got, ok)
	}
	if r.Version("header") != 1 {
		t.Errorf("Version = %d", r.Version("header"))
	}

	select {
	case <-r.Changed():
	default:
		t.Error("expected change signal")
	}
}

func TestLastWriterWinsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := New()
		ids := []string{"portstatus", "header", "devinfo"}
		last := map[string]string{}
		counts := map[string]uint64{}

		n := rapid.IntRange(1, 40).Draw(t, "writes")
		for i := 0; i < n; i++ {
			id := rapid.SampledFrom(ids).Draw(t, fmt.Sprintf("id%d", i))
			content := rapid.String().Draw(t, fmt.Sprintf("content%d", i))
			r.Replace(id, content)
			last[id] = content
			counts[id]++
		}

		for _, id := range ids {
			got, ok := r.Get(id)
			want, written := last[id]
			if ok != written || got != want {
				t.Fatalf("%s = %q (%v), want %q (%v)", id, got, ok, want, written)
			}
			if r.Version(id) != counts[id] {
				t.Fatalf("%s version = %d, want %d", id, r.Version(id), counts[id])
			}
		}
	})
}
