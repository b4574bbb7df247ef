package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/dropDatabas3/identsync/internal/directory"
)

func TestUpsertNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	st := New()

	created, err := st.Upsert(ctx, directory.Record{UserID: "u-1", Email: "a@x.com", FullName: "First"})
	if err != nil || !created {
		t.Fatalf("first upsert: created=%v err=%v", created, err)
	}

	created, err = st.Upsert(ctx, directory.Record{UserID: "u-2", Email: "a@x.com", FullName: "Second"})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Fatal("second upsert must report created=false")
	}

	rec, _ := st.Get("a@x.com")
	if rec.UserID != "u-1" || rec.FullName != "First" {
		t.Fatalf("row was overwritten: %+v", rec)
	}
}

func TestUpsertMissingFields(t *testing.T) {
	ctx := context.Background()
	st := New()
	for _, rec := range []directory.Record{
		{Email: "a@x.com"},
		{UserID: "u-1"},
		{},
	} {
		if _, err := st.Upsert(ctx, rec); err != directory.ErrMissingFields {
			t.Fatalf("Upsert(%+v) err = %v, want ErrMissingFields", rec, err)
		}
	}
}

func TestConcurrentUpsertSingleWinner(t *testing.T) {
	ctx := context.Background()
	st := New()

	const n = 32
	var wg sync.WaitGroup
	createdCount := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			created, err := st.Upsert(ctx, directory.Record{
				UserID: "u-1", Email: "race@x.com", FullName: "Racer",
			})
			if err != nil {
				t.Errorf("upsert: %v", err)
				return
			}
			createdCount <- created
		}(i)
	}
	wg.Wait()
	close(createdCount)

	wins := 0
	for c := range createdCount {
		if c {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("created=true %d times, want exactly 1", wins)
	}
	if st.Len() != 1 {
		t.Fatalf("rows = %d, want 1", st.Len())
	}
}

func TestDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	st := New()
	if _, err := st.Upsert(ctx, directory.Record{UserID: "u-1", Email: "a@x.com"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rows, err := st.Delete(ctx, "u-1")
	if err != nil || rows != 1 {
		t.Fatalf("first delete: rows=%d err=%v", rows, err)
	}
	rows, err = st.Delete(ctx, "u-1")
	if err != nil || rows != 0 {
		t.Fatalf("second delete: rows=%d err=%v, want 0 rows no error", rows, err)
	}

	// el email queda libre para re-registro
	created, err := st.Upsert(ctx, directory.Record{UserID: "u-9", Email: "a@x.com"})
	if err != nil || !created {
		t.Fatalf("re-register after delete: created=%v err=%v", created, err)
	}
}

func TestExistsNormalizesEmail(t *testing.T) {
	ctx := context.Background()
	st := New()
	if _, err := st.Upsert(ctx, directory.Record{UserID: "u-1", Email: " Ada@X.COM ", FullName: "Ada"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := st.Exists(ctx, "ada@x.com")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !res.Exists || res.FullName != "Ada" {
		t.Fatalf("res = %+v", res)
	}
}

func TestDefaultRoleApplied(t *testing.T) {
	ctx := context.Background()
	st := New()
	if _, err := st.Upsert(ctx, directory.Record{UserID: "u-1", Email: "a@x.com"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rec, _ := st.Get("a@x.com")
	if rec.Role != directory.DefaultRole {
		t.Fatalf("role = %q, want %q", rec.Role, directory.DefaultRole)
	}
}

func TestFailAllReturnsUnavailable(t *testing.T) {
	ctx := context.Background()
	st := New()
	st.FailAll = true

	if _, err := st.Exists(ctx, "a@x.com"); err != directory.ErrUnavailable {
		t.Fatalf("Exists err = %v", err)
	}
	if _, err := st.Upsert(ctx, directory.Record{UserID: "u", Email: "a@x.com"}); err != directory.ErrUnavailable {
		t.Fatalf("Upsert err = %v", err)
	}
	if _, err := st.Delete(ctx, "u"); err != directory.ErrUnavailable {
		t.Fatalf("Delete err = %v", err)
	}
}
