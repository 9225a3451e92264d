package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRecordAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	base := time.Unix(1700000000, 0)
	first := Entry{ID: uuid.New(), Name: "complexfunc", Status: StatusOK, Offloads: 1, Submitted: base, Finished: base.Add(time.Second)}
	second := Entry{ID: uuid.New(), Name: "boom", Status: StatusFailed, Error: "ErrorException: boom", Submitted: base.Add(time.Millisecond), Finished: base.Add(2 * time.Second)}
	j.Record(first)
	j.Record(second)
	j.Flush()
	j.Record(Entry{ID: uuid.New(), Name: "late"})

	got, err := j.Entries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].ID != first.ID || got[0].Status != StatusOK || got[0].Offloads != 1 {
		t.Errorf("first entry = %+v", got[0])
	}
	if got[1].Name != "boom" || got[1].Error != "ErrorException: boom" || got[1].Status != StatusFailed {
		t.Errorf("second entry = %+v", got[1])
	}
	if !got[1].Finished.Equal(second.Finished) {
		t.Errorf("finished = %v, want %v", got[1].Finished, second.Finished)
	}
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	j.Record(Entry{ID: uuid.New(), Name: "a", Status: StatusLost, Submitted: time.Now(), Finished: time.Now()})
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	j, err = Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	got, err := j.Entries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Status != StatusLost {
		t.Fatalf("entries after reopen = %+v", got)
	}
}
