package domain

import "testing"

func TestEntryStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to EntryStatus
		want     bool
	}{
		{EntryPending, EntryCompleted, true},
		{EntryPending, EntryFailed, true},
		{EntryPending, EntryDisputed, false},
		{EntryCompleted, EntryFailed, false},
		{EntryCompleted, EntryPending, false},
		{EntryFailed, EntryCompleted, false},
		{EntryFailed, EntryPending, false},
		{EntryDisputed, EntryCompleted, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
