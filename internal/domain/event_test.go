package domain

import "testing"

func TestEventStatus_Values(t *testing.T) {
	tests := []struct {
		status EventStatus
		want   string
	}{
		{EventStatusActive, "active"},
		{EventStatusArchived, "archived"},
		{EventStatusDeleted, "deleted"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if string(tt.status) != tt.want {
				t.Errorf("EventStatus = %q, want %q", tt.status, tt.want)
			}
		})
	}
}

func TestTriggerType_Values(t *testing.T) {
	if string(TriggerTypeScheduled) != "scheduled" {
		t.Errorf("TriggerTypeScheduled = %q", TriggerTypeScheduled)
	}
	if string(TriggerTypeAPI) != "api" {
		t.Errorf("TriggerTypeAPI = %q", TriggerTypeAPI)
	}
}
