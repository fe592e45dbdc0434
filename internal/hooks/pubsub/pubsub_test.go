package pubsub

import (
	"testing"
	"time"

	"github.com/datahub-project/datahub-upgrade/internal/model"
)

func TestParseTopicPath(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		projectID string
		topicID   string
		wantErr   bool
	}{
		{name: "valid", path: "projects/acme/topics/upgrades", projectID: "acme", topicID: "upgrades"},
		{name: "missing topics segment", path: "projects/acme/upgrades", wantErr: true},
		{name: "wrong prefix", path: "project/acme/topics/upgrades", wantErr: true},
		{name: "empty project", path: "projects//topics/upgrades", wantErr: true},
		{name: "empty", path: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			projectID, topicID, err := ParseTopicPath(tt.path)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.path)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if projectID != tt.projectID || topicID != tt.topicID {
				t.Errorf("Expected %s/%s, got %s/%s", tt.projectID, tt.topicID, projectID, topicID)
			}
		})
	}
}

func TestOrderingKeyAndAttributes(t *testing.T) {
	if got := OrderingKey("gms-0", "NoOpUpgrade"); got != "gms-0/NoOpUpgrade" {
		t.Errorf("unexpected ordering key %q", got)
	}

	result := model.NewUpgradeResult(model.UpgradeStateAborted, time.UnixMilli(5), nil)
	event := model.NewUpgradeEvent(model.UpgradeEventKindFinished, "NoOpUpgrade", "r", result, model.SourceMetadata{InstanceID: "gms-0"})
	attrs := Attributes(event)

	expected := map[string]string{
		"upgrade_id":  "NoOpUpgrade",
		"event_type":  "FINISHED",
		"state":       "ABORTED",
		"instance_id": "gms-0",
	}
	for k, v := range expected {
		if attrs[k] != v {
			t.Errorf("attribute %s: expected %q, got %q", k, v, attrs[k])
		}
	}
}
