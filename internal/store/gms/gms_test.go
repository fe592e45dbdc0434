package gms

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/datahub-project/datahub-upgrade/internal/model"
	"github.com/datahub-project/datahub-upgrade/internal/store"
)

func TestStore_Put(t *testing.T) {
	var received ingestProposalRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/aspects" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("action") != "ingestProposal" {
			t.Errorf("Expected action=ingestProposal, got %q", r.URL.RawQuery)
		}
		if r.Header.Get(restliProtocolHeader) != restliProtocolVersion {
			t.Errorf("Expected rest.li protocol header")
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("invalid body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"value":"urn:li:dataHubUpgrade:system-update"}`))
	}))
	defer server.Close()

	s := New(Config{Server: server.URL, Token: "secret"}, "run-42")
	defer func() { _ = s.Close() }()

	result := model.UpgradeResult{State: model.StatePtr(model.UpgradeStateSucceeded), TimestampMs: 10}
	if err := s.Put(context.Background(), "system-update", result); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if received.Proposal.EntityURN != "urn:li:dataHubUpgrade:system-update" {
		t.Errorf("unexpected urn %q", received.Proposal.EntityURN)
	}
	if received.Proposal.SystemMetadata == nil || received.Proposal.SystemMetadata.RunID != "run-42" {
		t.Errorf("Expected run id in system metadata, got %+v", received.Proposal.SystemMetadata)
	}
	decoded, err := received.Proposal.DecodeAspect()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !decoded.Equal(result) {
		t.Errorf("Expected %+v, got %+v", result, decoded)
	}
}

func TestStore_PutServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"bad aspect"}`))
	}))
	defer server.Close()

	s := New(Config{Server: server.URL}, "")
	err := s.Put(context.Background(), "u", model.UpgradeResult{TimestampMs: 1})
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("Expected status 400 error, got: %v", err)
	}
}

func TestStore_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/aspects/urn:li:dataHubUpgrade:") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("aspect") != model.UpgradeResultAspectName || r.URL.Query().Get("version") != "0" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/aspects/urn:li:dataHubUpgrade:known":
			_, _ = w.Write([]byte(`{"version":0,"aspect":{"com.linkedin.upgrade.DataHubUpgradeResult":{"state":"FAILED","timestampMs":77,"result":{"error":"boom"}}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	s := New(Config{Server: server.URL}, "")
	ctx := context.Background()

	got, err := s.Get(ctx, "known")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got.EffectiveState() != model.UpgradeStateFailed || got.TimestampMs != 77 || got.Result["error"] != "boom" {
		t.Errorf("unexpected result %+v", got)
	}

	_, err = s.Get(ctx, "unknown")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got: %v", err)
	}
}

func TestStore_Patch(t *testing.T) {
	var received ingestProposalRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := New(Config{Server: server.URL}, "")
	err := s.Patch(context.Background(), model.NewResultPatchBuilder("u").AddResult("k", "v"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if received.Proposal.ChangeType != model.ChangeTypePatch {
		t.Errorf("Expected PATCH proposal, got %q", received.Proposal.ChangeType)
	}
}

func newCapturingServer(t *testing.T, received *ingestProposalRequest) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, received); err != nil {
			t.Errorf("invalid body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestStore_PutRunIDFromContext(t *testing.T) {
	tests := []struct {
		name       string
		storeRunID string
		ctxRunID   string
		expected   string
	}{
		{"context run id", "", "run-7", "run-7"},
		{"context wins over store", "run-42", "run-7", "run-7"},
		{"store fallback", "run-42", "", "run-42"},
		{"no run id", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var received ingestProposalRequest
			server := newCapturingServer(t, &received)
			s := New(Config{Server: server.URL}, tt.storeRunID)
			defer func() { _ = s.Close() }()

			ctx := context.Background()
			if tt.ctxRunID != "" {
				ctx = store.WithRunID(ctx, tt.ctxRunID)
			}
			result := model.UpgradeResult{State: model.StatePtr(model.UpgradeStateInProgress), TimestampMs: 3}
			if err := s.Put(ctx, "system-update", result); err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}

			meta := received.Proposal.SystemMetadata
			if tt.expected == "" {
				if meta != nil {
					t.Errorf("Expected no system metadata, got %+v", meta)
				}
				return
			}
			if meta == nil || meta.RunID != tt.expected {
				t.Fatalf("Expected run id %q, got %+v", tt.expected, meta)
			}
			if meta.LastObserved <= 0 {
				t.Errorf("Expected lastObserved to be set, got %d", meta.LastObserved)
			}
		})
	}
}

func TestStore_PatchCarriesRunID(t *testing.T) {
	var received ingestProposalRequest
	server := newCapturingServer(t, &received)
	s := New(Config{Server: server.URL}, "")
	defer func() { _ = s.Close() }()

	ctx := store.WithRunID(context.Background(), "run-9")
	if err := s.Patch(ctx, model.NewResultPatchBuilder("u").RemoveResult("k")); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if received.Proposal.SystemMetadata == nil || received.Proposal.SystemMetadata.RunID != "run-9" {
		t.Errorf("Expected run id in system metadata, got %+v", received.Proposal.SystemMetadata)
	}
}
