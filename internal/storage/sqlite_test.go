package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/anomalyscope/anomalyscope-go/internal/report"
)

// testCard builds a card with the given severity and timestamp.
func testCard(severity string, ts time.Time) *report.Card {
	return &report.Card{
		ID:          "OPENAI-vs-ANTHROPIC-DIVERGENCE",
		Description: "Cross-provider drift on prompt with runs=3, temp=0.9. cross_similarity=0.412.",
		Severity:    severity,
		Timestamp:   ts.UTC().Format(time.RFC3339),
		Meta: map[string]interface{}{
			"cross_similarity": 0.412,
			"prompt":           "Explain drift detection in one sentence.",
			"threshold":        0.85,
		},
	}
}

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	storage, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer func() { _ = storage.Close() }()

	if storage.db == nil {
		t.Fatal("Expected database connection to be initialized")
	}
}

func TestNewCreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	storage, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer func() { _ = storage.Close() }()

	if storage == nil {
		t.Fatal("Expected storage to be created with nested directories")
	}
}

func TestSaveCard(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	storage, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer func() { _ = storage.Close() }()

	id, err := storage.SaveCard(testCard("high", time.Now()))
	if err != nil {
		t.Fatalf("Failed to save card: %v", err)
	}

	if id == 0 {
		t.Error("Expected non-zero row ID after save")
	}
}

func TestSaveAndRetrieveCard(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	storage, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer func() { _ = storage.Close() }()

	original := testCard("medium", time.Now().Truncate(time.Second))
	if _, err := storage.SaveCard(original); err != nil {
		t.Fatalf("Failed to save card: %v", err)
	}

	records, err := storage.GetRecentCards(1)
	if err != nil {
		t.Fatalf("Failed to retrieve records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	got := records[0]
	if got.CardID != original.ID {
		t.Errorf("CardID mismatch: got %s, want %s", got.CardID, original.ID)
	}
	if got.Severity != original.Severity {
		t.Errorf("Severity mismatch: got %s, want %s", got.Severity, original.Severity)
	}
	if got.Description != original.Description {
		t.Errorf("Description mismatch: got %s, want %s", got.Description, original.Description)
	}
	if got.CrossSimilarity != 0.412 {
		t.Errorf("CrossSimilarity mismatch: got %.3f, want 0.412", got.CrossSimilarity)
	}
	if got.Timestamp.UTC().Format(time.RFC3339) != original.Timestamp {
		t.Errorf("Timestamp mismatch: got %s, want %s", got.Timestamp.UTC().Format(time.RFC3339), original.Timestamp)
	}

	// Meta round-trips through JSON
	if prompt, ok := got.Meta["prompt"].(string); !ok || prompt != "Explain drift detection in one sentence." {
		t.Error("Meta not restored correctly")
	}
}

func TestGetRecentCards(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	storage, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer func() { _ = storage.Close() }()

	now := time.Now()
	for _, age := range []int{1, 5, 10} {
		if _, err := storage.SaveCard(testCard("low", now.AddDate(0, 0, -age))); err != nil {
			t.Fatalf("Failed to save card: %v", err)
		}
	}

	recent, err := storage.GetRecentCards(7)
	if err != nil {
		t.Fatalf("Failed to get recent cards: %v", err)
	}

	if len(recent) != 2 {
		t.Errorf("Expected 2 recent records (last 7 days), got %d", len(recent))
	}

	// Verify they're sorted by timestamp DESC
	if len(recent) > 1 && recent[0].Timestamp.Before(recent[1].Timestamp) {
		t.Error("Records should be sorted by timestamp DESC")
	}
}

func TestCleanupOldCards(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	storage, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer func() { _ = storage.Close() }()

	now := time.Now()
	if _, err := storage.SaveCard(testCard("low", now.AddDate(0, 0, -5))); err != nil {
		t.Fatalf("Failed to save card: %v", err)
	}
	if _, err := storage.SaveCard(testCard("high", now.AddDate(0, 0, -100))); err != nil {
		t.Fatalf("Failed to save card: %v", err)
	}

	affected, err := storage.CleanupOldCards(90)
	if err != nil {
		t.Fatalf("Failed to cleanup old cards: %v", err)
	}

	if affected != 1 {
		t.Errorf("Expected 1 record to be deleted, got %d", affected)
	}

	remaining, err := storage.GetRecentCards(365)
	if err != nil {
		t.Fatalf("Failed to get records: %v", err)
	}

	if len(remaining) != 1 {
		t.Errorf("Expected 1 record remaining, got %d", len(remaining))
	}

	if remaining[0].Severity != "low" {
		t.Error("Wrong record was deleted")
	}
}

func TestCleanupOldCards_NoData(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	storage, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer func() { _ = storage.Close() }()

	affected, err := storage.CleanupOldCards(90)
	if err != nil {
		t.Fatalf("Failed to cleanup: %v", err)
	}

	if affected != 0 {
		t.Errorf("Expected 0 rows affected, got %d", affected)
	}
}

func TestGetStatistics(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	storage, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer func() { _ = storage.Close() }()

	now := time.Now()
	for _, severity := range []string{"low", "low", "high"} {
		if _, err := storage.SaveCard(testCard(severity, now)); err != nil {
			t.Fatalf("Failed to save card: %v", err)
		}
	}

	stats, err := storage.GetStatistics()
	if err != nil {
		t.Fatalf("Failed to get statistics: %v", err)
	}

	total, ok := stats["total_anomalies"].(int)
	if !ok {
		t.Fatal("Expected total_anomalies to be int")
	}
	if total != 3 {
		t.Errorf("Expected 3 total anomalies, got %d", total)
	}

	severityDist, ok := stats["severity_distribution"].(map[string]int)
	if !ok {
		t.Fatal("Expected severity_distribution to be map[string]int")
	}
	if severityDist["low"] != 2 {
		t.Errorf("Expected 2 low records, got %d", severityDist["low"])
	}
	if severityDist["high"] != 1 {
		t.Errorf("Expected 1 high record, got %d", severityDist["high"])
	}

	avgCrossSim, ok := stats["avg_cross_similarity"].(float64)
	if !ok {
		t.Fatal("Expected avg_cross_similarity to be float64")
	}
	if avgCrossSim < 0.41 || avgCrossSim > 0.42 {
		t.Errorf("Expected avg cross similarity near 0.412, got %.4f", avgCrossSim)
	}
}

func TestGetStatistics_Empty(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	storage, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer func() { _ = storage.Close() }()

	stats, err := storage.GetStatistics()
	if err != nil {
		t.Fatalf("Failed to get statistics: %v", err)
	}

	total, ok := stats["total_anomalies"].(int)
	if !ok {
		t.Fatal("Expected total_anomalies to be int")
	}
	if total != 0 {
		t.Errorf("Expected 0 anomalies, got %d", total)
	}
}

func TestClose(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	storage, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	if err := storage.Close(); err != nil {
		t.Errorf("Failed to close storage: %v", err)
	}

	// Second close should not error
	if err := storage.Close(); err != nil {
		t.Errorf("Second close should not error: %v", err)
	}
}
