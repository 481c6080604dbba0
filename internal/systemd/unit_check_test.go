package systemd

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zeebo/blake3"
)

func TestCheckUnitFileIntegrityNoUnitFile(t *testing.T) {
	msg := CheckUnitFileIntegrity("/nonexistent/path.service", filepath.Join(t.TempDir(), "hash"))
	if msg != "" {
		t.Errorf("expected empty message when no unit file, got %q", msg)
	}
}

func TestCheckUnitFileIntegrityNoStoredHash(t *testing.T) {
	tmpDir := t.TempDir()
	unitFile := filepath.Join(tmpDir, "fieldguard.service")
	os.WriteFile(unitFile, []byte("[Unit]\nDescription=test\n"), 0644)

	msg := CheckUnitFileIntegrity(unitFile, filepath.Join(tmpDir, "unit-file.blake3"))
	if msg != "" {
		t.Errorf("expected empty message when no stored hash, got %q", msg)
	}
}

func TestCheckUnitFileIntegrityMatch(t *testing.T) {
	tmpDir := t.TempDir()
	content := []byte("[Unit]\nDescription=test\n")
	unitFile := filepath.Join(tmpDir, "fieldguard.service")
	os.WriteFile(unitFile, content, 0644)

	h := blake3.Sum256(content)
	hashFile := filepath.Join(tmpDir, "unit-file.blake3")
	os.WriteFile(hashFile, []byte(hex.EncodeToString(h[:])+"\n"), 0600)

	msg := CheckUnitFileIntegrity(unitFile, hashFile)
	if msg != "" {
		t.Errorf("expected empty message for matching hash, got %q", msg)
	}
}

func TestCheckUnitFileIntegrityMismatch(t *testing.T) {
	tmpDir := t.TempDir()
	unitFile := filepath.Join(tmpDir, "fieldguard.service")
	os.WriteFile(unitFile, []byte("[Unit]\nDescription=modified\n"), 0644)

	hashFile := filepath.Join(tmpDir, "unit-file.blake3")
	os.WriteFile(hashFile, []byte(strings.Repeat("a", 64)+"\n"), 0600)

	msg := CheckUnitFileIntegrity(unitFile, hashFile)
	if msg == "" {
		t.Fatal("expected warning for modified unit file, got empty")
	}
	if !strings.Contains(msg, "modified since installation") {
		t.Errorf("expected modification warning, got %q", msg)
	}
}

func TestRecordUnitFileHashRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	unitFile := filepath.Join(tmpDir, "fieldguard.service")
	os.WriteFile(unitFile, []byte(AgentTemplate("/usr/local/bin/fieldguard", "/etc/fieldguard/agent.yaml")), 0644)
	hashFile := filepath.Join(tmpDir, "unit-file.blake3")

	if err := RecordUnitFileHash(unitFile, hashFile); err != nil {
		t.Fatalf("RecordUnitFileHash: %v", err)
	}
	if msg := CheckUnitFileIntegrity(unitFile, hashFile); msg != "" {
		t.Errorf("freshly recorded hash should match, got %q", msg)
	}

	os.WriteFile(unitFile, []byte("[Service]\nRestart=always\n"), 0644)
	if msg := CheckUnitFileIntegrity(unitFile, hashFile); msg == "" {
		t.Error("expected warning after tampering")
	}
}

func TestRecordUnitFileHashNoUnit(t *testing.T) {
	err := RecordUnitFileHash("/nonexistent/path.service", filepath.Join(t.TempDir(), "hash"))
	if err == nil {
		t.Error("expected error when no unit file exists")
	}
}
