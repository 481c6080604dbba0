package systemd

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// DefaultUnitHashPath is where the install-time digest of the unit file
// is stored.
const DefaultUnitHashPath = "/etc/fieldguard/unit-file.blake3"

// CheckUnitFileIntegrity compares the current unit file digest against the
// stored install-time digest. Returns a warning message if the unit file
// has been modified, or empty string if integrity is confirmed or
// checking is not applicable (no unit file or no stored digest).
func CheckUnitFileIntegrity(unitPath, hashPath string) string {
	if _, err := os.Stat(unitPath); err != nil {
		return ""
	}

	stored, err := os.ReadFile(hashPath)
	if err != nil {
		return ""
	}
	expected := strings.TrimSpace(string(stored))
	if len(expected) != 64 {
		return ""
	}

	actual, err := fileDigest(unitPath)
	if err != nil {
		return fmt.Sprintf("cannot read unit file %s: %v", unitPath, err)
	}
	if actual == expected {
		return ""
	}

	return fmt.Sprintf("systemd unit file %s has been modified since installation (expected %s, got %s)",
		unitPath, expected[:16], actual[:16])
}

// RecordUnitFileHash writes the digest of unitPath to hashPath.
// Called during installation to record the baseline.
func RecordUnitFileHash(unitPath, hashPath string) error {
	digest, err := fileDigest(unitPath)
	if err != nil {
		return fmt.Errorf("systemd: hash unit file: %w", err)
	}
	return os.WriteFile(hashPath, []byte(digest+"\n"), 0600)
}

func fileDigest(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
