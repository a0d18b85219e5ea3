package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// defaultSchemaVersion is used when no source manifest carries one (§6.2).
const defaultSchemaVersion = 14

// manifestTimeLayout matches the ISO-8601-with-numeric-offset format the
// reference application writes, e.g. "2024-06-03T12:34:56+0200".
const manifestTimeLayout = "2006-01-02T15:04:05-0700"

// Manifest is the manifest.json schema from §6.2.
type Manifest struct {
	Name           string         `json:"name"`
	CreationDate   string         `json:"creationDate"`
	Version        int            `json:"version"`
	Type           int            `json:"type"`
	UserDataBackup UserDataBackup `json:"userDataBackup"`
}

// UserDataBackup is the nested userDataBackup object of the manifest.
type UserDataBackup struct {
	LastModifiedDate string `json:"lastModifiedDate"`
	DatabaseName     string `json:"databaseName"`
	DeviceName       string `json:"deviceName"`
	Hash             string `json:"hash"`
	SchemaVersion    int    `json:"schemaVersion"`
}

// ErrBadManifest is returned when a manifest cannot be parsed or omits a
// required field (§7, BadManifest).
type ErrBadManifest struct {
	Reason string
}

func (e *ErrBadManifest) Error() string {
	return fmt.Sprintf("bad manifest: %s", e.Reason)
}

// ParseManifest decodes and validates a manifest.json blob.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, &ErrBadManifest{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if m.UserDataBackup.DatabaseName == "" {
		return Manifest{}, &ErrBadManifest{Reason: "missing userDataBackup.databaseName"}
	}
	return m, nil
}

// BuildManifest composes the output manifest for a merged archive (§6.2,
// §4.8 step 8). schemaVersion should come from the first source's
// manifest when available, else defaultSchemaVersion. now is passed in by
// the caller (internal/merge.Run passes time.Now()), so this function
// never reads the clock itself and its output depends only on its
// arguments.
func BuildManifest(deviceName string, schemaVersion int, databaseBytes []byte, now time.Time) Manifest {
	if schemaVersion <= 0 {
		schemaVersion = defaultSchemaVersion
	}

	titleCaser := cases.Title(language.English)
	displayName := titleCaser.String(deviceName)

	sum := sha256.Sum256(databaseBytes)
	stamp := now.Format(manifestTimeLayout)

	return Manifest{
		Name:         displayName,
		CreationDate: stamp,
		Version:      1,
		Type:         0,
		UserDataBackup: UserDataBackup{
			LastModifiedDate: stamp,
			DatabaseName:     "userData.db",
			DeviceName:       displayName,
			Hash:             hex.EncodeToString(sum[:]),
			SchemaVersion:    schemaVersion,
		},
	}
}

// Bytes marshals the manifest to its JSON wire form.
func (m Manifest) Bytes() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return b, nil
}
