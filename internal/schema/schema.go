package schema

import "fmt"

// IdentityRule is an ordered list of column names whose joint value
// defines "the same row semantically" for a table. A table may declare
// several alternative rules; they are evaluated in declared order and the
// first match wins (§4.6).
type IdentityRule []string

// ForeignKey is a (column, referenced table) pair.
type ForeignKey struct {
	Column        string
	ReferredTable string
}

// TableSpec is the static declaration for one table.
type TableSpec struct {
	// Name is the table name as it appears in the source database.
	Name string
	// PrimaryKey is the integer surrogate column name. Empty for tables
	// with no surrogate key (LastModified, MigrationHistory), which are
	// merged by row content alone and never participate in FK rewriting.
	PrimaryKey string
	// IdentityRules lists alternative rules in evaluation order.
	IdentityRules []IdentityRule
	// ForeignKeys lists this table's outgoing references.
	ForeignKeys []ForeignKey
	// SimpleID marks tables that use the per-source increasing-offset
	// primary-key strategy (§4.6.2) rather than the next-free-id search
	// used by composite/GUID-identity tables.
	SimpleID bool
}

// HasPrimaryKey reports whether rows of this table carry a surrogate
// integer primary key at all.
func (t TableSpec) HasPrimaryKey() bool {
	return t.PrimaryKey != ""
}

// mepsLanguageColumn is the column that needs null-or-zero normalization
// wherever it appears in an identity rule (§3.2, §4.3).
const mepsLanguageColumn = "MepsLanguage"

// locationTable is handled by internal/locationmerge, not the generic
// row merger, because its identity rule is conditional on row content
// (§4.5). It still needs an entry here so FK rewriting of its referrers
// can look up its primary key column.
const locationTable = "Location"

// DependencyOrder is the canonical merge order from §3.3: referenced
// tables before referrers. Location is first among the "real" tables but
// is merged by its own specialized pass (internal/locationmerge) before
// this list is walked by the generic row merger.
var DependencyOrder = []TableSpec{
	{
		Name: "LastModified",
		IdentityRules: []IdentityRule{
			{"ContentLanguage", "LastModified"},
		},
		SimpleID: true,
	},
	{
		Name: "MigrationHistory",
		PrimaryKey: "",
		IdentityRules: []IdentityRule{
			{"DatabaseVersion"},
		},
	},
	{
		Name:       "Accuracy",
		PrimaryKey: "AccuracyId",
		IdentityRules: []IdentityRule{
			{"Description"},
		},
	},
	{
		Name:       locationTable,
		PrimaryKey: "LocationId",
		// Location's identity is conditional (§4.5); the rule list here
		// is descriptive only — internal/locationmerge does not consult it.
		IdentityRules: []IdentityRule{
			{"BookNumber", "ChapterNumber", "KeySymbol", mepsLanguageColumn, "Type"},
			{"KeySymbol", "IssueTagNumber", mepsLanguageColumn, "DocumentId", "Track", "Type"},
		},
	},
	{
		Name:       "Tag",
		PrimaryKey: "TagId",
		IdentityRules: []IdentityRule{
			{"Type", "Name"},
		},
	},
	{
		Name:       "Media",
		PrimaryKey: "MediaId",
		IdentityRules: []IdentityRule{
			{"FilePath"},
		},
	},
	{
		Name:       "Mark",
		PrimaryKey: "UserMarkId",
		IdentityRules: []IdentityRule{
			{"UserMarkGuid"},
		},
		ForeignKeys: []ForeignKey{
			{Column: "LocationId", ReferredTable: locationTable},
		},
	},
	{
		Name:       "Item",
		PrimaryKey: "PlaylistItemId",
		IdentityRules: []IdentityRule{
			{"Label", "ThumbnailFilePath"},
		},
		ForeignKeys: []ForeignKey{
			{Column: "AccuracyId", ReferredTable: "Accuracy"},
			{Column: "MediaId", ReferredTable: "Media"},
		},
	},
	{
		Name:       "Bookmark",
		PrimaryKey: "BookmarkId",
		IdentityRules: []IdentityRule{
			{"LocationId", "PublicationLocationId"},
		},
		ForeignKeys: []ForeignKey{
			{Column: "LocationId", ReferredTable: locationTable},
			{Column: "PublicationLocationId", ReferredTable: locationTable},
		},
	},
	{
		Name:       "Note",
		PrimaryKey: "NoteId",
		IdentityRules: []IdentityRule{
			{"Guid"},
		},
		ForeignKeys: []ForeignKey{
			{Column: "UserMarkId", ReferredTable: "Mark"},
			{Column: "LocationId", ReferredTable: locationTable},
		},
	},
	{
		Name:       "BlockRange",
		PrimaryKey: "BlockRangeId",
		IdentityRules: []IdentityRule{
			{"BlockType", "Identifier", "StartToken", "EndToken", "UserMarkId"},
		},
		ForeignKeys: []ForeignKey{
			{Column: "UserMarkId", ReferredTable: "Mark"},
		},
		SimpleID: true,
	},
	{
		Name:       "ItemMarker",
		PrimaryKey: "PlaylistItemMarkerId",
		IdentityRules: []IdentityRule{
			{"PlaylistItemId", "StartTimeTicks"},
		},
		ForeignKeys: []ForeignKey{
			{Column: "PlaylistItemId", ReferredTable: "Item"},
		},
	},
	{
		Name:       "ItemLocationMap",
		PrimaryKey: "ItemLocationMapId",
		IdentityRules: []IdentityRule{
			{"PlaylistItemId", "LocationId"},
		},
		ForeignKeys: []ForeignKey{
			{Column: "PlaylistItemId", ReferredTable: "Item"},
			{Column: "LocationId", ReferredTable: locationTable},
		},
	},
	{
		Name:       "ItemMediaMap",
		PrimaryKey: "ItemMediaMapId",
		IdentityRules: []IdentityRule{
			{"PlaylistItemId", "MediaId"},
		},
		ForeignKeys: []ForeignKey{
			{Column: "PlaylistItemId", ReferredTable: "Item"},
			{Column: "MediaId", ReferredTable: "Media"},
		},
	},
	{
		Name:       "TagMap",
		PrimaryKey: "TagMapId",
		IdentityRules: []IdentityRule{
			{"TagId", "Position"},
			{"TagId", "LocationId"},
			{"TagId", "NoteId"},
		},
		ForeignKeys: []ForeignKey{
			{Column: "TagId", ReferredTable: "Tag"},
			{Column: "PlaylistItemId", ReferredTable: "Item"},
			{Column: "LocationId", ReferredTable: locationTable},
			{Column: "NoteId", ReferredTable: "Note"},
		},
	},
	{
		Name:       "MarkerBibleVerseMap",
		PrimaryKey: "MarkerBibleVerseMapId",
		IdentityRules: []IdentityRule{
			{"PlaylistItemMarkerId", "VerseId"},
		},
		ForeignKeys: []ForeignKey{
			{Column: "PlaylistItemMarkerId", ReferredTable: "ItemMarker"},
		},
	},
	{
		Name:       "MarkerParagraphMap",
		PrimaryKey: "MarkerParagraphMapId",
		IdentityRules: []IdentityRule{
			{"PlaylistItemMarkerId", "MepsDocumentId", "ParagraphIndex"},
		},
		ForeignKeys: []ForeignKey{
			{Column: "PlaylistItemMarkerId", ReferredTable: "ItemMarker"},
		},
	},
	{
		Name:       "InputField",
		PrimaryKey: "InputFieldId",
		IdentityRules: []IdentityRule{
			{"LocationId", "TextTag", "Value"},
		},
		ForeignKeys: []ForeignKey{
			{Column: "LocationId", ReferredTable: locationTable},
		},
		SimpleID: true,
	},
}

var byName = buildIndex()

func buildIndex() map[string]TableSpec {
	m := make(map[string]TableSpec, len(DependencyOrder))
	for _, t := range DependencyOrder {
		m[t.Name] = t
	}
	return m
}

// Lookup returns the declared spec for a table name. ok is false for
// tables present in the database but absent from the catalogue; callers
// fall back to a generic row-content rule for those (§3.3).
func Lookup(name string) (TableSpec, bool) {
	t, ok := byName[name]
	return t, ok
}

// GenericSpec builds a fallback spec for an unknown table, identified by
// the full set of its non-key columns (row-content identity, §3.3).
func GenericSpec(name string, columns []string) TableSpec {
	return TableSpec{
		Name:          name,
		IdentityRules: []IdentityRule{columns},
		SimpleID:      true,
	}
}

// NormalizeMepsLanguage canonicalizes a MepsLanguage value per §3.2/§4.3:
// null or zero both canonicalize to "0".
func NormalizeMepsLanguage(v any) string {
	if v == nil {
		return "0"
	}
	switch n := v.(type) {
	case int64:
		if n == 0 {
			return "0"
		}
		return fmt.Sprintf("%d", n)
	case float64:
		if n == 0 {
			return "0"
		}
		return fmt.Sprintf("%d", int64(n))
	default:
		s := fmt.Sprintf("%v", n)
		if s == "0" || s == "" {
			return "0"
		}
		return s
	}
}

// Signature computes the canonical stringification of a rule's columns
// against a row, per §4.3: NULL for a null value, else the textual
// representation, joined with "|". MepsLanguage is normalized via
// NormalizeMepsLanguage wherever it appears in the rule.
func Signature(rule IdentityRule, row map[string]any) string {
	parts := make([]string, len(rule))
	for i, col := range rule {
		v, present := row[col]
		if col == mepsLanguageColumn {
			parts[i] = NormalizeMepsLanguage(v)
			continue
		}
		if !present || v == nil {
			parts[i] = "NULL"
			continue
		}
		parts[i] = fmt.Sprintf("%v", v)
	}
	return join(parts, "|")
}

func join(parts []string, sep string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += sep + p
	}
	return out
}
