package models

// EngineKind groups engines by data model.
type EngineKind string

const (
	KindRelational EngineKind = "relational"
	KindDocument   EngineKind = "document"
	KindKeyValue   EngineKind = "key_value"
)

// KindForEngine maps a configured engine name to its data model.
func KindForEngine(engine string) EngineKind {
	switch engine {
	case "mongodb":
		return KindDocument
	case "redis":
		return KindKeyValue
	default:
		return KindRelational
	}
}

// DatabaseDescriptor identifies one configured target database.
type DatabaseDescriptor struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Engine         string     `json:"engine"`
	Kind           EngineKind `json:"kind"`
	AllowMutations bool       `json:"allow_mutations"`
}

// SchemaEntryKind is the kind of object a schema entry describes.
type SchemaEntryKind string

const (
	EntryTable      SchemaEntryKind = "table"
	EntryView       SchemaEntryKind = "view"
	EntryCollection SchemaEntryKind = "collection"
	EntryIndex      SchemaEntryKind = "index"
	EntryKey        SchemaEntryKind = "key"
)

// SchemaColumn describes a column or document field.
type SchemaColumn struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Extra string `json:"extra,omitempty"` // "PK" or "FK -> table.column"
}

// SchemaEntry is one object in a database's schema.
type SchemaEntry struct {
	Name     string          `json:"name"`
	Kind     SchemaEntryKind `json:"kind"`
	Columns  []SchemaColumn  `json:"columns,omitempty"`
	Parent   string          `json:"parent,omitempty"`    // owning table of an index
	DataType string          `json:"data_type,omitempty"` // redis key type
}

// DatabaseSchema is one database's descriptor together with its entries.
// Error is set instead of Entries when discovery failed.
type DatabaseSchema struct {
	Name    string        `json:"name"`
	Engine  string        `json:"engine"`
	Kind    EngineKind    `json:"kind"`
	Entries []SchemaEntry `json:"entries"`
	Error   string        `json:"error,omitempty"`
}
