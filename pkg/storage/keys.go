package storage

import (
	"strings"

	"github.com/leafmind/leafmind-go/pkg/memory"
)

// Key prefixes of the stable, opaque key encoding. Keys sort by prefix, so
// a prefix scan visits one record family.
const (
	PrefixConcept   = "concept:"
	PrefixShortTerm = "st_edge:"
	PrefixLongTerm  = "lt_edge:"
	PrefixWorking   = "working:"
	PrefixMeta      = "meta:"
	KeyConfig       = "config"
)

// Well-known meta record names.
const (
	MetaLastConsolidation = "last_consolidation"
	MetaSchemaVersion     = "schema_version"
)

// ConceptKey returns the storage key of a concept.
func ConceptKey(id memory.ConceptID) string {
	return PrefixConcept + id.String()
}

// EdgeKey returns the storage key of an edge in the given zone.
func EdgeKey(from, to memory.ConceptID, zone memory.Zone) string {
	prefix := PrefixShortTerm
	if zone == memory.ZoneLongTerm {
		prefix = PrefixLongTerm
	}
	return prefix + from.String() + ":" + to.String()
}

// WorkingKey returns the storage key of a working-memory entry.
func WorkingKey(id memory.ConceptID) string {
	return PrefixWorking + id.String()
}

// MetaKey returns the storage key of a named meta record.
func MetaKey(name string) string {
	return PrefixMeta + name
}

// ParseConceptKey extracts the concept ID from a concept key.
func ParseConceptKey(key string) (memory.ConceptID, bool) {
	s, ok := strings.CutPrefix(key, PrefixConcept)
	if !ok {
		return memory.ConceptID{}, false
	}
	id, err := memory.ParseConceptID(s)
	return id, err == nil
}

// ParseWorkingKey extracts the concept ID from a working-memory key.
func ParseWorkingKey(key string) (memory.ConceptID, bool) {
	s, ok := strings.CutPrefix(key, PrefixWorking)
	if !ok {
		return memory.ConceptID{}, false
	}
	id, err := memory.ParseConceptID(s)
	return id, err == nil
}

// ParseEdgeKey extracts the endpoint IDs and zone from an edge key.
func ParseEdgeKey(key string) (from, to memory.ConceptID, zone memory.Zone, ok bool) {
	var rest string
	switch {
	case strings.HasPrefix(key, PrefixShortTerm):
		rest = key[len(PrefixShortTerm):]
		zone = memory.ZoneShortTerm
	case strings.HasPrefix(key, PrefixLongTerm):
		rest = key[len(PrefixLongTerm):]
		zone = memory.ZoneLongTerm
	default:
		return from, to, zone, false
	}
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return from, to, zone, false
	}
	f, err := memory.ParseConceptID(parts[0])
	if err != nil {
		return from, to, zone, false
	}
	t, err := memory.ParseConceptID(parts[1])
	if err != nil {
		return from, to, zone, false
	}
	return f, t, zone, true
}
