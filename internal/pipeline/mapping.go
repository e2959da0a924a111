package pipeline

import (
	"strings"
)

// Canonical field names every source schema is mapped into.
const (
	FieldDate    = "date"
	FieldPartner = "partner"
	FieldAmount  = "amount"
)

// CanonicalFields lists the canonical fields in schema order.
var CanonicalFields = []string{FieldDate, FieldPartner, FieldAmount}

// MappingConfig drives header auto-detection for one source file.
// Synonyms maps each canonical field to the header spellings that resolve to
// it (case-insensitive exact match). Fallback is the operator-supplied
// source-header → canonical-field mapping used when no synonym matches.
type MappingConfig struct {
	Synonyms map[string][]string
	Fallback map[string]string
}

// DefaultMappingConfig returns the built-in synonym table with no fallback.
func DefaultMappingConfig() MappingConfig {
	return MappingConfig{
		Synonyms: map[string][]string{
			FieldDate:    {"date", "fecha", "date_time", "fechahora", "fch"},
			FieldPartner: {"partner", "cliente", "partner_name", "proveedor"},
			FieldAmount:  {"amount", "importe", "total_amount", "sales"},
		},
	}
}

// WithFallback returns a copy of the config with the given fallback mapping.
func (c MappingConfig) WithFallback(fallback map[string]string) MappingConfig {
	c.Fallback = fallback
	return c
}

// MapColumns resolves raw headers to canonical fields. For each canonical
// field the first synonym present among the headers wins; failing that, a
// fallback entry naming a present, still unclaimed header is used. The
// returned mapping goes source header → canonical field, with at most one
// source per field. missing lists the canonical fields left unresolved,
// which is a warning for the caller, not an error.
func MapColumns(headers []string, cfg MappingConfig) (mapping map[string]string, missing []string) {
	trimmed := make([]string, len(headers))
	lowToOrig := make(map[string]string, len(headers))
	for i, h := range headers {
		trimmed[i] = strings.TrimSpace(h)
		low := strings.ToLower(trimmed[i])
		if _, ok := lowToOrig[low]; !ok {
			lowToOrig[low] = trimmed[i]
		}
	}

	mapping = make(map[string]string)
	claimed := make(map[string]bool)

	for _, field := range CanonicalFields {
		for _, syn := range cfg.Synonyms[field] {
			if orig, ok := lowToOrig[strings.ToLower(syn)]; ok && !claimed[orig] {
				mapping[orig] = field
				claimed[orig] = true
				break
			}
		}
	}

	for _, field := range CanonicalFields {
		if hasTarget(mapping, field) {
			continue
		}
		// Scan headers in file order so resolution stays deterministic.
		for _, h := range trimmed {
			if cfg.Fallback[h] == field && !claimed[h] {
				mapping[h] = field
				claimed[h] = true
				break
			}
		}
	}

	for _, field := range CanonicalFields {
		if !hasTarget(mapping, field) {
			missing = append(missing, field)
		}
	}
	return mapping, missing
}

func hasTarget(mapping map[string]string, field string) bool {
	for _, tgt := range mapping {
		if tgt == field {
			return true
		}
	}
	return false
}
