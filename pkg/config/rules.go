package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EnumRule is one value category of an enum column: the literal variants that
// all resolve to the same canonical bucket.
type EnumRule struct {
	Equals   []string `yaml:"equals"`
	Prefix   []string `yaml:"prefix"`
	Contains []string `yaml:"contains"`
}

// PlannerRules are the data-driven tables behind the planner: which columns
// may be filtered, how alias columns fan out, which columns full-text search
// scans, and how free-text phrases and enum values map to canonical names.
// Every field has a compiled-in default; a rules file overrides per field
// (an overridden field replaces its default entirely, it is not merged).
type PlannerRules struct {
	// ExplicitFilterColumns is the allow-list for equality filters.
	ExplicitFilterColumns []string `yaml:"explicit_filter_columns"`

	// AliasColumns maps a logical column token onto the physical columns it
	// expands to (e.g. STAKEHOLDER -> the eight stakeholder slots).
	AliasColumns map[string][]string `yaml:"alias_columns"`

	// FTSColumns maps a table name onto its full-text columns; "*" is the
	// wildcard fallback.
	FTSColumns map[string][]string `yaml:"fts_columns"`

	// ColumnSynonyms maps normalized free-text phrases onto canonical
	// column names.
	ColumnSynonyms map[string]string `yaml:"column_synonyms"`

	// EnumSynonyms maps "Table.COLUMN" onto its value categories.
	EnumSynonyms map[string]map[string]EnumRule `yaml:"enum_synonyms"`
}

// DefaultRules returns the compiled-in rule tables for the Contract table.
func DefaultRules() PlannerRules {
	return PlannerRules{
		ExplicitFilterColumns: []string{
			"CONTRACT_STATUS",
			"REQUEST_TYPE",
			"ENTITY",
			"ENTITY_NO",
			"OWNER_DEPARTMENT",
			"DEPARTMENT_OUL",
			"CONTRACT_OWNER",
			"CONTRACT_ID",
			"CONTRACT_STAKEHOLDER_1",
			"CONTRACT_STAKEHOLDER_2",
			"CONTRACT_STAKEHOLDER_3",
			"CONTRACT_STAKEHOLDER_4",
			"CONTRACT_STAKEHOLDER_5",
			"CONTRACT_STAKEHOLDER_6",
			"CONTRACT_STAKEHOLDER_7",
			"CONTRACT_STAKEHOLDER_8",
			"REQUESTER",
			"LEGAL_NAME_OF_THE_COMPANY",
		},
		AliasColumns: map[string][]string{
			"STAKEHOLDER": {
				"CONTRACT_STAKEHOLDER_1",
				"CONTRACT_STAKEHOLDER_2",
				"CONTRACT_STAKEHOLDER_3",
				"CONTRACT_STAKEHOLDER_4",
				"CONTRACT_STAKEHOLDER_5",
				"CONTRACT_STAKEHOLDER_6",
				"CONTRACT_STAKEHOLDER_7",
				"CONTRACT_STAKEHOLDER_8",
			},
			"DEPARTMENT": {"OWNER_DEPARTMENT", "DEPARTMENT_OUL"},
		},
		FTSColumns: map[string][]string{
			"Contract": {"CONTRACT_SUBJECT", "CONTRACT_PURPOSE"},
			"*":        {"CONTRACT_SUBJECT", "CONTRACT_PURPOSE"},
		},
		ColumnSynonyms: map[string]string{
			"OWNER DEPARTMENT": "OWNER_DEPARTMENT",
			"DEPARTMENT":       "OWNER_DEPARTMENT",
			"DEPARTMENT OUL":   "DEPARTMENT_OUL",
			"MANAGER":          "DEPARTMENT_OUL",
			"OUL":              "DEPARTMENT_OUL",
			"CONTRACT OWNER":   "CONTRACT_OWNER",
			"OWNER":            "CONTRACT_OWNER",
			"STAKEHOLDER":      "CONTRACT_STAKEHOLDER_1",
			"STATUS":           "CONTRACT_STATUS",
			"CONTRACT STATUS":  "CONTRACT_STATUS",
			"ENTITY":           "ENTITY",
			"ENTITY NO":        "ENTITY_NO",
			"ENTITY NUMBER":    "ENTITY_NO",
			"REQUEST TYPE":     "REQUEST_TYPE",
			"REQUEST DATE":     "REQUEST_DATE",
			"START DATE":       "START_DATE",
			"END DATE":         "END_DATE",
			"EXPIRY DATE":      "END_DATE",
			"SUBJECT":          "CONTRACT_SUBJECT",
			"PURPOSE":          "CONTRACT_PURPOSE",
			"NET":              "CONTRACT_VALUE_NET_OF_VAT",
			"NET VALUE":        "CONTRACT_VALUE_NET_OF_VAT",
			"CONTRACT VALUE":   "CONTRACT_VALUE_NET_OF_VAT",
		},
		EnumSynonyms: map[string]map[string]EnumRule{
			"Contract.REQUEST_TYPE": {
				"renewal": {
					Equals:   []string{"Renewal", "Renew", "Renewed", "Renew Contract"},
					Prefix:   []string{"renew"},
					Contains: []string{"extension"},
				},
				"new contract": {
					Equals: []string{"New Contract", "New"},
					Prefix: []string{"new"},
				},
				"addendum": {
					Equals:   []string{"Addendum", "Amendment"},
					Contains: []string{"appendix"},
				},
			},
			"Contract.CONTRACT_STATUS": {
				"active": {
					Equals: []string{"Active", "In Force"},
					Prefix: []string{"activ"},
				},
				"expired": {
					Equals:   []string{"Expired", "Ended"},
					Prefix:   []string{"expir"},
					Contains: []string{"terminated"},
				},
			},
		},
	}
}

// LoadRules returns the rule tables, applying overrides from path when it is
// non-empty. A field present in the file wins over its default.
func LoadRules(path string) (PlannerRules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("failed to read rules file: %w", err)
	}

	var override PlannerRules
	if err := yaml.Unmarshal(data, &override); err != nil {
		return rules, fmt.Errorf("failed to parse rules file: %w", err)
	}

	if len(override.ExplicitFilterColumns) > 0 {
		rules.ExplicitFilterColumns = override.ExplicitFilterColumns
	}
	if len(override.AliasColumns) > 0 {
		rules.AliasColumns = override.AliasColumns
	}
	if len(override.FTSColumns) > 0 {
		rules.FTSColumns = override.FTSColumns
	}
	if len(override.ColumnSynonyms) > 0 {
		rules.ColumnSynonyms = override.ColumnSynonyms
	}
	if len(override.EnumSynonyms) > 0 {
		rules.EnumSynonyms = override.EnumSynonyms
	}
	return rules, nil
}
