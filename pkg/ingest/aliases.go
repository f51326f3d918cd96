package ingest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AliasMap maps the inconsistent manufacturer spellings found across export
// years onto canonical names. Lookup is case-insensitive.
type AliasMap struct {
	canonical map[string]string
}

// aliasFile is the YAML shape: canonical name -> list of spellings.
//
//	aliases:
//	  "HERO MOTOCORP LTD":
//	    - "HERO MOTOCORP LTD."
//	    - "Hero Motocorp Limited"
type aliasFile struct {
	Aliases map[string][]string `yaml:"aliases"`
}

// LoadAliases reads an alias YAML file. A missing path returns an empty map
// rather than an error so the alias file stays optional.
func LoadAliases(path string) (*AliasMap, error) {
	if path == "" {
		return &AliasMap{canonical: map[string]string{}}, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &AliasMap{canonical: map[string]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read alias file: %w", err)
	}
	return ParseAliases(data)
}

// ParseAliases builds an AliasMap from YAML bytes.
func ParseAliases(data []byte) (*AliasMap, error) {
	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse alias file: %w", err)
	}

	canonical := make(map[string]string)
	for canon, spellings := range f.Aliases {
		for _, s := range spellings {
			canonical[strings.ToUpper(strings.TrimSpace(s))] = canon
		}
	}
	return &AliasMap{canonical: canonical}, nil
}

// Resolve returns the canonical name for a spelling, or the input unchanged
// when no alias matches.
func (a *AliasMap) Resolve(name string) string {
	if canon, ok := a.canonical[strings.ToUpper(name)]; ok {
		return canon
	}
	return name
}

// Len returns the number of alias spellings loaded.
func (a *AliasMap) Len() int {
	return len(a.canonical)
}
