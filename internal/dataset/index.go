package dataset

// Match locates a labeled example inside the loaded groups.
type Match struct {
	Group   *Group
	Example *Example
}

// VariantIndex maps normalized paraphrase variants to the first example that
// declares them, scanning groups and examples in file order. Later examples
// sharing a variant are never returned.
type VariantIndex struct {
	byVariant map[string]Match
}

func NewVariantIndex(groups []Group) *VariantIndex {
	index := &VariantIndex{byVariant: make(map[string]Match)}
	for gi := range groups {
		group := &groups[gi]
		for ei := range group.Examples {
			example := &group.Examples[ei]
			for _, variation := range example.Variations {
				key := Normalize(variation)
				if _, seen := index.byVariant[key]; seen {
					continue
				}
				index.byVariant[key] = Match{Group: group, Example: example}
			}
		}
	}
	return index
}

func (i *VariantIndex) Lookup(nl string) (Match, bool) {
	match, ok := i.byVariant[Normalize(nl)]
	return match, ok
}

func (i *VariantIndex) Len() int {
	return len(i.byVariant)
}

// MatchesVariation reports whether nl equals any of variations once both
// sides are normalized.
func MatchesVariation(nl string, variations []string) bool {
	key := Normalize(nl)
	for _, variation := range variations {
		if Normalize(variation) == key {
			return true
		}
	}
	return false
}
