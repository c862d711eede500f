package model

// Submission is one survey response after cleanup.
type Submission struct {
	Handle      string
	Rarities    []int
	Communities []string
}

// HasRarity reports whether the respondent entered data for rarity r.
func (s Submission) HasRarity(r int) bool {
	for _, v := range s.Rarities {
		if v == r {
			return true
		}
	}
	return false
}

// HasCommunity reports whether the respondent named community c as a source.
func (s Submission) HasCommunity(c string) bool {
	for _, v := range s.Communities {
		if v == c {
			return true
		}
	}
	return false
}
