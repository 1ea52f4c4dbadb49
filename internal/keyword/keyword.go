package keyword

import (
	"strings"

	"coveragescan/internal/domain"
)

const (
	titleWeight = 30
	descWeight  = 15
	maxScore    = 100

	// baselineScore is assigned in broad-scan mode (no whitelist configured).
	// It sits below both classifier thresholds so broad-scan items always
	// wait for the model's verdict.
	baselineScore = 40
)

// Match is the outcome of scoring a candidate against a rule set.
type Match struct {
	Matched      bool
	Score        int
	MatchedTerms []string
}

// RuleSet splits keyword rules by polarity for one scoring pass.
type RuleSet struct {
	Whitelist []string
	Blacklist []string
}

// BuildRuleSets partitions a client's rules into a game-scoped set per game
// and one client-wide set. Game-scoped sets inherit the client-wide blacklist;
// blacklist rules are absolute regardless of scope.
func BuildRuleSets(rules []domain.KeywordRule) (byGame map[int64]RuleSet, clientWide RuleSet) {
	byGame = make(map[int64]RuleSet)

	for _, rule := range rules {
		term := strings.TrimSpace(rule.Term)
		if term == "" {
			continue
		}
		if rule.GameID == nil {
			clientWide = clientWide.add(term, rule.Polarity)
			continue
		}
		byGame[*rule.GameID] = byGame[*rule.GameID].add(term, rule.Polarity)
	}

	for id, set := range byGame {
		set.Blacklist = append(set.Blacklist, clientWide.Blacklist...)
		byGame[id] = set
	}

	return byGame, clientWide
}

func (r RuleSet) add(term string, polarity domain.RulePolarity) RuleSet {
	if polarity == domain.PolarityBlacklist {
		r.Blacklist = append(r.Blacklist, term)
	} else {
		r.Whitelist = append(r.Whitelist, term)
	}
	return r
}

// WithImplicitTerm returns a copy of the set with one extra whitelist term,
// used to treat a tracked game's own name as a whitelist entry for candidates
// already bound to that game.
func (r RuleSet) WithImplicitTerm(term string) RuleSet {
	term = strings.TrimSpace(term)
	if term == "" {
		return r
	}
	out := RuleSet{
		Whitelist: make([]string, 0, len(r.Whitelist)+1),
		Blacklist: r.Blacklist,
	}
	out.Whitelist = append(out.Whitelist, r.Whitelist...)
	for _, existing := range out.Whitelist {
		if strings.EqualFold(existing, term) {
			return r
		}
	}
	out.Whitelist = append(out.Whitelist, term)
	return out
}

// Score evaluates a title+description against the rule set. Any blacklist
// term present rejects outright. An empty whitelist matches everything not
// blacklisted at the baseline score (broad-scan mode). Otherwise each present
// whitelist term contributes the title weight, or the description weight when
// it only appears in the description; the total is capped.
func Score(title, description string, rules RuleSet) Match {
	lowerTitle := strings.ToLower(title)
	lowerDesc := strings.ToLower(description)

	for _, term := range rules.Blacklist {
		needle := strings.ToLower(term)
		if strings.Contains(lowerTitle, needle) || strings.Contains(lowerDesc, needle) {
			return Match{}
		}
	}

	if len(rules.Whitelist) == 0 {
		return Match{Matched: true, Score: baselineScore}
	}

	var (
		score   int
		matched []string
	)
	for _, term := range rules.Whitelist {
		needle := strings.ToLower(term)
		switch {
		case strings.Contains(lowerTitle, needle):
			score += titleWeight
			matched = append(matched, term)
		case strings.Contains(lowerDesc, needle):
			score += descWeight
			matched = append(matched, term)
		}
	}

	if len(matched) == 0 {
		return Match{}
	}
	if score > maxScore {
		score = maxScore
	}

	return Match{Matched: true, Score: score, MatchedTerms: matched}
}
