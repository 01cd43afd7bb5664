package webhook

import "github.com/stretchr/testify/mock"

// MatchEvent lets mock expectations on Repository.Insert assert the record
// RegisterIfNew built, e.g. its status, dedup flag or generated id.
func MatchEvent(matcher func(Event) bool) any {
	return mock.MatchedBy(matcher)
}
