package loadtest

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

var queries = []string{
	"Compare the trade-offs of event sourcing and CRUD persistence",
	"Summarize the causes and effects of the 2008 financial crisis",
	"Explain how TCP congestion control adapts to packet loss",
	"Outline a migration plan from a monolith to services",
	"Describe the main approaches to retrieval augmented generation",
	"Evaluate the risks of running databases on Kubernetes",
}

var audiences = []string{"engineers", "executives", "students"}

// generateSubmissions builds n execution requests with teams teams each.
func generateSubmissions(n, teams int) []submission {
	out := make([]submission, n)
	for i := range out {
		s := submission{
			UserQuery: queries[rand.IntN(len(queries))], //nolint:gosec // test data
			Metadata: map[string]string{
				"audience": audiences[rand.IntN(len(audiences))], //nolint:gosec // test data
				"batch":    uuid.NewString()[:8],
			},
		}
		for t := 0; t < teams; t++ {
			s.Teams = append(s.Teams, teamSpec{
				ID:   fmt.Sprintf("team-%02d", t+1),
				Name: fmt.Sprintf("Team %d", t+1),
			})
		}
		out[i] = s
	}
	return out
}
