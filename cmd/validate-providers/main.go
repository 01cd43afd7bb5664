package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/marcelsud/webhook-gateway/dispatch"
	"github.com/marcelsud/webhook-gateway/forward"
	"github.com/marcelsud/webhook-gateway/providers"
	"github.com/marcelsud/webhook-gateway/webhook/verifier"
)

/* validate-providers - Standalone CLI tool to validate providers.yaml
 * Usage: go run cmd/validate-providers/main.go [providers.yaml]
 * Exit codes: 0 = valid, 1 = invalid
 * Set PRODUCTION_MODE=true to also reject configurations production refuses.
 */

func main() {
	// Get providers file path from args or use default
	providersFile := "providers.yaml"
	if len(os.Args) > 1 {
		providersFile = os.Args[1]
	}
	production := strings.EqualFold(os.Getenv("PRODUCTION_MODE"), "true")

	fmt.Printf("Validating providers file: %s\n", providersFile)
	fmt.Println(strings.Repeat("-", 50))

	snapshot, err := providers.NewLoader().Load(providersFile)
	if err != nil {
		fail(err)
	}

	// Handler declarations must register cleanly too
	registry := dispatch.NewRegistry()
	if _, err := snapshot.RegisterHandlers(registry, forward.Builder(nil)); err != nil {
		fail(err)
	}

	loaded := snapshot.List()
	var problems []string
	if production {
		problems = productionProblems(loaded)
	}

	fmt.Printf("✓ VALIDATION PASSED\n\n")
	fmt.Printf("Loaded %d provider(s):\n", len(loaded))

	for i, p := range loaded {
		fmt.Printf("\n%d. Provider: %s\n", i+1, p.Name)
		fmt.Printf("   Verifier:      %s\n", p.Verifier)
		fmt.Printf("   Active:        %t\n", p.Active)
		fmt.Printf("   Tolerance:     %s\n", p.Tolerance())
		if p.SkipsVerification() {
			fmt.Printf("   Secret:        not set, verification is skipped\n")
		}
		if p.RateLimitRequests > 0 {
			fmt.Printf("   Rate Limit:    %d per %s\n", p.RateLimitRequests, p.RateLimitPeriod())
		}
		if p.MaxPayloadBytes > 0 {
			fmt.Printf("   Max Payload:   %d bytes\n", p.MaxPayloadBytes)
		}

		for _, h := range p.Handlers {
			mode := "sync"
			if h.Async {
				mode = "async"
			}
			fmt.Printf("   Handler %s: %s -> %s (%s, priority %d)\n", h.Name, h.EventType, h.TargetURL, mode, h.Priority)
		}
	}

	if len(problems) > 0 {
		fmt.Fprintf(os.Stderr, "\n❌ NOT PRODUCTION READY\n\n")
		for _, p := range problems {
			fmt.Fprintf(os.Stderr, "- %s\n", p)
		}
		os.Exit(1)
	}

	fmt.Printf("\n✓ All providers are valid!\n")
	os.Exit(0)
}

// productionProblems lists what a production registry would refuse at request time
func productionProblems(all []providers.Provider) []string {
	var problems []string
	for _, p := range all {
		if !p.Active {
			continue
		}
		if p.SkipsVerification() {
			problems = append(problems, fmt.Sprintf("provider %s has no resolved signing secret", p.Name))
		}
		if p.Verifier == verifier.KindAlwaysPass {
			problems = append(problems, fmt.Sprintf("provider %s uses the test-only %s verifier", p.Name, p.Verifier))
		}
	}
	return problems
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "❌ VALIDATION FAILED\n\n")
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
