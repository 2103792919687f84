// Package scenario holds the five fixed prospect personas. They are
// read-only reference data: identity and briefing fields shown before a
// call, plus the behavioral prompt and voice that drive the realtime
// speech session.
package scenario

import "fmt"

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "Beginner"
	DifficultyIntermediate Difficulty = "Intermediate"
	DifficultyAdvanced     Difficulty = "Advanced"
)

// Scenario describes one persona.
type Scenario struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	ProspectName         string     `json:"prospectName"`
	ProspectTitle        string     `json:"prospectTitle"`
	Company              string     `json:"company"`
	CompanyDescription   string     `json:"companyDescription"`
	Difficulty           Difficulty `json:"difficulty"`
	SkillTag             string     `json:"skillTag"`
	ChallengeDescription string     `json:"challengeDescription"`
	Objective            string     `json:"objective"`
	Intel                string     `json:"intel"`
	Tips                 []string   `json:"tips"`
	Hint                 string     `json:"hint,omitempty"`
	AvatarURL            string     `json:"avatarUrl,omitempty"`

	// SystemPrompt drives the realtime model; never exposed to clients.
	SystemPrompt string `json:"-"`
	// Voice is the realtime voice id matched to the prospect.
	Voice string `json:"-"`
	// Greeting is the scripted line the persona answers the phone with.
	Greeting string `json:"-"`
}

// IDs lists scenario identifiers in display order.
var IDs = []string{"gatekeeper", "skeptic", "friendly-dead-end", "hostile", "warm-referral"}

// Get returns the scenario for id.
func Get(id string) (*Scenario, error) {
	s, ok := scenarios[id]
	if !ok {
		return nil, fmt.Errorf("unknown scenario: %q", id)
	}
	return s, nil
}

// List returns all scenarios in display order.
func List() []*Scenario {
	out := make([]*Scenario, 0, len(IDs))
	for _, id := range IDs {
		out = append(out, scenarios[id])
	}
	return out
}

// SessionInstructions is the full behavioral prompt for a voice session:
// the persona prompt with the shared conversation and wrap-up rules
// appended.
func SessionInstructions(s *Scenario) string {
	return s.SystemPrompt + sharedConversationRules
}
