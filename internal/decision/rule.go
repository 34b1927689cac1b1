package decision

import (
	"fmt"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Action is what a matched rule makes a unit do.
type Action string

const (
	ActionRetreat Action = "retreat"
	ActionHold    Action = "hold"
	ActionEngage  Action = "engage"
	ActionAdvance Action = "advance"
)

// RuleEnv is the expression environment a rule condition is evaluated against.
type RuleEnv struct {
	HPFraction       float64 // own HP / max HP
	Doctrine         string
	Distance         float64 // metres to the nearest opposing unit
	Range            float64 // own weapon range in metres
	Moving           bool
	RetreatThreshold float64
	ForceRatio       float64
}

// Rule is a condition → action pair. Rules are tried in descending priority
// and the first match decides the unit's action for this cycle.
type Rule struct {
	Name         string
	Priority     int
	ConditionSrc string
	Action       Action
	program      *vm.Program
}

// DefaultRules is the doctrine ladder: retreat, hold, engage, advance.
func DefaultRules() []*Rule {
	return []*Rule{
		{
			Name:         "retreat-when-broken",
			Priority:     400,
			ConditionSrc: `HPFraction < RetreatThreshold && Doctrine != "aggressive"`,
			Action:       ActionRetreat,
		},
		{
			Name:         "hold-defensive-line",
			Priority:     300,
			ConditionSrc: `Doctrine == "defensive" && Distance > Range`,
			Action:       ActionHold,
		},
		{
			Name:         "engage-in-range",
			Priority:     200,
			ConditionSrc: `Distance <= Range`,
			Action:       ActionEngage,
		},
		{
			Name:         "advance-on-threat",
			Priority:     100,
			ConditionSrc: `true`,
			Action:       ActionAdvance,
		},
	}
}

func compileRules(rules []*Rule) ([]*Rule, error) {
	for _, r := range rules {
		prog, err := expr.Compile(r.ConditionSrc, expr.Env(RuleEnv{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile rule %q: %w", r.Name, err)
		}
		r.program = prog
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
	return rules, nil
}

// match returns the first rule whose condition holds for env, or nil.
func match(rules []*Rule, env RuleEnv) (*Rule, error) {
	for _, r := range rules {
		result, err := vm.Run(r.program, env)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		if ok, _ := result.(bool); ok {
			return r, nil
		}
	}
	return nil, nil
}
