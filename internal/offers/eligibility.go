package offers

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// eligibilityEnv declares the client profile variables visible to catalog
// eligibility expressions.
func eligibilityEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("age", cel.IntType),
		cel.Variable("risk_score", cel.IntType),
		cel.Variable("relationship_years", cel.IntType),
		cel.Variable("investment_balance", cel.DoubleType),
		cel.Variable("owns_rural_property", cel.BoolType),
		cel.Variable("delinquency_history", cel.BoolType),
		cel.Variable("financing_need", cel.DoubleType),
	)
}

// compileEligibility compiles a product's optional eligibility expression.
// The expression must evaluate to a bool.
func compileEligibility(env *cel.Env, productID, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile eligibility for product %s: %w", productID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("product %s: eligibility expression must return bool, got %s", productID, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create eligibility program for product %s: %w", productID, err)
	}

	return program, nil
}

// evalEligibility runs a compiled eligibility program against a profile.
// An evaluation error counts as not eligible.
func evalEligibility(program cel.Program, client domain.ClientProfile) bool {
	out, _, err := program.Eval(map[string]any{
		"age":                 client.Age,
		"risk_score":          client.RiskScore,
		"relationship_years":  client.RelationshipYears,
		"investment_balance":  client.InvestmentBalance,
		"owns_rural_property": client.OwnsRuralProperty,
		"delinquency_history": client.DelinquencyHistory,
		"financing_need":      client.FinancingNeed,
	})
	if err != nil {
		return false
	}

	b, ok := out.(types.Bool)
	return ok && bool(b)
}
