package scenario_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Mohsinsiddi/curvesim/internal/ledger"
	"github.com/Mohsinsiddi/curvesim/internal/scenario"
	"github.com/Mohsinsiddi/curvesim/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, sc *scenario.Scenario) *scenario.Report {
	t.Helper()
	rep, err := scenario.NewRunner().Run(context.Background(), sc)
	require.NoError(t, err)
	return rep
}

func parseYAML(t *testing.T, src string) *scenario.Scenario {
	t.Helper()
	sc, err := scenario.Parse([]byte(src), "yaml")
	require.NoError(t, err)
	return sc
}

func requirePassed(t *testing.T, rep *scenario.Report) {
	t.Helper()
	for _, f := range rep.Failures() {
		t.Errorf("step %d (%s): %s", f.Index, f.Action, f.Failure)
	}
	require.True(t, rep.Passed())
}

// ---------------------------------------------------------------------------
// Load / Parse
// ---------------------------------------------------------------------------

func TestLoadYAML(t *testing.T) {
	sc, err := scenario.Load("../../scenarios/launch.yaml")
	require.NoError(t, err)
	assert.Equal(t, "launch", sc.Name)
	require.Len(t, sc.Steps, 5)
	assert.Equal(t, scenario.ActionBuy, sc.Steps[0].Action)
	assert.Equal(t, scenario.SellAll, sc.Steps[4].Tokens)
}

func TestLoadJSON(t *testing.T) {
	sc, err := scenario.Load("testdata/ownership.json")
	require.NoError(t, err)
	assert.Equal(t, "ownership", sc.Name)
	require.Len(t, sc.Steps, 4)
	assert.Equal(t, uint64(10), sc.Steps[2].Fees.Buy)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := scenario.Load("testdata/nope.yaml")
	assert.Error(t, err)
}

func TestParseRejectsUnknownField(t *testing.T) {
	_, err := scenario.Parse([]byte("name: x\nsteps:\n  - action: buy\n    account: a\n    eth: \"1\"\n    colour: red\n"), "yaml")
	assert.ErrorIs(t, err, scenario.ErrInvalidScenario)

	_, err = scenario.Parse([]byte(`{"steps":[],"extra":1}`), "json")
	assert.ErrorIs(t, err, scenario.ErrInvalidScenario)
}

func TestParseRejectsBadSteps(t *testing.T) {
	cases := map[string]string{
		"unknown action":  "steps:\n  - action: mint\n",
		"buy without eth": "steps:\n  - action: buy\n    account: a\n",
		"bad amount":      "steps:\n  - action: buy\n    account: a\n    eth: lots\n",
		"swap both sides": "steps:\n  - action: swap\n    account: a\n    eth: \"1\"\n    tokens: \"1\"\n",
		"fees over 100":   "fees: {buy: 60, sell: 0, liquidity: 50}\nsteps: []\n",
		"bad threshold":   "params: {threshold: \"-1\"}\nsteps: []\n",
		"bad expectation": "steps:\n  - action: expect\n    expect: {supply: many}\n",
		"bad account":     "accounts: {alice: \"0x12\"}\nsteps: []\n",
	}
	for name, src := range cases {
		_, err := scenario.Parse([]byte(src), "yaml")
		assert.ErrorIs(t, err, scenario.ErrInvalidScenario, name)
	}
}

func TestParseUnknownFormat(t *testing.T) {
	_, err := scenario.Parse([]byte("{}"), "toml")
	assert.ErrorIs(t, err, scenario.ErrInvalidScenario)
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestRunLaunchScenario(t *testing.T) {
	sc, err := scenario.Load("../../scenarios/launch.yaml")
	require.NoError(t, err)
	rep := run(t, sc)
	requirePassed(t, rep)

	require.Len(t, rep.Steps, 5)
	assert.Equal(t, "186520991955975878174", rep.Steps[0].Out.Dec())
	assert.Equal(t, "Transfers are restricted", rep.Steps[1].Reason)
	assert.ErrorIs(t, rep.Steps[1].Err, ledger.ErrTransferRestricted)
	assert.Equal(t, "Ownable: caller is not the owner", rep.Steps[2].Reason)
	assert.Equal(t, "ERC20: burn amount exceeds balance", rep.Steps[3].Reason)
	assert.True(t, rep.Steps[4].State.Supply.IsZero())
	assert.Equal(t, "alice", rep.Label(wallet.Derive("alice")))
}

func TestRunMigrationScenario(t *testing.T) {
	sc, err := scenario.Load("../../scenarios/migration.yaml")
	require.NoError(t, err)
	rep := run(t, sc)
	requirePassed(t, rep)

	mig := rep.Steps[0].Receipt.Migration
	require.NotNil(t, mig)
	assert.Equal(t, "1920000000000000000", mig.EthAmount.Dec())
	assert.Equal(t, "357770876399966369517", mig.TokenAmount.Dec())
	assert.Equal(t, wallet.Derive("pool"), mig.Destination)

	require.NotNil(t, rep.Pool)
	assert.Len(t, rep.Pool.Records, 2)
	assert.True(t, rep.Ledger.LiquidityAdded)
}

// Every scenario shipped under scenarios/ must load and pass.
func TestShippedScenariosPass(t *testing.T) {
	paths, err := filepath.Glob("../../scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	for _, p := range paths {
		t.Run(filepath.Base(p), func(t *testing.T) {
			sc, err := scenario.Load(p)
			require.NoError(t, err)
			requirePassed(t, run(t, sc))
		})
	}
}

func TestRunOwnershipScenario(t *testing.T) {
	sc, err := scenario.Load("testdata/ownership.json")
	require.NoError(t, err)
	rep := run(t, sc)
	requirePassed(t, rep)
	assert.Equal(t, wallet.Derive("alice"), rep.Ledger.Config.Owner)
}

func TestRunRecordsExpectationMismatch(t *testing.T) {
	rep := run(t, parseYAML(t, `
steps:
  - action: buy
    account: alice
    eth: "1"
    expect:
      reserve: "0.5"
  - action: expect
    expect:
      events: 1
`))
	assert.False(t, rep.Passed())
	failures := rep.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, 1, failures[0].Index)
	assert.Contains(t, failures[0].Failure, "reserve")
	assert.Contains(t, failures[0].Failure, "960000000000000000")
}

func TestRunRecordsUnexpectedSuccess(t *testing.T) {
	rep := run(t, parseYAML(t, `
steps:
  - action: buy
    account: alice
    eth: "1"
    expect_error: Insufficient ETH reserve
`))
	require.Len(t, rep.Failures(), 1)
	assert.Contains(t, rep.Failures()[0].Failure, "step succeeded")
}

func TestRunRecordsWrongError(t *testing.T) {
	rep := run(t, parseYAML(t, `
steps:
  - action: sell
    account: alice
    tokens: "1"
    expect_error: Transfers are restricted
`))
	require.Len(t, rep.Failures(), 1)
	assert.Equal(t, "ERC20: burn amount exceeds balance", rep.Steps[0].Reason)
}

func TestRunRecordsUnexpectedError(t *testing.T) {
	rep := run(t, parseYAML(t, `
steps:
  - action: sell
    account: alice
    tokens: all
`))
	require.Len(t, rep.Failures(), 1)
	assert.ErrorIs(t, rep.Steps[0].Err, ledger.ErrInvalidAmount)
}

func TestRunExpectErrorMatchesSubstring(t *testing.T) {
	rep := run(t, parseYAML(t, `
steps:
  - action: transfer_ownership
    to: "0x0000000000000000000000000000000000000000"
    expect_error: zero address
`))
	requirePassed(t, rep)
}

func TestRunSwapWithoutPool(t *testing.T) {
	rep := run(t, parseYAML(t, `
no_pool: true
steps:
  - action: swap
    account: bob
    eth: "1"
`))
	require.Len(t, rep.Failures(), 1)
	assert.ErrorIs(t, rep.Steps[0].Err, scenario.ErrNoPool)
	assert.Nil(t, rep.Pool)
}

func TestRunSwapBeforeMigration(t *testing.T) {
	rep := run(t, parseYAML(t, `
steps:
  - action: swap
    account: bob
    eth: "1"
    expect_error: no liquidity
`))
	requirePassed(t, rep)
}

func TestRunMigrationToRouterWithoutPool(t *testing.T) {
	rep := run(t, parseYAML(t, `
no_pool: true
params: {threshold: "1"}
roles: {router: desk}
steps:
  - action: buy
    account: alice
    eth: "2"
    expect:
      liquidity_added: true
      native: {desk: "1.92"}
      balances: {desk: 357770876399966369517wei}
`))
	requirePassed(t, rep)
}

func TestRunExplicitAccounts(t *testing.T) {
	rep := run(t, parseYAML(t, `
accounts:
  alice: "0x00000000000000000000000000000000000000b1"
steps:
  - action: buy
    account: alice
    eth: "1"
  - action: expect
    expect:
      balances:
        "0x00000000000000000000000000000000000000b1": 186520991955975878174wei
`))
	requirePassed(t, rep)
}

func TestRunHonoursMigrationPercent(t *testing.T) {
	rep := run(t, parseYAML(t, `
params: {threshold: "1"}
migration_percent: 50
steps:
  - action: buy
    account: alice
    eth: "2"
    expect:
      reserve: "0.96"
      balances: {pool: 178885438199983184758wei}
`))
	requirePassed(t, rep)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	sc, err := scenario.Load("../../scenarios/launch.yaml")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := scenario.NewRunner().Run(ctx, sc)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.Empty(t, rep.Steps)
}

func TestRunRejectsInvalidScenario(t *testing.T) {
	sc := &scenario.Scenario{Steps: []scenario.Step{{Action: "mint"}}}
	_, err := scenario.NewRunner().Run(context.Background(), sc)
	assert.ErrorIs(t, err, scenario.ErrInvalidScenario)
}
