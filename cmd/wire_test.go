package cmd

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bearhedge/APEYOLO-sub001/internal/config"
	"github.com/bearhedge/APEYOLO-sub001/internal/models"
	"github.com/bearhedge/APEYOLO-sub001/internal/planner"
)

func TestWiredSessionTrafficKeepsProposals(t *testing.T) {
	t.Setenv("APEYOLO_HOME", t.TempDir())
	ctx := context.Background()

	a, err := wireApp(ctx, config.Default())
	require.NoError(t, err)
	defer a.Close()

	stored, err := a.desk.Proposals().Add(ctx, &models.Proposal{
		Action: models.ActionSell,
		Terms:  models.TradeTerms{Symbol: "SPY", OptionType: models.OptionPut, Quantity: 1},
	})
	require.NoError(t, err)

	for i := 0; i < proposalCapacity; i++ {
		a.classifier.Classify(ctx, fmt.Sprintf("s%d", i), "what is the price of spy")
	}

	got, err := a.desk.Proposals().Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, got.ID)

	sessions, err := a.sessions.Keys(ctx, "session:")
	require.NoError(t, err)
	assert.Len(t, sessions, planner.SessionCapacity)

	leaked, err := a.kv.Keys(ctx, "session:")
	require.NoError(t, err)
	assert.Empty(t, leaked)
}
