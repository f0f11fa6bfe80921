package expand

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/assignctl/internal/model"
)

func groups(ids ...string) []model.Group {
	out := make([]model.Group, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Group{ID: id})
	}
	return out
}

func apps(ids ...string) []model.App {
	out := make([]model.App, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.App{ID: id})
	}
	return out
}

func TestExpand_CoversEveryPair(t *testing.T) {
	for g := 1; g <= 4; g++ {
		for a := 1; a <= 3; a++ {
			var gids, aids []string
			for i := 0; i < g; i++ {
				gids = append(gids, fmt.Sprintf("G%d", i))
			}
			for i := 0; i < a; i++ {
				aids = append(aids, fmt.Sprintf("App%d", i))
			}

			matrix, err := NewExpander(groups(gids...), apps(aids...), model.IntentAvailable, nil).Expand()
			require.NoError(t, err)
			assert.Equal(t, g*a, matrix.Len())

			pairs := make(map[string]bool)
			for _, state := range matrix.States {
				for _, target := range state.Targets {
					assert.Equal(t, model.IntentAvailable, target.Intent)
					pairs[state.AppID+"/"+target.GroupID] = true
				}
			}
			assert.Len(t, pairs, g*a)
		}
	}
}

func TestExpand_OrderAndFilter(t *testing.T) {
	filter := &model.FilterRef{ID: "filter-1"}
	matrix, err := NewExpander(groups("G1", "G2"), apps("App1", "App2"), model.IntentRequired, filter).Expand()
	require.NoError(t, err)

	require.Len(t, matrix.States, 2)
	assert.Equal(t, "App1", matrix.States[0].AppID)
	assert.Equal(t, []string{"G1", "G2"}, matrix.States[0].GroupIDs())
	assert.Equal(t, []string{"G1", "G2"}, matrix.Scope())
	assert.Equal(t, []string{"App1", "App2"}, matrix.AppIDs())

	target := matrix.States[1].Targets[0]
	assert.Equal(t, "filter-1", target.FilterID)
	assert.Equal(t, model.FilterInclude, target.FilterMode)
	assert.Equal(t, model.FilterInclude, matrix.Filter.Mode)
	assert.Empty(t, filter.Mode, "caller's filter must not be modified")
}

func TestExpand_RejectsInvalidInput(t *testing.T) {
	cases := map[string]*Expander{
		"no groups":          NewExpander(nil, apps("A"), model.IntentRequired, nil),
		"no apps":            NewExpander(groups("G"), nil, model.IntentRequired, nil),
		"unknown intent":     NewExpander(groups("G"), apps("A"), model.Intent("mandatory"), nil),
		"uninstall + filter": NewExpander(groups("G"), apps("A"), model.IntentUninstall, &model.FilterRef{ID: "f"}),
		"filter without id":  NewExpander(groups("G"), apps("A"), model.IntentRequired, &model.FilterRef{}),
		"bad filter mode":    NewExpander(groups("G"), apps("A"), model.IntentRequired, &model.FilterRef{ID: "f", Mode: "both"}),
		"duplicate group":    NewExpander(groups("G", "G"), apps("A"), model.IntentRequired, nil),
		"duplicate app":      NewExpander(groups("G"), apps("A", "A"), model.IntentRequired, nil),
		"empty group id":     NewExpander(groups(""), apps("A"), model.IntentRequired, nil),
	}
	for name, e := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.Expand()
			assert.ErrorIs(t, err, model.ErrInvalidInput)
		})
	}
}

func TestExpand_UninstallWithoutFilter(t *testing.T) {
	matrix, err := NewExpander(groups("G"), apps("A"), model.IntentUninstall, nil).Expand()
	require.NoError(t, err)
	assert.Equal(t, 1, matrix.Len())
}
