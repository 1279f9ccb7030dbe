package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectorDecodesStringOrList(t *testing.T) {
	t.Parallel()

	var single Selector
	require.NoError(t, json.Unmarshal([]byte(`"article"`), &single))
	require.Equal(t, []string{"article"}, single.Values())

	var list Selector
	require.NoError(t, json.Unmarshal([]byte(`["main", "#content"]`), &list))
	require.Equal(t, []string{"main", "#content"}, list.Values())
	require.Equal(t, "main", list.First())

	var bad Selector
	require.Error(t, json.Unmarshal([]byte(`42`), &bad))
}
