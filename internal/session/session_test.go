package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/insightcopilot/internal/chart"
	"github.com/KaramelBytes/insightcopilot/internal/dataset"
)

func TestStoreLifecycle(t *testing.T) {
	st := NewStore(time.Minute)
	s := st.Create()
	require.NotEmpty(t, s.ID)

	got, ok := st.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, st.Len())

	st.Delete(s.ID)
	_, ok = st.Get(s.ID)
	assert.False(t, ok)
}

func TestStoreExpires(t *testing.T) {
	st := NewStore(20 * time.Millisecond)
	s := st.Create()
	time.Sleep(50 * time.Millisecond)
	_, ok := st.Get(s.ID)
	assert.False(t, ok)
}

func TestGetOrCreate(t *testing.T) {
	st := NewStore(time.Minute)
	a := st.GetOrCreate("")
	assert.Same(t, a, st.GetOrCreate(a.ID))
	assert.NotEqual(t, a.ID, st.GetOrCreate("unknown").ID)
}

func TestSessionsAreIsolated(t *testing.T) {
	a, b := New(), New()
	ds, err := dataset.Load(strings.NewReader("a,b\n1,2\n"), "x.csv", dataset.DefaultOptions())
	require.NoError(t, err)

	a.SetDataset(ds)
	a.SetSuggestion("bar of a")
	assert.Nil(t, b.Dataset())
	assert.Empty(t, b.LastSuggestion())
	assert.Equal(t, "bar of a", a.LastSuggestion())
}

func TestSetDatasetClearsDerivedState(t *testing.T) {
	s := New()
	s.SetSuggestion("old")
	s.SetChart(&chart.Figure{Kind: chart.Bar}, "fig = px.bar(df)")
	s.SetDataset(nil)
	fig, code := s.LastChart()
	assert.Nil(t, fig)
	assert.Empty(t, code)
	assert.Empty(t, s.LastSuggestion())
}
