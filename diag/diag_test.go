package diag_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/dsp-runtime/diag"
	"github.com/wippyai/dsp-runtime/errors"
)

func TestLocationString(t *testing.T) {
	tests := []struct {
		loc  diag.Location
		want string
	}{
		{diag.Location{}, ""},
		{diag.Location{File: "a.yaml"}, "a.yaml"},
		{diag.Location{File: "a.yaml", Line: 3}, "a.yaml:3"},
		{diag.Location{File: "a.yaml", Line: 3, Column: 7}, "a.yaml:3:7"},
		{diag.Location{Line: 3, Column: 7}, "3:7"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.loc.String())
	}
}

func TestListKeepsInsertionOrder(t *testing.T) {
	var l diag.List
	l.Addf(diag.Warning, diag.Location{}, "first")
	l.Addf(diag.Error, diag.Location{File: "p.yaml", Line: 2, Column: 5}, "second %d", 2)
	l.Addf(diag.Info, diag.Location{}, "third")

	msgs := l.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second 2", msgs[1].Text)
	assert.Equal(t, "third", msgs[2].Text)

	assert.True(t, l.HasErrors())
	assert.Equal(t, 1, l.Count(diag.Error))
	assert.Equal(t, "warning: first\np.yaml:2:5: error: second 2\ninfo: third", l.String())
}

func TestListAppendsAcrossCalls(t *testing.T) {
	var l diag.List
	l.Addf(diag.Error, diag.Location{}, "attempt one")
	l.Addf(diag.Error, diag.Location{}, "attempt two")

	assert.Equal(t, 2, l.Len())
	assert.Len(t, l.Errors(), 2)
	err := l.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attempt one")
	assert.Contains(t, err.Error(), "1 more")
}

func TestAddErrorUsesStructuredMessage(t *testing.T) {
	var l diag.List
	l.AddError(diag.Location{Line: 4}, errors.NotFound(errors.PhaseBind, "endpoint", "nope"))
	l.AddError(diag.Location{}, errors.New(errors.PhaseLink, errors.KindTypeMismatch).
		Endpoint("gain").Detail("bound as stream").Build())
	l.AddError(diag.Location{}, stderrors.New("plain"))

	msgs := l.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, `endpoint "nope" not found`, msgs[0].Text)
	assert.Equal(t, `endpoint "gain": bound as stream`, msgs[1].Text)
	assert.Equal(t, "plain", msgs[2].Text)
	for _, m := range msgs {
		assert.Equal(t, diag.Error, m.Severity)
	}
}

func TestNilListDiscards(t *testing.T) {
	var l *diag.List
	l.Addf(diag.Error, diag.Location{}, "dropped")
	l.AddError(diag.Location{}, stderrors.New("dropped"))

	assert.Equal(t, 0, l.Len())
	assert.False(t, l.HasErrors())
	assert.Nil(t, l.Messages())
	assert.NoError(t, l.Err())
	assert.Equal(t, "", l.String())
}

func TestMessagesReturnsCopy(t *testing.T) {
	var l diag.List
	l.Addf(diag.Info, diag.Location{}, "original")

	msgs := l.Messages()
	msgs[0].Text = "mutated"

	assert.Equal(t, "original", l.Messages()[0].Text)
}
