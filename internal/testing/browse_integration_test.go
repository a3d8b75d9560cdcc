// browse_integration_test.go - admin association browser over the wired stack
package testing

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oraclebackend/internal/navigator"
)

func TestBrowseDrillDownAndBack(t *testing.T) {
	suite := NewTestSuite(t)

	status, env := suite.postJSON("/api/browse/start", map[string]string{})
	require.Equal(t, http.StatusOK, status)
	session := decodeBrowse(t, env)
	sessionID := session.SessionID
	require.NotEmpty(t, sessionID)

	// Rubric list with per-rubric consultation counts.
	assert.Equal(t, navigator.AtRubrics, session.View.Position.Level)
	require.Len(t, session.View.Rubrics, 3)
	counts := map[string]int{}
	for _, rb := range session.View.Rubrics {
		counts[rb.ID] = rb.Count
	}
	assert.Equal(t, 2, counts["love"])
	assert.Equal(t, 1, counts["fortune"])
	assert.Equal(t, 0, counts["health"])

	// Drill into a rubric.
	status, env = suite.postJSON("/api/browse/open-rubric", map[string]string{
		"session_id": sessionID,
		"rubric_id":  "love",
	})
	require.Equal(t, http.StatusOK, status)
	choices := decodeBrowse(t, env)
	assert.Equal(t, navigator.AtChoices, choices.View.Position.Level)
	require.Len(t, choices.View.Choices, 2)

	// Drill into a choice; the requirement set comes back catalog-resolved.
	status, env = suite.postJSON("/api/browse/open-choice", map[string]string{
		"session_id": sessionID,
		"choice_id":  "love-reading",
	})
	require.Equal(t, http.StatusOK, status)
	details := decodeBrowse(t, env)
	assert.Equal(t, navigator.AtDetails, details.View.Position.Level)
	require.NotNil(t, details.View.Choice)
	assert.Equal(t, "Full Love Reading", details.View.Choice.Title)
	require.Len(t, details.View.Required, 3)
	names := map[string]bool{}
	for _, res := range details.View.Required {
		names[res.Name] = true
	}
	assert.True(t, names["White Chicken"])
	assert.True(t, names["Kola Nut"])
	assert.True(t, names["Palm Wine"])

	// Back climbs one level at a time and is a no-op at the top.
	for _, want := range []navigator.Level{navigator.AtChoices, navigator.AtRubrics, navigator.AtRubrics} {
		status, env = suite.postJSON("/api/browse/back", map[string]string{"session_id": sessionID})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, want, decodeBrowse(t, env).View.Position.Level)
	}

	// An empty rubric is a valid, empty choice list.
	status, env = suite.postJSON("/api/browse/open-rubric", map[string]string{
		"session_id": sessionID,
		"rubric_id":  "health",
	})
	require.Equal(t, http.StatusOK, status)
	empty := decodeBrowse(t, env)
	assert.Equal(t, navigator.AtChoices, empty.View.Position.Level)
	assert.Empty(t, empty.View.Choices)

	// Ending the session invalidates it.
	status, _ = suite.postJSON("/api/browse/end", map[string]string{"session_id": sessionID})
	require.Equal(t, http.StatusOK, status)
	status, _ = suite.getJSON("/api/browse/view?session_id=" + sessionID)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestBrowseLegacyChoiceDetails(t *testing.T) {
	suite := NewTestSuite(t)

	_, env := suite.postJSON("/api/browse/start", map[string]string{})
	sessionID := decodeBrowse(t, env).SessionID

	_, env = suite.postJSON("/api/browse/open-rubric", map[string]string{
		"session_id": sessionID,
		"rubric_id":  "love",
	})
	require.Equal(t, navigator.AtChoices, decodeBrowse(t, env).View.Position.Level)

	_, env = suite.postJSON("/api/browse/open-choice", map[string]string{
		"session_id": sessionID,
		"choice_id":  "quick-blessing",
	})
	details := decodeBrowse(t, env)
	require.Len(t, details.View.Required, 1)
	assert.Equal(t, "Kola Nut", details.View.Required[0].Name)
	assert.Equal(t, 1, details.View.Required[0].Alternative.Quantity)
}
