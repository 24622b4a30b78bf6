package store

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClasses_KeepsDeclarationOrder(t *testing.T) {
	t.Parallel()
	var c Classes
	c.Declare("Zeta")
	c.AddMethod("Alpha", "run")
	c.Declare("Zeta")
	c.AddMethod("Zeta", "stop")

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Equal(t, `{"Zeta":["stop"],"Alpha":["run"]}`, string(data))

	var decoded Classes
	require.NoError(t, json.Unmarshal([]byte(`{"B":[],"A":["x","y"]}`), &decoded))
	assert.Equal(t, []string{"B", "A"}, decoded.Names())
	assert.Equal(t, []string{"x", "y"}, decoded.Methods("A"))
	assert.True(t, decoded.Has("B"))
	assert.False(t, decoded.Has("C"))
}

func TestAnalysisResult_JSONShape(t *testing.T) {
	t.Parallel()
	data, err := json.Marshal(NewResult("rust"))
	require.NoError(t, err)
	assert.Equal(t, `{"language":"rust","functions":[],"classes":{},"routes":[]}`, string(data))

	failed, err := json.Marshal(ErrorResult("python", errors.New("boom")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"language":"python","functions":[],"classes":{},"routes":[],"error":"boom"}`, string(failed))
}

func TestRouteBinding_Target(t *testing.T) {
	t.Parallel()
	fn := RouteBinding{Function: "index", Method: "GET", Path: "/"}
	obj := RouteBinding{Object: "router", Method: "POST", Path: "/x"}
	assert.Equal(t, "index", fn.Target())
	assert.Equal(t, "function", fn.TargetKind())
	assert.Equal(t, "router", obj.Target())
	assert.Equal(t, "object", obj.TargetKind())

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"object":"router","method":"POST","path":"/x"}`, string(data))
}
