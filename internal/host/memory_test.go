package host

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineInterpreter(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		wantStdout string
		wantStderr string
		wantErr    string
	}{
		{
			name:       "print and warn",
			code:       "import adsk.core\nprint(\"done\")\nwarn('deprecated call')",
			wantStdout: "done\n",
			wantStderr: "deprecated call\n",
		},
		{
			name:    "raise with message",
			code:    "raise TypeError(\"expected ValueInput\")",
			wantErr: "TypeError: expected ValueInput",
		},
		{
			name:    "bare raise",
			code:    "raise RuntimeError",
			wantErr: "RuntimeError",
		},
		{
			name:       "indented block lines are skipped",
			code:       "if root is None:\n    raise RuntimeError(\"no root\")\nprint(\"built\")",
			wantStdout: "built\n",
		},
		{
			name: "unknown statements are ignored",
			code: "sketch = root.sketches.add(root.xYConstructionPlane)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			env := &ScriptEnv{Stdout: &stdout, Stderr: &stderr, Host: NewMemoryHost()}

			err := LineInterpreter(context.Background(), tt.code, env)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStdout, stdout.String())
			assert.Equal(t, tt.wantStderr, stderr.String())
		})
	}
}

func TestMemoryHost_TransactionClosesOnce(t *testing.T) {
	mem := NewMemoryHost()
	ctx := context.Background()

	tx, err := mem.Begin(ctx, "step")
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	assert.Error(t, tx.Rollback(ctx))
	assert.Equal(t, 0, mem.Rollbacks)
}

func TestMemoryHost_BeginWithoutDocument(t *testing.T) {
	mem := NewMemoryHost()
	mem.Document = nil

	_, err := mem.Begin(context.Background(), "step")
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestMemoryHost_RedirectRestores(t *testing.T) {
	mem := NewMemoryHost()
	var outer, inner bytes.Buffer

	restoreOuter := mem.Redirect(&outer, &outer)
	restoreInner := mem.Redirect(&inner, &inner)
	require.NoError(t, mem.Run(context.Background(), `print("inner")`, nil))
	restoreInner()
	require.NoError(t, mem.Run(context.Background(), `print("outer")`, nil))
	restoreOuter()

	assert.Equal(t, "inner\n", inner.String())
	assert.Equal(t, "outer\n", outer.String())
}
