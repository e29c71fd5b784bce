package check

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_RunProfile(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Result
	}{
		{
			name: "valid async run",
			src:  "async def run(self):\n    msg, sender = await self.receive()\n    self.print(msg.data)\n",
			want: Result{OK: true, Comment: "All good", Type: SeveritySuccess},
		},
		{
			name: "synchronous run",
			src:  "def run(self): pass",
			want: Result{OK: false, Comment: "The method 'run' must be async", Type: SeverityError},
		},
		{
			name: "missing run",
			src:  "async def main(self):\n    pass\n",
			want: Result{OK: false, Comment: "Expecting a method named 'run'", Type: SeverityError},
		},
		{
			name: "print call",
			src:  "async def run(self): print('hi')",
			want: Result{OK: false, Comment: "Line 1, Col 21: Use 'self.print()' instead of 'print'", Type: SeverityWarning},
		},
		{
			name: "two print calls",
			src:  "async def run(self):\n    print(1)\n    x = [print(2)]\n",
			want: Result{
				OK:      false,
				Comment: "Line 2, Col 4: Use 'self.print()' instead of 'print'\nLine 3, Col 9: Use 'self.print()' instead of 'print'",
				Type:    SeverityWarning,
			},
		},
		{
			name: "print column counts bytes",
			src:  "async def run(self):\n    x = 'é'; print(x)\n",
			want: Result{OK: false, Comment: "Line 2, Col 14: Use 'self.print()' instead of 'print'", Type: SeverityWarning},
		},
		{
			name: "last run definition decides",
			src:  "async def run(self):\n    pass\ndef run(self):\n    pass\n",
			want: Result{OK: false, Comment: "The method 'run' must be async", Type: SeverityError},
		},
		{
			name: "structural error wins over print warning",
			src:  "def run(self):\n    print('x')\n",
			want: Result{OK: false, Comment: "The method 'run' must be async", Type: SeverityError},
		},
		{
			name: "self.print is allowed",
			src:  "async def run(self):\n    self.print('ok')\n",
			want: Result{OK: true, Comment: "All good", Type: SeveritySuccess},
		},
		{
			name: "syntax error",
			src:  "async def run(self)\n    pass\n",
			want: Result{OK: false, Comment: "Line 1, Col 20: SyntaxError - expected ':'", Type: SeverityError},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Check(KindRun, tt.src)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Check(run) mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCheck_NodeAndMessageProfiles_OnlyPrintRule(t *testing.T) {
	// GIVEN class sources without any run method
	node := "class Router(Endpoint):\n    def helper(self):\n        return 1\n"
	message := "class Ping(BaseMessage):\n    color = 'red'\n    def __init__(self, data):\n        print(data)\n"

	// WHEN checked with their profiles
	nodeResult := Check(KindNode, node)
	messageResult := Check(KindMessage, message)

	// THEN the node source passes and the message source is only warned about print
	assert.Equal(t, Result{OK: true, Comment: SuccessComment, Type: SeveritySuccess}, nodeResult)
	assert.Equal(t, Result{
		OK:      false,
		Comment: "Line 4, Col 8: Use 'self.print()' instead of 'print'",
		Type:    SeverityWarning,
	}, messageResult)
}

func TestCheck_Idempotent(t *testing.T) {
	src := "async def run(self):\n    print('a')\n"
	assert.Equal(t, Check(KindRun, src), Check(KindRun, src))
}

func TestCheck_ExcessiveNesting_ReportsRecursionError(t *testing.T) {
	src := "async def run(self):\n    x = " + strings.Repeat("not ", 1000) + "True\n"
	got := Check(KindRun, src)
	assert.Equal(t, Result{OK: false, Comment: RecursionComment, Type: SeverityError}, got)
}

func TestCheck_UnknownKind(t *testing.T) {
	got := Check(Kind("widget"), "x = 1")
	assert.False(t, got.OK)
	assert.Equal(t, SeverityError, got.Type)
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("widget")
	assert.Error(t, err)
}

func TestResult_JSONShape(t *testing.T) {
	data, err := json.Marshal(Result{OK: false, Comment: "c", Type: SeverityWarning})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": false, "comment": "c", "type": "warning"}`, string(data))
}
