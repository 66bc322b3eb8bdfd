package format

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etchlang/etch/compiler/parse"
)

func TestRoundTrip(t *testing.T) {
	canonical := `const A = 32
const B = mul($A, 2)
global counter = add(1, 2)

function main(%x) {
entry:
	mstore 0, %x
	jmp @done
done:
	revert 0, 0, "nope"
}
`

	ctx := context.Background()

	c, err := parse.Unit(ctx, "t.etch", []byte(canonical))
	require.NoError(t, err)

	b, err := Format(ctx, nil, c)
	require.NoError(t, err)

	assert.Equal(t, canonical, string(b))

	// formatted text parses back to the same unit
	c2, err := parse.Unit(ctx, "t2.etch", b)
	require.NoError(t, err)

	b2, err := Format(ctx, nil, c2)
	require.NoError(t, err)

	assert.Equal(t, string(b), string(b2))
}

func TestMessyInput(t *testing.T) {
	src := "function f( %a ,%b ){\n  %s = add %a,%b ; comment\n\tstop\n}\n"

	ctx := context.Background()

	c, err := parse.Unit(ctx, "t.etch", []byte(src))
	require.NoError(t, err)

	b, err := Format(ctx, nil, c)
	require.NoError(t, err)

	assert.Equal(t, "function f(%a, %b) {\nentry:\n\t%s = add %a, %b\n\tstop\n}\n", string(b))
}
