package vm

import "testing"

// Each case below exercises one of the toolchain's documented usage
// scenarios end to end: source text in, input bytes in, output bytes
// out, through the full Lex/Parse/Assemble/Simulate pipeline.
func TestGoldenScenarios(t *testing.T) {
	cases := []struct {
		name   string
		source string
		input  string
		want   string
	}{
		{
			name:   "echo a single key with a trailing newline",
			source: `key emit cr`,
			input:  "X",
			want:   "X" + string(rune(13)),
		},
		{
			name:   "print a literal string",
			source: `." HI"`,
			input:  "",
			want:   "HI ",
		},
		{
			name: "cat echoes every input byte including the terminator",
			source: `
				begin
					key
					dup
					emit
					0 =
				until
			`,
			input: "AB",
			// the loop echoes the sentinel terminator byte too, but
			// drainOutput strips every zero byte on flush, so it never
			// shows up in the result.
			want: "AB",
		},
		{
			name: "counted loop sums 0..4 and prints the total",
			source: `
				variable sum
				0 sum !
				5 0 do
					sum cells i cells + sum !
				loop
				sum cells .
			`,
			input: "",
			want:  "10",
		},
		{
			name: "conditional prints 1 on a matching key, 0 otherwise",
			source: `
				key
				89 = if
					1 .
				else
					0 .
				then
			`,
			input: "Y",
			want:  "1",
		},
		{
			name: "conditional falls through to else on a non-matching key",
			source: `
				key
				89 = if
					1 .
				else
					0 .
				then
			`,
			input: "N",
			want:  "0",
		},
		{
			name: "a declared variable holds a value across store and fetch",
			source: `
				variable x
				42 x !
				x cells .
			`,
			input: "",
			want:  "42",
		},
		{
			name:   "the literal variable scenario stores and fetches through !/@",
			source: `variable x 42 x ! x @ .`,
			input:  "",
			want:   "42",
		},
		{
			name: "a defined word is callable by name",
			source: `
				: square dup * ;
				5 square .
			`,
			input: "",
			want:  "25",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := runSource(t, tc.source, tc.input)
			assert(t, got == tc.want, "expected %q, got %q", tc.want, got)
		})
	}
}
