package main

import (
	"reflect"
	"testing"
)

func TestRewriteDefinitionShowArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "no args",
			in:   []string{"canopy"},
			want: []string{"canopy"},
		},
		{
			name: "definition file first token",
			in:   []string{"canopy", "library.yaml"},
			want: []string{"canopy", "trees", "show", "library.yaml"},
		},
		{
			name: "yml extension and nested path",
			in:   []string{"canopy", "./trees/Library.YML"},
			want: []string{"canopy", "trees", "show", "./trees/Library.YML"},
		},
		{
			name: "definition file after value flag",
			in:   []string{"canopy", "--defs", "./fixtures.yaml.d", "library.yaml"},
			want: []string{"canopy", "--defs", "./fixtures.yaml.d", "trees", "show", "library.yaml"},
		},
		{
			name: "definition file after equals flag",
			in:   []string{"canopy", "--format=yaml", "library.yaml"},
			want: []string{"canopy", "--format=yaml", "trees", "show", "library.yaml"},
		},
		{
			name: "definition file after bool flag",
			in:   []string{"canopy", "--pretty", "library.yaml"},
			want: []string{"canopy", "--pretty", "trees", "show", "library.yaml"},
		},
		{
			name: "definition file after double dash",
			in:   []string{"canopy", "--dir", "./state", "--", "library.yaml"},
			want: []string{"canopy", "--dir", "./state", "--", "trees", "show", "library.yaml"},
		},
		{
			name: "bare extension is not a file",
			in:   []string{"canopy", ".yaml"},
			want: []string{"canopy", ".yaml"},
		},
		{
			name: "normal subcommand not rewritten",
			in:   []string{"canopy", "trees", "validate", "library.yaml"},
			want: []string{"canopy", "trees", "validate", "library.yaml"},
		},
		{
			name: "unknown command not rewritten",
			in:   []string{"canopy", "wat"},
			want: []string{"canopy", "wat"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := rewriteDefinitionShowArgs(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("rewriteDefinitionShowArgs:\n got: %#v\nwant: %#v", got, tt.want)
			}
		})
	}
}
