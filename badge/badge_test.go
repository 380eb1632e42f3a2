package badge

import (
	"testing"

	"github.com/hazyhaar/formwatch/track"
)

func TestForState(t *testing.T) {
	cases := []struct {
		state track.State
		want  Badge
	}{
		{track.StateWaiting, Badge{Text: "…", Color: "#2b57ff"}},
		{track.StateRecorded, Badge{Text: "OK", Color: "#1e7f3e"}},
		{track.StateTimeout, Badge{Text: "!", Color: "#b02a2a"}},
		{track.StateActive, Badge{Text: "•", Color: "#1e7f3e"}},
		{track.StateIdle, Badge{}},
		{track.State("garbage"), Badge{}},
	}
	for _, c := range cases {
		if got := ForState(c.state); got != c.want {
			t.Fatalf("ForState(%q) = %+v, want %+v", c.state, got, c.want)
		}
	}
}
